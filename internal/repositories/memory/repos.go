package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

func notFound(what string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", what, id, repositories.ErrNotFound)
}

type testRepo struct{ r *Repository }

func (t testRepo) Create(ctx context.Context, test *models.Test) error {
	return t.r.run(func(s *store) error {
		now := time.Now()
		test.ID = s.next("tests")
		test.CreatedAt, test.UpdatedAt = now, now
		for i := range test.Questions {
			test.Questions[i].ID = s.next("questions")
			test.Questions[i].TestID = test.ID
			test.Questions[i].CreatedAt = now
		}
		s.tests[test.ID] = copyTest(*test)
		return nil
	})
}

func (t testRepo) GetByID(ctx context.Context, id uint) (*models.Test, error) {
	var out models.Test
	err := t.r.run(func(s *store) error {
		test, ok := s.tests[id]
		if !ok {
			return notFound("test", id)
		}
		out = copyTest(test)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (t testRepo) Delete(ctx context.Context, id uint) error {
	return t.r.run(func(s *store) error {
		if _, ok := s.tests[id]; !ok {
			return notFound("test", id)
		}
		delete(s.tests, id)
		for aid, a := range s.attempts {
			if a.TestID != id {
				continue
			}
			delete(s.attempts, aid)
			for sid, slot := range s.slots {
				if slot.AttemptID == aid {
					delete(s.slots, sid)
				}
			}
		}
		return nil
	})
}

type attemptRepo struct{ r *Repository }

func (a attemptRepo) Create(ctx context.Context, attempt *models.TestAttempt) error {
	return a.r.run(func(s *store) error {
		if _, ok := s.tests[attempt.TestID]; !ok {
			return notFound("test", attempt.TestID)
		}
		now := time.Now()
		attempt.ID = s.next("attempts")
		attempt.CreatedAt, attempt.UpdatedAt = now, now
		s.attempts[attempt.ID] = copyAttempt(*attempt)
		return nil
	})
}

func (a attemptRepo) GetByID(ctx context.Context, id uint) (*models.TestAttempt, error) {
	var out models.TestAttempt
	err := a.r.run(func(s *store) error {
		attempt, ok := s.attempts[id]
		if !ok {
			return notFound("attempt", id)
		}
		out = copyAttempt(attempt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByIDForUpdate needs no row lock: transactions already run one at a time.
func (a attemptRepo) GetByIDForUpdate(ctx context.Context, id uint) (*models.TestAttempt, error) {
	return a.GetByID(ctx, id)
}

func (a attemptRepo) list(match func(models.TestAttempt) bool) ([]*models.TestAttempt, error) {
	var out []*models.TestAttempt
	err := a.r.run(func(s *store) error {
		for _, attempt := range s.attempts {
			if match(attempt) {
				c := copyAttempt(attempt)
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (a attemptRepo) ListByTestAndUser(ctx context.Context, testID uint, userID string) ([]*models.TestAttempt, error) {
	return a.list(func(at models.TestAttempt) bool { return at.TestID == testID && at.UserID == userID })
}

func (a attemptRepo) ListByTest(ctx context.Context, testID uint) ([]*models.TestAttempt, error) {
	return a.list(func(at models.TestAttempt) bool { return at.TestID == testID })
}

func (a attemptRepo) Update(ctx context.Context, attempt *models.TestAttempt) error {
	return a.r.run(func(s *store) error {
		stored, ok := s.attempts[attempt.ID]
		if !ok {
			return notFound("attempt", attempt.ID)
		}
		attempt.UpdatedAt = time.Now()
		updated := copyAttempt(*attempt)
		stored.EndedAt = updated.EndedAt
		stored.OverrideScore = updated.OverrideScore
		stored.EvaluatedBy = updated.EvaluatedBy
		stored.UpdatedAt = updated.UpdatedAt
		s.attempts[attempt.ID] = stored
		return nil
	})
}

type slotRepo struct{ r *Repository }

func (sr slotRepo) CreateBatch(ctx context.Context, slots []*models.AnswerSlot) error {
	return sr.r.run(func(s *store) error {
		for _, slot := range slots {
			if _, ok := s.attempts[slot.AttemptID]; !ok {
				return notFound("attempt", slot.AttemptID)
			}
			slot.ID = s.next("slots")
			s.slots[slot.ID] = copySlot(*slot)
		}
		return nil
	})
}

func (sr slotRepo) ListByAttempt(ctx context.Context, attemptID uint) ([]*models.AnswerSlot, error) {
	var out []*models.AnswerSlot
	err := sr.r.run(func(s *store) error {
		for _, slot := range s.slots {
			if slot.AttemptID == attemptID {
				c := copySlot(slot)
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, err
}

func (sr slotRepo) Update(ctx context.Context, slot *models.AnswerSlot) error {
	return sr.r.run(func(s *store) error {
		stored, ok := s.slots[slot.ID]
		if !ok {
			return notFound("answer slot", slot.ID)
		}
		updated := copySlot(*slot)
		stored.Answer = updated.Answer
		stored.Score = updated.Score
		stored.AnsweredAt = updated.AnsweredAt
		s.slots[slot.ID] = stored
		return nil
	})
}

type taskRepo struct{ r *Repository }

func (t taskRepo) Create(ctx context.Context, task *models.Task) error {
	return t.r.run(func(s *store) error {
		now := time.Now()
		task.ID = s.next("tasks")
		task.CreatedAt, task.UpdatedAt = now, now
		for i := range task.Cases {
			task.Cases[i].ID = s.next("cases")
			task.Cases[i].TaskID = task.ID
		}
		s.tasks[task.ID] = copyTask(*task)
		return nil
	})
}

func (t taskRepo) GetByID(ctx context.Context, id uint) (*models.Task, error) {
	var out models.Task
	err := t.r.run(func(s *store) error {
		task, ok := s.tasks[id]
		if !ok {
			return notFound("task", id)
		}
		out = copyTask(task)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type submissionRepo struct{ r *Repository }

func (sr submissionRepo) Create(ctx context.Context, submission *models.TaskSubmission) error {
	return sr.r.run(func(s *store) error {
		if _, ok := s.tasks[submission.TaskID]; !ok {
			return notFound("task", submission.TaskID)
		}
		for _, existing := range s.submissions {
			if existing.TaskID == submission.TaskID && existing.UserID == submission.UserID {
				return fmt.Errorf("submission for task %d: %w", submission.TaskID, repositories.ErrDuplicate)
			}
		}
		submission.ID = s.next("submissions")
		stored := *submission
		stored.Task, stored.Mark, stored.Verdicts = nil, nil, nil
		s.submissions[submission.ID] = stored
		return nil
	})
}

func (sr submissionRepo) GetByID(ctx context.Context, id uint) (*models.TaskSubmission, error) {
	var out models.TaskSubmission
	err := sr.r.run(func(s *store) error {
		submission, ok := s.submissions[id]
		if !ok {
			return notFound("submission", id)
		}
		out = submission
		if mark, ok := s.marks[id]; ok {
			out.Mark = &mark
		}
		for _, v := range s.verdicts {
			if v.SubmissionID == id {
				out.Verdicts = append(out.Verdicts, v)
			}
		}
		sort.Slice(out.Verdicts, func(i, j int) bool { return out.Verdicts[i].CaseIndex < out.Verdicts[j].CaseIndex })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (sr submissionRepo) GetByIDForUpdate(ctx context.Context, id uint) (*models.TaskSubmission, error) {
	var out models.TaskSubmission
	err := sr.r.run(func(s *store) error {
		submission, ok := s.submissions[id]
		if !ok {
			return notFound("submission", id)
		}
		out = submission
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (sr submissionRepo) GetByTaskAndUserForUpdate(ctx context.Context, taskID uint, userID string) (*models.TaskSubmission, error) {
	var out *models.TaskSubmission
	err := sr.r.run(func(s *store) error {
		for _, submission := range s.submissions {
			if submission.TaskID == taskID && submission.UserID == userID {
				c := submission
				out = &c
				return nil
			}
		}
		return notFound("submission for task", taskID)
	})
	return out, err
}

func (sr submissionRepo) Delete(ctx context.Context, id uint) error {
	return sr.r.run(func(s *store) error {
		if _, ok := s.submissions[id]; !ok {
			return notFound("submission", id)
		}
		delete(s.submissions, id)
		delete(s.marks, id)
		for vid, v := range s.verdicts {
			if v.SubmissionID == id {
				delete(s.verdicts, vid)
			}
		}
		return nil
	})
}

func (sr submissionRepo) SetRunning(ctx context.Context, id uint, running bool) error {
	return sr.r.run(func(s *store) error {
		submission, ok := s.submissions[id]
		if !ok {
			return notFound("submission", id)
		}
		submission.IsRunning = running
		s.submissions[id] = submission
		return nil
	})
}

func (sr submissionRepo) ListRunning(ctx context.Context) ([]*models.TaskSubmission, error) {
	var out []*models.TaskSubmission
	err := sr.r.run(func(s *store) error {
		for _, submission := range s.submissions {
			if submission.IsRunning {
				c := submission
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (sr submissionRepo) GetMark(ctx context.Context, submissionID uint) (*models.SubmissionMark, error) {
	var out models.SubmissionMark
	err := sr.r.run(func(s *store) error {
		mark, ok := s.marks[submissionID]
		if !ok {
			return notFound("mark for submission", submissionID)
		}
		out = mark
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (sr submissionRepo) SaveMark(ctx context.Context, mark *models.SubmissionMark) error {
	return sr.r.run(func(s *store) error {
		if _, ok := s.submissions[mark.SubmissionID]; !ok {
			return notFound("submission", mark.SubmissionID)
		}
		if existing, ok := s.marks[mark.SubmissionID]; ok {
			mark.ID = existing.ID
		} else {
			mark.ID = s.next("marks")
		}
		if mark.EvaluatedAt.IsZero() {
			mark.EvaluatedAt = time.Now()
		}
		s.marks[mark.SubmissionID] = *mark
		return nil
	})
}

type verdictRepo struct{ r *Repository }

func (v verdictRepo) ReplaceForSubmission(ctx context.Context, submissionID uint, verdicts []*models.CaseVerdict) error {
	return v.r.run(func(s *store) error {
		if _, ok := s.submissions[submissionID]; !ok {
			return notFound("submission", submissionID)
		}
		for id, existing := range s.verdicts {
			if existing.SubmissionID == submissionID {
				delete(s.verdicts, id)
			}
		}
		for _, verdict := range verdicts {
			verdict.ID = s.next("verdicts")
			verdict.SubmissionID = submissionID
			s.verdicts[verdict.ID] = *verdict
		}
		return nil
	})
}

func (v verdictRepo) ListBySubmission(ctx context.Context, submissionID uint) ([]*models.CaseVerdict, error) {
	var out []*models.CaseVerdict
	err := v.r.run(func(s *store) error {
		for _, verdict := range s.verdicts {
			if verdict.SubmissionID == submissionID {
				c := verdict
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CaseIndex < out[j].CaseIndex })
	return out, err
}

type enrollmentRepo struct{ r *Repository }

func (e enrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return e.r.run(func(s *store) error {
		key := enrollmentKey{enrollment.CourseID, enrollment.UserID}
		if _, ok := s.enrollments[key]; ok {
			return fmt.Errorf("enrollment: %w", repositories.ErrDuplicate)
		}
		enrollment.ID = s.next("enrollments")
		enrollment.CreatedAt = time.Now()
		s.enrollments[key] = *enrollment
		return nil
	})
}

func (e enrollmentRepo) Get(ctx context.Context, courseID uint, userID string) (*models.Enrollment, error) {
	var out models.Enrollment
	err := e.r.run(func(s *store) error {
		enrollment, ok := s.enrollments[enrollmentKey{courseID, userID}]
		if !ok {
			return notFound("enrollment in course", courseID)
		}
		out = enrollment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (e enrollmentRepo) GetForUpdate(ctx context.Context, courseID uint, userID string) (*models.Enrollment, error) {
	return e.Get(ctx, courseID, userID)
}
