package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/cache"
	"github.com/SAP-F-2025/grading-service/internal/codecheck"
	"github.com/SAP-F-2025/grading-service/internal/events"
	"github.com/SAP-F-2025/grading-service/internal/jobqueue"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

type submissionService struct {
	repo      repositories.Repository
	spool     *jobqueue.Spool
	checker   codecheck.Checker
	throttle  *cache.SubmissionThrottle
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	now       Clock
}

func NewSubmissionService(
	repo repositories.Repository,
	spool *jobqueue.Spool,
	checker codecheck.Checker,
	throttle *cache.SubmissionThrottle,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *validator.Validator,
) SubmissionService {
	return &submissionService{
		repo:      repo,
		spool:     spool,
		checker:   checker,
		throttle:  throttle,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		now:       systemClock,
	}
}

// ===== INTAKE =====

// Submit replaces the user's submission for an auto-graded task and queues
// it for execution. The job is written and marked ready inside the
// transaction, so a failed enqueue leaves no submission behind.
func (s *submissionService) Submit(ctx context.Context, taskID uint, req *SubmitCodeRequest, userID string) (*SubmissionResponse, error) {
	s.logger.Info("Submitting code",
		"task_id", taskID,
		"user_id", userID,
		"code_bytes", len(req.Code))

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	language := req.Language
	if language == "" {
		language = models.LanguagePython
	}

	var (
		submission *models.TaskSubmission
		replaced   uint
	)
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		task, err := loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if _, err := lockEnrollment(ctx, tx, task.CourseID, userID); err != nil {
			return err
		}
		if !task.AutoGraded || len(task.Cases) == 0 {
			return NewRejection(ReasonManualTask, "task %d is not graded automatically", taskID)
		}

		now := s.now()
		if !now.Before(task.Deadline) {
			return NewRejection(ReasonDeadlinePassed, "deadline was %s", task.Deadline.Format(time.RFC3339))
		}

		existing, err := tx.Submission().GetByTaskAndUserForUpdate(ctx, taskID, userID)
		switch {
		case err == nil:
			if existing.IsRunning {
				return NewRejection(ReasonSubmissionRunning, "submission %d is still being graded", existing.ID)
			}
			if _, err := tx.Submission().GetMark(ctx, existing.ID); err == nil {
				return NewRejection(ReasonAlreadyMarked, "submission %d has been marked", existing.ID)
			} else if !repositories.IsNotFoundError(err) {
				return fmt.Errorf("failed to get mark: %w", err)
			}
		case repositories.IsNotFoundError(err):
			existing = nil
		default:
			return fmt.Errorf("failed to get submission: %w", err)
		}

		if violations := s.checker.Check(req.Code); len(violations) > 0 {
			return violationErrors(violations)
		}

		decision, err := s.throttle.Allow(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to check submission rate: %w", err)
		}
		if !decision.Allowed {
			return NewRejection(ReasonThrottled, "%s, retry in %s", decision.Reason, decision.RetryAfter.Round(time.Second))
		}

		if existing != nil {
			if err := tx.Submission().Delete(ctx, existing.ID); err != nil {
				return fmt.Errorf("failed to delete previous submission: %w", err)
			}
			replaced = existing.ID
		}

		submission = &models.TaskSubmission{
			TaskID:      taskID,
			UserID:      userID,
			Language:    language,
			Code:        req.Code,
			IsRunning:   true,
			SubmittedAt: now,
		}
		if err := tx.Submission().Create(ctx, submission); err != nil {
			return fmt.Errorf("failed to create submission: %w", err)
		}

		inputs := make([]string, len(task.Cases))
		for i, c := range task.Cases {
			inputs[i] = c.Input
		}
		// the job stays unmarked until the row is committed
		if err := s.spool.Stage(jobqueue.JobID(submission.ID), submission.Code, inputs); err != nil {
			return fmt.Errorf("failed to stage job: %w", err)
		}
		return nil
	})
	if err != nil {
		if submission != nil && submission.ID != 0 {
			s.discardJob(submission.ID)
		}
		logFailure(s.logger, "Submission not accepted", err, "task_id", taskID, "user_id", userID)
		return nil, err
	}

	if err := s.spool.MarkReady(jobqueue.JobID(submission.ID)); err != nil {
		s.logger.Error("Failed to queue submission", "submission_id", submission.ID, "error", err)
		s.discardJob(submission.ID)
		if err := s.repo.Submission().SetRunning(ctx, submission.ID, false); err != nil {
			s.logger.Error("Failed to clear running flag", "submission_id", submission.ID, "error", err)
		}
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	if replaced != 0 {
		if err := s.spool.Remove(jobqueue.JobID(replaced)); err != nil {
			s.logger.Warn("Failed to remove artifacts of replaced submission", "submission_id", replaced, "error", err)
		}
	}
	s.publish(ctx, events.NewSubmissionEvent(events.EventSubmissionAccepted, submission.ID, userID))

	s.logger.Info("Submission accepted",
		"submission_id", submission.ID,
		"task_id", taskID,
		"user_id", userID,
		"replaced", replaced)
	return &SubmissionResponse{TaskSubmission: submission, Pending: true}, nil
}

// ===== READS =====

func (s *submissionService) GetByID(ctx context.Context, submissionID uint, userID string) (*SubmissionResponse, error) {
	submission, err := s.loadForRead(ctx, submissionID, userID)
	if err != nil {
		return nil, err
	}
	pending, err := s.spool.Pending(jobqueue.JobID(submissionID))
	if err != nil {
		s.logger.Warn("Failed to inspect job spool", "submission_id", submissionID, "error", err)
	}
	return &SubmissionResponse{TaskSubmission: submission, Pending: pending}, nil
}

// Verdicts returns the submission's verdicts ordered by case index. It is
// empty while the submission is running for the first time.
func (s *submissionService) Verdicts(ctx context.Context, submissionID uint, userID string) ([]*models.CaseVerdict, error) {
	if _, err := s.loadForRead(ctx, submissionID, userID); err != nil {
		return nil, err
	}
	verdicts, err := s.repo.Verdict().ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}
	return verdicts, nil
}

func (s *submissionService) ListRunning(ctx context.Context) ([]*models.TaskSubmission, error) {
	running, err := s.repo.Submission().ListRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list running submissions: %w", err)
	}
	return running, nil
}

// ===== TEACHER AND OPERATOR ACTIONS =====

// Evaluate records the teacher's mark. A marked submission can no longer be
// replaced by its author.
func (s *submissionService) Evaluate(ctx context.Context, submissionID uint, req *EvaluateSubmissionRequest, teacherID string) (*models.SubmissionMark, error) {
	s.logger.Info("Evaluating submission",
		"submission_id", submissionID,
		"teacher_id", teacherID,
		"mark", req.Mark)

	var mark *models.SubmissionMark
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		submission, err := loadSubmission(ctx, tx, submissionID, true)
		if err != nil {
			return err
		}
		task, err := loadTask(ctx, tx, submission.TaskID)
		if err != nil {
			return err
		}
		if err := requireOwner(ctx, tx, task.CourseID, teacherID, "submission", submissionID, "evaluate"); err != nil {
			return err
		}
		if submission.IsRunning {
			return NewRejection(ReasonSubmissionRunning, "submission %d is still being graded", submissionID)
		}
		if errs := s.validator.GetBusinessValidator().ValidateMark(req, task); len(errs) > 0 {
			return errs
		}

		mark = &models.SubmissionMark{
			SubmissionID: submissionID,
			TeacherID:    &teacherID,
			Mark:         req.Mark,
			Review:       req.Review,
			EvaluatedAt:  s.now(),
		}
		if err := tx.Submission().SaveMark(ctx, mark); err != nil {
			return fmt.Errorf("failed to save mark: %w", err)
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "Submission not evaluated", err, "submission_id", submissionID, "teacher_id", teacherID)
		return nil, err
	}

	s.logger.Info("Submission evaluated", "submission_id", submissionID, "mark", mark.Mark)
	return mark, nil
}

// Reclaim releases a submission whose job will never complete. Pending job
// and result artifacts are removed before the flag is cleared so the worker
// cannot report a late result for it.
func (s *submissionService) Reclaim(ctx context.Context, submissionID uint) error {
	s.logger.Warn("Reclaiming submission", "submission_id", submissionID)

	return s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		submission, err := loadSubmission(ctx, tx, submissionID, true)
		if err != nil {
			return err
		}
		if err := s.spool.Remove(jobqueue.JobID(submissionID)); err != nil {
			return fmt.Errorf("failed to remove job artifacts: %w", err)
		}
		if !submission.IsRunning {
			s.logger.Info("Submission was not running", "submission_id", submissionID)
			return nil
		}
		if err := tx.Submission().SetRunning(ctx, submissionID, false); err != nil {
			return fmt.Errorf("failed to clear running flag: %w", err)
		}
		s.logger.Info("Submission reclaimed", "submission_id", submissionID)
		return nil
	})
}

// ===== HELPERS =====

func (s *submissionService) discardJob(submissionID uint) {
	if err := s.spool.Remove(jobqueue.JobID(submissionID)); err != nil {
		s.logger.Warn("Failed to remove job artifacts", "submission_id", submissionID, "error", err)
	}
}

func (s *submissionService) loadForRead(ctx context.Context, submissionID uint, userID string) (*models.TaskSubmission, error) {
	submission, err := loadSubmission(ctx, s.repo, submissionID, false)
	if err != nil {
		return nil, err
	}
	if submission.UserID == userID {
		return submission, nil
	}
	task, err := loadTask(ctx, s.repo, submission.TaskID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(ctx, s.repo, task.CourseID, userID, "submission", submissionID, "read"); err != nil {
		return nil, err
	}
	return submission, nil
}

func (s *submissionService) publish(ctx context.Context, event *events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event", "type", event.Type, "error", err)
	}
}

// violationErrors reports one entry per offending construct.
func violationErrors(violations []codecheck.Violation) ValidationErrors {
	errs := make(ValidationErrors, 0, len(violations))
	for _, v := range violations {
		errs = append(errs, ValidationError{
			Field:   "code",
			Message: fmt.Sprintf("line %d: %s", v.Line, v.Message),
			Value:   v.Construct,
			Rule:    string(v.Kind),
		})
	}
	return errs
}
