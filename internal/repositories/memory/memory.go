// Package memory is an in-process Repository used by tests and by the
// STORE=memory development mode. Transactions are serialized by one mutex
// and roll back by restoring a snapshot.
package memory

import (
	"context"
	"sync"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

type enrollmentKey struct {
	courseID uint
	userID   string
}

type store struct {
	seq map[string]uint

	tests       map[uint]models.Test
	attempts    map[uint]models.TestAttempt
	slots       map[uint]models.AnswerSlot
	tasks       map[uint]models.Task
	submissions map[uint]models.TaskSubmission
	marks       map[uint]models.SubmissionMark // keyed by submission ID
	verdicts    map[uint]models.CaseVerdict
	enrollments map[enrollmentKey]models.Enrollment
}

func newStore() *store {
	return &store{
		seq:         map[string]uint{},
		tests:       map[uint]models.Test{},
		attempts:    map[uint]models.TestAttempt{},
		slots:       map[uint]models.AnswerSlot{},
		tasks:       map[uint]models.Task{},
		submissions: map[uint]models.TaskSubmission{},
		marks:       map[uint]models.SubmissionMark{},
		verdicts:    map[uint]models.CaseVerdict{},
		enrollments: map[enrollmentKey]models.Enrollment{},
	}
}

func (s *store) next(table string) uint {
	s.seq[table]++
	return s.seq[table]
}

func (s *store) clone() *store {
	c := newStore()
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.tests {
		c.tests[k] = copyTest(v)
	}
	for k, v := range s.attempts {
		c.attempts[k] = copyAttempt(v)
	}
	for k, v := range s.slots {
		c.slots[k] = copySlot(v)
	}
	for k, v := range s.tasks {
		c.tasks[k] = copyTask(v)
	}
	for k, v := range s.submissions {
		c.submissions[k] = v
	}
	for k, v := range s.marks {
		c.marks[k] = v
	}
	for k, v := range s.verdicts {
		c.verdicts[k] = v
	}
	for k, v := range s.enrollments {
		c.enrollments[k] = v
	}
	return c
}

// Repository implements repositories.Repository in memory.
type Repository struct {
	mu   *sync.Mutex
	data *store
	inTx bool
}

func NewRepository() *Repository {
	return &Repository{mu: &sync.Mutex{}, data: newStore()}
}

var _ repositories.Repository = (*Repository)(nil)

// run executes fn under the store lock unless the caller already holds it.
func (r *Repository) run(fn func(s *store) error) error {
	if r.inTx {
		return fn(r.data)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.data)
}

func (r *Repository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.data.clone()
	tx := &Repository{mu: r.mu, data: r.data, inTx: true}
	if err := fn(tx); err != nil {
		*r.data = *snapshot
		return err
	}
	return ctx.Err()
}

func (r *Repository) Ping(ctx context.Context) error { return nil }

func (r *Repository) Close() error { return nil }

func (r *Repository) Test() repositories.TestRepository             { return testRepo{r} }
func (r *Repository) Attempt() repositories.AttemptRepository       { return attemptRepo{r} }
func (r *Repository) AnswerSlot() repositories.AnswerSlotRepository { return slotRepo{r} }
func (r *Repository) Task() repositories.TaskRepository             { return taskRepo{r} }
func (r *Repository) Submission() repositories.SubmissionRepository { return submissionRepo{r} }
func (r *Repository) Verdict() repositories.VerdictRepository       { return verdictRepo{r} }
func (r *Repository) Enrollment() repositories.EnrollmentRepository { return enrollmentRepo{r} }

// Manager adapts Repository to repositories.RepositoryManager.
type Manager struct {
	repo *Repository
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) Initialize() error {
	m.repo = NewRepository()
	return nil
}

func (m *Manager) GetRepository() repositories.Repository {
	return m.repo
}

func (m *Manager) HealthCheck(ctx context.Context) error { return nil }

func (m *Manager) Shutdown(ctx context.Context) error { return nil }

func copyTest(t models.Test) models.Test {
	if t.Questions != nil {
		qs := make([]models.Question, len(t.Questions))
		for i, q := range t.Questions {
			q.Options = append([]string(nil), q.Options...)
			qs[i] = q
		}
		t.Questions = qs
	}
	return t
}

func copyAttempt(a models.TestAttempt) models.TestAttempt {
	if a.EndedAt != nil {
		v := *a.EndedAt
		a.EndedAt = &v
	}
	if a.OverrideScore != nil {
		v := *a.OverrideScore
		a.OverrideScore = &v
	}
	if a.EvaluatedBy != nil {
		v := *a.EvaluatedBy
		a.EvaluatedBy = &v
	}
	a.Test = nil
	a.Slots = nil
	return a
}

func copySlot(s models.AnswerSlot) models.AnswerSlot {
	if s.Score != nil {
		v := *s.Score
		s.Score = &v
	}
	if s.AnsweredAt != nil {
		v := *s.AnsweredAt
		s.AnsweredAt = &v
	}
	return s
}

func copyTask(t models.Task) models.Task {
	t.Cases = append([]models.TaskCase(nil), t.Cases...)
	return t
}
