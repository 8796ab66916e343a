package repositories

import (
	"context"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

// TestRepository stores tests together with their questions.
type TestRepository interface {
	// Create inserts the test and its questions.
	Create(ctx context.Context, test *models.Test) error
	// GetByID returns the test with questions ordered by ID.
	GetByID(ctx context.Context, id uint) (*models.Test, error)
	Delete(ctx context.Context, id uint) error
}

type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.TestAttempt) error
	GetByID(ctx context.Context, id uint) (*models.TestAttempt, error)
	// GetByIDForUpdate locks the attempt row until the transaction ends.
	GetByIDForUpdate(ctx context.Context, id uint) (*models.TestAttempt, error)
	// ListByTestAndUser returns attempts ordered by ID.
	ListByTestAndUser(ctx context.Context, testID uint, userID string) ([]*models.TestAttempt, error)
	ListByTest(ctx context.Context, testID uint) ([]*models.TestAttempt, error)
	Update(ctx context.Context, attempt *models.TestAttempt) error
}

type AnswerSlotRepository interface {
	// CreateBatch inserts slots in slice order.
	CreateBatch(ctx context.Context, slots []*models.AnswerSlot) error
	// ListByAttempt returns slots ordered by position.
	ListByAttempt(ctx context.Context, attemptID uint) ([]*models.AnswerSlot, error)
	Update(ctx context.Context, slot *models.AnswerSlot) error
}

type TaskRepository interface {
	// Create inserts the task and its cases.
	Create(ctx context.Context, task *models.Task) error
	// GetByID returns the task with cases ordered by ID.
	GetByID(ctx context.Context, id uint) (*models.Task, error)
}

type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.TaskSubmission) error
	GetByID(ctx context.Context, id uint) (*models.TaskSubmission, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.TaskSubmission, error)
	// GetByTaskAndUserForUpdate returns ErrNotFound when the user has no submission.
	GetByTaskAndUserForUpdate(ctx context.Context, taskID uint, userID string) (*models.TaskSubmission, error)
	// Delete removes the submission with its verdicts and mark.
	Delete(ctx context.Context, id uint) error
	SetRunning(ctx context.Context, id uint, running bool) error
	ListRunning(ctx context.Context) ([]*models.TaskSubmission, error)

	GetMark(ctx context.Context, submissionID uint) (*models.SubmissionMark, error)
	SaveMark(ctx context.Context, mark *models.SubmissionMark) error
}

type VerdictRepository interface {
	// ReplaceForSubmission deletes existing verdicts and inserts the new batch.
	ReplaceForSubmission(ctx context.Context, submissionID uint, verdicts []*models.CaseVerdict) error
	// ListBySubmission returns verdicts ordered by case index.
	ListBySubmission(ctx context.Context, submissionID uint) ([]*models.CaseVerdict, error)
}

type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Get(ctx context.Context, courseID uint, userID string) (*models.Enrollment, error)
	// GetForUpdate locks the membership row, serializing a user's
	// state-changing requests within one course.
	GetForUpdate(ctx context.Context, courseID uint, userID string) (*models.Enrollment, error)
}
