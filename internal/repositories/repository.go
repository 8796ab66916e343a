package repositories

import "context"

// Repository aggregates the grading engine's repositories.
type Repository interface {
	// Timed tests
	Test() TestRepository
	Attempt() AttemptRepository
	AnswerSlot() AnswerSlotRepository

	// Code tasks
	Task() TaskRepository
	Submission() SubmissionRepository
	Verdict() VerdictRepository

	// Course membership (read-mostly, owned by the CRUD layer)
	Enrollment() EnrollmentRepository

	// WithTransaction runs fn against a repository bound to one transaction.
	// Any error returned by fn rolls the transaction back.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
