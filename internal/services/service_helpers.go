package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

// Clock returns the current wall-clock time. Every openness check reads it
// exactly once per operation.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// ===== LOADERS =====

func loadTest(ctx context.Context, repo repositories.Repository, id uint) (*models.Test, error) {
	test, err := repo.Test().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return test, nil
}

func loadAttempt(ctx context.Context, repo repositories.Repository, id uint, forUpdate bool) (*models.TestAttempt, error) {
	var (
		attempt *models.TestAttempt
		err     error
	)
	if forUpdate {
		attempt, err = repo.Attempt().GetByIDForUpdate(ctx, id)
	} else {
		attempt, err = repo.Attempt().GetByID(ctx, id)
	}
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return attempt, nil
}

func loadTask(ctx context.Context, repo repositories.Repository, id uint) (*models.Task, error) {
	task, err := repo.Task().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func loadSubmission(ctx context.Context, repo repositories.Repository, id uint, forUpdate bool) (*models.TaskSubmission, error) {
	var (
		submission *models.TaskSubmission
		err        error
	)
	if forUpdate {
		submission, err = repo.Submission().GetByIDForUpdate(ctx, id)
	} else {
		submission, err = repo.Submission().GetByID(ctx, id)
	}
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return submission, nil
}

// ===== MEMBERSHIP =====

// lockEnrollment locks the user's membership row in the course. All
// state-changing student operations take this lock first, which serializes
// a user's concurrent requests.
func lockEnrollment(ctx context.Context, repo repositories.Repository, courseID uint, userID string) (*models.Enrollment, error) {
	enrollment, err := repo.Enrollment().GetForUpdate(ctx, courseID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewRejection(ReasonNotEnrolled, "user is not enrolled in course %d", courseID)
		}
		return nil, fmt.Errorf("failed to lock enrollment: %w", err)
	}
	return enrollment, nil
}

func getEnrollment(ctx context.Context, repo repositories.Repository, courseID uint, userID string) (*models.Enrollment, error) {
	enrollment, err := repo.Enrollment().Get(ctx, courseID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewRejection(ReasonNotEnrolled, "user is not enrolled in course %d", courseID)
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return enrollment, nil
}

// isCourseOwner reports whether userID teaches the course.
func isCourseOwner(ctx context.Context, repo repositories.Repository, courseID uint, userID string) (bool, error) {
	enrollment, err := repo.Enrollment().Get(ctx, courseID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return enrollment.IsOwner, nil
}

func requireOwner(ctx context.Context, repo repositories.Repository, courseID uint, userID, resource string, resourceID uint, action string) error {
	owner, err := isCourseOwner(ctx, repo, courseID, userID)
	if err != nil {
		return err
	}
	if !owner {
		return NewPermissionError(userID, resourceID, resource, action, "not a teacher of the course")
	}
	return nil
}

// logFailure logs expected business outcomes at Warn and everything else at
// Error.
func logFailure(logger *slog.Logger, msg string, err error, args ...interface{}) {
	if re, ok := RejectionOf(err); ok {
		logger.Warn(msg, append(args, "reason", re.Reason)...)
		return
	}
	if IsValidationError(err) || IsPermissionError(err) || IsNotFound(err) {
		logger.Warn(msg, append(args, "error", err)...)
		return
	}
	logger.Error(msg, append(args, "error", err)...)
}
