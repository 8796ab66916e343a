package services

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/grading-service/internal/validator"
)

// ===== INTEGRITY ERRORS =====

var (
	ErrTestNotFound       = errors.New("test not found")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrSubmissionNotFound = errors.New("submission not found")
)

// ===== REJECTIONS =====

// RejectionReason is the machine-checkable cause of a refused operation.
type RejectionReason string

const (
	ReasonNotYetOpen        RejectionReason = "not_yet_open"
	ReasonAlreadyClosed     RejectionReason = "already_closed"
	ReasonAttemptInProgress RejectionReason = "attempt_in_progress"
	ReasonAttemptsExhausted RejectionReason = "attempts_exhausted"
	ReasonAttemptFinished   RejectionReason = "attempt_finished"
	ReasonQuestionLocked    RejectionReason = "question_locked"
	ReasonNotEnrolled       RejectionReason = "not_enrolled"
	ReasonManualTask        RejectionReason = "manual_task"
	ReasonDeadlinePassed    RejectionReason = "deadline_passed"
	ReasonAlreadyMarked     RejectionReason = "already_marked"
	ReasonSubmissionRunning RejectionReason = "submission_running"
	ReasonThrottled         RejectionReason = "throttled"
	ReasonAlreadyStarted    RejectionReason = "already_started"
	ReasonAttemptOpen       RejectionReason = "attempt_open"
)

// RejectionError reports an expected business condition that prevented an
// operation. Nothing is written when it is returned.
type RejectionError struct {
	Reason  RejectionReason `json:"reason"`
	Message string          `json:"message"`
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected (%s): %s", e.Reason, e.Message)
}

func NewRejection(reason RejectionReason, format string, args ...interface{}) *RejectionError {
	return &RejectionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// RejectionOf returns the rejection wrapped in err, if any.
func RejectionOf(err error) (*RejectionError, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRejected reports whether err is a rejection with the given reason.
func IsRejected(err error, reason RejectionReason) bool {
	re, ok := RejectionOf(err)
	return ok && re.Reason == reason
}

// ===== PERMISSIONS =====

type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s may not %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// ===== VALIDATION =====

type ValidationErrors = validator.ValidationErrors
type ValidationError = validator.ValidationError

func IsValidationError(err error) bool {
	var ve validator.ValidationErrors
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrSubmissionNotFound)
}
