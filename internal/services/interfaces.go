package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateTestRequest = validator.TestCreateRequest
type CreateTaskRequest = validator.TaskCreateRequest
type AnswerRequest = validator.AnswerRequest
type OverrideScoreRequest = validator.OverrideScoreRequest
type SubmitCodeRequest = validator.SubmitCodeRequest
type EvaluateSubmissionRequest = validator.EvaluateSubmissionRequest

type TestResponse struct {
	*models.Test
	MaxScore float64 `json:"max_score"`
	CanEdit  bool    `json:"can_edit"`
}

// ===== ATTEMPT RELATED DTOs =====

type AttemptResponse struct {
	*models.TestAttempt
	IsFinished bool      `json:"is_finished"`
	CloseTime  time.Time `json:"close_time"`
	// Score is nil while the attempt is open.
	Score *float64 `json:"score"`
}

// SlotView is one answer slot together with the question it belongs to.
type SlotView struct {
	SlotID   uint             `json:"slot_id"`
	Position int              `json:"position"`
	Question *models.Question `json:"question"`
	Answer   string           `json:"answer"`
	Score    *float64         `json:"score,omitempty"`
}

// AccessibleResponse lists the slots the user may view and answer now. In
// sequential mode it holds at most one slot.
type AccessibleResponse struct {
	AttemptID uint                  `json:"attempt_id"`
	Mode      models.NavigationMode `json:"mode"`
	Slots     []SlotView            `json:"slots"`
}

type ScoreResponse struct {
	AttemptID  uint     `json:"attempt_id"`
	IsFinished bool     `json:"is_finished"`
	Score      *float64 `json:"score"`
}

type BestScoreResponse struct {
	TestID uint     `json:"test_id"`
	UserID string   `json:"user_id"`
	Score  *float64 `json:"score"`
}

// ===== SUBMISSION RELATED DTOs =====

type SubmissionResponse struct {
	*models.TaskSubmission
	Pending bool `json:"pending"`
}

// CollectResult summarizes one collected result set.
type CollectResult struct {
	SubmissionID uint `json:"submission_id"`
	Accepted     int  `json:"accepted"`
	Total        int  `json:"total"`
}

// ===== SERVICE INTERFACES =====

type TestService interface {
	CreateTest(ctx context.Context, req *CreateTestRequest, userID string) (*TestResponse, error)
	GetTest(ctx context.Context, id uint, userID string) (*TestResponse, error)
	// DeleteTest succeeds only before the test's availability window opens.
	DeleteTest(ctx context.Context, id uint, userID string) error

	CreateTask(ctx context.Context, req *CreateTaskRequest, userID string) (*models.Task, error)
	GetTask(ctx context.Context, id uint, userID string) (*models.Task, error)
}

type AttemptService interface {
	// State transitions
	Start(ctx context.Context, testID uint, userID string) (*AttemptResponse, error)
	Complete(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
	Answer(ctx context.Context, attemptID, questionID uint, req *AnswerRequest, userID string) (*SlotView, error)
	Evaluate(ctx context.Context, attemptID uint, req *OverrideScoreRequest, teacherID string) (*AttemptResponse, error)

	// Read-only accessors
	GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
	Score(ctx context.Context, attemptID uint, userID string) (*ScoreResponse, error)
	IsFinished(ctx context.Context, attemptID uint) (bool, error)
	AccessibleQuestions(ctx context.Context, attemptID uint, userID string) (*AccessibleResponse, error)
	GetQuestion(ctx context.Context, attemptID, questionID uint, userID string) (*SlotView, error)
	List(ctx context.Context, testID uint, userID string) ([]*AttemptResponse, error)
	BestScore(ctx context.Context, testID uint, userID string) (*BestScoreResponse, error)
}

type SubmissionService interface {
	Submit(ctx context.Context, taskID uint, req *SubmitCodeRequest, userID string) (*SubmissionResponse, error)
	GetByID(ctx context.Context, submissionID uint, userID string) (*SubmissionResponse, error)
	Verdicts(ctx context.Context, submissionID uint, userID string) ([]*models.CaseVerdict, error)
	Evaluate(ctx context.Context, submissionID uint, req *EvaluateSubmissionRequest, teacherID string) (*models.SubmissionMark, error)

	// Reclaim clears a stuck in-flight flag and drops pending artifacts.
	// It is an operator action and performs no permission check.
	Reclaim(ctx context.Context, submissionID uint) error
	ListRunning(ctx context.Context) ([]*models.TaskSubmission, error)
}

type CollectorService interface {
	// CollectReady reconciles every ready result set and returns the ones
	// that produced verdicts.
	CollectReady(ctx context.Context) ([]CollectResult, error)
	CollectOne(ctx context.Context, jobID string) (*CollectResult, error)
}

type ReportService interface {
	// ExportTestScores renders all attempts of a test as an xlsx workbook.
	ExportTestScores(ctx context.Context, testID uint, userID string) ([]byte, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Test() TestService
	Attempt() AttemptService
	Submission() SubmissionService
	Collector() CollectorService
	Report() ReportService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
