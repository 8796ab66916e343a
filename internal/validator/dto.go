package validator

import (
	"time"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

// TestCreateRequest represents the request structure for authoring a test
type TestCreateRequest struct {
	CourseID        uint                    `json:"course_id" validate:"required"`
	Title           string                  `json:"title" validate:"required,min=1,max=100"`
	Description     string                  `json:"description" validate:"max=2000"`
	OuterMark       float64                 `json:"outer_mark" validate:"gt=0,lte=999.99"`
	AttemptBudget   int                     `json:"attempt_budget" validate:"min=1,max=10"`
	Shuffle         bool                    `json:"shuffle"`
	Mode            models.NavigationMode   `json:"mode" validate:"required,navigation_mode"`
	StartsAt        time.Time               `json:"starts_at" validate:"required"`
	EndsAt          time.Time               `json:"ends_at" validate:"required"`
	DurationSeconds int64                   `json:"duration_seconds" validate:"min=1,max=86400"`
	Questions       []QuestionCreateRequest `json:"questions" validate:"required,min=1,max=70,dive"`
}

func (r *TestCreateRequest) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// QuestionCreateRequest describes one question of a new test. Options are
// listed in display order; choice answers refer to them by zero-based index.
type QuestionCreateRequest struct {
	Text       string              `json:"text" validate:"required,min=1,max=500"`
	Type       models.QuestionType `json:"type" validate:"required,question_type"`
	Options    []string            `json:"options" validate:"max=10,dive,min=1,max=150,single_line"`
	TrueAnswer string              `json:"true_answer" validate:"required,max=50"`
	MaxScore   float64             `json:"max_score" validate:"gt=0,lte=999.99"`
}

type AnswerRequest struct {
	Answer string `json:"answer" validate:"max=50"`
}

type OverrideScoreRequest struct {
	Score float64 `json:"score" validate:"gte=0"`
}

// TaskCreateRequest represents the request structure for creating a task
type TaskCreateRequest struct {
	CourseID         uint              `json:"course_id" validate:"required"`
	Title            string            `json:"title" validate:"required,min=1,max=100"`
	Description      string            `json:"description" validate:"max=5000"`
	AutoGraded       bool              `json:"auto_graded"`
	Deadline         time.Time         `json:"deadline" validate:"required"`
	MarkMax          float64           `json:"mark_max" validate:"gt=0,lte=999.99"`
	MarkOuter        float64           `json:"mark_outer" validate:"gte=0,lte=999.99"`
	LimitTimeSeconds int               `json:"limit_time_seconds" validate:"omitempty,min=1,max=10"`
	LimitMemoryMB    int               `json:"limit_memory_mb" validate:"omitempty,min=1,max=1024"`
	Cases            []TaskCaseRequest `json:"cases" validate:"max=100,dive"`
}

type TaskCaseRequest struct {
	Input          string `json:"input" validate:"max=65536"`
	ExpectedOutput string `json:"expected_output" validate:"max=65536"`
	Hidden         bool   `json:"hidden"`
}

type SubmitCodeRequest struct {
	Code     string          `json:"code" validate:"required,max=65536"`
	Language models.Language `json:"language" validate:"omitempty,oneof=python"`
}

type EvaluateSubmissionRequest struct {
	Mark   float64 `json:"mark" validate:"gte=0"`
	Review string  `json:"review" validate:"max=255"`
}
