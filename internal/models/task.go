package models

import (
	"time"
)

type Language string

const (
	LanguagePython Language = "python"
)

const (
	MaxCasesPerTask      = 100
	DefaultLimitTime     = time.Second
	DefaultLimitMemoryMB = 256
)

// Task is an assignment. Auto-graded tasks carry test cases and accept code
// submissions until Deadline.
type Task struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	CourseID    uint   `json:"course_id" gorm:"not null;index"`
	Title       string `json:"title" gorm:"not null;size:100"`
	Description string `json:"description" gorm:"type:text"`
	AutoGraded  bool   `json:"auto_graded" gorm:"not null;default:false"`

	Deadline  time.Time `json:"deadline" gorm:"not null"`
	MarkMax   float64   `json:"mark_max" gorm:"type:numeric(5,2);not null"`
	MarkOuter float64   `json:"mark_outer" gorm:"type:numeric(5,2);not null"`

	LimitTime     time.Duration `json:"limit_time" gorm:"not null;default:1000000000"`
	LimitMemoryMB int           `json:"limit_memory_mb" gorm:"not null;default:256"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Cases []TaskCase `json:"cases,omitempty" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

func (Task) TableName() string {
	return "tasks"
}

// TaskCase is one input/expected-output pair. The case index used on the
// job wire format is the position of the case when ordered by ID.
type TaskCase struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	TaskID         uint   `json:"task_id" gorm:"not null;index"`
	Input          string `json:"input" gorm:"type:text;not null;default:''"`
	ExpectedOutput string `json:"expected_output" gorm:"type:text;not null"`
	Hidden         bool   `json:"hidden" gorm:"not null;default:true"`
}

func (TaskCase) TableName() string {
	return "task_cases"
}

// TaskSubmission is unique per (task, user). IsRunning is set by intake and
// cleared only by the result collector.
type TaskSubmission struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	TaskID      uint      `json:"task_id" gorm:"not null;uniqueIndex:idx_submission_task_user"`
	UserID      string    `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_submission_task_user"`
	Language    Language  `json:"language" gorm:"not null;size:16"`
	Code        string    `json:"code" gorm:"type:text;not null"`
	IsRunning   bool      `json:"is_running" gorm:"not null;default:false;index"`
	SubmittedAt time.Time `json:"submitted_at" gorm:"not null"`

	Task     *Task           `json:"-" gorm:"foreignKey:TaskID"`
	Mark     *SubmissionMark `json:"mark,omitempty" gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE"`
	Verdicts []CaseVerdict   `json:"verdicts,omitempty" gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE"`
}

func (TaskSubmission) TableName() string {
	return "task_submissions"
}

type SubmissionMark struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	SubmissionID uint      `json:"submission_id" gorm:"not null;uniqueIndex"`
	TeacherID    *string   `json:"teacher_id" gorm:"size:255"`
	Mark         float64   `json:"mark" gorm:"type:numeric(5,2);not null"`
	Review       string    `json:"review" gorm:"size:255"`
	EvaluatedAt  time.Time `json:"evaluated_at" gorm:"not null"`
}

func (SubmissionMark) TableName() string {
	return "submission_marks"
}

type VerdictOutcome string

const (
	OutcomeAccepted       VerdictOutcome = "accepted"
	OutcomeWrongAnswer    VerdictOutcome = "wrong-answer"
	OutcomeTimeLimit      VerdictOutcome = "time-limit"
	OutcomeMemoryLimit    VerdictOutcome = "memory-limit"
	OutcomeCompileError   VerdictOutcome = "compile-error"
	OutcomeExecutionError VerdictOutcome = "execution-error"
	OutcomeRunning        VerdictOutcome = "running"
	OutcomeOther          VerdictOutcome = "other"
)

type CaseVerdict struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	SubmissionID uint           `json:"submission_id" gorm:"not null;uniqueIndex:idx_verdict_submission_case"`
	CaseID       uint           `json:"case_id" gorm:"not null;uniqueIndex:idx_verdict_submission_case"`
	CaseIndex    int            `json:"case_index" gorm:"not null"`
	Stdout       string         `json:"stdout" gorm:"type:text"`
	Stderr       string         `json:"stderr" gorm:"type:text"`
	ExitCode     int            `json:"exit_code"`
	Duration     time.Duration  `json:"duration"`
	MemoryKB     int64          `json:"memory_kb"`
	Outcome      VerdictOutcome `json:"outcome" gorm:"not null;size:32;default:running"`
}

func (CaseVerdict) TableName() string {
	return "case_verdicts"
}
