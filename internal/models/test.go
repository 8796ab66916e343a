package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionFree                QuestionType = "free"
	QuestionSingleChoice        QuestionType = "single-choice"
	QuestionMultiPartialPenalty QuestionType = "multi-choice-partial-penalty"
	QuestionMultiFullPenalty    QuestionType = "multi-choice-full-penalty"
)

// IsChoice reports whether answers to this type are option indices.
func (t QuestionType) IsChoice() bool {
	return t == QuestionSingleChoice || t == QuestionMultiPartialPenalty || t == QuestionMultiFullPenalty
}

func (t QuestionType) IsValid() bool {
	return t == QuestionFree || t.IsChoice()
}

type NavigationMode string

const (
	// NavigationSequential: answer once, in slot order.
	NavigationSequential NavigationMode = "sequential"
	// NavigationFree: revisit and revise any slot while the attempt is open.
	NavigationFree NavigationMode = "free"
)

type Test struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	CourseID    uint   `json:"course_id" gorm:"not null;index"`
	Title       string `json:"title" gorm:"not null;size:100"`
	Description string `json:"description" gorm:"type:text"`

	OuterMark     float64        `json:"outer_mark" gorm:"type:numeric(5,2);not null"`
	AttemptBudget int            `json:"attempt_budget" gorm:"not null;default:1;check:attempt_budget BETWEEN 1 AND 10"`
	Shuffle       bool           `json:"shuffle" gorm:"not null;default:true"`
	Mode          NavigationMode `json:"mode" gorm:"not null;size:16"`

	// Availability window [StartsAt, EndsAt) and per-attempt Duration.
	StartsAt time.Time     `json:"starts_at" gorm:"not null"`
	EndsAt   time.Time     `json:"ends_at" gorm:"not null"`
	Duration time.Duration `json:"duration" gorm:"not null"`

	CreatedBy string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:TestID;constraint:OnDelete:CASCADE"`
}

func (Test) TableName() string {
	return "tests"
}

// HasStarted reports whether the availability window has opened. A started
// test and its questions are immutable.
func (t *Test) HasStarted(now time.Time) bool {
	return !now.Before(t.StartsAt)
}

// IsOpen reports whether now lies in [StartsAt, EndsAt).
func (t *Test) IsOpen(now time.Time) bool {
	return t.HasStarted(now) && now.Before(t.EndsAt)
}

// MaxScore is the sum of question maximum scores.
func (t *Test) MaxScore() float64 {
	var total float64
	for _, q := range t.Questions {
		total += q.MaxScore
	}
	return total
}

func (t *Test) QuestionByID(id uint) (*Question, bool) {
	for i := range t.Questions {
		if t.Questions[i].ID == id {
			return &t.Questions[i], true
		}
	}
	return nil, false
}

type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	TestID uint         `json:"test_id" gorm:"not null;index"`
	Text   string       `json:"text" gorm:"type:text;not null"`
	Type   QuestionType `json:"type" gorm:"not null;size:32"`

	// Options is empty for free questions, 2..10 entries otherwise.
	Options datatypes.JSONSlice[string] `json:"options" gorm:"type:jsonb"`

	// TrueAnswer holds the expected string for free questions and
	// space-separated option indices for choice questions.
	TrueAnswer string  `json:"-" gorm:"not null;size:50"`
	MaxScore   float64 `json:"max_score" gorm:"type:numeric(5,2);not null"`

	CreatedAt time.Time `json:"created_at"`
}

func (Question) TableName() string {
	return "questions"
}
