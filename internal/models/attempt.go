package models

import (
	"time"
)

// TestAttempt is one timed instance of a user taking a Test. Whether it is
// finished is derived from wall-clock time on every read; nothing evicts it.
type TestAttempt struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	TestID uint   `json:"test_id" gorm:"not null;index:idx_attempt_test_user"`
	UserID string `json:"user_id" gorm:"not null;size:255;index:idx_attempt_test_user"`

	StartedAt time.Time  `json:"started_at" gorm:"not null"`
	EndedAt   *time.Time `json:"ended_at"`

	// Manual override set by a teacher; takes precedence over computed score.
	OverrideScore *float64 `json:"override_score" gorm:"type:numeric(5,2)"`
	EvaluatedBy   *string  `json:"evaluated_by" gorm:"size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Test  *Test        `json:"-" gorm:"foreignKey:TestID"`
	Slots []AnswerSlot `json:"slots,omitempty" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

// CloseTime is min(test.EndsAt, StartedAt+test.Duration).
func (a *TestAttempt) CloseTime(test *Test) time.Time {
	deadline := a.StartedAt.Add(test.Duration)
	if test.EndsAt.Before(deadline) {
		return test.EndsAt
	}
	return deadline
}

// IsFinished: EndedAt set, or now >= test end, or now >= start + duration.
func (a *TestAttempt) IsFinished(test *Test, now time.Time) bool {
	if a.EndedAt != nil {
		return true
	}
	return !now.Before(a.CloseTime(test))
}

// AnswerSlot is one question's answer record inside an attempt. Slots are
// created together with their attempt; Position fixes the delivery order.
type AnswerSlot struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	AttemptID  uint       `json:"attempt_id" gorm:"not null;uniqueIndex:idx_slot_attempt_question;index:idx_slot_attempt_position"`
	QuestionID uint       `json:"question_id" gorm:"not null;uniqueIndex:idx_slot_attempt_question"`
	Position   int        `json:"position" gorm:"not null;index:idx_slot_attempt_position"`
	Answer     string     `json:"answer" gorm:"not null;default:'';size:50"`
	Score      *float64   `json:"score" gorm:"type:numeric(5,2)"`
	AnsweredAt *time.Time `json:"answered_at"`
}

func (AnswerSlot) TableName() string {
	return "answer_slots"
}

func (s *AnswerSlot) IsAnswered() bool {
	return s.Answer != ""
}
