package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EventType string

const (
	// EventSubmissionAccepted is published after intake marks a job ready.
	EventSubmissionAccepted EventType = "submission.accepted"
	// EventResultsReady is published after the worker marks a result set ready.
	EventResultsReady EventType = "results.ready"
	// EventSubmissionGraded is published after the collector stores verdicts.
	EventSubmissionGraded EventType = "submission.graded"
	// EventAttemptCompleted is published when an attempt is explicitly completed.
	EventAttemptCompleted EventType = "attempt.completed"
)

const (
	Source  = "grading-service"
	Version = "1.0"
)

// Event is the envelope carried on every topic.
type Event struct {
	ID           string            `json:"id"`
	Type         EventType         `json:"type"`
	Source       string            `json:"source"`
	Version      string            `json:"version"`
	Timestamp    time.Time         `json:"timestamp"`
	SubmissionID uint              `json:"submission_id,omitempty"`
	AttemptID    uint              `json:"attempt_id,omitempty"`
	UserID       string            `json:"user_id,omitempty"`
	Data         datatypes.JSONMap `json:"data,omitempty"`
}

func NewEvent(eventType EventType) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    Source,
		Version:   Version,
		Timestamp: time.Now().UTC(),
	}
}

func NewSubmissionEvent(eventType EventType, submissionID uint, userID string) *Event {
	e := NewEvent(eventType)
	e.SubmissionID = submissionID
	e.UserID = userID
	return e
}

// EventPublisher publishes events. Publishing is best effort for callers:
// the filesystem spool and the database stay authoritative.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// EventSubscriber delivers events of one type until ctx is cancelled.
type EventSubscriber interface {
	Subscribe(ctx context.Context, eventType EventType) (<-chan *Event, error)
}
