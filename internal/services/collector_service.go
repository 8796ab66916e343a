package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/events"
	"github.com/SAP-F-2025/grading-service/internal/jobqueue"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

// ErrResultSetSkipped is returned by CollectOne for result sets that were
// retired without producing verdicts.
var ErrResultSetSkipped = errors.New("result set skipped")

type collectorService struct {
	repo      repositories.Repository
	spool     *jobqueue.Spool
	publisher events.EventPublisher
	logger    *slog.Logger
}

func NewCollectorService(repo repositories.Repository, spool *jobqueue.Spool, publisher events.EventPublisher, logger *slog.Logger) CollectorService {
	return &collectorService{
		repo:      repo,
		spool:     spool,
		publisher: publisher,
		logger:    logger.With("component", "collector"),
	}
}

func (s *collectorService) CollectReady(ctx context.Context) ([]CollectResult, error) {
	ids, err := s.spool.ReadyResults()
	if err != nil {
		return nil, fmt.Errorf("failed to list result sets: %w", err)
	}

	var collected []CollectResult
	for _, id := range ids {
		if ctx.Err() != nil {
			return collected, ctx.Err()
		}
		result, err := s.CollectOne(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrResultSetSkipped) {
				s.logger.Error("Failed to collect result set", "job_id", id, "error", err)
			}
			continue
		}
		collected = append(collected, *result)
	}
	return collected, nil
}

// CollectOne reconciles one ready result set with its submission. A set
// whose file count or indices do not match the task's cases is retired
// without verdicts and the submission stays running.
func (s *collectorService) CollectOne(ctx context.Context, jobID string) (*CollectResult, error) {
	logger := s.logger.With("job_id", jobID)

	submissionID, err := jobqueue.ParseJobID(jobID)
	if err != nil {
		logger.Error("Skipping result set with invalid job id", "error", err)
		return nil, s.skip(jobID)
	}

	var (
		result     *CollectResult
		submission *models.TaskSubmission
	)
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		submission, err = loadSubmission(ctx, tx, submissionID, true)
		if err != nil {
			if errors.Is(err, ErrSubmissionNotFound) {
				logger.Warn("Skipping result set of a replaced submission", "submission_id", submissionID)
				return ErrResultSetSkipped
			}
			return err
		}
		if !submission.IsRunning {
			logger.Warn("Skipping result set of a submission that is not running", "submission_id", submissionID)
			return ErrResultSetSkipped
		}

		task, err := loadTask(ctx, tx, submission.TaskID)
		if err != nil {
			return err
		}

		raw, err := s.spool.LoadResults(jobID, len(task.Cases))
		if err != nil {
			if errors.Is(err, jobqueue.ErrMalformedResultSet) {
				logger.Error("Skipping malformed result set",
					"submission_id", submissionID,
					"cases", len(task.Cases),
					"error", err)
				return ErrResultSetSkipped
			}
			return err
		}

		verdicts := make([]*models.CaseVerdict, len(task.Cases))
		result = &CollectResult{SubmissionID: submissionID, Total: len(task.Cases)}
		for i, c := range task.Cases {
			verdicts[i] = newVerdict(task, &c, i, &raw[i])
			if verdicts[i].Outcome == models.OutcomeAccepted {
				result.Accepted++
			}
		}

		if err := tx.Verdict().ReplaceForSubmission(ctx, submissionID, verdicts); err != nil {
			return fmt.Errorf("failed to save verdicts: %w", err)
		}
		if err := tx.Submission().SetRunning(ctx, submissionID, false); err != nil {
			return fmt.Errorf("failed to clear running flag: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrResultSetSkipped) {
			return nil, s.skip(jobID)
		}
		return nil, err
	}

	if err := s.spool.RetireResults(jobID); err != nil {
		logger.Error("Failed to retire collected result set", "error", err)
	}

	event := events.NewSubmissionEvent(events.EventSubmissionGraded, submissionID, submission.UserID)
	event.Data = map[string]interface{}{
		"task_id":  submission.TaskID,
		"accepted": result.Accepted,
		"total":    result.Total,
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			logger.Warn("Failed to publish graded event", "error", err)
		}
	}

	logger.Info("Result set collected",
		"submission_id", submissionID,
		"accepted", result.Accepted,
		"total", result.Total)
	return result, nil
}

// skip retires a result set so it is not collected again.
func (s *collectorService) skip(jobID string) error {
	if err := s.spool.RetireResults(jobID); err != nil {
		s.logger.Error("Failed to retire skipped result set", "job_id", jobID, "error", err)
	}
	return ErrResultSetSkipped
}

func newVerdict(task *models.Task, c *models.TaskCase, index int, raw *jobqueue.CaseResult) *models.CaseVerdict {
	return &models.CaseVerdict{
		CaseID:    c.ID,
		CaseIndex: index,
		Stdout:    raw.Stdout,
		Stderr:    raw.Stderr,
		ExitCode:  raw.ExitCode,
		Duration:  raw.Duration,
		MemoryKB:  raw.MemoryKB,
		Outcome:   Classify(task, c, raw),
	}
}

// Classify maps one raw case result to an outcome. Limits are checked
// before output, and stdout is compared with the expected output verbatim.
func Classify(task *models.Task, c *models.TaskCase, raw *jobqueue.CaseResult) models.VerdictOutcome {
	limitTime := task.LimitTime
	if limitTime <= 0 {
		limitTime = models.DefaultLimitTime
	}
	limitMemoryKB := int64(task.LimitMemoryMB) * 1024
	if limitMemoryKB <= 0 {
		limitMemoryKB = models.DefaultLimitMemoryMB * 1024
	}

	switch {
	case raw.Error != "":
		return models.OutcomeExecutionError
	case raw.TimedOut || raw.Duration > limitTime:
		return models.OutcomeTimeLimit
	case raw.MemoryKB > limitMemoryKB:
		return models.OutcomeMemoryLimit
	case raw.ExitCode != 0:
		return models.OutcomeExecutionError
	case raw.Stdout == c.ExpectedOutput:
		return models.OutcomeAccepted
	default:
		return models.OutcomeWrongAnswer
	}
}

// Listen collects ready result sets whenever the worker reports one, and
// once every interval as a fallback for lost events.
func Listen(ctx context.Context, collector CollectorService, subscriber events.EventSubscriber, interval time.Duration, logger *slog.Logger) error {
	var ch <-chan *events.Event
	if subscriber != nil {
		var err error
		ch, err = subscriber.Subscribe(ctx, events.EventResultsReady)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", events.EventResultsReady, err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := collector.CollectReady(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Collection pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case _, ok := <-ch:
			if !ok {
				ch = nil
			}
		}
	}
}
