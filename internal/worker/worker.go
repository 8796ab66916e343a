package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/events"
	"github.com/SAP-F-2025/grading-service/internal/jobqueue"
)

type Config struct {
	CaseTimeout  time.Duration
	PollInterval time.Duration
}

// Worker drains ready jobs from the spool. It polls on a fixed interval and
// also wakes early when told a job was enqueued.
type Worker struct {
	spool     *jobqueue.Spool
	runner    Runner
	publisher events.EventPublisher
	logger    *slog.Logger
	config    Config
	wake      chan struct{}
}

func New(spool *jobqueue.Spool, runner Runner, publisher events.EventPublisher, logger *slog.Logger, config Config) *Worker {
	return &Worker{
		spool:     spool,
		runner:    runner,
		publisher: publisher,
		logger:    logger.With("component", "worker"),
		config:    config,
		wake:      make(chan struct{}, 1),
	}
}

// Wake asks the loop to scan for jobs without waiting for the next tick.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Listen wakes the worker for every submission.accepted event until ctx ends.
func (w *Worker) Listen(ctx context.Context, subscriber events.EventSubscriber) error {
	ch, err := subscriber.Subscribe(ctx, events.EventSubmissionAccepted)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
			w.Wake()
		}
	}()
	return nil
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting execution worker",
		"case_timeout", w.config.CaseTimeout,
		"poll_interval", w.config.PollInterval)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("Failed to scan job spool", "error", err)
		}
		if ctx.Err() != nil {
			w.logger.Info("Execution worker stopped")
			return nil
		}
		if processed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Execution worker stopped")
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// RunOnce processes every job that is ready now and returns how many were
// completed. A failing job is logged and does not stop the scan.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	ids, err := w.spool.ReadyJobs()
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if w.process(ctx, id) {
			processed++
		}
	}
	return processed, nil
}

func (w *Worker) process(ctx context.Context, id string) bool {
	logger := w.logger.With("job_id", id)

	job, err := w.spool.LoadJob(id)
	if err != nil {
		logger.Error("Skipping unreadable job", "error", err)
		if err := w.spool.RetireJob(id); err != nil {
			logger.Error("Failed to retire unreadable job", "error", err)
		}
		return false
	}

	logger.Info("Running job", "cases", len(job.Inputs))
	results, err := w.spool.BeginResults(id)
	if err != nil {
		logger.Error("Failed to stage results", "error", err)
		return false
	}

	for i, input := range job.Inputs {
		result := w.runner.Run(ctx, RunRequest{
			Dir:      job.Dir,
			CodeFile: jobqueue.CodeFile,
			Input:    input,
			Timeout:  w.config.CaseTimeout,
		})
		if ctx.Err() != nil {
			// leave the job ready so it runs again after restart
			logger.Warn("Job interrupted", "case_index", i)
			return false
		}
		if err := results.Write(i, result); err != nil {
			logger.Error("Failed to write case result", "case_index", i, "error", err)
			return false
		}
	}

	if err := results.Publish(); err != nil {
		logger.Error("Failed to publish results", "error", err)
		return false
	}
	if err := w.spool.RetireJob(id); err != nil {
		logger.Error("Failed to retire job", "error", err)
	}

	event := events.NewEvent(events.EventResultsReady)
	if submissionID, err := jobqueue.ParseJobID(id); err == nil {
		event.SubmissionID = submissionID
	}
	if err := w.publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish results event", "error", err)
	}

	logger.Info("Job finished", "cases", len(job.Inputs))
	return true
}
