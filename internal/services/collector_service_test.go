package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/grading-service/internal/events"
	"github.com/SAP-F-2025/grading-service/internal/jobqueue"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

func TestCollect_AllCasesAccepted(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	resp, err := env.submissions.Submit(env.ctx, task.ID, submit(sumCode), studentID)
	require.NoError(t, err)

	env.runJob(t, resp.ID, echoSum)

	collected, err := env.collector.CollectReady(env.ctx)
	require.NoError(t, err)
	require.Len(t, collected, 1)
	assert.Equal(t, CollectResult{SubmissionID: resp.ID, Accepted: 2, Total: 2}, collected[0])

	got, err := env.submissions.GetByID(env.ctx, resp.ID, studentID)
	require.NoError(t, err)
	assert.False(t, got.IsRunning)
	assert.False(t, got.Pending)

	verdicts, err := env.submissions.Verdicts(env.ctx, resp.ID, studentID)
	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	for i, v := range verdicts {
		assert.Equal(t, i, v.CaseIndex)
		assert.Equal(t, task.Cases[i].ID, v.CaseID)
		assert.Equal(t, models.OutcomeAccepted, v.Outcome)
	}

	graded := env.publisher.EventsOfType(events.EventSubmissionGraded)
	require.Len(t, graded, 1)
	assert.Equal(t, resp.ID, graded[0].SubmissionID)
	assert.EqualValues(t, 2, graded[0].Data["accepted"])

	// a second pass finds nothing
	collected, err = env.collector.CollectReady(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, collected)
}

func TestCollect_MixedOutcomes(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t,
		validator.TaskCaseRequest{Input: "a", ExpectedOutput: "ok\n"},
		validator.TaskCaseRequest{Input: "b", ExpectedOutput: "ok\n"},
		validator.TaskCaseRequest{Input: "c", ExpectedOutput: "ok\n"},
		validator.TaskCaseRequest{Input: "d", ExpectedOutput: "ok\n"},
	)
	resp, err := env.submissions.Submit(env.ctx, task.ID, submit("print('ok')\n"), studentID)
	require.NoError(t, err)

	env.runJob(t, resp.ID, func(input string) *jobqueue.CaseResult {
		switch input {
		case "a":
			return &jobqueue.CaseResult{Stdout: "ok\n"}
		case "b":
			return &jobqueue.CaseResult{Stdout: "ok"}
		case "c":
			return &jobqueue.CaseResult{TimedOut: true, ExitCode: -1, Duration: 10 * time.Second}
		default:
			return &jobqueue.CaseResult{ExitCode: 1, Stderr: "Traceback"}
		}
	})

	result, err := env.collector.CollectOne(env.ctx, jobqueue.JobID(resp.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 4, result.Total)

	verdicts, err := env.submissions.Verdicts(env.ctx, resp.ID, teacherID)
	require.NoError(t, err)
	outcomes := make([]models.VerdictOutcome, len(verdicts))
	for i, v := range verdicts {
		outcomes[i] = v.Outcome
	}
	assert.Equal(t, []models.VerdictOutcome{
		models.OutcomeAccepted,
		models.OutcomeWrongAnswer,
		models.OutcomeTimeLimit,
		models.OutcomeExecutionError,
	}, outcomes)
	assert.Equal(t, "Traceback", verdicts[3].Stderr)
}

func TestCollect_IncompleteResultSetIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t,
		validator.TaskCaseRequest{Input: "1", ExpectedOutput: "1\n"},
		validator.TaskCaseRequest{Input: "2", ExpectedOutput: "2\n"},
		validator.TaskCaseRequest{Input: "3", ExpectedOutput: "3\n"},
	)
	resp, err := env.submissions.Submit(env.ctx, task.ID, submit("print(input())\n"), studentID)
	require.NoError(t, err)

	id := jobqueue.JobID(resp.ID)
	w, err := env.spool.BeginResults(id)
	require.NoError(t, err)
	require.NoError(t, w.Write(0, &jobqueue.CaseResult{Stdout: "1\n"}))
	require.NoError(t, w.Write(1, &jobqueue.CaseResult{Stdout: "2\n"}))
	require.NoError(t, w.Publish())

	_, err = env.collector.CollectOne(env.ctx, id)
	assert.ErrorIs(t, err, ErrResultSetSkipped)

	got, err := env.submissions.GetByID(env.ctx, resp.ID, studentID)
	require.NoError(t, err)
	assert.True(t, got.IsRunning)

	verdicts, err := env.submissions.Verdicts(env.ctx, resp.ID, studentID)
	require.NoError(t, err)
	assert.Empty(t, verdicts)

	ready, err := env.spool.ReadyResults()
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.Empty(t, env.publisher.EventsOfType(events.EventSubmissionGraded))
}

func TestCollect_OrphanResultSetIsSkipped(t *testing.T) {
	env := newTestEnv(t)

	w, err := env.spool.BeginResults(jobqueue.JobID(77))
	require.NoError(t, err)
	require.NoError(t, w.Write(0, &jobqueue.CaseResult{Stdout: "x"}))
	require.NoError(t, w.Publish())

	collected, err := env.collector.CollectReady(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, collected)

	ready, err := env.spool.ReadyResults()
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestCollect_ReclaimedSubmissionIgnoresLateResults(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	resp, err := env.submissions.Submit(env.ctx, task.ID, submit(sumCode), studentID)
	require.NoError(t, err)
	require.NoError(t, env.submissions.Reclaim(env.ctx, resp.ID))

	// a worker that had already started publishes afterwards
	id := jobqueue.JobID(resp.ID)
	w, err := env.spool.BeginResults(id)
	require.NoError(t, err)
	for i := range task.Cases {
		require.NoError(t, w.Write(i, &jobqueue.CaseResult{Stdout: task.Cases[i].ExpectedOutput}))
	}
	require.NoError(t, w.Publish())

	_, err = env.collector.CollectOne(env.ctx, id)
	assert.ErrorIs(t, err, ErrResultSetSkipped)

	verdicts, err := env.submissions.Verdicts(env.ctx, resp.ID, studentID)
	require.NoError(t, err)
	assert.Empty(t, verdicts)
}

func TestCollect_RegradeReplacesVerdicts(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	resp, err := env.submissions.Submit(env.ctx, task.ID, submit(sumCode), studentID)
	require.NoError(t, err)
	env.runJob(t, resp.ID, func(string) *jobqueue.CaseResult { return &jobqueue.CaseResult{Stdout: "0\n"} })
	_, err = env.collector.CollectReady(env.ctx)
	require.NoError(t, err)

	// reset to running and feed a fresh result set for the same submission
	require.NoError(t, env.repo.Submission().SetRunning(env.ctx, resp.ID, true))
	id := jobqueue.JobID(resp.ID)
	require.NoError(t, env.spool.Remove(id))
	w, err := env.spool.BeginResults(id)
	require.NoError(t, err)
	for i := range task.Cases {
		require.NoError(t, w.Write(i, &jobqueue.CaseResult{Stdout: task.Cases[i].ExpectedOutput}))
	}
	require.NoError(t, w.Publish())

	result, err := env.collector.CollectOne(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Accepted)

	verdicts, err := env.submissions.Verdicts(env.ctx, resp.ID, studentID)
	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	for _, v := range verdicts {
		assert.Equal(t, models.OutcomeAccepted, v.Outcome)
	}
}

func TestListen_CollectsOnEvent(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t)
	resp, err := env.submissions.Submit(env.ctx, task.ID, submit(sumCode), studentID)
	require.NoError(t, err)

	bus, err := events.NewBus(events.BusConfig{}, env.logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(env.ctx)
	done := make(chan error, 1)
	go func() { done <- Listen(ctx, env.collector, bus, time.Hour, env.logger) }()

	env.runJob(t, resp.ID, echoSum)
	require.Eventually(t, func() bool {
		_ = bus.Publish(ctx, events.NewSubmissionEvent(events.EventResultsReady, resp.ID, ""))
		got, err := env.repo.Submission().GetByID(env.ctx, resp.ID)
		return err == nil && !got.IsRunning
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestClassify(t *testing.T) {
	task := &models.Task{LimitTime: time.Second, LimitMemoryMB: 64}
	c := &models.TaskCase{ExpectedOutput: "42\n"}

	tests := []struct {
		name string
		raw  jobqueue.CaseResult
		want models.VerdictOutcome
	}{
		{"exact output", jobqueue.CaseResult{Stdout: "42\n"}, models.OutcomeAccepted},
		{"missing newline", jobqueue.CaseResult{Stdout: "42"}, models.OutcomeWrongAnswer},
		{"extra whitespace", jobqueue.CaseResult{Stdout: "42 \n"}, models.OutcomeWrongAnswer},
		{"timed out", jobqueue.CaseResult{TimedOut: true, Stdout: "42\n"}, models.OutcomeTimeLimit},
		{"over task time limit", jobqueue.CaseResult{Duration: 1500 * time.Millisecond, Stdout: "42\n"}, models.OutcomeTimeLimit},
		{"over memory limit", jobqueue.CaseResult{MemoryKB: 65 * 1024, Stdout: "42\n"}, models.OutcomeMemoryLimit},
		{"non-zero exit", jobqueue.CaseResult{ExitCode: 1, Stdout: "42\n"}, models.OutcomeExecutionError},
		{"could not start", jobqueue.CaseResult{Error: "exec: python3: not found"}, models.OutcomeExecutionError},
		{"time beats exit code", jobqueue.CaseResult{TimedOut: true, ExitCode: -1}, models.OutcomeTimeLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(task, c, &tt.raw))
		})
	}
}

func TestClassify_DefaultLimits(t *testing.T) {
	c := &models.TaskCase{ExpectedOutput: ""}
	task := &models.Task{}

	assert.Equal(t, models.OutcomeAccepted, Classify(task, c, &jobqueue.CaseResult{Duration: 900 * time.Millisecond}))
	assert.Equal(t, models.OutcomeTimeLimit, Classify(task, c, &jobqueue.CaseResult{Duration: 2 * time.Second}))
	assert.Equal(t, models.OutcomeMemoryLimit, Classify(task, c, &jobqueue.CaseResult{MemoryKB: 300 * 1024}))
}
