package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/grading-service/internal/cache"
	"github.com/SAP-F-2025/grading-service/internal/codecheck"
	"github.com/SAP-F-2025/grading-service/internal/events"
	"github.com/SAP-F-2025/grading-service/internal/jobqueue"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories/memory"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

const (
	courseID  = uint(1)
	studentID = "student-1"
	otherID   = "student-2"
	teacherID = "teacher-1"
	outsider  = "outsider"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	ctx       context.Context
	repo      *memory.Repository
	spool     *jobqueue.Spool
	publisher *events.MockEventPublisher
	clock     *fakeClock
	logger    *slog.Logger

	tests       *testService
	attempts    *attemptService
	submissions *submissionService
	collector   *collectorService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewRepository()
	root := t.TempDir()
	spool := jobqueue.NewSpool(filepath.Join(root, "execute"), filepath.Join(root, "executed"))
	require.NoError(t, spool.EnsureDirs())
	publisher := events.NewMockEventPublisher(logger)
	v := validator.New()
	clock := &fakeClock{now: t0}

	env := &testEnv{
		ctx:       context.Background(),
		repo:      repo,
		spool:     spool,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}

	env.tests = NewTestService(repo, logger, v).(*testService)
	env.tests.now = clock.Now
	env.attempts = NewAttemptService(repo, publisher, logger, v).(*attemptService)
	env.attempts.now = clock.Now
	throttle := cache.NewSubmissionThrottle(cache.NewCacheManager(nil), 0, 0)
	env.submissions = NewSubmissionService(repo, spool, codecheck.NewPythonChecker(), throttle, publisher, logger, v).(*submissionService)
	env.submissions.now = clock.Now
	env.collector = NewCollectorService(repo, spool, publisher, logger).(*collectorService)

	for _, e := range []*models.Enrollment{
		{CourseID: courseID, UserID: studentID},
		{CourseID: courseID, UserID: otherID},
		{CourseID: courseID, UserID: teacherID, IsOwner: true},
	} {
		require.NoError(t, repo.Enrollment().Create(env.ctx, e))
	}
	return env
}

func testRequest() *CreateTestRequest {
	return &CreateTestRequest{
		CourseID:        courseID,
		Title:           "Quiz",
		OuterMark:       10,
		AttemptBudget:   2,
		Mode:            models.NavigationFree,
		StartsAt:        t0.Add(time.Minute),
		EndsAt:          t0.Add(2 * time.Hour),
		DurationSeconds: 600,
		Questions: []validator.QuestionCreateRequest{
			{Text: "2+2?", Type: models.QuestionFree, TrueAnswer: "4", MaxScore: 1},
			{Text: "pick", Type: models.QuestionSingleChoice, Options: []string{"a", "b"}, TrueAnswer: "1", MaxScore: 2},
			{Text: "pick many", Type: models.QuestionMultiPartialPenalty, Options: []string{"a", "b", "c", "d"}, TrueAnswer: "0 2", MaxScore: 2},
		},
	}
}

// createOpenTest creates a test and moves the clock to its start.
func (e *testEnv) createOpenTest(t *testing.T, mutate func(*CreateTestRequest)) *models.Test {
	t.Helper()
	req := testRequest()
	if mutate != nil {
		mutate(req)
	}
	resp, err := e.tests.CreateTest(e.ctx, req, teacherID)
	require.NoError(t, err)
	e.clock.Advance(req.StartsAt.Sub(e.clock.Now()))
	return resp.Test
}

func (e *testEnv) createTask(t *testing.T, cases ...validator.TaskCaseRequest) *models.Task {
	t.Helper()
	if len(cases) == 0 {
		cases = []validator.TaskCaseRequest{
			{Input: "1 2\n", ExpectedOutput: "3\n"},
			{Input: "5 5\n", ExpectedOutput: "10\n"},
		}
	}
	task, err := e.tests.CreateTask(e.ctx, &CreateTaskRequest{
		CourseID:   courseID,
		Title:      "Sum",
		AutoGraded: true,
		Deadline:   t0.Add(24 * time.Hour),
		MarkMax:    10,
		MarkOuter:  10,
		Cases:      cases,
	}, teacherID)
	require.NoError(t, err)
	return task
}

// runJob plays the execution worker for one job: each case's result is
// produced by output from the case input.
func (e *testEnv) runJob(t *testing.T, submissionID uint, output func(input string) *jobqueue.CaseResult) {
	t.Helper()
	id := jobqueue.JobID(submissionID)
	job, err := e.spool.LoadJob(id)
	require.NoError(t, err)
	w, err := e.spool.BeginResults(id)
	require.NoError(t, err)
	for i, input := range job.Inputs {
		require.NoError(t, w.Write(i, output(input)))
	}
	require.NoError(t, w.Publish())
	require.NoError(t, e.spool.RetireJob(id))
}
