package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/grading-service/internal/validator"
)

func TestCreateTest(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.tests.CreateTest(env.ctx, testRequest(), teacherID)
	require.NoError(t, err)
	assert.NotZero(t, resp.ID)
	assert.Equal(t, 5.0, resp.MaxScore)
	assert.True(t, resp.CanEdit)
	assert.Equal(t, 10*time.Minute, resp.Duration)
	require.Len(t, resp.Questions, 3)
	assert.Equal(t, []string{"a", "b"}, []string(resp.Questions[1].Options))
	assert.Less(t, resp.Questions[0].ID, resp.Questions[1].ID)
}

func TestCreateTest_OnlyCourseOwner(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.tests.CreateTest(env.ctx, testRequest(), studentID)
	assert.True(t, IsPermissionError(err), "got %v", err)

	_, err = env.tests.CreateTest(env.ctx, testRequest(), outsider)
	assert.True(t, IsPermissionError(err), "got %v", err)
}

func TestCreateTest_Invalid(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]func(*CreateTestRequest){
		"window in the past":      func(r *CreateTestRequest) { r.StartsAt = t0.Add(-time.Minute) },
		"duration exceeds window": func(r *CreateTestRequest) { r.DurationSeconds = 3 * 3600 },
		"no questions":            func(r *CreateTestRequest) { r.Questions = nil },
		"true answer out of range": func(r *CreateTestRequest) {
			r.Questions[1].TrueAnswer = "5"
		},
		"free question with options": func(r *CreateTestRequest) {
			r.Questions[0].Options = []string{"x", "y"}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := testRequest()
			mutate(req)
			_, err := env.tests.CreateTest(env.ctx, req, teacherID)
			assert.True(t, IsValidationError(err), "got %v", err)
		})
	}
}

func TestGetTest_HidesQuestionsFromStudents(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.tests.CreateTest(env.ctx, testRequest(), teacherID)
	require.NoError(t, err)

	asStudent, err := env.tests.GetTest(env.ctx, created.ID, studentID)
	require.NoError(t, err)
	assert.Empty(t, asStudent.Questions)
	assert.False(t, asStudent.CanEdit)
	assert.Equal(t, 5.0, asStudent.MaxScore)

	asOwner, err := env.tests.GetTest(env.ctx, created.ID, teacherID)
	require.NoError(t, err)
	assert.Len(t, asOwner.Questions, 3)
	assert.True(t, asOwner.CanEdit)

	_, err = env.tests.GetTest(env.ctx, created.ID, outsider)
	assert.True(t, IsRejected(err, ReasonNotEnrolled), "got %v", err)

	_, err = env.tests.GetTest(env.ctx, 404, studentID)
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestDeleteTest(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.tests.CreateTest(env.ctx, testRequest(), teacherID)
	require.NoError(t, err)

	assert.True(t, IsPermissionError(env.tests.DeleteTest(env.ctx, created.ID, studentID)))
	require.NoError(t, env.tests.DeleteTest(env.ctx, created.ID, teacherID))

	_, err = env.tests.GetTest(env.ctx, created.ID, teacherID)
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestDeleteTest_AfterStartIsRejected(t *testing.T) {
	env := newTestEnv(t)
	test := env.createOpenTest(t, nil)

	err := env.tests.DeleteTest(env.ctx, test.ID, teacherID)
	assert.True(t, IsRejected(err, ReasonAlreadyStarted), "got %v", err)

	resp, err := env.tests.GetTest(env.ctx, test.ID, teacherID)
	require.NoError(t, err)
	assert.False(t, resp.CanEdit)
}

func TestGetTask_HidesHiddenCases(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t,
		validator.TaskCaseRequest{Input: "1", ExpectedOutput: "1\n", Hidden: false},
		validator.TaskCaseRequest{Input: "2", ExpectedOutput: "2\n", Hidden: true},
	)

	asStudent, err := env.tests.GetTask(env.ctx, task.ID, studentID)
	require.NoError(t, err)
	require.Len(t, asStudent.Cases, 1)
	assert.Equal(t, "1", asStudent.Cases[0].Input)

	asOwner, err := env.tests.GetTask(env.ctx, task.ID, teacherID)
	require.NoError(t, err)
	assert.Len(t, asOwner.Cases, 2)
}

func TestCreateTask_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.tests.CreateTask(env.ctx, &CreateTaskRequest{
		CourseID:  courseID,
		Title:     "Sum",
		Deadline:  t0.Add(time.Hour),
		MarkMax:   5,
		MarkOuter: 10,
	}, teacherID)
	assert.True(t, IsValidationError(err), "got %v", err)

	task, err := env.tests.CreateTask(env.ctx, &CreateTaskRequest{
		CourseID:         courseID,
		Title:            "Sum",
		AutoGraded:       true,
		Deadline:         t0.Add(time.Hour),
		MarkMax:          10,
		MarkOuter:        10,
		LimitTimeSeconds: 3,
		LimitMemoryMB:    64,
		Cases:            []validator.TaskCaseRequest{{Input: "1", ExpectedOutput: "1"}},
	}, teacherID)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, task.LimitTime)
	assert.Equal(t, 64, task.LimitMemoryMB)

	_, err = env.tests.CreateTask(env.ctx, &CreateTaskRequest{
		CourseID:  courseID,
		Title:     "Sum",
		Deadline:  t0.Add(time.Hour),
		MarkMax:   10,
		MarkOuter: 10,
	}, studentID)
	assert.True(t, IsPermissionError(err), "got %v", err)
}
