package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func validTestRequest() *TestCreateRequest {
	return &TestCreateRequest{
		CourseID:        1,
		Title:           "Quiz",
		OuterMark:       10,
		AttemptBudget:   2,
		Mode:            models.NavigationSequential,
		StartsAt:        testNow.Add(time.Hour),
		EndsAt:          testNow.Add(2 * time.Hour),
		DurationSeconds: 600,
		Questions: []QuestionCreateRequest{
			{Text: "2+2?", Type: models.QuestionFree, TrueAnswer: "4", MaxScore: 1},
			{Text: "pick", Type: models.QuestionSingleChoice, Options: []string{"a", "b"}, TrueAnswer: "1", MaxScore: 2},
			{Text: "pick many", Type: models.QuestionMultiFullPenalty, Options: []string{"a", "b", "c"}, TrueAnswer: "0 2", MaxScore: 3},
		},
	}
}

func fields(errs ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidateTestCreate_Valid(t *testing.T) {
	bv := New().GetBusinessValidator()
	assert.Empty(t, bv.ValidateTestCreate(validTestRequest(), testNow))
}

func TestValidateTestCreate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *TestCreateRequest)
		field  string
	}{
		{"start in past", func(r *TestCreateRequest) { r.StartsAt = testNow.Add(-time.Minute) }, "starts_at"},
		{"end before start", func(r *TestCreateRequest) { r.EndsAt = r.StartsAt }, "ends_at"},
		{"duration exceeds window", func(r *TestCreateRequest) { r.DurationSeconds = 7200 }, "duration_seconds"},
		{"budget too large", func(r *TestCreateRequest) { r.AttemptBudget = 11 }, "attempt_budget"},
		{"bad mode", func(r *TestCreateRequest) { r.Mode = "random" }, "mode"},
		{"no questions", func(r *TestCreateRequest) { r.Questions = nil }, "questions"},
		{"free with options", func(r *TestCreateRequest) { r.Questions[0].Options = []string{"x", "y"} }, "questions[0].options"},
		{"one option", func(r *TestCreateRequest) { r.Questions[1].Options = []string{"a"} }, "questions[1].options"},
		{"multi-line option", func(r *TestCreateRequest) { r.Questions[1].Options = []string{"a\nb", "c"} }, "questions[1].options[0]"},
		{"index out of range", func(r *TestCreateRequest) { r.Questions[1].TrueAnswer = "2" }, "questions[1].true_answer"},
		{"single with two", func(r *TestCreateRequest) { r.Questions[1].TrueAnswer = "0 1" }, "questions[1].true_answer"},
		{"duplicate index", func(r *TestCreateRequest) { r.Questions[2].TrueAnswer = "0 0" }, "questions[2].true_answer"},
		{"unknown type", func(r *TestCreateRequest) { r.Questions[0].Type = "essay" }, "questions[0].type"},
	}

	bv := New().GetBusinessValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validTestRequest()
			tt.mutate(req)
			errs := bv.ValidateTestCreate(req, testNow)
			require.NotEmpty(t, errs)
			assert.Contains(t, fields(errs), tt.field)
		})
	}
}

func TestValidateMark(t *testing.T) {
	bv := New().GetBusinessValidator()
	task := &models.Task{MarkMax: 10}

	assert.Empty(t, bv.ValidateMark(&EvaluateSubmissionRequest{Mark: 10}, task))
	assert.Contains(t, fields(bv.ValidateMark(&EvaluateSubmissionRequest{Mark: 10.5}, task)), "mark")
	assert.Contains(t, fields(bv.ValidateMark(&EvaluateSubmissionRequest{Mark: -1}, task)), "mark")
}

func TestValidateOverride(t *testing.T) {
	bv := New().GetBusinessValidator()
	test := &models.Test{OuterMark: 5}

	assert.Empty(t, bv.ValidateOverride(&OverrideScoreRequest{Score: 5}, test))
	assert.NotEmpty(t, bv.ValidateOverride(&OverrideScoreRequest{Score: 5.01}, test))
}

func TestValidateTaskCreate(t *testing.T) {
	bv := New().GetBusinessValidator()
	req := &TaskCreateRequest{
		CourseID:   1,
		Title:      "sum",
		AutoGraded: true,
		Deadline:   testNow.Add(time.Hour),
		MarkMax:    10,
		MarkOuter:  5,
		Cases:      []TaskCaseRequest{{Input: "1 2", ExpectedOutput: "3"}},
	}
	assert.Empty(t, bv.ValidateTaskCreate(req))

	req.LimitTimeSeconds = 11
	assert.Contains(t, fields(bv.ValidateTaskCreate(req)), "limit_time_seconds")

	req.LimitTimeSeconds = 0
	req.AutoGraded = false
	assert.Contains(t, fields(bv.ValidateTaskCreate(req)), "cases")
}

func TestValidationErrors_Error(t *testing.T) {
	assert.Equal(t, "validation failed", ValidationErrors{}.Error())
	assert.Equal(t, "validation failed: code is required",
		ValidationErrors{{Field: "code", Message: "is required"}}.Error())
	assert.Equal(t, "validation failed: 2 field errors",
		ValidationErrors{{Field: "a"}, {Field: "b"}}.Error())
}

func TestValidator_ValidateReturnsValidationErrors(t *testing.T) {
	err := New().Validate(&SubmitCodeRequest{Language: "ruby"})
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.ElementsMatch(t, []string{"code", "language"}, fields(verrs))
}
