package validator

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/scoring"
)

const (
	MinOptions = 2
	MaxOptions = 10
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	if err := bv.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateTestCreate checks tags, the availability window against now and
// every question's answer key.
func (bv *BusinessValidator) ValidateTestCreate(req *TestCreateRequest, now time.Time) ValidationErrors {
	errors := bv.Validate(req)

	if !req.StartsAt.After(now) {
		errors = append(errors, ValidationError{
			Field:   "starts_at",
			Message: "must be in the future",
			Value:   req.StartsAt,
			Rule:    "future_date",
		})
	}
	if !req.EndsAt.After(req.StartsAt) {
		errors = append(errors, ValidationError{
			Field:   "ends_at",
			Message: "must be after starts_at",
			Value:   req.EndsAt,
			Rule:    "window",
		})
	} else if req.Duration() > req.EndsAt.Sub(req.StartsAt) {
		errors = append(errors, ValidationError{
			Field:   "duration_seconds",
			Message: "must not exceed the availability window",
			Value:   req.DurationSeconds,
			Rule:    "window",
		})
	}

	for i := range req.Questions {
		errors = append(errors, bv.validateQuestion(fmt.Sprintf("questions[%d]", i), &req.Questions[i])...)
	}
	return errors
}

func (bv *BusinessValidator) validateQuestion(field string, q *QuestionCreateRequest) ValidationErrors {
	var errors ValidationErrors

	if !q.Type.IsChoice() {
		if len(q.Options) > 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".options",
				Message: "must be empty for free questions",
				Rule:    "business_logic",
			})
		}
		if strings.TrimSpace(q.TrueAnswer) == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".true_answer",
				Message: "must not be blank",
				Rule:    "business_logic",
			})
		}
		return errors
	}

	if len(q.Options) < MinOptions || len(q.Options) > MaxOptions {
		errors = append(errors, ValidationError{
			Field:   field + ".options",
			Message: fmt.Sprintf("must have between %d and %d entries", MinOptions, MaxOptions),
			Value:   len(q.Options),
			Rule:    "business_logic",
		})
		return errors
	}

	indices, err := scoring.ParseIndices(q.TrueAnswer, len(q.Options))
	if err != nil {
		errors = append(errors, ValidationError{
			Field:   field + ".true_answer",
			Message: err.Error(),
			Value:   q.TrueAnswer,
			Rule:    "answer_key",
		})
		return errors
	}
	if len(indices) == 0 {
		errors = append(errors, ValidationError{
			Field:   field + ".true_answer",
			Message: "must select at least one option",
			Value:   q.TrueAnswer,
			Rule:    "answer_key",
		})
	}
	if q.Type == models.QuestionSingleChoice && len(indices) > 1 {
		errors = append(errors, ValidationError{
			Field:   field + ".true_answer",
			Message: "must select exactly one option",
			Value:   q.TrueAnswer,
			Rule:    "answer_key",
		})
	}
	return errors
}

// ValidateTaskCreate checks tags and case limits for auto-graded tasks.
func (bv *BusinessValidator) ValidateTaskCreate(req *TaskCreateRequest) ValidationErrors {
	errors := bv.Validate(req)
	if req.MarkOuter > req.MarkMax {
		errors = append(errors, ValidationError{
			Field:   "mark_outer",
			Message: "must not exceed mark_max",
			Value:   req.MarkOuter,
			Rule:    "business_logic",
		})
	}
	if !req.AutoGraded && len(req.Cases) > 0 {
		errors = append(errors, ValidationError{
			Field:   "cases",
			Message: "only auto-graded tasks carry test cases",
			Value:   len(req.Cases),
			Rule:    "business_logic",
		})
	}
	return errors
}

// ValidateMark checks a teacher's mark against the task maximum.
func (bv *BusinessValidator) ValidateMark(req *EvaluateSubmissionRequest, task *models.Task) ValidationErrors {
	errors := bv.Validate(req)
	if req.Mark > task.MarkMax {
		errors = append(errors, ValidationError{
			Field:   "mark",
			Message: fmt.Sprintf("must not exceed %.2f", task.MarkMax),
			Value:   req.Mark,
			Rule:    "lte",
		})
	}
	return errors
}

// ValidateOverride checks a manual attempt score against the test's cap.
func (bv *BusinessValidator) ValidateOverride(req *OverrideScoreRequest, test *models.Test) ValidationErrors {
	errors := bv.Validate(req)
	if req.Score > test.OuterMark {
		errors = append(errors, ValidationError{
			Field:   "score",
			Message: fmt.Sprintf("must not exceed %.2f", test.OuterMark),
			Value:   req.Score,
			Rule:    "lte",
		})
	}
	return errors
}

func registerRules(v *validator.Validate) {
	v.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return models.QuestionType(fl.Field().String()).IsValid()
	})

	v.RegisterValidation("navigation_mode", func(fl validator.FieldLevel) bool {
		mode := models.NavigationMode(fl.Field().String())
		return mode == models.NavigationSequential || mode == models.NavigationFree
	})

	v.RegisterValidation("single_line", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\r\n")
	})
}
