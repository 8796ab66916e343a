// Package scoring computes question and attempt scores. Every function here is
// pure: the result depends only on the arguments.
package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

// AnswerErrorKind classifies a malformed answer.
type AnswerErrorKind string

const (
	KindFormat     AnswerErrorKind = "format"
	KindOutOfRange AnswerErrorKind = "out_of_range"
	KindDuplicate  AnswerErrorKind = "duplicate"
	KindArity      AnswerErrorKind = "arity"
	KindType       AnswerErrorKind = "type"
)

// AnswerError is returned for answers that must be rejected before scoring.
// It is never converted into a zero score.
type AnswerError struct {
	Kind    AnswerErrorKind
	Message string
	Value   string
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("malformed answer (%s): %s", e.Kind, e.Message)
}

// ParseIndices parses space-separated, distinct option indices in
// [0, optionCount). The returned slice keeps the input order.
func ParseIndices(raw string, optionCount int) ([]int, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, &AnswerError{Kind: KindFormat, Message: "no option index given", Value: raw}
	}

	seen := make(map[int]struct{}, len(fields))
	indices := make([]int, 0, len(fields))
	for _, f := range fields {
		if !isDigits(f) {
			return nil, &AnswerError{Kind: KindFormat, Message: fmt.Sprintf("%q is not an option index", f), Value: raw}
		}
		idx, err := strconv.Atoi(f)
		if err != nil {
			return nil, &AnswerError{Kind: KindFormat, Message: fmt.Sprintf("%q is not an option index", f), Value: raw}
		}
		if idx >= optionCount {
			return nil, &AnswerError{Kind: KindOutOfRange, Message: fmt.Sprintf("index %d outside [0, %d)", idx, optionCount), Value: raw}
		}
		if _, dup := seen[idx]; dup {
			return nil, &AnswerError{Kind: KindDuplicate, Message: fmt.Sprintf("index %d repeated", idx), Value: raw}
		}
		seen[idx] = struct{}{}
		indices = append(indices, idx)
	}
	return indices, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Validate checks answer against the question without scoring it. An empty
// answer is valid and means "not answered".
func Validate(q *models.Question, answer string) error {
	if answer == "" || q.Type == models.QuestionFree {
		return nil
	}
	if !q.Type.IsChoice() {
		return &AnswerError{Kind: KindType, Message: fmt.Sprintf("unknown question type %q", q.Type), Value: answer}
	}
	indices, err := ParseIndices(answer, len(q.Options))
	if err != nil {
		return err
	}
	if q.Type == models.QuestionSingleChoice && len(indices) != 1 {
		return &AnswerError{Kind: KindArity, Message: "exactly one option must be chosen", Value: answer}
	}
	return nil
}

// Score returns the earned score for answer, or nil when the answer is empty.
func Score(q *models.Question, answer string) (*float64, error) {
	if answer == "" {
		return nil, nil
	}
	if err := Validate(q, answer); err != nil {
		return nil, err
	}

	var earned float64
	switch q.Type {
	case models.QuestionFree:
		if strings.TrimSpace(answer) == strings.TrimSpace(q.TrueAnswer) {
			earned = q.MaxScore
		}
	case models.QuestionSingleChoice:
		chosen, _ := ParseIndices(answer, len(q.Options))
		truth, err := ParseIndices(q.TrueAnswer, len(q.Options))
		if err != nil {
			return nil, fmt.Errorf("question %d has invalid true answer: %w", q.ID, err)
		}
		if len(truth) == 1 && chosen[0] == truth[0] {
			earned = q.MaxScore
		}
	case models.QuestionMultiPartialPenalty, models.QuestionMultiFullPenalty:
		chosen, _ := ParseIndices(answer, len(q.Options))
		truth, err := ParseIndices(q.TrueAnswer, len(q.Options))
		if err != nil {
			return nil, fmt.Errorf("question %d has invalid true answer: %w", q.ID, err)
		}
		correct, incorrect := countChoices(chosen, truth)
		earned = multiChoice(q.Type, correct, incorrect, len(truth), q.MaxScore)
	}

	earned = Round(earned)
	return &earned, nil
}

func countChoices(chosen, truth []int) (correct, incorrect int) {
	truthSet := make(map[int]struct{}, len(truth))
	for _, t := range truth {
		truthSet[t] = struct{}{}
	}
	for _, c := range chosen {
		if _, ok := truthSet[c]; ok {
			correct++
		} else {
			incorrect++
		}
	}
	return correct, incorrect
}

func multiChoice(kind models.QuestionType, correct, incorrect, truthSize int, maxScore float64) float64 {
	if truthSize == 0 {
		return 0
	}
	switch kind {
	case models.QuestionMultiPartialPenalty:
		net := correct - incorrect
		if net < 0 {
			net = 0
		}
		return float64(net) / float64(truthSize) * maxScore
	case models.QuestionMultiFullPenalty:
		if incorrect > 0 {
			return 0
		}
		return float64(correct) / float64(truthSize) * maxScore
	}
	return 0
}

// AttemptScore is outerMark * earned / maxTotal, or 0 when maxTotal is 0.
func AttemptScore(outerMark, earned, maxTotal float64) float64 {
	if maxTotal == 0 {
		return 0
	}
	return Round(outerMark * earned / maxTotal)
}

// Round keeps two decimal places, matching the numeric(5,2) columns.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}
