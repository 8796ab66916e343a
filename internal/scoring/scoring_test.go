package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

func choiceQuestion(kind models.QuestionType, truth string, options int, maxScore float64) *models.Question {
	opts := make([]string, options)
	for i := range opts {
		opts[i] = "option"
	}
	return &models.Question{ID: 1, Type: kind, Options: opts, TrueAnswer: truth, MaxScore: maxScore}
}

func TestScore_Empty(t *testing.T) {
	q := choiceQuestion(models.QuestionSingleChoice, "1", 3, 5)
	score, err := Score(q, "")
	require.NoError(t, err)
	assert.Nil(t, score)
}

func TestScore_Free(t *testing.T) {
	q := &models.Question{Type: models.QuestionFree, TrueAnswer: " 42 ", MaxScore: 3}

	tests := []struct {
		name   string
		answer string
		want   float64
	}{
		{"exact", "42", 3},
		{"surrounding whitespace", "  42\t", 3},
		{"wrong", "41", 0},
		{"case sensitive", "x42", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := Score(q, tt.answer)
			require.NoError(t, err)
			require.NotNil(t, score)
			assert.Equal(t, tt.want, *score)
		})
	}
}

func TestScore_SingleChoice(t *testing.T) {
	q := choiceQuestion(models.QuestionSingleChoice, "2", 4, 2)

	score, err := Score(q, "2")
	require.NoError(t, err)
	assert.Equal(t, 2.0, *score)

	score, err = Score(q, "0")
	require.NoError(t, err)
	assert.Equal(t, 0.0, *score)

	_, err = Score(q, "0 2")
	var ae *AnswerError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindArity, ae.Kind)
}

func TestScore_Malformed(t *testing.T) {
	q := choiceQuestion(models.QuestionMultiPartialPenalty, "0 1", 3, 1)

	tests := []struct {
		answer string
		kind   AnswerErrorKind
	}{
		{"a", KindFormat},
		{"1,2", KindFormat},
		{"-1", KindFormat},
		{"3", KindOutOfRange},
		{"1 1", KindDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			score, err := Score(q, tt.answer)
			assert.Nil(t, score)
			var ae *AnswerError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.kind, ae.Kind)
		})
	}
}

func TestScore_PartialPenalty(t *testing.T) {
	// truth {0,1,2} out of 5 options, max 6
	q := choiceQuestion(models.QuestionMultiPartialPenalty, "0 1 2", 5, 6)

	tests := []struct {
		answer string
		want   float64
	}{
		{"0", 2},
		{"0 1", 4},
		{"0 1 2", 6},
		{"0 3", 0},
		{"0 1 3", 2},
		{"3 4", 0},
		{"0 1 2 3", 4},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			score, err := Score(q, tt.answer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *score)
			assert.GreaterOrEqual(t, *score, 0.0)
		})
	}
}

func TestScore_FullPenalty(t *testing.T) {
	q := choiceQuestion(models.QuestionMultiFullPenalty, "0 1", 4, 4)

	score, err := Score(q, "0")
	require.NoError(t, err)
	assert.Equal(t, 2.0, *score)

	score, err = Score(q, "1 0")
	require.NoError(t, err)
	assert.Equal(t, 4.0, *score)

	for _, answer := range []string{"2", "0 2", "0 1 3"} {
		score, err = Score(q, answer)
		require.NoError(t, err)
		assert.Equal(t, 0.0, *score, answer)
	}
}

func TestScore_OrderInvariant(t *testing.T) {
	kinds := []models.QuestionType{models.QuestionMultiPartialPenalty, models.QuestionMultiFullPenalty}
	perms := [][]string{
		{"0 2 3", "3 2 0", "2 0 3", "3 0 2"},
		{"1 4", "4 1"},
	}
	for _, kind := range kinds {
		q := choiceQuestion(kind, "0 1 2", 5, 3)
		for _, group := range perms {
			first, err := Score(q, group[0])
			require.NoError(t, err)
			for _, answer := range group[1:] {
				got, err := Score(q, answer)
				require.NoError(t, err)
				assert.Equal(t, *first, *got, "%s: %q vs %q", kind, group[0], answer)
			}
		}
	}
}

func TestScore_PartialPenaltyMonotone(t *testing.T) {
	q := choiceQuestion(models.QuestionMultiPartialPenalty, "0 1 2 3", 8, 8)
	correct := []string{"0", "1", "2", "3"}
	wrong := []string{"4", "5", "6", "7"}

	score := func(c, w int) float64 {
		answer := ""
		for _, s := range append(append([]string{}, correct[:c]...), wrong[:w]...) {
			if answer != "" {
				answer += " "
			}
			answer += s
		}
		if answer == "" {
			return 0
		}
		got, err := Score(q, answer)
		require.NoError(t, err)
		return *got
	}

	for w := 0; w <= 4; w++ {
		for c := 0; c < 4; c++ {
			assert.LessOrEqual(t, score(c, w), score(c+1, w))
		}
	}
	for c := 0; c <= 4; c++ {
		for w := 0; w < 4; w++ {
			assert.GreaterOrEqual(t, score(c, w), score(c, w+1))
		}
	}
}

func TestAttemptScore(t *testing.T) {
	assert.Equal(t, 0.0, AttemptScore(10, 5, 0))
	assert.Equal(t, 5.0, AttemptScore(10, 2, 4))
	assert.Equal(t, 3.33, AttemptScore(10, 1, 3))
}
