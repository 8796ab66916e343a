package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTestAttempt_CloseTime(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		test Test
		want time.Time
	}{
		{
			name: "duration first",
			test: Test{EndsAt: t0.Add(time.Hour), Duration: 5 * time.Second},
			want: t0.Add(5 * time.Second),
		},
		{
			name: "test end first",
			test: Test{EndsAt: t0.Add(time.Minute), Duration: time.Hour},
			want: t0.Add(time.Minute),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := TestAttempt{StartedAt: t0}
			assert.Equal(t, tt.want, a.CloseTime(&tt.test))
		})
	}
}

func TestTestAttempt_IsFinished(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	test := &Test{StartsAt: t0.Add(-time.Minute), EndsAt: t0.Add(time.Hour), Duration: 5 * time.Second}
	a := &TestAttempt{StartedAt: t0}

	assert.False(t, a.IsFinished(test, t0))
	assert.False(t, a.IsFinished(test, t0.Add(4*time.Second)))
	assert.True(t, a.IsFinished(test, t0.Add(5*time.Second)))
	// test.end has not passed, the attempt duration has
	assert.True(t, a.IsFinished(test, t0.Add(6*time.Second)))

	ended := t0.Add(time.Second)
	a.EndedAt = &ended
	assert.True(t, a.IsFinished(test, t0.Add(2*time.Second)))
}

func TestTestAttempt_IsFinishedMonotone(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	test := &Test{EndsAt: t0.Add(30 * time.Second), Duration: time.Minute}
	a := &TestAttempt{StartedAt: t0}

	finished := false
	for step := 0; step < 120; step++ {
		now := t0.Add(time.Duration(step) * time.Second)
		got := a.IsFinished(test, now)
		if finished {
			assert.True(t, got, "finished flipped back at %s", now)
		}
		finished = got
	}
	assert.True(t, finished)
}

func TestTest_IsOpen(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	test := &Test{StartsAt: t0, EndsAt: t0.Add(time.Hour)}

	assert.False(t, test.IsOpen(t0.Add(-time.Nanosecond)))
	assert.True(t, test.IsOpen(t0))
	assert.True(t, test.IsOpen(t0.Add(59*time.Minute)))
	assert.False(t, test.IsOpen(t0.Add(time.Hour)))
}
