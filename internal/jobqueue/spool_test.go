package jobqueue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSpool(t *testing.T) (*Spool, string, string) {
	t.Helper()
	root := t.TempDir()
	execute := filepath.Join(root, "execute")
	executed := filepath.Join(root, "executed")
	s := NewSpool(execute, executed)
	require.NoError(t, s.EnsureDirs())
	return s, execute, executed
}

func TestEnqueue_LayoutAndReadyMarker(t *testing.T) {
	s, execute, _ := newTestSpool(t)

	require.NoError(t, s.Enqueue("12", "print(input())", []string{"a", "b", "c"}))

	_, err := os.Stat(filepath.Join(execute, "12"))
	assert.True(t, os.IsNotExist(err), "unmarked job dir must not remain")

	for _, name := range []string{CodeFile, "0", "1", "2"} {
		assert.FileExists(t, filepath.Join(execute, "12"+ReadyMarker, name))
	}

	ids, err := s.ReadyJobs()
	require.NoError(t, err)
	assert.Equal(t, []string{"12"}, ids)

	job, err := s.LoadJob("12")
	require.NoError(t, err)
	assert.Equal(t, "print(input())", job.Code)
	assert.Equal(t, []string{"a", "b", "c"}, job.Inputs)
}

func TestEnqueue_UnmarkedDirIsInvisible(t *testing.T) {
	s, execute, _ := newTestSpool(t)
	require.NoError(t, os.MkdirAll(filepath.Join(execute, "5"), 0o755))

	ids, err := s.ReadyJobs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStage_InvisibleUntilMarkedReady(t *testing.T) {
	s, execute, _ := newTestSpool(t)

	require.NoError(t, s.Stage("9", "print(1)", []string{"a"}))
	assert.FileExists(t, filepath.Join(execute, "9", CodeFile))

	ids, err := s.ReadyJobs()
	require.NoError(t, err)
	assert.Empty(t, ids)
	pending, err := s.Pending("9")
	require.NoError(t, err)
	assert.False(t, pending)

	require.NoError(t, s.MarkReady("9"))
	ids, err = s.ReadyJobs()
	require.NoError(t, err)
	assert.Equal(t, []string{"9"}, ids)
	assert.NoDirExists(t, filepath.Join(execute, "9"))
}

func TestMarkReady_WithoutStagedJob(t *testing.T) {
	s, _, _ := newTestSpool(t)
	assert.Error(t, s.MarkReady("4"))
}

func TestStage_RemoveDiscardsStagedJob(t *testing.T) {
	s, execute, _ := newTestSpool(t)
	require.NoError(t, s.Stage("6", "c", nil))
	require.NoError(t, s.Remove("6"))
	assert.NoDirExists(t, filepath.Join(execute, "6"))
	assert.Error(t, s.MarkReady("6"))
}

func TestEnqueue_ReplacesEarlierArtifacts(t *testing.T) {
	s, _, _ := newTestSpool(t)

	require.NoError(t, s.Enqueue("3", "old", []string{"x", "y"}))
	w, err := s.BeginResults("3")
	require.NoError(t, err)
	require.NoError(t, w.Publish())

	require.NoError(t, s.Enqueue("3", "new", []string{"z"}))

	job, err := s.LoadJob("3")
	require.NoError(t, err)
	assert.Equal(t, "new", job.Code)
	assert.Equal(t, []string{"z"}, job.Inputs)

	results, err := s.ReadyResults()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetireJob(t *testing.T) {
	s, execute, _ := newTestSpool(t)
	require.NoError(t, s.Enqueue("8", "code", nil))
	require.NoError(t, s.RetireJob("8"))

	ids, err := s.ReadyJobs()
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.DirExists(t, filepath.Join(execute, "8"))
}

func TestResults_RoundTrip(t *testing.T) {
	s, _, executed := newTestSpool(t)

	w, err := s.BeginResults("4")
	require.NoError(t, err)
	require.NoError(t, w.Write(1, &CaseResult{Stdout: "second", Duration: time.Millisecond}))
	require.NoError(t, w.Write(0, &CaseResult{Stdout: "first", ExitCode: 1}))

	ids, err := s.ReadyResults()
	require.NoError(t, err)
	assert.Empty(t, ids, "results are invisible before publish")

	require.NoError(t, w.Publish())
	ids, err = s.ReadyResults()
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, ids)

	results, err := s.LoadResults("4", 2)
	require.NoError(t, err)
	assert.Equal(t, "first", results[0].Stdout)
	assert.Equal(t, 1, results[0].ExitCode)
	assert.Equal(t, "second", results[1].Stdout)

	require.NoError(t, s.RetireResults("4"))
	assert.DirExists(t, filepath.Join(executed, "4"))
	ids, err = s.ReadyResults()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLoadResults_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		expected int
	}{
		{"missing case", []string{"0", "1"}, 3},
		{"extra case", []string{"0", "1", "2"}, 2},
		{"gap", []string{"0", "2"}, 2},
		{"non-numeric", []string{"0", "x"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, executed := newTestSpool(t)
			dir := filepath.Join(executed, "9"+ReadyMarker)
			require.NoError(t, os.MkdirAll(dir, 0o755))
			for _, f := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte(`{"stdout":""}`), 0o644))
			}

			_, err := s.LoadResults("9", tt.expected)
			assert.ErrorIs(t, err, ErrMalformedResultSet)
		})
	}
}

func TestRemoveAndPending(t *testing.T) {
	s, _, _ := newTestSpool(t)
	require.NoError(t, s.Enqueue("1", "c", []string{"i"}))

	pending, err := s.Pending("1")
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, s.Remove("1"))
	pending, err = s.Pending("1")
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestJobID(t *testing.T) {
	assert.Equal(t, "17", JobID(17))
	id, err := ParseJobID("17")
	require.NoError(t, err)
	assert.Equal(t, uint(17), id)

	_, err = ParseJobID("abc")
	assert.Error(t, err)
}
