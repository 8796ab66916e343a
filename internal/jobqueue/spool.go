// Package jobqueue implements the filesystem handoff between submission
// intake, the execution worker and the result collector.
//
// A job is a directory named by the submission ID under the execute root,
// holding the source file and one input file per test case named by its
// zero-based index. Result sets mirror this under the executed root, one
// result file per case index. A directory becomes visible to its consumer
// only when it is renamed to carry the ReadyMarker suffix; the consumer
// retires it by renaming it back.
package jobqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	ReadyMarker = "+"
	CodeFile    = "code.py"
)

var ErrMalformedResultSet = errors.New("malformed result set")

// CaseResult is the raw outcome of running one case.
type CaseResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	MemoryKB int64         `json:"memory_kb"`
	TimedOut bool          `json:"timed_out"`
	// Error is set when the interpreter could not be started at all.
	Error string `json:"error,omitempty"`
}

// Job is a ready job discovered by the worker.
type Job struct {
	ID     string
	Dir    string
	Code   string
	Inputs []string
}

type Spool struct {
	executeDir  string
	executedDir string
}

func NewSpool(executeDir, executedDir string) *Spool {
	return &Spool{executeDir: executeDir, executedDir: executedDir}
}

func JobID(submissionID uint) string {
	return strconv.FormatUint(uint64(submissionID), 10)
}

func ParseJobID(id string) (uint, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("job id %q: %w", id, err)
	}
	return uint(n), nil
}

// EnsureDirs creates both spool roots.
func (s *Spool) EnsureDirs() error {
	for _, dir := range []string{s.executeDir, s.executedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create spool dir %s: %w", dir, err)
		}
	}
	return nil
}

// Enqueue stages a job and marks it ready at once.
func (s *Spool) Enqueue(id string, code string, inputs []string) error {
	if err := s.Stage(id, code, inputs); err != nil {
		return err
	}
	return s.MarkReady(id)
}

// Stage writes a job without the ready marker, so neither the worker nor
// Pending sees it. Any earlier job or result set with the same ID is removed
// first.
func (s *Spool) Stage(id string, code string, inputs []string) error {
	if err := s.Remove(id); err != nil {
		return err
	}

	dir := filepath.Join(s.executeDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create job dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, CodeFile), []byte(code), 0o644); err != nil {
		return fmt.Errorf("failed to write job source: %w", err)
	}
	for i, input := range inputs {
		if err := os.WriteFile(filepath.Join(dir, strconv.Itoa(i)), []byte(input), 0o644); err != nil {
			return fmt.Errorf("failed to write job input %d: %w", i, err)
		}
	}
	return nil
}

// MarkReady hands a staged job to the worker.
func (s *Spool) MarkReady(id string) error {
	dir := filepath.Join(s.executeDir, id)
	if err := os.Rename(dir, dir+ReadyMarker); err != nil {
		return fmt.Errorf("failed to mark job ready: %w", err)
	}
	return nil
}

// ReadyJobs lists the IDs of jobs marked ready, in name order.
func (s *Spool) ReadyJobs() ([]string, error) {
	return readyIDs(s.executeDir)
}

// LoadJob reads a ready job. Inputs are ordered by case index.
func (s *Spool) LoadJob(id string) (*Job, error) {
	dir := filepath.Join(s.executeDir, id+ReadyMarker)

	code, err := os.ReadFile(filepath.Join(dir, CodeFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read job source: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list job dir: %w", err)
	}

	indexed := map[int]string{}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == CodeFile {
			continue
		}
		idx, err := strconv.Atoi(entry.Name())
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("unexpected file %q in job %s", entry.Name(), id)
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read job input %d: %w", idx, err)
		}
		indexed[idx] = string(data)
	}

	inputs := make([]string, len(indexed))
	for idx, input := range indexed {
		if idx >= len(inputs) {
			return nil, fmt.Errorf("job %s inputs are not contiguous", id)
		}
		inputs[idx] = input
	}

	return &Job{ID: id, Dir: dir, Code: string(code), Inputs: inputs}, nil
}

// RetireJob drops the ready marker from a processed job.
func (s *Spool) RetireJob(id string) error {
	dir := filepath.Join(s.executeDir, id)
	if err := os.Rename(dir+ReadyMarker, dir); err != nil {
		return fmt.Errorf("failed to retire job: %w", err)
	}
	return nil
}

// ResultWriter stages one result set. Nothing is visible to the collector
// until Publish.
type ResultWriter struct {
	dir string
}

// BeginResults starts a fresh result set for id.
func (s *Spool) BeginResults(id string) (*ResultWriter, error) {
	dir := filepath.Join(s.executedDir, id)
	for _, path := range []string{dir, dir + ReadyMarker} {
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to clear result dir: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create result dir: %w", err)
	}
	return &ResultWriter{dir: dir}, nil
}

func (w *ResultWriter) Write(index int, result *CaseResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result %d: %w", index, err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, strconv.Itoa(index)), data, 0o644); err != nil {
		return fmt.Errorf("failed to write result %d: %w", index, err)
	}
	return nil
}

func (w *ResultWriter) Publish() error {
	if err := os.Rename(w.dir, w.dir+ReadyMarker); err != nil {
		return fmt.Errorf("failed to mark results ready: %w", err)
	}
	return nil
}

// ReadyResults lists the IDs of result sets marked ready, in name order.
func (s *Spool) ReadyResults() ([]string, error) {
	return readyIDs(s.executedDir)
}

// LoadResults reads a ready result set and checks that it holds exactly
// expected files named 0..expected-1. Violations wrap ErrMalformedResultSet.
func (s *Spool) LoadResults(id string, expected int) ([]CaseResult, error) {
	dir := filepath.Join(s.executedDir, id+ReadyMarker)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list result dir: %w", err)
	}

	if len(entries) != expected {
		return nil, fmt.Errorf("%w: %d result files, %d cases", ErrMalformedResultSet, len(entries), expected)
	}

	results := make([]CaseResult, expected)
	seen := make([]bool, expected)
	for _, entry := range entries {
		idx, err := strconv.Atoi(entry.Name())
		if err != nil || entry.IsDir() {
			return nil, fmt.Errorf("%w: unexpected entry %q", ErrMalformedResultSet, entry.Name())
		}
		if idx < 0 || idx >= expected || seen[idx] {
			return nil, fmt.Errorf("%w: index %d outside 0..%d", ErrMalformedResultSet, idx, expected-1)
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read result %d: %w", idx, err)
		}
		if err := json.Unmarshal(data, &results[idx]); err != nil {
			return nil, fmt.Errorf("%w: result %d: %v", ErrMalformedResultSet, idx, err)
		}
		seen[idx] = true
	}
	return results, nil
}

// RetireResults drops the ready marker from a collected result set.
func (s *Spool) RetireResults(id string) error {
	dir := filepath.Join(s.executedDir, id)
	if err := os.Rename(dir+ReadyMarker, dir); err != nil {
		return fmt.Errorf("failed to retire results: %w", err)
	}
	return nil
}

// Remove deletes every job and result artifact for id.
func (s *Spool) Remove(id string) error {
	for _, root := range []string{s.executeDir, s.executedDir} {
		for _, name := range []string{id, id + ReadyMarker} {
			if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
				return fmt.Errorf("failed to remove %s: %w", name, err)
			}
		}
	}
	return nil
}

// Pending reports whether id has a ready job or an uncollected result set.
func (s *Spool) Pending(id string) (bool, error) {
	for _, root := range []string{s.executeDir, s.executedDir} {
		_, err := os.Stat(filepath.Join(root, id+ReadyMarker))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
	}
	return false, nil
}

func readyIDs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasSuffix(entry.Name(), ReadyMarker) {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ReadyMarker))
		}
	}
	sort.Strings(ids)
	return ids, nil
}
