package worker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/jobqueue"
)

// MaxOutputBytes caps captured stdout and stderr per case.
const MaxOutputBytes = 64 << 10

// RunRequest describes one execution of a job's source against one input.
type RunRequest struct {
	Dir      string
	CodeFile string
	Input    string
	Timeout  time.Duration
}

// Runner executes candidate code. Implementations never return an error for
// a failing program; failures are reported in the CaseResult.
type Runner interface {
	Run(ctx context.Context, req RunRequest) *jobqueue.CaseResult
}

// ExecRunner runs the source with an external interpreter.
type ExecRunner struct {
	Interpreter string
}

func NewExecRunner(interpreter string) *ExecRunner {
	return &ExecRunner{Interpreter: interpreter}
}

func (r *ExecRunner) Run(ctx context.Context, req RunRequest) *jobqueue.CaseResult {
	runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Interpreter, req.CodeFile)
	cmd.Dir = req.Dir
	cmd.Stdin = strings.NewReader(req.Input)
	stdout := &cappedBuffer{limit: MaxOutputBytes}
	stderr := &cappedBuffer{limit: MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 100 * time.Millisecond
	configureCommand(cmd)

	start := time.Now()
	err := cmd.Run()
	result := &jobqueue.CaseResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
		result.MemoryKB = peakMemoryKB(cmd.ProcessState)
	}

	if timedOut(err, cmd.ProcessState, runCtx.Err()) {
		result.TimedOut = true
		return result
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		result.ExitCode = -1
		result.Error = err.Error()
	}
	return result
}

// timedOut reports whether the deadline cut the run short. A process that
// exits on its own keeps its exit status even if the deadline passed while
// its output was drained.
func timedOut(err error, state *os.ProcessState, ctxErr error) bool {
	if err == nil || !errors.Is(ctxErr, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, exec.ErrWaitDelay) {
		return true
	}
	// killed by a signal
	return state != nil && !state.Exited()
}

// cappedBuffer keeps the first limit bytes and discards the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
