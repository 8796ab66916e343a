//go:build linux

package worker

import (
	"os"
	"os/exec"
	"syscall"
)

// configureCommand runs the interpreter in its own process group so a
// timeout also kills anything it spawned.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// peakMemoryKB reads ru_maxrss, which Linux reports in kilobytes.
func peakMemoryKB(state *os.ProcessState) int64 {
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return int64(usage.Maxrss)
	}
	return 0
}
