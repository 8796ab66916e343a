//go:build !linux

package worker

import (
	"os"
	"os/exec"
)

func configureCommand(cmd *exec.Cmd) {}

func peakMemoryKB(state *os.ProcessState) int64 {
	return 0
}
