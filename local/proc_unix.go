//go:build unix

package local

import (
	"os"
	"os/exec"
	"syscall"
)

// detach puts the process in its own group so it outlives the poller.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks existence without affecting the process
	return process.Signal(syscall.Signal(0)) == nil
}
