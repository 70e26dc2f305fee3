//go:build !unix

package local

import (
	"os"
	"os/exec"
)

func detach(*exec.Cmd) {}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = process.Release()
	return true
}
