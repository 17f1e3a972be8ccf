//go:build unix

package filelock

import (
	"errors"
	"os"
	"syscall"
)

// processAlive checks liveness with signal 0, which performs the
// existence/permission check without delivering anything. EPERM means
// the process exists but belongs to another user, so it counts as alive.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
