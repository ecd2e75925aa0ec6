//go:build !windows

package proctree

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// Terminate signals a single process: SIGTERM, or SIGKILL when force is
// set. A process that is already gone is treated as success.
func Terminate(pid int, force bool) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}

	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(sig); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	return nil
}

// Alive reports whether pid still exists, using the null signal.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func signalTree(pid int) {
	for _, p := range Descendants(pid) {
		_ = Terminate(p, false)
	}
	_ = Terminate(pid, false)
}

// forceKillTree re-enumerates the tree first; parts of it may already
// be gone by the time the forced pass runs.
func forceKillTree(pid int) {
	for _, p := range Descendants(pid) {
		_ = Terminate(p, true)
	}
	_ = Terminate(pid, true)
}
