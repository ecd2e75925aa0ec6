//go:build windows

package proctree

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Descendants is not enumerated on Windows; taskkill /T walks the tree
// on its own.
func Descendants(pid int) []int {
	return nil
}

// Terminate ends a single process via taskkill. force adds /F.
func Terminate(pid int, force bool) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}

	args := []string{"/PID", strconv.Itoa(pid)}
	if force {
		args = append([]string{"/F"}, args...)
	}
	// taskkill exits nonzero for processes that are already gone; that
	// is not a failure of the teardown.
	_ = exec.Command("taskkill", args...).Run()
	return nil
}

// Alive reports whether pid can still be opened.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}

func signalTree(pid int) {
	_ = exec.Command("taskkill", "/T", "/PID", strconv.Itoa(pid)).Run()
}

func forceKillTree(pid int) {
	_ = exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}
