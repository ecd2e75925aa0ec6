//go:build windows

package process

import "os/exec"

// setSysProcAttr is a no-op on Windows; taskkill /T walks the tree at
// cancellation time.
func setSysProcAttr(cmd *exec.Cmd) {}
