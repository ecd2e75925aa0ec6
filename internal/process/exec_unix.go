//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr gives the child its own process group. Tree
// enumeration does the real cancellation work; the group is a backstop
// that keeps group-wide signals away from the parent.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
