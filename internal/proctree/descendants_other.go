//go:build !linux && !windows

package proctree

import (
	"os/exec"
	"strconv"
	"strings"
)

// Descendants returns the live transitive children of pid, parents
// before their own children. Platforms without /proc go through ps.
func Descendants(pid int) []int {
	out, err := exec.Command("ps", "-axo", "pid=,ppid=").Output()
	if err != nil {
		return nil
	}

	children := make(map[int][]int)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		child, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		children[ppid] = append(children[ppid], child)
	}

	return collectTree(children, pid)
}
