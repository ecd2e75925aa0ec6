// Package proctree enumerates and terminates process trees. The runner
// launches the compiler through wrapper scripts that fork the real JVM,
// so killing only the direct child would leave the expensive part of
// the work running.
package proctree

import "time"

// KillTree terminates pid and every live descendant in two phases: a
// graceful signal to the whole tree, a grace window, then a forced kill
// of any survivor. Teardown is best effort; signalling processes that
// already exited is not an error.
func KillTree(pid int, grace time.Duration) {
	if pid <= 0 {
		return
	}
	signalTree(pid)
	time.Sleep(grace)
	forceKillTree(pid)
}

// SignalTree delivers the graceful termination signal to every live
// descendant of pid and then to pid itself, returning once the signals
// have been issued. Callers that want the forced follow-up schedule
// ForceKillTree after their own grace window.
func SignalTree(pid int) {
	if pid <= 0 {
		return
	}
	signalTree(pid)
}

// ForceKillTree forcibly kills pid and any descendant still alive.
func ForceKillTree(pid int) {
	if pid <= 0 {
		return
	}
	forceKillTree(pid)
}

// collectTree walks a parent->children map breadth first from root and
// returns the transitive children, parents before their own children.
func collectTree(children map[int][]int, root int) []int {
	var out []int
	queue := []int{root}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, child := range children[next] {
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}
