//go:build linux

package proctree

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Descendants returns the live transitive children of pid, parents
// before their own children. It scans /proc and tolerates processes
// vanishing mid-scan.
func Descendants(pid int) []int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}

	children := make(map[int][]int)
	for _, entry := range entries {
		child, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		ppid, ok := parentPID(child)
		if !ok {
			continue
		}
		children[ppid] = append(children[ppid], child)
	}

	return collectTree(children, pid)
}

// parentPID reads the ppid from /proc/[pid]/stat. The comm field may
// contain spaces and parentheses, so fields are split after the last ")".
func parentPID(pid int) (int, bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, false
	}

	str := string(data)
	lastParen := strings.LastIndex(str, ")")
	if lastParen < 0 {
		return 0, false
	}

	// After the comm field: state ppid pgrp ...
	fields := strings.Fields(str[lastParen+1:])
	if len(fields) < 2 {
		return 0, false
	}

	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}
