package models

import (
	"testing"
	"time"
)

func TestRunStatus_Terminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunStatusIdle, false},
		{RunStatusRunning, false},
		{RunStatusSuccess, true},
		{RunStatusError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("RunStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestRunStatus_CanStart(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunStatusIdle, true},
		{RunStatusRunning, false},
		{RunStatusSuccess, true},
		{RunStatusError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.CanStart(); got != tt.want {
				t.Errorf("RunStatus(%q).CanStart() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestRun_Duration(t *testing.T) {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	r := &Run{Status: RunStatusRunning, StartedAt: started}
	if got := r.Duration(); got != 0 {
		t.Errorf("Duration() for running run = %v, want 0", got)
	}

	finished := started.Add(3 * time.Second)
	r.Status = RunStatusSuccess
	r.FinishedAt = &finished
	if got := r.Duration(); got != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", got)
	}
}
