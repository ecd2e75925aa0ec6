package models

import "time"

// RunStatus represents the lifecycle state of a script run.
type RunStatus string

const (
	RunStatusIdle    RunStatus = "idle"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// Terminal reports whether the status is a finished state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusError
}

// CanStart reports whether a new run may begin from this status.
func (s RunStatus) CanStart() bool {
	return s != RunStatusRunning
}

// RunCause records why a run reached its terminal status. The exit code
// alone cannot distinguish a cancelled run from one that never spawned;
// both report ExitFailure.
type RunCause string

const (
	RunCauseExited      RunCause = "exited"
	RunCauseCancelled   RunCause = "cancelled"
	RunCauseSpawnFailed RunCause = "spawn-failed"
)

// ExitFailure is the exit code reported for runs that were cancelled or
// never spawned.
const ExitFailure = -1

// ScriptFileName is the fixed basename the script payload is written
// under. Compiler diagnostics and stack traces name this token, which is
// what the location patterns match on.
const ScriptFileName = "script.kts"

// OutputLine is one drained line of child output with its origin stream.
type OutputLine struct {
	Text   string `json:"text"`
	Stderr bool   `json:"stderr"`
}

// Run captures a single script execution for the history store.
type Run struct {
	ID             string     `json:"id"`
	ScriptPath     string     `json:"script_path"`
	Profile        string     `json:"profile,omitempty"`
	Command        string     `json:"command,omitempty"`
	Status         RunStatus  `json:"status"`
	Cause          RunCause   `json:"cause,omitempty"`
	ExitCode       *int       `json:"exit_code,omitempty"`
	StdoutLines    int        `json:"stdout_lines"`
	StderrLines    int        `json:"stderr_lines"`
	OutputTail     string     `json:"output_tail,omitempty"`
	TranscriptPath string     `json:"transcript_path,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Finished reports whether the run has reached a terminal status.
func (r *Run) Finished() bool {
	return r.Status.Terminal()
}

// Duration returns the wall time of the run, zero while still running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
