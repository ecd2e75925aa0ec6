package models

import "errors"

// Validation and lifecycle errors shared across packages.
var (
	// ErrRunActive is returned when a run is requested while another run
	// is still active. The active run is left untouched.
	ErrRunActive = errors.New("a run is already active")

	// ErrEmptyScript is returned for a script payload with no content.
	ErrEmptyScript = errors.New("script is empty")

	// ErrEmptyCommand is returned for an invocation with no argv.
	ErrEmptyCommand = errors.New("command is empty")
)
