// Package script materializes the script payload on disk for a single
// run. Every run gets a fresh directory so the compiler always sees the
// same basename and stale files from earlier runs cannot leak in.
package script

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Amchestnut/KotlinRunnerX/internal/logging"
	"github.com/Amchestnut/KotlinRunnerX/internal/models"
)

// Workspace is a run-scoped directory holding the working file.
type Workspace struct {
	Dir  string
	Path string
}

// Materialize writes text to the fixed working-file basename inside a
// fresh temporary directory and returns the workspace handle.
func Materialize(text string) (*Workspace, error) {
	dir, err := os.MkdirTemp("", "kotlinrunnerx-run-")
	if err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	path := filepath.Join(dir, models.ScriptFileName)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write %s: %w", models.ScriptFileName, err)
	}

	return &Workspace{Dir: dir, Path: path}, nil
}

// Remove deletes the workspace directory. Removal is best effort: a
// failure is logged and absorbed, never surfaced to the run outcome.
// Safe to call repeatedly.
func (w *Workspace) Remove() {
	if w == nil || w.Dir == "" {
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		logger := logging.Component("script")
		logger.Warn().Err(err).Str("dir", w.Dir).Msg("failed to remove run workspace")
	}
}
