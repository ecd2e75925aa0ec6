// Package transcript writes one log file per run: a YAML front-matter
// block identifying the run, one stamped line per output line, and a
// final exit line. Transcripts are self-describing so they stay useful
// after the history row is pruned.
package transcript

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Amchestnut/KotlinRunnerX/internal/logging"
	"github.com/Amchestnut/KotlinRunnerX/internal/models"
)

// Manifest is the front-matter block identifying a transcript.
type Manifest struct {
	RunID     string    `yaml:"run_id" json:"run_id"`
	Script    string    `yaml:"script,omitempty" json:"script,omitempty"`
	Profile   string    `yaml:"profile,omitempty" json:"profile,omitempty"`
	Command   string    `yaml:"command,omitempty" json:"command,omitempty"`
	StartedAt time.Time `yaml:"started_at" json:"started_at"`
}

// Writer appends transcript lines for one run. Safe for concurrent use;
// the session's two drains write through it.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	path   string
	closed bool
}

// Create opens <dir>/<run-id>.log and writes the front-matter.
func Create(dir string, m Manifest) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	path := filepath.Join(dir, m.RunID+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create transcript: %w", err)
	}

	head, err := yaml.Marshal(m)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("marshal transcript manifest: %w", err)
	}

	buf := bufio.NewWriter(file)
	fmt.Fprintf(buf, "---\n%s---\n", head)

	return &Writer{file: file, buf: buf, path: path}, nil
}

// Path returns the transcript file location.
func (w *Writer) Path() string { return w.path }

// Line appends one output line with its stream tag.
func (w *Writer) Line(text string, stderr bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	tag := "stdout"
	if stderr {
		tag = "stderr"
	}
	fmt.Fprintf(w.buf, "[%s] %s\n", tag, text)
}

// Finish writes the exit line, then flushes and closes the file.
func (w *Writer) Finish(code int, status models.RunStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	fmt.Fprintf(w.buf, "[exit] code=%d status=%s finished_at=%s\n",
		code, status, time.Now().UTC().Format(time.RFC3339))
	w.close()
}

// Close flushes and closes without an exit line, for runs abandoned
// before a terminal outcome.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.close()
}

func (w *Writer) close() {
	logger := logging.Component("transcript")
	if err := w.buf.Flush(); err != nil {
		logger.Warn().Err(err).Str("path", w.path).Msg("failed to flush transcript")
	}
	if err := w.file.Close(); err != nil {
		logger.Warn().Err(err).Str("path", w.path).Msg("failed to close transcript")
	}
	w.closed = true
}

// ReadManifest parses the front-matter block of a transcript file.
func ReadManifest(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() || scanner.Text() != "---" {
		return Manifest{}, fmt.Errorf("%s: missing front matter", filepath.Base(path))
	}

	var block strings.Builder
	terminated := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "---" {
			terminated = true
			break
		}
		block.WriteString(line)
		block.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return Manifest{}, err
	}
	if !terminated {
		return Manifest{}, fmt.Errorf("%s: unterminated front matter", filepath.Base(path))
	}

	var m Manifest
	if err := yaml.Unmarshal([]byte(block.String()), &m); err != nil {
		return Manifest{}, fmt.Errorf("parse front matter: %w", err)
	}
	return m, nil
}

// Tail returns the last maxLines lines of a transcript joined with
// newlines.
func Tail(path string, maxLines int) (string, error) {
	if maxLines <= 0 {
		return "", nil
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lines := make([]string, 0, maxLines)
	for scanner.Scan() {
		if len(lines) >= maxLines {
			lines = lines[1:]
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	return strings.Join(lines, "\n"), nil
}
