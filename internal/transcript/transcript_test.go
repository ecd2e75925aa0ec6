package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amchestnut/KotlinRunnerX/internal/models"
)

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)

	w, err := Create(dir, Manifest{
		RunID:     "run-123",
		Script:    "/home/dev/fib.kts",
		Command:   "kotlinc -script /tmp/run/script.kts",
		StartedAt: started,
	})
	require.NoError(t, err)

	w.Line("hello", false)
	w.Line("script.kts:2:1: error: oops", true)
	w.Finish(1, models.RunStatusError)

	m, err := ReadManifest(w.Path())
	require.NoError(t, err)
	assert.Equal(t, "run-123", m.RunID)
	assert.Equal(t, "/home/dev/fib.kts", m.Script)
	assert.Equal(t, "kotlinc -script /tmp/run/script.kts", m.Command)
	assert.True(t, m.StartedAt.Equal(started))

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "[stdout] hello\n")
	assert.Contains(t, content, "[stderr] script.kts:2:1: error: oops\n")
	assert.Contains(t, content, "[exit] code=1 status=error")
}

func TestWriterFinishIdempotent(t *testing.T) {
	w, err := Create(t.TempDir(), Manifest{RunID: "run-1", StartedAt: time.Now()})
	require.NoError(t, err)

	w.Finish(0, models.RunStatusSuccess)
	w.Finish(0, models.RunStatusSuccess)
	w.Close()
	w.Line("after close", false)

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "[exit]"))
	assert.NotContains(t, string(data), "after close")
}

func TestReadManifestRejectsPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.log")
	require.NoError(t, os.WriteFile(path, []byte("just a log line\n"), 0o644))

	_, err := ReadManifest(path)
	assert.ErrorContains(t, err, "missing front matter")
}

func TestReadManifestUnterminated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.log")
	require.NoError(t, os.WriteFile(path, []byte("---\nrun_id: x\n"), 0o644))

	_, err := ReadManifest(path)
	assert.ErrorContains(t, err, "unterminated front matter")
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\nd\n"), 0o644))

	got, err := Tail(path, 2)
	require.NoError(t, err)
	assert.Equal(t, "c\nd", got)

	got, err = Tail(path, 10)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\nd", got)

	got, err = Tail(path, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
