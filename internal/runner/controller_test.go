package runner

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amchestnut/KotlinRunnerX/internal/models"
	"github.com/Amchestnut/KotlinRunnerX/internal/process"
)

// fakeSession stands in for a child process session.
type fakeSession struct {
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	code      int
	cancelled bool
	cancels   int

	// slowTeardown keeps Done open across Cancel so tests can model a
	// session that is still draining after a stop.
	slowTeardown bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{done: make(chan struct{})}
}

func (f *fakeSession) exit(code int) {
	f.mu.Lock()
	f.code = code
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *fakeSession) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	f.cancels++
	slow := f.slowTeardown
	f.mu.Unlock()
	if !slow {
		f.closeOnce.Do(func() { close(f.done) })
	}
}

func (f *fakeSession) Done() <-chan struct{} { return f.done }

func (f *fakeSession) ExitCode() int {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled {
		return models.ExitFailure
	}
	return f.code
}

func (f *fakeSession) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeSession) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

func (f *fakeSession) PID() int { return 4242 }

// spawnRecorder is a SpawnFunc that hands out fake sessions.
type spawnRecorder struct {
	mu           sync.Mutex
	calls        int
	lastCfg      process.Config
	lastSink     process.Sink
	sessions     []*fakeSession
	failWith     error
	slowTeardown bool
}

func (s *spawnRecorder) spawn(cfg process.Config, sink process.Sink) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastCfg = cfg
	s.lastSink = sink
	if s.failWith != nil {
		// Mirror the real spawn contract: cleanup runs before the
		// error returns.
		if cfg.Cleanup != nil {
			cfg.Cleanup()
		}
		return nil, s.failWith
	}
	sess := newFakeSession()
	sess.slowTeardown = s.slowTeardown
	s.sessions = append(s.sessions, sess)
	return sess, nil
}

func (s *spawnRecorder) spawnCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *spawnRecorder) session(i int) *fakeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[i]
}

func (s *spawnRecorder) sink() process.Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSink
}

// memoryHistory records history calls in memory.
type memoryHistory struct {
	mu       sync.Mutex
	created  []models.Run
	finished []models.Run
}

func (h *memoryHistory) Create(run *models.Run) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, *run)
	return nil
}

func (h *memoryHistory) Finish(run *models.Run) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = append(h.finished, *run)
	return nil
}

func newTestController(rec *spawnRecorder, history HistoryStore) *Controller {
	c := New(Options{KillGrace: 10 * time.Millisecond}, history)
	c.Spawn = rec.spawn
	return c
}

func expectExit(t *testing.T, ch chan int, want int) {
	t.Helper()
	select {
	case code := <-ch:
		require.Equal(t, want, code)
	case <-time.After(5 * time.Second):
		t.Fatal("exit callback never fired")
	}
	select {
	case code := <-ch:
		t.Fatalf("exit callback fired twice, second code = %d", code)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestControllerSingleFlight(t *testing.T) {
	rec := &spawnRecorder{}
	c := newTestController(rec, nil)
	exits := make(chan int, 4)

	run, err := c.Start(Script{Source: "a.kts", Text: "x"}, nil, func(code int) { exits <- code })
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusRunning, c.Status())

	// A second run is rejected without side effects.
	second, err := c.Start(Script{Source: "b.kts", Text: "y"}, nil, func(code int) { exits <- code })
	assert.Nil(t, second)
	assert.ErrorIs(t, err, models.ErrRunActive)
	assert.Equal(t, 1, rec.spawnCalls())
	assert.Same(t, run, c.Active())

	rec.session(0).exit(0)
	expectExit(t, exits, 0)
	assert.Equal(t, models.RunStatusSuccess, c.Status())
	assert.Nil(t, c.Active())

	// The slot is free again.
	third, err := c.Start(Script{Source: "c.kts", Text: "z"}, nil, func(code int) { exits <- code })
	require.NoError(t, err)
	require.NotNil(t, third)
	rec.session(1).exit(0)
	expectExit(t, exits, 0)
}

func TestControllerNonZeroExit(t *testing.T) {
	rec := &spawnRecorder{}
	c := newTestController(rec, nil)
	exits := make(chan int, 2)

	run, err := c.Start(Script{Source: "a.kts", Text: "x"}, nil, func(code int) { exits <- code })
	require.NoError(t, err)

	rec.session(0).exit(2)
	expectExit(t, exits, 2)
	assert.Equal(t, models.RunStatusError, c.Status())
	assert.True(t, run.Finished())

	snap := run.Record()
	require.NotNil(t, snap.ExitCode)
	assert.Equal(t, 2, *snap.ExitCode)
	assert.Equal(t, models.RunCauseExited, snap.Cause)
}

func TestControllerStopMarksFailedSynchronously(t *testing.T) {
	rec := &spawnRecorder{}
	c := newTestController(rec, nil)
	exits := make(chan int, 2)

	run, err := c.Start(Script{Source: "a.kts", Text: "x"}, nil, func(code int) { exits <- code })
	require.NoError(t, err)

	c.Stop(run)

	// The terminal outcome is visible the moment Stop returns.
	assert.Equal(t, models.RunStatusError, c.Status())
	assert.True(t, run.Finished())
	select {
	case code := <-exits:
		assert.Equal(t, models.ExitFailure, code)
	default:
		t.Fatal("onExit did not fire before Stop returned")
	}

	assert.GreaterOrEqual(t, rec.session(0).cancelCount(), 1)

	// No duplicate notification from the session watcher.
	select {
	case code := <-exits:
		t.Fatalf("exit callback fired twice, second code = %d", code)
	case <-time.After(100 * time.Millisecond):
	}

	snap := run.Record()
	assert.Equal(t, models.RunCauseCancelled, snap.Cause)
}

func TestControllerStopIdempotent(t *testing.T) {
	rec := &spawnRecorder{}
	c := newTestController(rec, nil)
	exits := make(chan int, 4)

	run, err := c.Start(Script{Source: "a.kts", Text: "x"}, nil, func(code int) { exits <- code })
	require.NoError(t, err)

	c.Stop(run)
	c.Stop(run)
	c.Stop(nil)
	expectExit(t, exits, models.ExitFailure)
}

func TestControllerStopStaleHandle(t *testing.T) {
	rec := &spawnRecorder{}
	c := newTestController(rec, nil)
	exits := make(chan int, 4)

	first, err := c.Start(Script{Source: "a.kts", Text: "x"}, nil, func(code int) { exits <- code })
	require.NoError(t, err)
	rec.session(0).exit(0)
	expectExit(t, exits, 0)

	// Stopping a finished run changes nothing.
	c.Stop(first)
	assert.Equal(t, models.RunStatusSuccess, c.Status())
	assert.Equal(t, 0, rec.session(0).cancelCount())

	second, err := c.Start(Script{Source: "b.kts", Text: "y"}, nil, func(code int) { exits <- code })
	require.NoError(t, err)

	// A stale handle cannot touch the active run.
	c.Stop(first)
	assert.Equal(t, models.RunStatusRunning, c.Status())
	assert.Same(t, second, c.Active())
	assert.Equal(t, 0, rec.session(1).cancelCount())

	rec.session(1).exit(0)
	expectExit(t, exits, 0)
}

func TestControllerSpawnFailure(t *testing.T) {
	rec := &spawnRecorder{failWith: &process.SpawnError{Err: errors.New("no such executable")}}
	c := newTestController(rec, nil)
	exits := make(chan int, 2)

	run, err := c.Start(Script{Source: "a.kts", Text: "x"}, nil, func(code int) { exits <- code })
	assert.Nil(t, run)
	var spawnErr *process.SpawnError
	require.ErrorAs(t, err, &spawnErr)

	expectExit(t, exits, models.ExitFailure)
	assert.Equal(t, models.RunStatusError, c.Status())
	assert.Nil(t, c.Active())

	// The workspace was cleaned up by the spawn path.
	rec.mu.Lock()
	dir := rec.lastCfg.Dir
	rec.mu.Unlock()
	require.NotEmpty(t, dir)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "workspace %s should be removed", dir)
}

func TestControllerSpawnFailureRecorded(t *testing.T) {
	rec := &spawnRecorder{failWith: &process.SpawnError{Err: errors.New("no such executable")}}
	history := &memoryHistory{}
	c := newTestController(rec, history)
	exits := make(chan int, 2)

	_, err := c.Start(Script{Source: "a.kts", Text: "x"}, nil, func(code int) { exits <- code })
	require.Error(t, err)
	expectExit(t, exits, models.ExitFailure)

	// The failed run still lands in history, terminally.
	history.mu.Lock()
	defer history.mu.Unlock()
	require.Len(t, history.created, 1)
	assert.Equal(t, models.RunStatusRunning, history.created[0].Status)
	require.Len(t, history.finished, 1)
	fin := history.finished[0]
	assert.Equal(t, models.RunStatusError, fin.Status)
	assert.Equal(t, models.RunCauseSpawnFailed, fin.Cause)
	require.NotNil(t, fin.ExitCode)
	assert.Equal(t, models.ExitFailure, *fin.ExitCode)
	require.NotNil(t, fin.FinishedAt)
}

func TestControllerMaterializeFailureRecorded(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("TMPDIR override is unix-specific")
	}
	t.Setenv("TMPDIR", filepath.Join(t.TempDir(), "missing"))

	rec := &spawnRecorder{}
	history := &memoryHistory{}
	c := newTestController(rec, history)
	exits := make(chan int, 2)

	run, err := c.Start(Script{Source: "a.kts", Text: "x"}, nil, func(code int) { exits <- code })
	assert.Nil(t, run)
	require.Error(t, err)
	expectExit(t, exits, models.ExitFailure)
	assert.Equal(t, 0, rec.spawnCalls())

	// A run that fails before its start is recorded lands in history as
	// a single terminal insert.
	history.mu.Lock()
	defer history.mu.Unlock()
	require.Len(t, history.created, 1)
	assert.Empty(t, history.finished)
	rec0 := history.created[0]
	assert.Equal(t, models.RunStatusError, rec0.Status)
	assert.Equal(t, models.RunCauseSpawnFailed, rec0.Cause)
	require.NotNil(t, rec0.ExitCode)
	assert.Equal(t, models.ExitFailure, *rec0.ExitCode)
}

func TestControllerLineCallbacks(t *testing.T) {
	rec := &spawnRecorder{}
	c := newTestController(rec, nil)

	var mu sync.Mutex
	var lines []models.OutputLine
	exits := make(chan int, 2)

	run, err := c.Start(Script{Source: "a.kts", Text: "x"},
		func(text string, stderr bool) {
			mu.Lock()
			lines = append(lines, models.OutputLine{Text: text, Stderr: stderr})
			mu.Unlock()
		},
		func(code int) { exits <- code })
	require.NoError(t, err)

	sink := rec.sink()
	sink("compiling", false)
	sink("script.kts:1:1: error: boom", true)
	sink("done", false)

	rec.session(0).exit(1)
	expectExit(t, exits, 1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 3)
	assert.Equal(t, models.OutputLine{Text: "compiling", Stderr: false}, lines[0])
	assert.Equal(t, models.OutputLine{Text: "script.kts:1:1: error: boom", Stderr: true}, lines[1])
	assert.Equal(t, models.OutputLine{Text: "done", Stderr: false}, lines[2])

	snap := run.Record()
	assert.Equal(t, 2, snap.StdoutLines)
	assert.Equal(t, 1, snap.StderrLines)
	assert.Contains(t, snap.OutputTail, "boom")
}

func TestControllerHistoryRecorded(t *testing.T) {
	rec := &spawnRecorder{}
	history := &memoryHistory{}
	c := newTestController(rec, history)
	exits := make(chan int, 2)

	_, err := c.Start(Script{Source: "fib.kts", Text: "x", Profile: "fast"}, nil,
		func(code int) { exits <- code })
	require.NoError(t, err)

	rec.sink()("out", false)
	rec.session(0).exit(0)
	expectExit(t, exits, 0)

	history.mu.Lock()
	defer history.mu.Unlock()
	require.Len(t, history.created, 1)
	assert.Equal(t, "fib.kts", history.created[0].ScriptPath)
	assert.Equal(t, "fast", history.created[0].Profile)
	assert.Equal(t, models.RunStatusRunning, history.created[0].Status)

	require.Len(t, history.finished, 1)
	fin := history.finished[0]
	assert.Equal(t, models.RunStatusSuccess, fin.Status)
	require.NotNil(t, fin.ExitCode)
	assert.Equal(t, 0, *fin.ExitCode)
	assert.Equal(t, 1, fin.StdoutLines)
	require.NotNil(t, fin.FinishedAt)
}

func TestControllerTranscript(t *testing.T) {
	dir := t.TempDir()
	rec := &spawnRecorder{}
	c := New(Options{KillGrace: 10 * time.Millisecond, TranscriptDir: dir}, nil)
	c.Spawn = rec.spawn
	exits := make(chan int, 2)

	run, err := c.Start(Script{Source: "a.kts", Text: "x"}, nil, func(code int) { exits <- code })
	require.NoError(t, err)

	rec.sink()("hello", false)
	rec.session(0).exit(0)
	expectExit(t, exits, 0)

	snap := run.Record()
	require.NotEmpty(t, snap.TranscriptPath)
	assert.Equal(t, dir, filepath.Dir(snap.TranscriptPath))

	data, err := os.ReadFile(snap.TranscriptPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "run_id: "+run.ID)
	assert.Contains(t, content, "[stdout] hello")
	assert.Contains(t, content, "[exit] code=0 status=success")
}

func TestControllerNextStartJoinsTeardown(t *testing.T) {
	rec := &spawnRecorder{slowTeardown: true}
	c := newTestController(rec, nil)
	exits := make(chan int, 4)

	first, err := c.Start(Script{Source: "a.kts", Text: "x"}, nil, func(code int) { exits <- code })
	require.NoError(t, err)

	c.Stop(first)
	expectExit(t, exits, models.ExitFailure)

	// The first session is still tearing down; the next run must wait
	// for it.
	started := make(chan error, 1)
	go func() {
		_, err := c.Start(Script{Source: "b.kts", Text: "y"}, nil, func(code int) { exits <- code })
		started <- err
	}()

	select {
	case <-started:
		t.Fatal("second run started before the first finished teardown")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, rec.spawnCalls())

	rec.session(0).exit(0) // teardown completes
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second run never started after teardown completed")
	}
	assert.Equal(t, 2, rec.spawnCalls())

	rec.session(1).exit(0)
	expectExit(t, exits, 0)
}

func TestControllerStopDuringSpawn(t *testing.T) {
	rec := &spawnRecorder{}
	c := newTestController(rec, nil)
	exits := make(chan int, 2)

	// Block the spawn until Stop has run, modelling a stop that lands
	// while the child is still being created.
	release := make(chan struct{})
	stopIssued := make(chan struct{})
	c.Spawn = func(cfg process.Config, sink process.Sink) (Session, error) {
		close(release)
		<-stopIssued
		return rec.spawn(cfg, sink)
	}

	type startResult struct {
		run *Run
		err error
	}
	done := make(chan startResult, 1)
	go func() {
		run, err := c.Start(Script{Source: "a.kts", Text: "x"}, nil, func(code int) { exits <- code })
		done <- startResult{run, err}
	}()

	<-release
	go func() {
		c.Stop(c.Active())
		close(stopIssued)
	}()

	res := <-done
	require.NoError(t, res.err)
	expectExit(t, exits, models.ExitFailure)
	assert.True(t, res.run.Finished())

	// The child that appeared after the stop must not be left running.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec.session(0).cancelCount() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session spawned during stop was never cancelled")
}

func TestControllerRealProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	c := New(Options{KillGrace: 50 * time.Millisecond}, nil)
	// Drive a real child through the process package; only the argv is
	// substituted for the compiler.
	c.Spawn = func(cfg process.Config, sink process.Sink) (Session, error) {
		cfg.Argv = []string{"sh", "-c", "echo one; echo two >&2; exit 3"}
		return defaultSpawn(cfg, sink)
	}

	var mu sync.Mutex
	var lines []models.OutputLine
	exits := make(chan int, 2)

	_, err := c.Start(Script{Source: "a.kts", Text: "ignored"},
		func(text string, stderr bool) {
			mu.Lock()
			lines = append(lines, models.OutputLine{Text: text, Stderr: stderr})
			mu.Unlock()
		},
		func(code int) { exits <- code })
	require.NoError(t, err)

	expectExit(t, exits, 3)
	assert.Equal(t, models.RunStatusError, c.Status())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, lines, models.OutputLine{Text: "one", Stderr: false})
	assert.Contains(t, lines, models.OutputLine{Text: "two", Stderr: true})
}
