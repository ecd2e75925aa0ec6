// Package runner owns the run lifecycle: at most one active run,
// per-line and exit callbacks, cancellation, and the bookkeeping around
// each run (workspace, transcript, history).
package runner

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Amchestnut/KotlinRunnerX/internal/launcher"
	"github.com/Amchestnut/KotlinRunnerX/internal/logging"
	"github.com/Amchestnut/KotlinRunnerX/internal/models"
	"github.com/Amchestnut/KotlinRunnerX/internal/process"
	"github.com/Amchestnut/KotlinRunnerX/internal/script"
	"github.com/Amchestnut/KotlinRunnerX/internal/transcript"
)

// DefaultTailLines is how many trailing output lines a run keeps for
// history when no limit is configured.
const DefaultTailLines = 20

// LineFunc receives one output line with its origin stream. Called from
// the session's drain goroutines in per-stream order; no ordering is
// promised across streams.
type LineFunc func(text string, stderr bool)

// ExitFunc receives the final exit code, exactly once per accepted run.
type ExitFunc func(code int)

// Script is the payload for one run.
type Script struct {
	// Source names where the text came from ("-" for stdin). Recorded
	// in history and the transcript; the run itself executes a private
	// working copy.
	Source string
	Text   string
	// Profile names the launcher profile applied, if any.
	Profile string
}

// Session is the controller's view of a live child session.
type Session interface {
	Cancel()
	Done() <-chan struct{}
	ExitCode() int
	Cancelled() bool
	PID() int
}

// SpawnFunc launches a child session. Tests substitute fakes.
type SpawnFunc func(cfg process.Config, sink process.Sink) (Session, error)

func defaultSpawn(cfg process.Config, sink process.Sink) (Session, error) {
	s, err := process.Start(cfg, sink)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// HistoryStore persists run records. *db.RunRepository satisfies it.
type HistoryStore interface {
	Create(run *models.Run) error
	Finish(run *models.Run) error
}

// Options configure a Controller.
type Options struct {
	// Launcher builds the compiler invocation for each run.
	Launcher launcher.Options
	// KillGrace is the pause between the graceful and forced kill
	// phases. Zero uses process.DefaultKillGrace.
	KillGrace time.Duration
	// TailLines bounds the output tail kept for history.
	TailLines int
	// TranscriptDir receives one transcript file per run. Empty
	// disables transcripts.
	TranscriptDir string
}

// Controller enforces at most one active run at a time.
type Controller struct {
	opts    Options
	history HistoryStore
	logger  zerolog.Logger

	// Spawn launches the child session; replaceable in tests.
	Spawn SpawnFunc

	mu       sync.Mutex
	status   models.RunStatus
	current  *Run
	lastDone <-chan struct{}
}

// New builds a Controller. history may be nil for callers that do not
// persist runs.
func New(opts Options, history HistoryStore) *Controller {
	if opts.KillGrace <= 0 {
		opts.KillGrace = process.DefaultKillGrace
	}
	if opts.TailLines <= 0 {
		opts.TailLines = DefaultTailLines
	}
	return &Controller{
		opts:    opts,
		history: history,
		logger:  logging.Component("runner"),
		Spawn:   defaultSpawn,
		status:  models.RunStatusIdle,
	}
}

// Run is the handle for one accepted run. A handle outlives its run;
// methods on a finished handle are safe and inert.
type Run struct {
	ID string

	onLine   LineFunc
	onExit   ExitFunc
	exitOnce sync.Once
	finished chan struct{}
	tailMax  int

	mu          sync.Mutex
	session     Session
	transcript  *transcript.Writer
	record      *models.Run
	created     bool
	stdoutCount int
	stderrCount int
	tail        []string
}

// Finished reports whether the run has reached its terminal state.
func (r *Run) Finished() bool {
	select {
	case <-r.finished:
		return true
	default:
		return false
	}
}

// Record returns a snapshot of the run's history record.
func (r *Run) Record() models.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.record
}

// Start begins a new run. While another run is active it rejects with
// models.ErrRunActive and has no side effects. When the run cannot be
// spawned it is terminally failed, onExit fires once with
// models.ExitFailure, and the error is returned. On success the handle
// returns immediately; completion arrives through onExit.
func (c *Controller) Start(s Script, onLine LineFunc, onExit ExitFunc) (*Run, error) {
	if onLine == nil {
		onLine = func(string, bool) {}
	}
	if onExit == nil {
		onExit = func(int) {}
	}

	c.mu.Lock()
	if !c.status.CanStart() {
		c.mu.Unlock()
		return nil, models.ErrRunActive
	}
	run := &Run{
		ID:       uuid.New().String(),
		onLine:   onLine,
		onExit:   onExit,
		finished: make(chan struct{}),
		tailMax:  c.opts.TailLines,
	}
	run.record = &models.Run{
		ID:         run.ID,
		ScriptPath: s.Source,
		Profile:    s.Profile,
		Status:     models.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	prevDone := c.lastDone
	c.status = models.RunStatusRunning
	c.current = run
	c.mu.Unlock()

	// A stopped run reports terminal before its teardown physically
	// completes; the next run must not begin until that teardown is
	// done. The join is bounded by the kill grace plus drain time.
	if prevDone != nil {
		<-prevDone
	}

	ws, err := script.Materialize(s.Text)
	if err != nil {
		return nil, c.failBeforeSpawn(run, fmt.Errorf("materialize script: %w", err))
	}

	inv, err := launcher.Build(ws.Path, c.opts.Launcher)
	if err != nil {
		ws.Remove()
		return nil, c.failBeforeSpawn(run, err)
	}
	run.mu.Lock()
	run.record.Command = inv.Command()
	run.mu.Unlock()

	c.openTranscript(run, s)
	c.recordStart(run)

	sess, err := c.Spawn(process.Config{
		Argv:      inv.Argv,
		Dir:       ws.Dir,
		Env:       inv.Env,
		KillGrace: c.opts.KillGrace,
		Cleanup:   ws.Remove,
	}, run.consume)
	if err != nil {
		// The spawn path already ran the workspace cleanup.
		return nil, c.failBeforeSpawn(run, err)
	}

	run.mu.Lock()
	run.session = sess
	stoppedMeanwhile := run.Finished()
	run.mu.Unlock()

	c.mu.Lock()
	c.lastDone = sess.Done()
	c.mu.Unlock()

	// Stop may have raced the spawn; a run that is already marked
	// failed must not keep its child alive.
	if stoppedMeanwhile {
		sess.Cancel()
	}

	go c.watch(run, sess)

	c.logger.Info().
		Str("run_id", run.ID).
		Int("pid", sess.PID()).
		Str("command", inv.Command()).
		Msg("run started")
	return run, nil
}

// Stop cancels the active run. The run is marked failed and onExit
// fires before Stop returns; physical teardown continues in the
// background and is joined by the next Start. Nil, stale, or finished
// handles are no-ops.
func (c *Controller) Stop(run *Run) {
	if run == nil {
		return
	}
	c.mu.Lock()
	if c.current != run {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	run.mu.Lock()
	sess := run.session
	run.mu.Unlock()
	if sess != nil {
		sess.Cancel()
	}
	c.finish(run, models.ExitFailure, models.RunCauseCancelled)
}

// Status reports the controller's lifecycle state.
func (c *Controller) Status() models.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Active returns the current run handle, nil when no run is active.
func (c *Controller) Active() *Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) watch(run *Run, sess Session) {
	<-sess.Done()
	code := sess.ExitCode()
	cause := models.RunCauseExited
	if sess.Cancelled() {
		code = models.ExitFailure
		cause = models.RunCauseCancelled
	}
	c.finish(run, code, cause)
}

// failBeforeSpawn finishes a run that never produced a child process.
func (c *Controller) failBeforeSpawn(run *Run, err error) error {
	c.logger.Error().Str("run_id", run.ID).Err(err).Msg("run failed to start")
	c.finish(run, models.ExitFailure, models.RunCauseSpawnFailed)
	return err
}

// finish applies the terminal outcome exactly once: transcript and
// history are closed out, the controller slot is released, and only
// then does onExit fire.
func (c *Controller) finish(run *Run, code int, cause models.RunCause) {
	run.exitOnce.Do(func() {
		status := models.RunStatusError
		if code == 0 && cause == models.RunCauseExited {
			status = models.RunStatusSuccess
		}

		run.mu.Lock()
		tw := run.transcript
		run.mu.Unlock()
		if tw != nil {
			tw.Finish(code, status)
		}
		c.recordFinish(run, code, status, cause)

		c.mu.Lock()
		if c.current == run {
			c.current = nil
			c.status = status
		}
		c.mu.Unlock()

		close(run.finished)
		c.logger.Info().
			Str("run_id", run.ID).
			Int("exit_code", code).
			Str("status", string(status)).
			Str("cause", string(cause)).
			Msg("run finished")
		run.onExit(code)
	})
}

// consume is the session sink: count, remember the tail, transcribe,
// then forward to the caller's callback.
func (r *Run) consume(text string, stderr bool) {
	r.mu.Lock()
	if stderr {
		r.stderrCount++
	} else {
		r.stdoutCount++
	}
	if len(r.tail) >= r.tailMax {
		r.tail = r.tail[1:]
	}
	r.tail = append(r.tail, text)
	tw := r.transcript
	r.mu.Unlock()

	if tw != nil {
		tw.Line(text, stderr)
	}
	r.onLine(text, stderr)
}

func (c *Controller) openTranscript(run *Run, s Script) {
	if c.opts.TranscriptDir == "" {
		return
	}
	run.mu.Lock()
	m := transcript.Manifest{
		RunID:     run.ID,
		Script:    s.Source,
		Profile:   s.Profile,
		Command:   run.record.Command,
		StartedAt: run.record.StartedAt,
	}
	run.mu.Unlock()

	w, err := transcript.Create(c.opts.TranscriptDir, m)
	if err != nil {
		c.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to open transcript")
		return
	}

	run.mu.Lock()
	if run.Finished() {
		// Stop won the race; nothing will write or close this one.
		run.mu.Unlock()
		w.Close()
		return
	}
	run.transcript = w
	run.record.TranscriptPath = w.Path()
	run.mu.Unlock()
}

func (c *Controller) recordStart(run *Run) {
	if c.history == nil {
		return
	}
	run.mu.Lock()
	if run.created {
		// A racing stop already persisted this run terminally.
		run.mu.Unlock()
		return
	}
	run.created = true
	rec := *run.record
	run.mu.Unlock()
	if err := c.history.Create(&rec); err != nil {
		c.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record run start")
	}
}

func (c *Controller) recordFinish(run *Run, code int, status models.RunStatus, cause models.RunCause) {
	now := time.Now().UTC()
	run.mu.Lock()
	run.record.Status = status
	run.record.Cause = cause
	run.record.ExitCode = &code
	run.record.StdoutLines = run.stdoutCount
	run.record.StderrLines = run.stderrCount
	run.record.OutputTail = strings.Join(run.tail, "\n")
	run.record.FinishedAt = &now
	rec := *run.record
	firstWrite := !run.created
	run.created = true
	run.mu.Unlock()

	if c.history == nil {
		return
	}
	// A run that failed before its start was recorded lands in history
	// as a single terminal insert.
	if firstWrite {
		if err := c.history.Create(&rec); err != nil {
			c.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record run")
		}
		return
	}
	if err := c.history.Finish(&rec); err != nil {
		c.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record run finish")
	}
}
