// Package process runs one child process per session: spawn, concurrent
// stdout/stderr line drains, exit collection, and cancellation that
// takes the whole descendant tree down with it.
package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Amchestnut/KotlinRunnerX/internal/logging"
	"github.com/Amchestnut/KotlinRunnerX/internal/models"
	"github.com/Amchestnut/KotlinRunnerX/internal/proctree"
)

// DefaultKillGrace is the pause between the graceful and forced phases
// of cancellation.
const DefaultKillGrace = 100 * time.Millisecond

// Sink receives one completed line of child output with its origin
// stream. Lines from the same stream arrive in order; no ordering is
// promised across streams. Sinks are invoked from the session's drain
// goroutines and marshal to their own context.
type Sink func(text string, stderr bool)

// SpawnError reports that the child process never started. No output
// was produced and there is nothing to cancel.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn: %v", e.Err) }

func (e *SpawnError) Unwrap() error { return e.Err }

// Config describes one child process.
type Config struct {
	// Argv is the full command line, argv[0] first. It is executed
	// directly, never through a shell.
	Argv []string
	// Dir is the working directory. Empty inherits the parent's.
	Dir string
	// Env entries are appended to the parent environment.
	Env []string
	// KillGrace overrides DefaultKillGrace when positive.
	KillGrace time.Duration
	// Cleanup runs exactly once when the session is torn down: after
	// the process is reaped and both streams are drained, or before
	// Start returns a spawn failure. It absorbs its own errors.
	Cleanup func()
}

// Session owns one spawned child end to end. All methods are safe for
// concurrent use.
type Session struct {
	cmd       *exec.Cmd
	sink      Sink
	cleanup   func()
	killGrace time.Duration
	logger    zerolog.Logger

	// Cancellation phases, injectable for tests.
	signalTree    func(pid int)
	forceKillTree func(pid int)

	cancelOnce sync.Once
	cancelled  atomic.Bool

	done     chan struct{}
	exitCode int
}

// Start spawns the child described by cfg and begins draining its
// output. On success the session is live; Done closes after the process
// exits, both streams are drained, and cleanup has run. On failure a
// *SpawnError is returned, cleanup has already run, and no goroutines
// remain.
func Start(cfg Config, sink Sink) (*Session, error) {
	if len(cfg.Argv) == 0 {
		return nil, failSpawn(cfg, models.ErrEmptyCommand)
	}
	if sink == nil {
		sink = func(string, bool) {}
	}

	cmd := exec.Command(cfg.Argv[0], cfg.Argv[1:]...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	setSysProcAttr(cmd)

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, failSpawn(cfg, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closePipes(outR, outW)
		return nil, failSpawn(cfg, err)
	}

	// The waiter must run concurrently with the drains, so the streams
	// go over session-owned pipes rather than cmd.StdoutPipe, whose
	// read ends Wait would close under the drains.
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		closePipes(outR, outW, errR, errW)
		return nil, failSpawn(cfg, err)
	}
	closePipes(outW, errW) // child holds its own copies now

	grace := cfg.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	s := &Session{
		cmd:           cmd,
		sink:          sink,
		cleanup:       cfg.Cleanup,
		killGrace:     grace,
		logger:        logging.Component("process").With().Int("pid", cmd.Process.Pid).Logger(),
		signalTree:    proctree.SignalTree,
		forceKillTree: proctree.ForceKillTree,
		done:          make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go s.drain(outR, false, &wg)
	go s.drain(errR, true, &wg)
	go s.wait(&wg)
	go func() {
		wg.Wait()
		s.finalize()
		close(s.done)
	}()

	return s, nil
}

// Cancel tears the run down. The graceful signal reaches the whole
// descendant tree before Cancel returns, so the child is told to stop
// even if the caller exits immediately afterwards; the grace window and
// the forced pass complete in the background. Done still marks full
// teardown. Idempotent, safe from any goroutine, and a no-op on a
// session that already finished.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		select {
		case <-s.done:
			return
		default:
		}
		s.cancelled.Store(true)
		pid := s.cmd.Process.Pid
		s.logger.Debug().Msg("cancelling run")
		s.signalTree(pid)
		go func() {
			time.Sleep(s.killGrace)
			s.forceKillTree(pid)
		}()
	})
}

// Done closes exactly once, after the process is reaped, both streams
// are fully drained, and cleanup has run.
func (s *Session) Done() <-chan struct{} { return s.done }

// ExitCode blocks until teardown completes and returns the final code.
// A cancelled session reports models.ExitFailure regardless of how the
// child exited.
func (s *Session) ExitCode() int {
	<-s.done
	if s.cancelled.Load() {
		return models.ExitFailure
	}
	return s.exitCode
}

// Wait is shorthand for ExitCode.
func (s *Session) Wait() int { return s.ExitCode() }

// Cancelled reports whether Cancel took effect on this session.
func (s *Session) Cancelled() bool { return s.cancelled.Load() }

// PID returns the child's process id.
func (s *Session) PID() int { return s.cmd.Process.Pid }

// drain reads one stream line by line and hands completed lines to the
// sink. A final unterminated line is still delivered. Read errors end
// the stream; a broken pipe carries no more lines and is not a session
// failure. After cancellation no further reads are issued.
func (s *Session) drain(r *os.File, stderr bool, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.Close()

	in := bufio.NewReaderSize(r, 64*1024)
	for {
		if s.cancelled.Load() {
			return
		}
		line, err := in.ReadString('\n')
		if errors.Is(err, io.EOF) && len(line) == 0 {
			return
		}
		s.sink(strings.TrimRight(line, "\r\n"), stderr)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug().Err(err).Bool("stderr", stderr).Msg("stream read ended early")
			}
			return
		}
	}
}

func (s *Session) wait(wg *sync.WaitGroup) {
	defer wg.Done()
	err := s.cmd.Wait()
	if s.cancelled.Load() {
		s.exitCode = models.ExitFailure
		return
	}
	s.exitCode = exitCodeFromError(err)
}

// finalize runs exactly once, after the waiter and both drains return.
func (s *Session) finalize() {
	if s.cleanup != nil {
		s.cleanup()
	}
	s.logger.Debug().
		Int("exit_code", s.exitCode).
		Bool("cancelled", s.cancelled.Load()).
		Msg("session finished")
}

// exitCodeFromError maps a Wait error to an exit code. A child killed
// by a signal has no code; that and every non-exit failure report the
// failure sentinel.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return models.ExitFailure
}

func failSpawn(cfg Config, err error) error {
	if cfg.Cleanup != nil {
		cfg.Cleanup()
	}
	return &SpawnError{Err: err}
}

func closePipes(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
