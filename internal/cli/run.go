// Package cli provides the run command.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Amchestnut/KotlinRunnerX/internal/db"
	"github.com/Amchestnut/KotlinRunnerX/internal/diagnostics"
	"github.com/Amchestnut/KotlinRunnerX/internal/launcher"
	"github.com/Amchestnut/KotlinRunnerX/internal/models"
	"github.com/Amchestnut/KotlinRunnerX/internal/profiles"
	"github.com/Amchestnut/KotlinRunnerX/internal/runner"
)

var (
	runProfile string
	runTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runProfile, "profile", "p", "", "launcher profile to apply")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "stop the run after this duration (0 = no limit)")
}

var runCmd = &cobra.Command{
	Use:   "run <script.kts|->",
	Short: "Run a Kotlin script",
	Long: `Run a Kotlin script through kotlinc -script and stream its output.

The script is read from the given file, or from stdin when the argument
is '-'. Output lines stream to stdout and stderr matching their origin,
with compiler-error and stack-frame locations highlighted. Ctrl-C stops
the run by tearing down the whole compiler process tree.

Every run is recorded in the local history; see 'kotlinrunnerx runs'.`,
	Example: `  kotlinrunnerx run script.kts
  kotlinrunnerx run script.kts --profile jdk17 --timeout 30s
  cat script.kts | kotlinrunnerx run - --jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, text, err := readScript(args[0])
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return models.ErrEmptyScript
		}

		opts, err := launcherOptions(runProfile)
		if err != nil {
			return err
		}

		cfg := GetConfig()
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()
		repo := db.NewRunRepository(database)

		ctrl := runner.New(runner.Options{
			Launcher:      opts,
			KillGrace:     cfg.KillGrace(),
			TailLines:     cfg.Runner.OutputTailLines,
			TranscriptDir: cfg.TranscriptDir(),
		}, runHistory{repo})

		streamer := &runStreamer{jsonl: IsJSONLOutput()}
		exits := make(chan int, 1)

		run, err := ctrl.Start(runner.Script{
			Source:  source,
			Text:    text,
			Profile: runProfile,
		}, streamer.line, func(code int) { exits <- code })
		if err != nil {
			return fmt.Errorf("failed to start run: %w", err)
		}

		logger.Debug().Str("run_id", run.ID).Str("script", source).Msg("run started")

		if runTimeout > 0 {
			timer := time.AfterFunc(runTimeout, func() {
				logger.Warn().Dur("timeout", runTimeout).Msg("run timed out, stopping")
				ctrl.Stop(run)
			})
			defer timer.Stop()
		}

		ctx, unregister := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer unregister()

		var code int
		select {
		case <-ctx.Done():
			// Restore default handling so a second signal kills the CLI.
			unregister()
			ctrl.Stop(run)
			code = <-exits
		case code = <-exits:
		}

		record := run.Record()
		streamer.exit(record.ID, code, record.Status)

		if IsJSONOutput() {
			if err := WriteOutput(os.Stdout, record); err != nil {
				return err
			}
		}

		pruneHistory(repo)

		if code != 0 {
			return &ExitError{Code: commandExitCode(code), Printed: true}
		}
		return nil
	},
}

// readScript loads the script text from a file, or from stdin for '-'.
func readScript(arg string) (source, text string, err error) {
	text, err = readTextArg(arg)
	if err != nil {
		return "", "", err
	}
	if arg == "-" {
		return "<stdin>", text, nil
	}
	return arg, text, nil
}

// launcherOptions builds the compiler options from config, with the
// named profile layered on top when one is requested.
func launcherOptions(profileName string) (launcher.Options, error) {
	cfg := GetConfig()
	opts := launcher.Options{
		Executable:  cfg.Runner.Executable,
		InstallRoot: cfg.Runner.InstallRoot,
		ExtraArgs:   cfg.Runner.ExtraArgs,
	}

	if profileName == "" {
		return opts, nil
	}

	available, err := profiles.LoadProfilesFromDir(cfg.ProfileDir())
	if err != nil {
		return launcher.Options{}, err
	}
	profile, err := profiles.Resolve(available, profileName)
	if err != nil {
		return launcher.Options{}, err
	}
	return profile.Apply(opts), nil
}

// lineEvent is one streamed output line in JSONL mode.
type lineEvent struct {
	Type      string              `json:"type"`
	Text      string              `json:"text"`
	Stderr    bool                `json:"stderr"`
	Locations []diagnostics.Match `json:"locations,omitempty"`
}

// exitEvent terminates a JSONL stream.
type exitEvent struct {
	Type   string           `json:"type"`
	RunID  string           `json:"run_id"`
	Code   int              `json:"code"`
	Status models.RunStatus `json:"status"`
}

// runStreamer forwards run output to the terminal. The controller
// invokes the line callback from both drain goroutines, so writes are
// serialized here.
type runStreamer struct {
	mu    sync.Mutex
	jsonl bool
}

func (s *runStreamer) line(text string, stderr bool) {
	matches := diagnostics.ScanLine(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jsonl {
		_ = writeJSONLine(os.Stdout, lineEvent{Type: "line", Text: text, Stderr: stderr, Locations: matches})
		return
	}

	out := os.Stdout
	if stderr {
		out = os.Stderr
	}
	fmt.Fprintln(out, highlightLine(text, stderr, matches))
}

func (s *runStreamer) exit(runID string, code int, status models.RunStatus) {
	if !s.jsonl {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = writeJSONLine(os.Stdout, exitEvent{Type: "exit", RunID: runID, Code: code, Status: status})
}

// pruneHistory trims run records down to the configured retention
// limit, removing their transcript files as well. Retention failures
// never affect the run outcome.
func pruneHistory(repo *db.RunRepository) {
	limit := GetConfig().History.Limit
	if limit <= 0 {
		return
	}
	pruned, transcripts, err := repo.Prune(context.Background(), limit)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to prune run history")
		return
	}
	removeTranscripts(transcripts)
	if pruned > 0 {
		logger.Debug().Int("pruned", pruned).Msg("pruned run history")
	}
}

// removeTranscripts deletes transcript files of pruned runs. Missing
// files are fine; anything else is only worth a debug line.
func removeTranscripts(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Debug().Err(err).Str("path", path).Msg("failed to remove transcript")
		}
	}
}

// commandExitCode converts a recorded exit code into a process exit
// code. Cancelled and never-spawned runs record -1, which has no OS
// representation; they exit 1.
func commandExitCode(code int) int {
	if code < 0 {
		return 1
	}
	return code
}
