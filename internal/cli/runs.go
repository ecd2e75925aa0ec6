// Package cli provides run history commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Amchestnut/KotlinRunnerX/internal/db"
	"github.com/Amchestnut/KotlinRunnerX/internal/models"
	"github.com/Amchestnut/KotlinRunnerX/internal/transcript"
)

var (
	runsLimit    int
	runsShowTail int
	runsKeep     int
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsPruneCmd)

	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum runs to list (0 = all)")
	runsShowCmd.Flags().IntVar(&runsShowTail, "tail", 20, "transcript lines to include")
	runsPruneCmd.Flags().IntVar(&runsKeep, "keep", -1, "run records to keep (default: history.limit from config)")
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Long:  `List the run history, newest first.`,
	Example: `  kotlinrunnerx runs
  kotlinrunnerx runs --limit 5 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewRunRepository(database)
		runs, err := repo.List(context.Background(), runsLimit)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, runs)
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stdout, "No runs recorded")
			return nil
		}

		rows := make([][]string, 0, len(runs))
		for _, run := range runs {
			rows = append(rows, []string{
				shortID(run.ID),
				run.ScriptPath,
				orDash(run.Profile),
				colorize(string(run.Status), statusColor(run.Status)),
				formatExitCode(run.ExitCode),
				fmt.Sprintf("%d/%d", run.StdoutLines, run.StderrLines),
				run.StartedAt.UTC().Format(time.RFC3339),
				formatRunDuration(run),
			})
		}

		return writeTable(os.Stdout, []string{"ID", "SCRIPT", "PROFILE", "STATUS", "EXIT", "LINES", "STARTED", "DURATION"}, rows)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run in detail",
	Long:  `Show a recorded run by full ID or unique ID prefix, with its transcript tail.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewRunRepository(database)
		run, err := findRun(context.Background(), repo, args[0])
		if err != nil {
			// Transcripts outlive pruned history rows, so a missing run
			// may still have one on disk.
			if errors.Is(err, db.ErrRunNotFound) && printPrunedTranscript(args[0]) {
				return nil
			}
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, run)
		}

		printRunDetail(run)
		return nil
	},
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old run records",
	Long:  `Delete the oldest run records, keeping the configured retention limit.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keep := runsKeep
		if keep < 0 {
			keep = GetConfig().History.Limit
		}
		if keep <= 0 {
			return fmt.Errorf("nothing to prune: retention limit is unset (pass --keep or set history.limit)")
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewRunRepository(database)
		pruned, transcripts, err := repo.Prune(context.Background(), keep)
		if err != nil {
			return err
		}
		removeTranscripts(transcripts)

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]int{"pruned": pruned, "kept": keep})
		}

		if pruned == 0 {
			fmt.Println("Nothing to prune")
			return nil
		}
		fmt.Printf("Pruned %d run(s)\n", pruned)
		return nil
	},
}

// printPrunedTranscript shows what a pruned run left behind: its
// transcript front matter and tail. Returns false unless the reference
// names exactly one transcript file.
func printPrunedTranscript(ref string) bool {
	dir := GetConfig().TranscriptDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, ref) && strings.HasSuffix(name, ".log") {
			names = append(names, name)
		}
	}
	if len(names) != 1 {
		return false
	}

	path := filepath.Join(dir, names[0])
	m, err := transcript.ReadManifest(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to parse transcript")
		return false
	}

	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(os.Stdout, m) == nil
	}

	fmt.Printf("ID:         %s\n", m.RunID)
	fmt.Printf("Script:     %s\n", orDash(m.Script))
	fmt.Printf("Profile:    %s\n", orDash(m.Profile))
	fmt.Printf("Command:    %s\n", orDash(m.Command))
	fmt.Printf("Started:    %s\n", m.StartedAt.UTC().Format(time.RFC3339))
	fmt.Printf("History:    pruned (transcript only)\n")

	tail, err := transcript.Tail(path, runsShowTail)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to read transcript")
		return true
	}
	fmt.Printf("\nTranscript: %s\n", path)
	if tail != "" {
		fmt.Println(tail)
	}
	return true
}

func printRunDetail(run *models.Run) {
	fmt.Printf("ID:         %s\n", run.ID)
	fmt.Printf("Script:     %s\n", run.ScriptPath)
	fmt.Printf("Profile:    %s\n", orDash(run.Profile))
	fmt.Printf("Command:    %s\n", orDash(run.Command))
	fmt.Printf("Status:     %s\n", colorize(string(run.Status), statusColor(run.Status)))
	fmt.Printf("Cause:      %s\n", orDash(string(run.Cause)))
	fmt.Printf("Exit code:  %s\n", formatExitCode(run.ExitCode))
	fmt.Printf("Lines:      %d stdout, %d stderr\n", run.StdoutLines, run.StderrLines)
	fmt.Printf("Started:    %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Printf("Finished:   %s (%s)\n", run.FinishedAt.UTC().Format(time.RFC3339), formatRunDuration(run))
	}

	if run.TranscriptPath == "" {
		return
	}
	tail, err := transcript.Tail(run.TranscriptPath, runsShowTail)
	if err != nil {
		logger.Warn().Err(err).Str("path", run.TranscriptPath).Msg("failed to read transcript")
		return
	}
	fmt.Printf("\nTranscript: %s\n", run.TranscriptPath)
	if tail != "" {
		fmt.Println(tail)
	}
}

func statusColor(status models.RunStatus) string {
	switch status {
	case models.RunStatusSuccess:
		return colorGreen
	case models.RunStatusError:
		return colorRed
	case models.RunStatusRunning:
		return colorYellow
	default:
		return ""
	}
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func formatExitCode(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *code)
}

func formatRunDuration(run *models.Run) string {
	if run.FinishedAt == nil {
		return "-"
	}
	return formatDuration(run.Duration())
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	if d < time.Hour {
		rounded := d.Round(time.Second)
		return fmt.Sprintf("%dm%02ds", int(rounded.Minutes()), int(rounded.Seconds())%60)
	}
	return d.Round(time.Minute).String()
}
