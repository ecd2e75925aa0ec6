// Package cli provides the locate command.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Amchestnut/KotlinRunnerX/internal/diagnostics"
)

func init() {
	rootCmd.AddCommand(locateCmd)
}

// locatedMatch pairs a span with the 1-based input line it was found on.
type locatedMatch struct {
	InputLine int `json:"input_line"`
	diagnostics.Match
}

var locateCmd = &cobra.Command{
	Use:   "locate [file]",
	Short: "Find script locations in compiler or runtime output",
	Long: `Scan text for script locations: compiler diagnostics like
'script.kts:12:5: error: ...' and stack frames like '(script.kts:47)'.

Reads the given file, or stdin when no file is given.`,
	Example: `  kotlinc -script script.kts 2>&1 | kotlinrunnerx locate
  kotlinrunnerx locate build.log --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arg := "-"
		if len(args) == 1 {
			arg = args[0]
		}
		text, err := readTextArg(arg)
		if err != nil {
			return err
		}

		var found []locatedMatch
		scanner := bufio.NewScanner(strings.NewReader(text))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			for _, m := range diagnostics.ScanLine(scanner.Text()) {
				found = append(found, locatedMatch{InputLine: lineNo, Match: m})
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to scan input: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, found)
		}

		if len(found) == 0 {
			fmt.Fprintln(os.Stdout, "No locations found")
			return nil
		}

		rows := make([][]string, 0, len(found))
		for _, m := range found {
			rows = append(rows, []string{
				fmt.Sprintf("%d", m.InputLine),
				m.Text,
				fmt.Sprintf("%d:%d", m.Ref.Line, m.Ref.Column),
				string(m.Kind),
			})
		}

		return writeTable(os.Stdout, []string{"LINE", "SPAN", "TARGET", "KIND"}, rows)
	},
}

// readTextArg loads a file's content, or stdin for '-'.
func readTextArg(arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}
