// Package cli provides the offset command.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Amchestnut/KotlinRunnerX/internal/diagnostics"
)

var (
	offsetLine   int
	offsetColumn int
)

func init() {
	rootCmd.AddCommand(offsetCmd)

	offsetCmd.Flags().IntVar(&offsetLine, "line", 1, "1-based line")
	offsetCmd.Flags().IntVar(&offsetColumn, "column", 1, "1-based column")
	_ = offsetCmd.MarkFlagRequired("line")
}

var offsetCmd = &cobra.Command{
	Use:   "offset --line L [--column C] [file]",
	Short: "Map a line and column to a character offset",
	Long: `Map a 1-based line/column position to a 0-based character offset in a
text, counting characters the way an editor buffer does. Positions past
the end of a line or past the last line clamp to the nearest valid
offset.

Reads the given file, or stdin when no file is given.`,
	Example: `  kotlinrunnerx offset --line 12 --column 5 script.kts
  kotlinrunnerx offset --line 47 script.kts --json`,
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

		ref := diagnostics.Ref{Line: offsetLine, Column: offsetColumn}
		offset := diagnostics.CaretOffset(text, ref)

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]int{
				"line":   ref.Line,
				"column": ref.Column,
				"offset": offset,
			})
		}

		fmt.Println(offset)
		return nil
	},
}
