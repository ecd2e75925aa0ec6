// Package cli provides color helpers for human output.
package cli

import (
	"os"

	"golang.org/x/term"
)

const (
	colorReset     = "\x1b[0m"
	colorGreen     = "\x1b[32m"
	colorYellow    = "\x1b[33m"
	colorRed       = "\x1b[31m"
	colorBlue      = "\x1b[34m"
	colorCyan      = "\x1b[36m"
	colorMagenta   = "\x1b[35m"
	colorUnderline = "\x1b[4m"
)

func colorEnabled() bool {
	if IsJSONOutput() || IsJSONLOutput() {
		return false
	}
	if noColor {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func colorize(text, color string) string {
	if !colorEnabled() || color == "" {
		return text
	}
	return color + text + colorReset
}
