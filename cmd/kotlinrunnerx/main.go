// Package main is the entry point for the kotlinrunnerx CLI. It runs
// Kotlin scripts through kotlinc -script with live output streaming,
// diagnostic location extraction, and a local run history.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Amchestnut/KotlinRunnerX/internal/cli"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			if !exitErr.Printed {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.Err)
			}
			os.Exit(exitErr.Code)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
