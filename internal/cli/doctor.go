// Package cli provides the doctor command for environment diagnostics.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Amchestnut/KotlinRunnerX/internal/db"
	"github.com/Amchestnut/KotlinRunnerX/internal/launcher"
	"github.com/Amchestnut/KotlinRunnerX/internal/profiles"
)

const compilerProbeTimeout = 10 * time.Second

// DoctorCheckStatus indicates the result of a diagnostic check.
type DoctorCheckStatus string

const (
	DoctorPass DoctorCheckStatus = "pass"
	DoctorWarn DoctorCheckStatus = "warn"
	DoctorFail DoctorCheckStatus = "fail"
	DoctorSkip DoctorCheckStatus = "skip"
)

// DoctorCheck represents a single diagnostic result.
type DoctorCheck struct {
	Category string            `json:"category"`
	Name     string            `json:"name"`
	Status   DoctorCheckStatus `json:"status"`
	Details  string            `json:"details,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// DoctorReport aggregates diagnostic results.
type DoctorReport struct {
	Checks    []DoctorCheck `json:"checks"`
	Summary   DoctorSummary `json:"summary"`
	CheckedAt time.Time     `json:"checked_at"`
}

// DoctorSummary provides a quick overview.
type DoctorSummary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Warnings int `json:"warnings"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run environment diagnostics",
	Long: `Run diagnostics on your KotlinRunnerX environment.

Checks include:
- Dependencies: the Kotlin compiler, its runtime jars, java
- Configuration: config file, validity, data directories
- Database: connectivity and migrations
- Profiles: launcher profile parsing`,
	Example: `  kotlinrunnerx doctor
  kotlinrunnerx doctor --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		checks := make([]DoctorCheck, 0)

		checks = append(checks, checkCompiler()...)
		checks = append(checks, checkJava())
		checks = append(checks, checkConfiguration()...)
		checks = append(checks, checkDatabaseHealth()...)
		checks = append(checks, checkProfiles())

		summary := buildSummary(checks)

		report := &DoctorReport{
			Checks:    checks,
			Summary:   summary,
			CheckedAt: time.Now().UTC(),
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, report)
		}

		printDoctorReport(report)

		// Exit with error if any checks failed
		if summary.Failed > 0 {
			os.Exit(1)
		}

		return nil
	},
}

func checkCompiler() []DoctorCheck {
	checks := make([]DoctorCheck, 0)
	opts, err := launcherOptions("")
	if err != nil {
		return append(checks, DoctorCheck{
			Category: "dependencies",
			Name:     "kotlinc",
			Status:   DoctorFail,
			Error:    err.Error(),
		})
	}

	path, err := launcher.Resolve(opts)
	if err != nil {
		checks = append(checks, DoctorCheck{
			Category: "dependencies",
			Name:     "kotlinc",
			Status:   DoctorFail,
			Error:    "not found in PATH",
		})
		return checks
	}
	checks = append(checks, DoctorCheck{
		Category: "dependencies",
		Name:     "kotlinc",
		Status:   DoctorPass,
		Details:  path,
	})

	checks = append(checks, probeCompilerVersion(path))

	jars := launcher.RuntimeJars(opts)
	if len(jars) == 0 {
		checks = append(checks, DoctorCheck{
			Category: "dependencies",
			Name:     "runtime_jars",
			Status:   DoctorWarn,
			Details:  "none found (runs will go without -cp)",
		})
	} else {
		checks = append(checks, DoctorCheck{
			Category: "dependencies",
			Name:     "runtime_jars",
			Status:   DoctorPass,
			Details:  fmt.Sprintf("%d jars", len(jars)),
		})
	}

	return checks
}

// probeCompilerVersion runs `kotlinc -version` under a timeout. The
// compiler prints its banner to stderr, so both streams are captured.
func probeCompilerVersion(path string) DoctorCheck {
	check := DoctorCheck{
		Category: "dependencies",
		Name:     "kotlinc_version",
	}

	ctx, cancel := context.WithTimeout(context.Background(), compilerProbeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").CombinedOutput()
	version := firstLine(strings.TrimSpace(string(output)))
	switch {
	case ctx.Err() != nil:
		check.Status = DoctorWarn
		check.Error = fmt.Sprintf("version probe timed out after %s", compilerProbeTimeout)
	case err != nil:
		check.Status = DoctorWarn
		check.Error = fmt.Sprintf("version probe failed: %v", err)
	case version == "":
		check.Status = DoctorWarn
		check.Details = "no version output"
	default:
		check.Status = DoctorPass
		check.Details = version
	}
	return check
}

func checkJava() DoctorCheck {
	return checkBinary("dependencies", "java", "java -version 2>&1", func(output string) (DoctorCheckStatus, string) {
		output = firstLine(strings.TrimSpace(output))
		if output == "" {
			return DoctorWarn, "no version output"
		}
		return DoctorPass, output
	})
}

func checkBinary(category, name, cmd string, parser func(string) (DoctorCheckStatus, string)) DoctorCheck {
	check := DoctorCheck{
		Category: category,
		Name:     name,
	}

	output, err := exec.Command("sh", "-c", cmd).Output()
	if err != nil {
		// Try to check if binary exists at all
		_, lookErr := exec.LookPath(name)
		if lookErr != nil {
			check.Status = DoctorFail
			check.Error = "not found in PATH"
			return check
		}
		check.Status = DoctorWarn
		check.Error = fmt.Sprintf("command failed: %v", err)
		return check
	}

	check.Status, check.Details = parser(string(output))
	return check
}

func checkConfiguration() []DoctorCheck {
	checks := make([]DoctorCheck, 0)
	cfg := GetConfig()

	if cfgUsed := configLoader.ConfigFileUsed(); cfgUsed != "" {
		checks = append(checks, DoctorCheck{
			Category: "config",
			Name:     "config_file",
			Status:   DoctorPass,
			Details:  cfgUsed,
		})
	} else {
		checks = append(checks, DoctorCheck{
			Category: "config",
			Name:     "config_file",
			Status:   DoctorWarn,
			Details:  "not found (using defaults)",
		})
	}

	if err := cfg.Validate(); err != nil {
		checks = append(checks, DoctorCheck{
			Category: "config",
			Name:     "validity",
			Status:   DoctorFail,
			Error:    err.Error(),
		})
	} else {
		checks = append(checks, DoctorCheck{
			Category: "config",
			Name:     "validity",
			Status:   DoctorPass,
		})
	}

	checks = append(checks, checkDirectory("data_directory", cfg.Global.DataDir))
	checks = append(checks, checkDirectory("transcript_directory", cfg.TranscriptDir()))

	return checks
}

func checkDirectory(name, dir string) DoctorCheck {
	check := DoctorCheck{
		Category: "config",
		Name:     name,
	}

	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		check.Status = DoctorPass
		check.Details = dir
		return check
	} else if err == nil {
		check.Status = DoctorFail
		check.Error = fmt.Sprintf("%s is not a directory", dir)
		return check
	} else if !os.IsNotExist(err) {
		check.Status = DoctorFail
		check.Error = err.Error()
		return check
	}

	// Try to create it
	if err := os.MkdirAll(dir, 0755); err != nil {
		check.Status = DoctorFail
		check.Error = fmt.Sprintf("cannot create: %v", err)
		return check
	}
	check.Status = DoctorPass
	check.Details = fmt.Sprintf("%s (created)", dir)
	return check
}

func checkDatabaseHealth() []DoctorCheck {
	checks := make([]DoctorCheck, 0)
	cfg := GetConfig()
	dbPath := cfg.DatabasePath()

	database, err := db.Open(db.Config{
		Path:          dbPath,
		MaxOpenConns:  cfg.Database.MaxConnections,
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		checks = append(checks, DoctorCheck{
			Category: "database",
			Name:     "connection",
			Status:   DoctorFail,
			Error:    err.Error(),
		})
		return checks
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.HealthCheck(ctx); err != nil {
		checks = append(checks, DoctorCheck{
			Category: "database",
			Name:     "connection",
			Status:   DoctorFail,
			Error:    err.Error(),
		})
		return checks
	}
	checks = append(checks, DoctorCheck{
		Category: "database",
		Name:     "connection",
		Status:   DoctorPass,
		Details:  dbPath,
	})

	// Check migrations
	migrations, err := database.MigrationStatus(ctx)
	if err != nil {
		checks = append(checks, DoctorCheck{
			Category: "database",
			Name:     "migrations",
			Status:   DoctorWarn,
			Error:    err.Error(),
		})
		return checks
	}

	applied := 0
	pending := 0
	for _, m := range migrations {
		if m.Applied {
			applied++
		} else {
			pending++
		}
	}
	if pending > 0 {
		checks = append(checks, DoctorCheck{
			Category: "database",
			Name:     "migrations",
			Status:   DoctorWarn,
			Details:  fmt.Sprintf("%d pending (applied automatically on the next run)", pending),
		})
	} else {
		checks = append(checks, DoctorCheck{
			Category: "database",
			Name:     "migrations",
			Status:   DoctorPass,
			Details:  fmt.Sprintf("%d applied", applied),
		})
	}

	return checks
}

func checkProfiles() DoctorCheck {
	dir := GetConfig().ProfileDir()
	check := DoctorCheck{
		Category: "profiles",
		Name:     "profile_directory",
	}

	available, err := profiles.LoadProfilesFromDir(dir)
	if err != nil {
		check.Status = DoctorFail
		check.Error = err.Error()
		return check
	}

	check.Status = DoctorPass
	if len(available) == 0 {
		check.Details = fmt.Sprintf("%s (no profiles)", dir)
	} else {
		check.Details = fmt.Sprintf("%d profiles in %s", len(available), dir)
	}
	return check
}

func buildSummary(checks []DoctorCheck) DoctorSummary {
	summary := DoctorSummary{Total: len(checks)}
	for _, c := range checks {
		switch c.Status {
		case DoctorPass:
			summary.Passed++
		case DoctorWarn:
			summary.Warnings++
		case DoctorFail:
			summary.Failed++
		case DoctorSkip:
			summary.Skipped++
		}
	}
	return summary
}

func printDoctorReport(report *DoctorReport) {
	fmt.Println("KotlinRunnerX Doctor")
	fmt.Println("====================")
	fmt.Println()

	// Group by category
	categories := []string{"dependencies", "config", "database", "profiles"}
	categoryChecks := make(map[string][]DoctorCheck)
	for _, c := range report.Checks {
		categoryChecks[c.Category] = append(categoryChecks[c.Category], c)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	for _, cat := range categories {
		checks, ok := categoryChecks[cat]
		if !ok || len(checks) == 0 {
			continue
		}

		fmt.Fprintf(w, "\n%s:\n", strings.ToUpper(cat))
		for _, c := range checks {
			icon := "?"
			switch c.Status {
			case DoctorPass:
				icon = "✓"
			case DoctorWarn:
				icon = "!"
			case DoctorFail:
				icon = "✗"
			case DoctorSkip:
				icon = "-"
			}

			detail := c.Details
			if c.Error != "" {
				detail = c.Error
			}

			fmt.Fprintf(w, "  [%s] %s\t%s\n", icon, c.Name, detail)
		}
	}
	w.Flush()

	fmt.Println()
	fmt.Printf("Summary: %d passed, %d warnings, %d failed\n",
		report.Summary.Passed, report.Summary.Warnings, report.Summary.Failed)
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}
