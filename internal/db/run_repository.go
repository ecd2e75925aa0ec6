package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Amchestnut/KotlinRunnerX/internal/models"
)

// Run repository errors.
var (
	ErrRunNotFound = errors.New("run not found")
)

// RunRepository handles run history persistence.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create adds a run record. All fields of the record are written, so a
// record that is already terminal when it is first persisted lands in
// its final state in one insert.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, script_path, profile, command, status, cause, exit_code,
			stdout_lines, stderr_lines, output_tail, transcript_path,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.ScriptPath,
		nullableString(run.Profile),
		nullableString(run.Command),
		string(run.Status),
		nullableString(string(run.Cause)),
		run.ExitCode,
		run.StdoutLines,
		run.StderrLines,
		nullableString(run.OutputTail),
		nullableString(run.TranscriptPath),
		run.StartedAt.Format(time.RFC3339),
		stringTimePtr(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, script_path, profile, command, status, cause, exit_code,
			stdout_lines, stderr_lines, output_tail, transcript_path,
			started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	return r.scanRun(row)
}

// List retrieves the most recent runs, newest first. A limit of zero or
// less returns everything.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*models.Run, error) {
	query := `
		SELECT id, script_path, profile, command, status, cause, exit_code,
			stdout_lines, stderr_lines, output_tail, transcript_path,
			started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.Run, 0)
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// Finish updates a run with its terminal details.
func (r *RunRepository) Finish(ctx context.Context, run *models.Run) error {
	if run.FinishedAt == nil {
		finishedAt := time.Now().UTC()
		run.FinishedAt = &finishedAt
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, cause = ?, exit_code = ?, stdout_lines = ?,
			stderr_lines = ?, output_tail = ?, finished_at = ?
		WHERE id = ?
	`,
		string(run.Status),
		nullableString(string(run.Cause)),
		run.ExitCode,
		run.StdoutLines,
		run.StderrLines,
		nullableString(run.OutputTail),
		stringTimePtr(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Count returns the number of stored run records.
func (r *RunRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// Prune deletes all but the newest keep records. It returns the number
// of records removed and the transcript paths of the removed runs, so
// callers can clean up the files too. A keep of zero or less removes
// nothing.
func (r *RunRepository) Prune(ctx context.Context, keep int) (int, []string, error) {
	if keep <= 0 {
		return 0, nil, nil
	}

	var transcripts []string
	pruned := 0
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT transcript_path FROM runs
			WHERE id NOT IN (
				SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?
			) AND transcript_path IS NOT NULL
		`, keep)
		if err != nil {
			return fmt.Errorf("failed to query prunable runs: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var path string
			if err := rows.Scan(&path); err != nil {
				return fmt.Errorf("failed to scan transcript path: %w", err)
			}
			if path != "" {
				transcripts = append(transcripts, path)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			DELETE FROM runs WHERE id NOT IN (
				SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?
			)
		`, keep)
		if err != nil {
			return fmt.Errorf("failed to prune runs: %w", err)
		}
		deleted, _ := result.RowsAffected()
		pruned = int(deleted)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return pruned, transcripts, nil
}

func (r *RunRepository) scanRun(scanner interface{ Scan(...any) error }) (*models.Run, error) {
	var (
		id             string
		scriptPath     string
		profile        sql.NullString
		command        sql.NullString
		status         string
		cause          sql.NullString
		exitCode       sql.NullInt64
		stdoutLines    int
		stderrLines    int
		outputTail     sql.NullString
		transcriptPath sql.NullString
		startedAt      string
		finishedAt     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&scriptPath,
		&profile,
		&command,
		&status,
		&cause,
		&exitCode,
		&stdoutLines,
		&stderrLines,
		&outputTail,
		&transcriptPath,
		&startedAt,
		&finishedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := &models.Run{
		ID:             id,
		ScriptPath:     scriptPath,
		Profile:        profile.String,
		Command:        command.String,
		Status:         models.RunStatus(status),
		Cause:          models.RunCause(cause.String),
		StdoutLines:    stdoutLines,
		StderrLines:    stderrLines,
		OutputTail:     outputTail.String,
		TranscriptPath: transcriptPath.String,
	}

	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		run.StartedAt = t
	}
	if finishedAt.Valid && finishedAt.String != "" {
		if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
			run.FinishedAt = &t
		}
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}

	return run, nil
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}
