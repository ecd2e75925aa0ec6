// Package cli provides CLI helpers for resolving run references.
package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Amchestnut/KotlinRunnerX/internal/db"
	"github.com/Amchestnut/KotlinRunnerX/internal/models"
)

const maxSuggestions = 5

func shortID(id string) string {
	const limit = 8
	if len(id) <= limit {
		return id
	}
	return id[:limit]
}

// findRun resolves a full run ID or a unique ID prefix.
func findRun(ctx context.Context, repo *db.RunRepository, idOrPrefix string) (*models.Run, error) {
	if strings.TrimSpace(idOrPrefix) == "" {
		return nil, errors.New("run ID required")
	}

	run, err := repo.Get(ctx, idOrPrefix)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, db.ErrRunNotFound) {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	runs, err := repo.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	matches := matchRuns(runs, idOrPrefix)
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("run '%s' is ambiguous; matches: %s (use a longer prefix or full ID)", idOrPrefix, formatRunMatches(matches))
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: '%s' (no runs recorded yet)", db.ErrRunNotFound, idOrPrefix)
	}

	example := fmt.Sprintf("Example input: '%s'", shortID(runs[0].ID))
	return nil, fmt.Errorf("%w: '%s'. %s", db.ErrRunNotFound, idOrPrefix, example)
}

func matchRuns(runs []*models.Run, query string) []*models.Run {
	normalized := strings.TrimSpace(query)
	if normalized == "" {
		return nil
	}

	matches := make([]*models.Run, 0)
	for _, run := range runs {
		if run == nil {
			continue
		}
		if strings.HasPrefix(run.ID, normalized) {
			matches = append(matches, run)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ID < matches[j].ID
	})

	return matches
}

func formatRunMatches(runs []*models.Run) string {
	return formatMatchList(len(runs), func(i int) string {
		run := runs[i]
		return fmt.Sprintf("%s (%s)", shortID(run.ID), run.ScriptPath)
	})
}

func formatMatchList(count int, format func(int) string) string {
	if count == 0 {
		return "none"
	}

	limit := count
	if limit > maxSuggestions {
		limit = maxSuggestions
	}

	parts := make([]string, 0, limit+1)
	for i := 0; i < limit; i++ {
		parts = append(parts, format(i))
	}
	if count > maxSuggestions {
		parts = append(parts, fmt.Sprintf("... and %d more", count-maxSuggestions))
	}

	return strings.Join(parts, ", ")
}
