package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/Amchestnut/KotlinRunnerX/internal/db"
	"github.com/Amchestnut/KotlinRunnerX/internal/models"
)

// openDatabase opens the history database using the current configuration.
func openDatabase() (*db.DB, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	cfg := db.Config{
		Path:          appConfig.DatabasePath(),
		MaxOpenConns:  appConfig.Database.MaxConnections,
		BusyTimeoutMs: appConfig.Database.BusyTimeoutMs,
	}

	database, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}

	if err := autoMigrateDatabase(database); err != nil {
		_ = database.Close()
		return nil, err
	}

	return database, nil
}

func autoMigrateDatabase(database *db.DB) error {
	if database == nil {
		return fmt.Errorf("database is required")
	}

	ctx := context.Background()
	beforeVersion := 0

	version, err := database.SchemaVersion(ctx)
	if err != nil {
		if !isMissingSchemaTable(err) {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
	} else {
		beforeVersion = version
	}

	applied, err := database.MigrateUp(ctx)
	if err != nil {
		return fmt.Errorf("auto-migrate failed: %w", err)
	}

	if applied > 0 {
		afterVersion := beforeVersion
		if version, err := database.SchemaVersion(ctx); err == nil {
			afterVersion = version
		}
		logger.Info().
			Int("from_version", beforeVersion).
			Int("to_version", afterVersion).
			Msg("database migrated")
	}

	return nil
}

func isMissingSchemaTable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") && strings.Contains(msg, "schema_version")
}

// runHistory adapts RunRepository to the controller's history interface,
// which carries no context because it is called from run teardown paths.
type runHistory struct {
	repo *db.RunRepository
}

func (h runHistory) Create(run *models.Run) error {
	return h.repo.Create(context.Background(), run)
}

func (h runHistory) Finish(run *models.Run) error {
	return h.repo.Finish(context.Background(), run)
}
