package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenFileDatabase(t *testing.T) {
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "nested", "kotlinrunnerx.db")

	database, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	// Open creates the parent directory when it is missing.
	if _, err := os.Stat(filepath.Dir(cfg.Path)); err != nil {
		t.Fatalf("expected database directory to exist: %v", err)
	}

	if err := database.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}

	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	version, err := database.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version == 0 {
		t.Error("expected schema version above zero after migration")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("expected error for empty database path")
	}
}
