package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/config"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		path    string
	}{
		{"duckdb", config.BackendDuckDB, "hostwatch.duckdb"},
		{"sqlite", config.BackendSQLite, "hostwatch.sqlite"},
		{"memory", config.BackendMemory, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Backend = tt.backend
			cfg.Path = ""
			if tt.path != "" {
				cfg.Path = filepath.Join(t.TempDir(), tt.path)
			}

			store, err := Open(cfg, nil)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer store.Close()

			if err := store.Health(context.Background()); err != nil {
				t.Errorf("Health: %v", err)
			}
		})
	}
}

func TestOpen_InvalidBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend = "postgres"

	_, err := Open(cfg, nil)
	if !errors.IsValidation(err) {
		t.Errorf("Open = %v, want configuration error", err)
	}
}
