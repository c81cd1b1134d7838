// Package backend opens the storage backend named in the configuration.
package backend

import (
	"fmt"
	"time"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage"
	"github.com/xtxerr/hostwatch/internal/storage/aggregate"
	"github.com/xtxerr/hostwatch/internal/storage/config"
	"github.com/xtxerr/hostwatch/internal/storage/duckdb"
	"github.com/xtxerr/hostwatch/internal/storage/memory"
	"github.com/xtxerr/hostwatch/internal/storage/sqlite"
)

// Open validates cfg and opens the selected backend. now stamps alert
// records; nil means time.Now.
func Open(cfg *config.Config, now func() time.Time) (storage.Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.NewValidation("storage", err.Error()), "open storage")
	}
	if now == nil {
		now = time.Now
	}

	switch cfg.Backend {
	case config.BackendDuckDB:
		dc := duckdb.FromStorageConfig(cfg)
		dc.Now = now
		s, err := duckdb.New(dc)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.BackendSQLite:
		sc := sqlite.FromStorageConfig(cfg)
		sc.Now = now
		s, err := sqlite.New(sc)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.BackendMemory:
		opts := aggregate.DefaultOptions()
		opts.Percentiles = cfg.Percentile.Enabled
		if cfg.Percentile.Accuracy > 0 {
			opts.Accuracy = cfg.Percentile.Accuracy
		}
		return memory.New(memory.WithNow(now), memory.WithAggregateOptions(opts)), nil

	default:
		return nil, fmt.Errorf("open storage: backend %q: %w", cfg.Backend, errors.ErrUnsupported)
	}
}
