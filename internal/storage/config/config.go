// Package config holds the storage backend configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/hostwatch/config"
)

// Backend names.
const (
	BackendDuckDB = "duckdb"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config represents the complete storage configuration.
type Config struct {
	// Backend selects the Repository implementation: duckdb, sqlite, memory.
	Backend string `yaml:"backend"`

	// Path is the database file. Empty opens an in-memory database.
	Path string `yaml:"path"`

	// Pool configures the database/sql connection pool.
	Pool PoolConfig `yaml:"pool"`

	// Percentile configures DDSketch percentile calculation of the
	// memory backend.
	Percentile PercentileConfig `yaml:"percentile"`

	// Retention defines how long to keep data in each tier.
	Retention RetentionConfig `yaml:"retention"`

	// MemoryLimit is the DuckDB memory limit, e.g. "512MB".
	MemoryLimit string `yaml:"memory_limit"`
}

// PoolConfig configures the connection pool of SQL backends.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	PingTimeout     time.Duration `yaml:"ping_timeout"`
}

// PercentileConfig configures DDSketch percentile calculation.
type PercentileConfig struct {
	// Enabled enables percentile calculation.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// RetentionConfig defines how long to keep data in each tier.
type RetentionConfig struct {
	// Raw is the retention for raw rows.
	Raw time.Duration `yaml:"raw"`

	// Aggregated is the retention for 1-minute buckets.
	Aggregated time.Duration `yaml:"aggregated"`

	// Alerts is the retention for alert records.
	Alerts time.Duration `yaml:"alerts"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: defaults.DefaultStorageBackend,
		Path:    defaults.DefaultStoragePath,
		Pool: PoolConfig{
			MaxOpenConns:    defaults.DefaultMaxOpenConns,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			PingTimeout:     defaults.DefaultStoragePingTimeout,
		},
		Percentile: PercentileConfig{
			Enabled:  true,
			Accuracy: 0.01,
		},
		Retention: RetentionConfig{
			Raw:        defaults.DefaultRawRetention,
			Aggregated: defaults.DefaultAggregatedRetention,
			Alerts:     defaults.DefaultAlertRetention,
		},
	}
}

// Memory returns a configuration for the in-memory backend.
func Memory() *Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMemory
	cfg.Path = ""
	return cfg
}
