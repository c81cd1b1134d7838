package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendDuckDB, BackendSQLite, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("backend %q must be one of duckdb, sqlite, memory", c.Backend))
	}

	if err := c.Pool.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pool: %w", err))
	}

	if err := c.Percentile.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("percentile: %w", err))
	}

	if err := c.Retention.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retention: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the pool configuration.
func (c *PoolConfig) Validate() error {
	var errs []error

	if c.MaxOpenConns < 1 {
		errs = append(errs, errors.New("max_open_conns must be positive"))
	}
	if c.MaxIdleConns < 0 {
		errs = append(errs, errors.New("max_idle_conns must not be negative"))
	}
	if c.PingTimeout <= 0 {
		errs = append(errs, errors.New("ping_timeout must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks the percentile configuration.
func (c *PercentileConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Accuracy <= 0 || c.Accuracy >= 1 {
		return fmt.Errorf("accuracy %v must be within (0, 1)", c.Accuracy)
	}
	return nil
}

// Validate checks the retention configuration.
func (c *RetentionConfig) Validate() error {
	var errs []error

	if c.Raw <= 0 {
		errs = append(errs, errors.New("raw retention must be positive"))
	}
	if c.Aggregated <= 0 {
		errs = append(errs, errors.New("aggregated retention must be positive"))
	}
	if c.Alerts <= 0 {
		errs = append(errs, errors.New("alerts retention must be positive"))
	}
	if c.Raw > 0 && c.Aggregated > 0 && c.Aggregated < c.Raw {
		errs = append(errs, fmt.Errorf("aggregated retention %s shorter than raw retention %s", c.Aggregated, c.Raw))
	}

	return errors.Join(errs...)
}
