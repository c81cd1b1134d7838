// Package loader - Configuration Types
//
// Defines the YAML configuration structure of hostwatchd.
//
//	log:         level, format, rotated file output
//	storage:     backend (duckdb | sqlite | memory), pool, retention
//	collector:   tick, target cache, alert cooldown, worker bound
//	aggregator:  cron schedule, margin, window
//	query:       raw/1m tier boundary, default alert limit
//	discovery:   ICMP liveness of SNMP hosts
//	providers:   local, snmp, libvirt sources
//	thresholds:  rule file, hot reload, initial rules
package loader

import (
	"time"

	"github.com/xtxerr/hostwatch/internal/discovery"
	"github.com/xtxerr/hostwatch/internal/provider/libvirt"
	"github.com/xtxerr/hostwatch/internal/provider/local"
	"github.com/xtxerr/hostwatch/internal/provider/snmp"
	storageconfig "github.com/xtxerr/hostwatch/internal/storage/config"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for hostwatchd.
type Config struct {
	Log        LogConfig            `yaml:"log"`
	Storage    storageconfig.Config `yaml:"storage"`
	Collector  CollectorConfig      `yaml:"collector"`
	Aggregator AggregatorConfig     `yaml:"aggregator"`
	Query      QueryConfig          `yaml:"query"`
	Discovery  discovery.Config     `yaml:"discovery"`
	Providers  ProvidersConfig      `yaml:"providers"`
	Thresholds ThresholdsConfig     `yaml:"thresholds"`
}

// =============================================================================
// Runtime Settings
// =============================================================================

// LogConfig configures the global logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`

	// JSON switches from text to JSON lines.
	JSON bool `yaml:"json"`

	// File enables rotated file output. Empty logs to stdout.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// CollectorConfig configures the sampling loop.
type CollectorConfig struct {
	Interval            time.Duration `yaml:"interval" validate:"gt=0"`
	TargetCacheTTL      time.Duration `yaml:"target_cache_ttl" validate:"gte=0"`
	TargetCacheMaxStale time.Duration `yaml:"target_cache_max_stale" validate:"gte=0"`
	AlertCooldown       time.Duration `yaml:"alert_cooldown" validate:"gte=0"`

	// Workers caps concurrent sample calls. 0 means one per target.
	Workers int `yaml:"workers" validate:"gte=0"`
}

// AggregatorConfig configures the aggregation and retention loop.
type AggregatorConfig struct {
	// Schedule is a robfig/cron spec, e.g. "@every 60s" or "* * * * *".
	Schedule string        `yaml:"schedule" validate:"required"`
	Margin   time.Duration `yaml:"margin" validate:"gte=0"`
	Window   time.Duration `yaml:"window" validate:"gt=0"`
}

// QueryConfig configures history and alert queries.
type QueryConfig struct {
	// RawWindow is the largest range served from raw rows.
	RawWindow time.Duration `yaml:"raw_window" validate:"gt=0"`

	// RecentAlertLimit applies when a caller passes no limit.
	RecentAlertLimit int `yaml:"recent_alert_limit" validate:"gt=0"`
}

// =============================================================================
// Sources
// =============================================================================

// ProvidersConfig selects the target sources. Targets are merged in this
// order; the first source reporting an ID owns it.
type ProvidersConfig struct {
	Local   LocalProvider   `yaml:"local"`
	SNMP    SNMPProvider    `yaml:"snmp"`
	Libvirt LibvirtProvider `yaml:"libvirt"`
}

// LocalProvider enables sampling of the host hostwatchd runs on.
type LocalProvider struct {
	Enabled      bool `yaml:"enabled"`
	local.Config `yaml:",inline"`
}

// SNMPProvider enables sampling of remote SNMP agents.
type SNMPProvider struct {
	Enabled     bool `yaml:"enabled"`
	snmp.Config `yaml:",inline"`
}

// LibvirtProvider enables discovery and sampling of hypervisor domains.
type LibvirtProvider struct {
	Enabled        bool `yaml:"enabled"`
	libvirt.Config `yaml:",inline"`
}

// =============================================================================
// Thresholds
// =============================================================================

// ThresholdsConfig configures the alert rules.
type ThresholdsConfig struct {
	// File holds the rules. It is created from Rules (or the defaults)
	// when missing, and every accepted change is written back to it.
	File string `yaml:"file"`

	// Watch reloads File when it changes on disk.
	Watch bool `yaml:"watch"`

	// Rules are the initial rules when File is empty or missing.
	Rules []types.AlertThreshold `yaml:"rules" validate:"dive"`
}
