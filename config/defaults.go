// Package config provides configuration defaults and utilities
// for the hostwatch application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml.
package config

import "time"

// =============================================================================
// Collector Defaults
// =============================================================================

const (
	// DefaultCollectInterval is the collector tick period.
	// Network rates of raw points are derived against this interval.
	// Override via config: collector.interval
	DefaultCollectInterval = 2 * time.Second

	// DefaultTargetCacheTTL is how long a discovered target list is reused
	// before discovery is queried again.
	// Override via config: collector.target_cache_ttl
	DefaultTargetCacheTTL = 10 * time.Second

	// DefaultTargetCacheMaxStale bounds how long a cached target list may
	// be reused while discovery keeps failing. Past this age the tick is
	// skipped instead.
	// Override via config: collector.target_cache_max_stale
	DefaultTargetCacheMaxStale = 60 * time.Second

	// DefaultAlertCooldown is the minimum time between two firings of the
	// same (target, kind) pair.
	// Override via config: collector.alert_cooldown
	DefaultAlertCooldown = 5 * time.Minute

	// DefaultCollectWorkers limits concurrent sample calls per tick.
	// Zero means one goroutine per live target.
	// Override via config: collector.workers
	DefaultCollectWorkers = 0
)

// =============================================================================
// Aggregator Defaults
// =============================================================================

const (
	// DefaultAggregateSchedule is the cron spec of the aggregator tick.
	// Override via config: aggregator.schedule
	DefaultAggregateSchedule = "@every 60s"

	// DefaultAggregateMargin keeps the most recent minutes out of the
	// aggregation window so in-flight raw writes are never folded early.
	// Override via config: aggregator.margin
	DefaultAggregateMargin = 2 * time.Minute

	// DefaultAggregateWindow is how far back each tick re-aggregates.
	// Override via config: aggregator.window
	DefaultAggregateWindow = 60 * time.Minute

	// DefaultBucketWidth is the aggregated tier resolution.
	DefaultBucketWidth = time.Minute
)

// =============================================================================
// Retention Defaults
// =============================================================================

const (
	// DefaultRawRetention is how long raw rows are kept.
	// Override via config: storage.retention.raw
	DefaultRawRetention = time.Hour

	// DefaultAggregatedRetention is how long 1-minute buckets are kept.
	// Override via config: storage.retention.aggregated
	DefaultAggregatedRetention = 24 * time.Hour

	// DefaultAlertRetention is how long alert records are kept.
	// Override via config: storage.retention.alerts
	DefaultAlertRetention = 24 * time.Hour
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultRawQueryWindow is the tier boundary of history queries.
	// Ranges up to and including this duration are served from raw rows,
	// longer ranges from 1-minute buckets.
	DefaultRawQueryWindow = time.Hour

	// DefaultRecentAlertLimit is used when a caller passes a non-positive
	// limit to the alert listing.
	// Override via config: query.recent_alert_limit
	DefaultRecentAlertLimit = 50
)

// =============================================================================
// Threshold Defaults
// =============================================================================

const (
	// DefaultCPUThreshold is the initial CPU alert threshold in percent.
	DefaultCPUThreshold = 90.0

	// DefaultMemoryThreshold is the initial memory alert threshold in percent.
	DefaultMemoryThreshold = 90.0

	// DefaultDiskThreshold is the initial disk alert threshold in percent.
	DefaultDiskThreshold = 90.0
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultStorageBackend selects the Repository implementation.
	// SQLite in WAL mode lets the CLI read while serve writes. DuckDB
	// locks its file to one process; with it, use serve --console.
	// Range: duckdb, sqlite, memory
	// Override via config: storage.backend
	DefaultStorageBackend = "sqlite"

	// DefaultStoragePath is the database file of file-backed backends.
	// Override via config: storage.path
	DefaultStoragePath = "hostwatch.db"

	// DefaultMaxOpenConns caps the database/sql pool.
	// Override via config: storage.max_open_conns
	DefaultMaxOpenConns = 4

	// DefaultStoragePingTimeout bounds the connectivity check on open.
	DefaultStoragePingTimeout = 5 * time.Second
)

// =============================================================================
// Provider Defaults
// =============================================================================

const (
	// DefaultSNMPPort is the SNMP agent port.
	DefaultSNMPPort = 161

	// DefaultSNMPTimeoutMs is the timeout of a single SNMP request.
	// Override via config: providers.snmp.timeout_ms
	DefaultSNMPTimeoutMs = 1500

	// DefaultSNMPRetries is the retry count of a single SNMP request.
	// Override via config: providers.snmp.retries
	DefaultSNMPRetries = 1

	// DefaultLibvirtURI is the hypervisor connection URI.
	// Override via config: providers.libvirt.uri
	DefaultLibvirtURI = "qemu:///system"

	// DefaultPingTimeout bounds one ICMP liveness ping.
	// Override via config: discovery.ping_timeout
	DefaultPingTimeout = time.Second
)

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the minimum log level.
	// Override via config: log.level
	DefaultLogLevel = "info"

	// DefaultLogMaxSizeMB is the size at which a log file is rotated.
	// Override via config: log.max_size_mb
	DefaultLogMaxSizeMB = 50

	// DefaultLogMaxBackups is the number of rotated files kept.
	// Override via config: log.max_backups
	DefaultLogMaxBackups = 5

	// DefaultLogMaxAgeDays is the age after which rotated files are removed.
	// Override via config: log.max_age_days
	DefaultLogMaxAgeDays = 14
)
