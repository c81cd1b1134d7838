// Package loader handles configuration file loading, validation, and
// conversion into the component configurations.
package loader

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/hostwatch/config"
	"github.com/xtxerr/hostwatch/internal/aggregator"
	"github.com/xtxerr/hostwatch/internal/collector"
	"github.com/xtxerr/hostwatch/internal/discovery"
	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/provider/local"
	storageconfig "github.com/xtxerr/hostwatch/internal/storage/config"
	"github.com/xtxerr/hostwatch/internal/storage/query"
	"github.com/xtxerr/hostwatch/internal/thresholds"
	"github.com/xtxerr/hostwatch/internal/validation"
)

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns the configuration used when no file is given:
// local host only, DuckDB storage, default thresholds.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:      config.DefaultLogLevel,
			MaxSizeMB:  config.DefaultLogMaxSizeMB,
			MaxBackups: config.DefaultLogMaxBackups,
			MaxAgeDays: config.DefaultLogMaxAgeDays,
		},
		Storage: *storageconfig.DefaultConfig(),
		Collector: CollectorConfig{
			Interval:            config.DefaultCollectInterval,
			TargetCacheTTL:      config.DefaultTargetCacheTTL,
			TargetCacheMaxStale: config.DefaultTargetCacheMaxStale,
			AlertCooldown:       config.DefaultAlertCooldown,
			Workers:             config.DefaultCollectWorkers,
		},
		Aggregator: AggregatorConfig{
			Schedule: config.DefaultAggregateSchedule,
			Margin:   config.DefaultAggregateMargin,
			Window:   config.DefaultAggregateWindow,
		},
		Query: QueryConfig{
			RawWindow:        config.DefaultRawQueryWindow,
			RecentAlertLimit: config.DefaultRecentAlertLimit,
		},
		Discovery: discovery.DefaultConfig(),
		Providers: ProvidersConfig{
			Local: LocalProvider{Enabled: true, Config: local.DefaultConfig()},
		},
	}
}

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file on top of DefaultConfig.
// Environment variables in the file are expanded first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct tags first and cross-field rules after. Every
// problem is reported, not only the first.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs.AddField(fieldPath(fe.Namespace()), describe(fe))
			}
		} else {
			errs.Add(errors.Wrap(errors.ErrInvalidConfig, err.Error()))
		}
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs.AddField("log.level", err.Error())
	}

	if err := cfg.Storage.Validate(); err != nil {
		errs.AddField("storage", err.Error())
	}

	c := cfg.Collector
	if c.TargetCacheMaxStale > 0 && c.TargetCacheMaxStale < c.TargetCacheTTL {
		errs.AddField("collector.target_cache_max_stale", "must not be shorter than target_cache_ttl")
	}

	a := cfg.Aggregator
	if a.Schedule != "" {
		if _, err := cron.ParseStandard(a.Schedule); err != nil {
			errs.AddField("aggregator.schedule", err.Error())
		}
	}
	if a.Margin >= a.Window && a.Window > 0 {
		errs.AddField("aggregator.margin", "must be shorter than window")
	}
	if a.Window > cfg.Storage.Retention.Raw && cfg.Storage.Retention.Raw > 0 {
		errs.AddField("aggregator.window", "reaches past raw retention; those minutes can no longer be rebuilt")
	}

	p := cfg.Providers
	if p.Local.Enabled && p.Local.Name != "" {
		if err := validation.ValidateTargetID(p.Local.Name); err != nil {
			errs.AddField("providers.local.name", err.Error())
		}
	}
	if !p.Local.Enabled && !p.SNMP.Enabled && !p.Libvirt.Enabled {
		errs.AddField("providers", "at least one provider must be enabled")
	}
	if p.SNMP.Enabled {
		if len(p.SNMP.Hosts) == 0 {
			errs.AddField("providers.snmp.hosts", "at least one host is required when enabled")
		}
		for i := range p.SNMP.Hosts {
			if err := p.SNMP.Hosts[i].Validate(); err != nil {
				errs.AddField(fmt.Sprintf("providers.snmp.hosts[%d]", i), err.Error())
			}
		}
	}

	if len(cfg.Thresholds.Rules) > 0 {
		errs.Add(thresholds.Validate(cfg.Thresholds.Rules))
	}
	if cfg.Thresholds.Watch && cfg.Thresholds.File == "" {
		errs.AddField("thresholds.watch", "requires thresholds.file")
	}

	return errs.Err()
}

// fieldPath strips the root type from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// =============================================================================
// Conversion: Config → component configs
// =============================================================================

// ToLoggingOptions converts the log section.
func (c *Config) ToLoggingOptions() logging.Options {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.Options{
		Level:      level,
		JSON:       c.Log.JSON,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// ToCollectorConfig converts the collector section.
func (c *Config) ToCollectorConfig() *collector.Config {
	return &collector.Config{
		Interval:      c.Collector.Interval,
		CacheTTL:      c.Collector.TargetCacheTTL,
		CacheMaxStale: c.Collector.TargetCacheMaxStale,
		Cooldown:      c.Collector.AlertCooldown,
		Workers:       c.Collector.Workers,
	}
}

// ToAggregatorConfig converts the aggregator section.
func (c *Config) ToAggregatorConfig() *aggregator.Config {
	return &aggregator.Config{
		Schedule: c.Aggregator.Schedule,
		Margin:   c.Aggregator.Margin,
		Window:   c.Aggregator.Window,
	}
}

// ToQueryOptions converts the query section. Raw network rates divide by
// the collector interval.
func (c *Config) ToQueryOptions() query.Options {
	return query.Options{
		RawWindow:      c.Query.RawWindow,
		SampleInterval: c.Collector.Interval,
	}
}
