// Package collector implements the recurring sampling task.
//
// Each tick the collector:
//   - resolves the target list through a short-lived cache
//   - samples every live target concurrently, isolating failures per target
//   - persists one raw row per successful sample
//   - evaluates the alert rules with a per (target, kind) cooldown
//
// The target cache and the cooldown map belong to the tick; they are
// never touched from the fan-out goroutines.
package collector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/hostwatch/config"
	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/provider"
	"github.com/xtxerr/hostwatch/internal/storage"
	"github.com/xtxerr/hostwatch/internal/thresholds"
)

var log = logging.Component("collector")

// =============================================================================
// Configuration
// =============================================================================

// Config holds collector configuration.
type Config struct {
	// Interval is the tick period.
	Interval time.Duration

	// CacheTTL is how long a discovered target list is reused without
	// asking discovery again.
	CacheTTL time.Duration

	// CacheMaxStale is how long a cached list may stand in for a failing
	// discovery. Past it the tick is skipped.
	CacheMaxStale time.Duration

	// Cooldown is the minimum time between two firings of one
	// (target, kind) pair.
	Cooldown time.Duration

	// Workers caps concurrent Sample calls. 0 means one per target.
	Workers int
}

// DefaultConfig returns default collector configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:      config.DefaultCollectInterval,
		CacheTTL:      config.DefaultTargetCacheTTL,
		CacheMaxStale: config.DefaultTargetCacheMaxStale,
		Cooldown:      config.DefaultAlertCooldown,
		Workers:       config.DefaultCollectWorkers,
	}
}

// ThresholdSource supplies the rule snapshot read once per tick.
type ThresholdSource interface {
	Get() thresholds.Snapshot
}

// Deps are the collaborators of a collector. Sink and Now are optional.
type Deps struct {
	Discoverer provider.Discoverer
	Provider   provider.MetricsProvider
	Repository storage.Repository
	Ledger     storage.AlertLedger
	Thresholds ThresholdSource
	Sink       AlertSink
	Now        func() time.Time
}

// =============================================================================
// Collector
// =============================================================================

// Collector samples targets on a fixed tick.
type Collector struct {
	cfg  Config
	deps Deps

	// tickMu serializes ticks; everything below it is tick-owned.
	tickMu    sync.Mutex
	cache     targetCache
	cooldowns map[cooldownKey]time.Time

	stats counters
}

// New creates a collector. A nil cfg uses DefaultConfig.
func New(cfg *Config, deps Deps) *Collector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.CacheMaxStale < c.CacheTTL {
		c.CacheMaxStale = c.CacheTTL
	}
	if c.Cooldown <= 0 {
		c.Cooldown = def.Cooldown
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sink == nil {
		deps.Sink = discardSink{}
	}

	return &Collector{
		cfg:       c,
		deps:      deps,
		cooldowns: make(map[cooldownKey]time.Time),
	}
}

// Run ticks until ctx is cancelled. The first tick runs immediately.
// An in-flight tick is allowed to finish.
func (c *Collector) Run(ctx context.Context) error {
	log.Info("collector started", "interval", c.cfg.Interval, "workers", c.cfg.Workers)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("collector stopped")
			return nil
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// TickResult summarizes one tick.
type TickResult struct {
	Skipped          bool
	StaleTargets     bool
	Targets          int
	Live             int
	Samples          int
	Failures         int
	Vanished         int // failures because the provider no longer knows the target
	StoreFailures    int
	AlertsFired      int
	AlertsSuppressed int
	Duration         time.Duration
}

// Tick performs one collection cycle.
func (c *Collector) Tick(ctx context.Context) TickResult {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	start := time.Now()
	now := c.deps.Now()
	var res TickResult

	targets, stale, ok := c.resolveTargets(ctx, now)
	if !ok {
		res.Skipped = true
		c.stats.ticksSkipped.Add(1)
		return res
	}
	res.StaleTargets = stale
	res.Targets = len(targets)

	live := make([]string, 0, len(targets))
	for _, t := range targets {
		if t.Live() {
			live = append(live, t.ID)
		}
	}
	res.Live = len(live)

	results := c.collect(ctx, live, now)

	snap := c.deps.Thresholds.Get()
	for _, r := range results {
		if r.Err != nil {
			res.Failures++
			if errors.IsNotFound(r.Err) {
				res.Vanished++
				log.Debug("target vanished", "target", r.Target, "stale", stale)
				continue
			}
			log.Debug("collection failed", "target", r.Target, "error", r.Err)
			continue
		}
		res.Samples++

		if err := c.deps.Repository.StoreRaw(ctx, r.Sample); err != nil {
			res.StoreFailures++
			log.Warn("store raw failed", "target", r.Target, "error", err)
		}

		fired, suppressed := c.evaluate(ctx, r.Sample, snap, now)
		res.AlertsFired += fired
		res.AlertsSuppressed += suppressed
	}

	c.evictCooldowns(now)

	res.Duration = time.Since(start)
	c.stats.record(res)

	log.Debug("tick done",
		"targets", res.Targets,
		"live", res.Live,
		"samples", res.Samples,
		"failures", res.Failures,
		"alerts", res.AlertsFired,
		"duration", res.Duration)

	return res
}

// =============================================================================
// Stats
// =============================================================================

// Stats holds collector statistics.
type Stats struct {
	Ticks            int64
	TicksSkipped     int64
	SamplesCollected int64
	Failures         int64
	StoreFailures    int64
	AlertsFired      int64
	AlertsSuppressed int64
	LastTickDuration time.Duration
}

type counters struct {
	ticks            atomic.Int64
	ticksSkipped     atomic.Int64
	samples          atomic.Int64
	failures         atomic.Int64
	storeFailures    atomic.Int64
	alertsFired      atomic.Int64
	alertsSuppressed atomic.Int64
	lastTickNs       atomic.Int64
}

func (s *counters) record(r TickResult) {
	s.ticks.Add(1)
	s.samples.Add(int64(r.Samples))
	s.failures.Add(int64(r.Failures))
	s.storeFailures.Add(int64(r.StoreFailures))
	s.alertsFired.Add(int64(r.AlertsFired))
	s.alertsSuppressed.Add(int64(r.AlertsSuppressed))
	s.lastTickNs.Store(int64(r.Duration))
}

// Stats returns current statistics.
func (c *Collector) Stats() Stats {
	return Stats{
		Ticks:            c.stats.ticks.Load(),
		TicksSkipped:     c.stats.ticksSkipped.Load(),
		SamplesCollected: c.stats.samples.Load(),
		Failures:         c.stats.failures.Load(),
		StoreFailures:    c.stats.storeFailures.Load(),
		AlertsFired:      c.stats.alertsFired.Load(),
		AlertsSuppressed: c.stats.alertsSuppressed.Load(),
		LastTickDuration: time.Duration(c.stats.lastTickNs.Load()),
	}
}
