// Package aggregator implements the recurring maintenance task: fold raw
// rows into 1-minute buckets, then purge expired data.
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xtxerr/hostwatch/config"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/storage"
	"github.com/xtxerr/hostwatch/internal/storage/retention"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

var log = logging.Component("aggregator")

// Config holds aggregator configuration.
type Config struct {
	// Schedule is a cron spec, e.g. "@every 60s".
	Schedule string

	// Margin keeps the most recent minutes out of the fold so that rows
	// still being written are never aggregated early.
	Margin time.Duration

	// Window is how far back each tick folds.
	Window time.Duration
}

// DefaultConfig returns default aggregator configuration.
func DefaultConfig() *Config {
	return &Config{
		Schedule: config.DefaultAggregateSchedule,
		Margin:   config.DefaultAggregateMargin,
		Window:   config.DefaultAggregateWindow,
	}
}

// Aggregator runs aggregation and retention on a schedule.
type Aggregator struct {
	cfg       Config
	repo      storage.Repository
	retention *retention.Manager
	now       func() time.Time

	mu    sync.Mutex
	stats Stats
}

// Stats holds aggregator statistics.
type Stats struct {
	Ticks          int64
	BucketsCreated int64
	Errors         int64
	LastTick       time.Time
	LastWindowEnd  time.Time
}

// TickResult summarizes one tick.
type TickResult struct {
	WindowStart    time.Time
	WindowEnd      time.Time
	BucketsCreated int64
	AggregateErr   error
	Purges         []retention.CleanupResult
}

// New creates an aggregator. A nil cfg uses DefaultConfig and a nil now
// uses time.Now.
func New(cfg *Config, repo storage.Repository, ret *retention.Manager, now func() time.Time) *Aggregator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		cfg:       *cfg,
		repo:      repo,
		retention: ret,
		now:       now,
	}
}

// Window returns the fold window [start, end) for a tick at now:
// end is the current minute minus the margin, start is end minus the
// window length.
func (a *Aggregator) Window(now time.Time) (start, end time.Time) {
	end = types.TierMinute.TruncateToBucket(now).Add(-a.cfg.Margin)
	start = end.Add(-a.cfg.Window)
	return start, end
}

// Tick aggregates the current window and runs the purges. Failures are
// logged and reported in the result; none of them stops the others.
func (a *Aggregator) Tick(ctx context.Context) TickResult {
	now := a.now()
	start, end := a.Window(now)
	res := TickResult{WindowStart: start, WindowEnd: end}

	created, err := a.repo.AggregateRawBuckets(ctx, start, end)
	if err != nil {
		res.AggregateErr = err
		log.Warn("aggregation failed", "start", start, "end", end, "error", err)
	} else {
		res.BucketsCreated = created
		if created > 0 {
			log.Debug("buckets created", "count", created, "start", start, "end", end)
		}
	}

	errs := 0
	if err != nil {
		errs++
	}
	if a.retention != nil {
		res.Purges = a.retention.RunCleanup(ctx)
		for _, p := range res.Purges {
			if p.Err != nil {
				errs++
				log.Warn("purge failed", "scope", p.Scope, "cutoff", p.Cutoff, "error", p.Err)
				continue
			}
			if p.Deleted > 0 {
				log.Debug("purged", "scope", p.Scope, "rows", p.Deleted, "cutoff", p.Cutoff)
			}
		}
	}

	a.mu.Lock()
	a.stats.Ticks++
	a.stats.BucketsCreated += res.BucketsCreated
	a.stats.Errors += int64(errs)
	a.stats.LastTick = now
	a.stats.LastWindowEnd = end
	a.mu.Unlock()

	return res
}

// Run schedules Tick until ctx is cancelled. The first tick runs
// immediately; overlapping runs are skipped.
func (a *Aggregator) Run(ctx context.Context) error {
	cl := logging.CronLogger(log)
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(a.cfg.Schedule, func() { a.Tick(ctx) }); err != nil {
		return err
	}

	log.Info("aggregator started", "schedule", a.cfg.Schedule, "margin", a.cfg.Margin, "window", a.cfg.Window)

	a.Tick(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	log.Info("aggregator stopped")
	return nil
}

// Stats returns current statistics.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
