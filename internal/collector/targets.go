package collector

import (
	"context"
	"time"

	"github.com/xtxerr/hostwatch/internal/provider"
)

// targetCache is the last successful discovery result.
type targetCache struct {
	targets   []provider.Target
	fetchedAt time.Time
	valid     bool
}

// resolveTargets returns the target list for this tick. A fresh cache is
// used as is. On discovery failure a cache younger than CacheMaxStale is
// reused (stale = true); otherwise the cache is dropped and ok is false.
func (c *Collector) resolveTargets(ctx context.Context, now time.Time) (targets []provider.Target, stale, ok bool) {
	age := now.Sub(c.cache.fetchedAt)
	if c.cache.valid && age < c.cfg.CacheTTL {
		return c.cache.targets, false, true
	}

	list, err := c.deps.Discoverer.ListTargets(ctx)
	if err == nil {
		c.cache = targetCache{targets: list, fetchedAt: now, valid: true}
		return list, false, true
	}

	if c.cache.valid && age <= c.cfg.CacheMaxStale {
		log.Warn("discovery failed, reusing cached targets",
			"error", err, "age", age, "targets", len(c.cache.targets))
		return c.cache.targets, true, true
	}

	if c.cache.valid {
		log.Warn("discovery failed, cached targets expired, skipping tick",
			"error", err, "age", age)
		c.cache = targetCache{}
	} else {
		log.Warn("discovery failed, no cached targets, skipping tick", "error", err)
	}
	return nil, false, false
}
