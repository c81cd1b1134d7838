package collector

import (
	"context"
	"time"

	"github.com/xtxerr/hostwatch/internal/storage/types"
	"github.com/xtxerr/hostwatch/internal/thresholds"
)

// FiredAlert is an alert surfaced for delivery. Persisted is false when
// the ledger write failed; the alert is still delivered and its ID is 0.
type FiredAlert struct {
	Alert     types.AlertRecord
	Persisted bool
}

// AlertSink receives fired alerts. Deliver is called from the tick
// goroutine and must not block.
type AlertSink interface {
	Deliver(ctx context.Context, alert FiredAlert)
}

// AlertSinkFunc adapts a function to AlertSink.
type AlertSinkFunc func(ctx context.Context, alert FiredAlert)

// Deliver implements AlertSink.
func (f AlertSinkFunc) Deliver(ctx context.Context, alert FiredAlert) { f(ctx, alert) }

type discardSink struct{}

func (discardSink) Deliver(context.Context, FiredAlert) {}

type cooldownKey struct {
	target string
	kind   types.AlertKind
}

// evaluate checks every enabled rule against one sample.
func (c *Collector) evaluate(ctx context.Context, s *types.Sample, snap thresholds.Snapshot, now time.Time) (fired, suppressed int) {
	for _, th := range snap.Thresholds {
		if !th.Enabled {
			continue
		}
		value, ok := th.Observe(s)
		if !ok || value < th.Percent {
			continue
		}

		key := cooldownKey{target: s.Target, kind: th.Kind}
		if last, seen := c.cooldowns[key]; seen && now.Sub(last) < c.cfg.Cooldown {
			suppressed++
			continue
		}
		c.cooldowns[key] = now
		fired++

		c.fire(ctx, s.Target, th, value, now)
	}
	return fired, suppressed
}

func (c *Collector) fire(ctx context.Context, target string, th types.AlertThreshold, value float64, now time.Time) {
	alert := FiredAlert{
		Alert: types.AlertRecord{
			Target:    target,
			Kind:      th.Kind,
			Threshold: th.Percent,
			Actual:    value,
			Timestamp: now,
		},
	}

	rec, err := c.deps.Ledger.RecordAlert(ctx, target, th.Kind, th.Percent, value)
	if err != nil {
		log.Warn("record alert failed", "target", target, "kind", th.Kind, "error", err)
	} else {
		alert.Alert = *rec
		alert.Persisted = true
	}

	log.Info("alert fired",
		"target", target,
		"kind", th.Kind,
		"threshold", th.Percent,
		"actual", value,
		"id", alert.Alert.ID)

	c.deps.Sink.Deliver(ctx, alert)
}

// evictCooldowns drops entries whose last firing is outside the window.
func (c *Collector) evictCooldowns(now time.Time) {
	for key, last := range c.cooldowns {
		if now.Sub(last) >= c.cfg.Cooldown {
			delete(c.cooldowns, key)
		}
	}
}

// CooldownEntries returns the number of active cooldown entries.
func (c *Collector) CooldownEntries() int {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	return len(c.cooldowns)
}
