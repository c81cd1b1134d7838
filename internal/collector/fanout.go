package collector

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// result is the tagged outcome of sampling one target: exactly one of
// Sample and Err is set.
type result struct {
	Target string
	Sample *types.Sample
	Err    error
}

// collect samples every target concurrently and joins all outcomes.
// Result order is unspecified.
func (c *Collector) collect(ctx context.Context, targets []string, now time.Time) []result {
	if len(targets) == 0 {
		return nil
	}

	p := pool.NewWithResults[result]()
	if c.cfg.Workers > 0 {
		p = p.WithMaxGoroutines(c.cfg.Workers)
	}

	for _, id := range targets {
		id := id
		p.Go(func() result {
			return c.sampleOne(ctx, id, now)
		})
	}

	return p.Wait()
}

// sampleOne calls the provider for one target. A provider panic becomes
// a collection failure of that target.
func (c *Collector) sampleOne(ctx context.Context, target string, now time.Time) result {
	var (
		sample *types.Sample
		err    error
		pc     panics.Catcher
	)

	pc.Try(func() {
		sample, err = c.deps.Provider.Sample(ctx, target)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	if err == nil && sample == nil {
		err = errors.New("provider returned no sample")
	}
	if err != nil {
		if !errors.IsTransientCollection(err) {
			err = errors.Collection(target, err)
		}
		return result{Target: target, Err: err}
	}

	if sample.Target == "" {
		sample.Target = target
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = now
	}
	sample.Timestamp = sample.Timestamp.UTC()
	sample.Normalize()

	return result{Target: target, Sample: sample}
}
