package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

var log = logging.Component("provider")

// Mux merges the targets of several sources and routes Sample calls to
// the source that reported the target. When two sources report the same
// target ID the first registered source wins.
type Mux struct {
	sources []Source

	mu    sync.RWMutex
	owner map[string]Source
}

// NewMux creates a mux over sources.
func NewMux(sources ...Source) *Mux {
	return &Mux{
		sources: sources,
		owner:   make(map[string]Source),
	}
}

// Name implements Source.
func (m *Mux) Name() string { return "mux" }

// ListTargets queries every source. A failing source is logged and
// skipped; the call fails only when every source fails.
func (m *Mux) ListTargets(ctx context.Context) ([]Target, error) {
	owner := make(map[string]Source)
	var (
		targets []Target
		failed  int
		lastErr error
	)

	for _, src := range m.sources {
		list, err := src.ListTargets(ctx)
		if err != nil {
			failed++
			lastErr = err
			log.Warn("discovery source failed", "source", src.Name(), "error", err)
			continue
		}
		for _, t := range list {
			if _, dup := owner[t.ID]; dup {
				continue
			}
			owner[t.ID] = src
			targets = append(targets, t)
		}
	}

	if len(m.sources) > 0 && failed == len(m.sources) {
		if errors.IsDiscovery(lastErr) {
			return nil, lastErr
		}
		return nil, errors.Discovery("mux", lastErr)
	}

	m.mu.Lock()
	m.owner = owner
	m.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
	return targets, nil
}

// Sample routes to the owning source.
func (m *Mux) Sample(ctx context.Context, target string) (*types.Sample, error) {
	m.mu.RLock()
	src, ok := m.owner[target]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.Collection(target, errors.NewNotFound("target", target))
	}
	return src.Sample(ctx, target)
}
