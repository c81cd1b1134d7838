// Package discovery decorates a provider.Source with ICMP liveness: a
// configured host that does not answer ping is reported as stopped and
// is left out of the collection tick.
package discovery

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/hostwatch/config"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/provider"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

var log = logging.Component("discovery")

// Config holds liveness ping configuration.
type Config struct {
	Enabled     bool          `yaml:"enabled"`
	PingTimeout time.Duration `yaml:"ping_timeout"`
	PingCount   int           `yaml:"ping_count" validate:"gte=0"`
	Privileged  bool          `yaml:"privileged"`
	Parallel    int           `yaml:"parallel" validate:"gte=0"`
}

// DefaultConfig returns default liveness configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		PingTimeout: config.DefaultPingTimeout,
		PingCount:   1,
		Parallel:    16,
	}
}

// Pinger pings one address.
type Pinger interface {
	Reachable(ctx context.Context, addr string) (bool, error)
}

// AddrFunc resolves a target ID to the address to ping.
type AddrFunc func(target string) (string, bool)

// ICMP is a Pinger over pro-bing.
type ICMP struct {
	Timeout    time.Duration
	Count      int
	Privileged bool
}

// NewICMP creates an ICMP pinger from cfg.
func NewICMP(cfg Config) *ICMP {
	p := &ICMP{Timeout: cfg.PingTimeout, Count: cfg.PingCount, Privileged: cfg.Privileged}
	if p.Timeout <= 0 {
		p.Timeout = config.DefaultPingTimeout
	}
	if p.Count <= 0 {
		p.Count = 1
	}
	return p
}

// Reachable sends Count echo requests and reports whether any answer
// arrived within Timeout.
func (p *ICMP) Reachable(ctx context.Context, addr string) (bool, error) {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		return false, err
	}
	pinger.Count = p.Count
	pinger.Timeout = p.Timeout
	pinger.Interval = 100 * time.Millisecond
	pinger.SetPrivileged(p.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return false, err
	}
	return pinger.Statistics().PacketsRecv > 0, nil
}

// Liveness wraps a Source and downgrades unreachable targets.
type Liveness struct {
	inner    provider.Source
	addr     AddrFunc
	pinger   Pinger
	parallel int
}

// NewLiveness creates a liveness filter in front of inner.
func NewLiveness(inner provider.Source, addr AddrFunc, pinger Pinger, parallel int) *Liveness {
	if parallel <= 0 {
		parallel = 16
	}
	return &Liveness{inner: inner, addr: addr, pinger: pinger, parallel: parallel}
}

// Name implements provider.Source.
func (l *Liveness) Name() string { return l.inner.Name() }

// Sample implements provider.Source.
func (l *Liveness) Sample(ctx context.Context, target string) (*types.Sample, error) {
	return l.inner.Sample(ctx, target)
}

// ListTargets lists the inner targets and pings every running one. A
// ping error counts as unreachable; it never fails the listing.
func (l *Liveness) ListTargets(ctx context.Context) ([]provider.Target, error) {
	targets, err := l.inner.ListTargets(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)

	for i := range targets {
		if !targets[i].Live() {
			continue
		}
		addr, ok := l.addr(targets[i].ID)
		if !ok {
			continue
		}
		i := i
		g.Go(func() error {
			up, err := l.pinger.Reachable(gctx, addr)
			if err != nil {
				log.Debug("ping failed", "target", targets[i].ID, "addr", addr, "error", err)
			}
			if !up {
				targets[i].State = provider.StateStopped
			}
			return nil
		})
	}
	_ = g.Wait()

	return targets, nil
}
