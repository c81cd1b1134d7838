// Package query resolves history requests against the cheapest adequate
// data tier and normalizes raw rows and buckets into one point shape.
package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/hostwatch/config"
	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/storage"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

var log = logging.Component("query")

// Point is one history entry. CPUMin and CPUMax are set only for
// aggregated points.
type Point struct {
	Timestamp        time.Time `json:"timestamp"`
	CPUAvg           float64   `json:"cpu_avg"`
	CPUMin           *float64  `json:"cpu_min,omitempty"`
	CPUMax           *float64  `json:"cpu_max,omitempty"`
	MemUsedBytes     uint64    `json:"mem_used_bytes"`
	MemTotalBytes    uint64    `json:"mem_total_bytes"`
	DiskUsagePercent float64   `json:"disk_usage_percent"`
	NetRxRate        float64   `json:"net_rx_rate"`
	NetTxRate        float64   `json:"net_tx_rate"`
}

// History is the response of a history request.
type History struct {
	Target      string     `json:"target"`
	Granularity types.Tier `json:"granularity"`
	Points      []Point    `json:"points"`
}

// Options configures the resolver.
type Options struct {
	// RawWindow is the largest range answered from raw rows.
	RawWindow time.Duration

	// SampleInterval is the divisor for raw network rates.
	SampleInterval time.Duration
}

// DefaultOptions returns the default resolver options.
func DefaultOptions() Options {
	return Options{
		RawWindow:      config.DefaultRawQueryWindow,
		SampleInterval: config.DefaultCollectInterval,
	}
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RawQueries      int64
	BucketQueries   int64
	PointsReturned  int64
	Coalesced       int64
	Errors          int64
}

// Resolver answers history requests.
type Resolver struct {
	repo storage.Repository
	opts Options

	group singleflight.Group

	mu    sync.Mutex
	stats Stats
}

// New creates a resolver over repo. Zero option fields take defaults.
func New(repo storage.Repository, opts Options) *Resolver {
	def := DefaultOptions()
	if opts.RawWindow <= 0 {
		opts.RawWindow = def.RawWindow
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = def.SampleInterval
	}
	return &Resolver{repo: repo, opts: opts}
}

// History returns the points of target within [from, to]. Concurrent
// identical requests share one storage read; the returned value must be
// treated as read-only.
func (r *Resolver) History(ctx context.Context, target string, from, to time.Time) (*History, error) {
	if from.After(to) {
		return nil, errors.Wrapf(errors.ErrInvalidRange, "from %s is after to %s",
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	key := fmt.Sprintf("%s|%d|%d", target, from.UnixNano(), to.UnixNano())
	// The shared read outlives any single caller; each caller still
	// returns when its own context ends.
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.resolve(context.WithoutCancel(ctx), target, from, to)
	})

	var (
		v      interface{}
		err    error
		shared bool
	)
	select {
	case res := <-ch:
		v, err, shared = res.Val, res.Err, res.Shared
	case <-ctx.Done():
		err = ctx.Err()
	}

	r.mu.Lock()
	if shared {
		r.stats.Coalesced++
	}
	if err != nil {
		r.stats.Errors++
	}
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return v.(*History), nil
}

func (r *Resolver) resolve(ctx context.Context, target string, from, to time.Time) (*History, error) {
	tier := types.SelectTierForRangeWithWindow(from, to, r.opts.RawWindow)
	h := &History{Target: target, Granularity: tier}

	switch tier {
	case types.TierRaw:
		rows, err := r.repo.QueryRaw(ctx, target, from, to)
		if err != nil {
			return nil, storageErr("query raw", err)
		}
		h.Points = RawPoints(rows, r.opts.SampleInterval)
	default:
		buckets, err := r.repo.QueryAggregated(ctx, target, from, to)
		if err != nil {
			return nil, storageErr("query aggregated", err)
		}
		h.Points = BucketPoints(buckets)
	}

	r.mu.Lock()
	r.stats.QueriesExecuted++
	if tier == types.TierRaw {
		r.stats.RawQueries++
	} else {
		r.stats.BucketQueries++
	}
	r.stats.PointsReturned += int64(len(h.Points))
	r.mu.Unlock()

	log.Debug("history resolved", "target", target, "granularity", tier, "points", len(h.Points))
	return h, nil
}

// Stats returns current statistics.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func storageErr(op string, err error) error {
	if errors.IsStorage(err) {
		return err
	}
	return errors.Storage(op, err)
}

// =============================================================================
// Point conversion
// =============================================================================

// RawPoints converts raw rows to points. Network rates are the counter
// delta over interval; the first point and any counter decrease give 0.
func RawPoints(rows []types.RawRow, interval time.Duration) []Point {
	points := make([]Point, len(rows))
	secs := interval.Seconds()

	for i := range rows {
		row := &rows[i]
		p := Point{
			Timestamp:        row.Timestamp,
			CPUAvg:           row.CPUPercent,
			MemUsedBytes:     row.MemUsed,
			MemTotalBytes:    row.MemTotal,
			DiskUsagePercent: row.DiskPercent,
		}
		if i > 0 && secs > 0 {
			prev := &rows[i-1]
			p.NetRxRate = counterRate(prev.NetRxBytes, row.NetRxBytes, secs)
			p.NetTxRate = counterRate(prev.NetTxBytes, row.NetTxBytes, secs)
		}
		points[i] = p
	}
	return points
}

// BucketPoints converts aggregated buckets to points. Network rates are
// the bucket total over the bucket width, at least one second.
func BucketPoints(buckets []types.AggregatedBucket) []Point {
	points := make([]Point, len(buckets))

	for i := range buckets {
		b := &buckets[i]
		secs := b.Duration().Seconds()
		if secs < 1 {
			secs = 1
		}
		cpuMin, cpuMax := b.CPUMin, b.CPUMax
		points[i] = Point{
			Timestamp:        b.PeriodStart,
			CPUAvg:           b.CPUAvg,
			CPUMin:           &cpuMin,
			CPUMax:           &cpuMax,
			MemUsedBytes:     b.MemUsedAvg,
			MemTotalBytes:    b.MemTotal,
			DiskUsagePercent: b.DiskAvg,
			NetRxRate:        float64(b.NetRxTotal) / secs,
			NetTxRate:        float64(b.NetTxTotal) / secs,
		}
	}
	return points
}

func counterRate(prev, cur uint64, secs float64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur-prev) / secs
}
