package aggregate

import (
	"sort"
	"time"

	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// Options configures bucket folding.
type Options struct {
	// Width is the bucket width. Rows are grouped by timestamp truncated
	// to it.
	Width time.Duration

	// Percentiles enables the CPU p95 of each bucket.
	Percentiles bool

	// Accuracy is the DDSketch relative accuracy.
	Accuracy float64
}

// DefaultOptions returns 1-minute buckets with 1% percentile accuracy.
func DefaultOptions() Options {
	return Options{
		Width:       time.Minute,
		Percentiles: true,
		Accuracy:    0.01,
	}
}

// Bucket accumulates the raw rows of one target in one window.
type Bucket struct {
	target      string
	periodStart time.Time
	periodEnd   time.Time

	cpu  *Series
	mem  *Series
	disk *Series

	memTotal uint64
	rxTotal  uint64
	txTotal  uint64
	rxPeak   uint64
	txPeak   uint64
}

// NewBucket creates an empty bucket for [start, start+width).
func NewBucket(target string, start time.Time, opts Options) *Bucket {
	b := &Bucket{
		target:      target,
		periodStart: start.UTC(),
		periodEnd:   start.UTC().Add(opts.Width),
		cpu:         NewSeries(),
		mem:         NewSeries(),
		disk:        NewSeries(),
	}
	if opts.Percentiles {
		b.cpu = NewSeriesWithAccuracy(opts.Accuracy)
	}
	return b
}

// Add folds one raw row into the bucket.
func (b *Bucket) Add(row types.RawRow) {
	b.cpu.Add(row.CPUPercent)
	b.mem.Add(float64(row.MemUsed))
	b.disk.Add(row.DiskPercent)

	if row.MemTotal > b.memTotal {
		b.memTotal = row.MemTotal
	}

	b.rxTotal += row.NetRxBytes
	b.txTotal += row.NetTxBytes

	if row.NetRxBytes > b.rxPeak {
		b.rxPeak = row.NetRxBytes
	}
	if row.NetTxBytes > b.txPeak {
		b.txPeak = row.NetTxBytes
	}
}

// Count returns the number of rows folded.
func (b *Bucket) Count() int64 {
	return b.cpu.Count()
}

// Result returns the aggregated bucket.
func (b *Bucket) Result() types.AggregatedBucket {
	result := types.AggregatedBucket{
		Target:      b.target,
		PeriodStart: b.periodStart,
		PeriodEnd:   b.periodEnd,
		SampleCount: b.cpu.Count(),
		CPUMin:      b.cpu.Min(),
		CPUAvg:      b.cpu.Avg(),
		CPUMax:      b.cpu.Max(),
		MemUsedMin:  uint64(b.mem.Min()),
		MemUsedAvg:  uint64(b.mem.Avg()),
		MemUsedMax:  uint64(b.mem.Max()),
		MemTotal:    b.memTotal,
		DiskMin:     b.disk.Min(),
		DiskAvg:     b.disk.Avg(),
		DiskMax:     b.disk.Max(),
		NetRxTotal:  b.rxTotal,
		NetTxTotal:  b.txTotal,
		NetRxPeak:   b.rxPeak,
		NetTxPeak:   b.txPeak,
	}

	if p95, ok := b.cpu.Quantile(0.95); ok {
		result.CPUP95 = &p95
	}

	return result
}

// Fold groups rows by (target, timestamp truncated to the bucket width)
// and returns one bucket per group, ordered by target then period start.
func Fold(rows []types.RawRow, opts Options) []types.AggregatedBucket {
	if opts.Width <= 0 {
		opts.Width = time.Minute
	}

	type key struct {
		target string
		start  int64
	}

	buckets := make(map[key]*Bucket)
	for _, row := range rows {
		start := row.Timestamp.UTC().Truncate(opts.Width)
		k := key{target: row.Target, start: start.Unix()}

		b, ok := buckets[k]
		if !ok {
			b = NewBucket(row.Target, start, opts)
			buckets[k] = b
		}
		b.Add(row)
	}

	results := make([]types.AggregatedBucket, 0, len(buckets))
	for _, b := range buckets {
		results = append(results, b.Result())
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Target != results[j].Target {
			return results[i].Target < results[j].Target
		}
		return results[i].PeriodStart.Before(results[j].PeriodStart)
	})

	return results
}
