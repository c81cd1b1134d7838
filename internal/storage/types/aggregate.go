package types

import "time"

// AggregatedBucket holds the statistics of one target over one 1-minute
// wall-clock window [PeriodStart, PeriodEnd).
type AggregatedBucket struct {
	Target      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	SampleCount int64

	CPUMin float64
	CPUAvg float64
	CPUMax float64

	// CPUP95 is nil when the backend does not compute percentiles.
	CPUP95 *float64

	MemUsedMin uint64
	MemUsedAvg uint64
	MemUsedMax uint64
	MemTotal   uint64

	DiskMin float64
	DiskAvg float64
	DiskMax float64

	// Sums of the per-sample interface totals over the window.
	NetRxTotal uint64
	NetTxTotal uint64

	// Largest single-sample interface total in the window.
	NetRxPeak uint64
	NetTxPeak uint64
}

// Duration returns the bucket width.
func (b *AggregatedBucket) Duration() time.Duration {
	return b.PeriodEnd.Sub(b.PeriodStart)
}
