// Package parquet exports raw rows and aggregated buckets to Parquet files.
package parquet

import (
	"time"

	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// RawRecord is one raw sample in Parquet form. Timestamps are Unix
// milliseconds in UTC.
type RawRecord struct {
	Target        string  `parquet:"target,dict,zstd"`
	TimestampMs   int64   `parquet:"timestamp_ms"`
	CPUPercent    float64 `parquet:"cpu_percent"`
	Load1         float64 `parquet:"load_1"`
	Load5         float64 `parquet:"load_5"`
	Load15        float64 `parquet:"load_15"`
	MemTotal      int64   `parquet:"mem_total"`
	MemUsed       int64   `parquet:"mem_used"`
	MemAvailable  int64   `parquet:"mem_available"`
	MemCached     int64   `parquet:"mem_cached"`
	SwapTotal     int64   `parquet:"swap_total"`
	SwapUsed      int64   `parquet:"swap_used"`
	DiskTotal     int64   `parquet:"disk_total"`
	DiskUsed      int64   `parquet:"disk_used"`
	DiskAvailable int64   `parquet:"disk_available"`
	DiskPercent   float64 `parquet:"disk_percent"`
	NetRxBytes    int64   `parquet:"net_rx_bytes"`
	NetTxBytes    int64   `parquet:"net_tx_bytes"`
}

// BucketRecord is one 1-minute bucket in Parquet form.
type BucketRecord struct {
	Target        string   `parquet:"target,dict,zstd"`
	PeriodStartMs int64    `parquet:"period_start_ms"`
	PeriodEndMs   int64    `parquet:"period_end_ms"`
	SampleCount   int64    `parquet:"sample_count"`
	CPUMin        float64  `parquet:"cpu_min"`
	CPUAvg        float64  `parquet:"cpu_avg"`
	CPUMax        float64  `parquet:"cpu_max"`
	CPUP95        *float64 `parquet:"cpu_p95,optional"`
	MemUsedMin    int64    `parquet:"mem_used_min"`
	MemUsedAvg    int64    `parquet:"mem_used_avg"`
	MemUsedMax    int64    `parquet:"mem_used_max"`
	MemTotal      int64    `parquet:"mem_total"`
	DiskMin       float64  `parquet:"disk_min"`
	DiskAvg       float64  `parquet:"disk_avg"`
	DiskMax       float64  `parquet:"disk_max"`
	NetRxTotal    int64    `parquet:"net_rx_total"`
	NetTxTotal    int64    `parquet:"net_tx_total"`
	NetRxPeak     int64    `parquet:"net_rx_peak"`
	NetTxPeak     int64    `parquet:"net_tx_peak"`
}

// FromRawRow converts a raw row to its Parquet record.
func FromRawRow(r *types.RawRow) RawRecord {
	return RawRecord{
		Target:        r.Target,
		TimestampMs:   r.Timestamp.UnixMilli(),
		CPUPercent:    r.CPUPercent,
		Load1:         r.Load1,
		Load5:         r.Load5,
		Load15:        r.Load15,
		MemTotal:      int64(r.MemTotal),
		MemUsed:       int64(r.MemUsed),
		MemAvailable:  int64(r.MemAvailable),
		MemCached:     int64(r.MemCached),
		SwapTotal:     int64(r.SwapTotal),
		SwapUsed:      int64(r.SwapUsed),
		DiskTotal:     int64(r.DiskTotal),
		DiskUsed:      int64(r.DiskUsed),
		DiskAvailable: int64(r.DiskAvailable),
		DiskPercent:   r.DiskPercent,
		NetRxBytes:    int64(r.NetRxBytes),
		NetTxBytes:    int64(r.NetTxBytes),
	}
}

// ToRawRow converts the record back to a raw row.
func (r *RawRecord) ToRawRow() types.RawRow {
	return types.RawRow{
		Target:        r.Target,
		Timestamp:     time.UnixMilli(r.TimestampMs).UTC(),
		CPUPercent:    r.CPUPercent,
		Load1:         r.Load1,
		Load5:         r.Load5,
		Load15:        r.Load15,
		MemTotal:      uint64(r.MemTotal),
		MemUsed:       uint64(r.MemUsed),
		MemAvailable:  uint64(r.MemAvailable),
		MemCached:     uint64(r.MemCached),
		SwapTotal:     uint64(r.SwapTotal),
		SwapUsed:      uint64(r.SwapUsed),
		DiskTotal:     uint64(r.DiskTotal),
		DiskUsed:      uint64(r.DiskUsed),
		DiskAvailable: uint64(r.DiskAvailable),
		DiskPercent:   r.DiskPercent,
		NetRxBytes:    uint64(r.NetRxBytes),
		NetTxBytes:    uint64(r.NetTxBytes),
	}
}

// FromBucket converts an aggregated bucket to its Parquet record.
func FromBucket(b *types.AggregatedBucket) BucketRecord {
	rec := BucketRecord{
		Target:        b.Target,
		PeriodStartMs: b.PeriodStart.UnixMilli(),
		PeriodEndMs:   b.PeriodEnd.UnixMilli(),
		SampleCount:   b.SampleCount,
		CPUMin:        b.CPUMin,
		CPUAvg:        b.CPUAvg,
		CPUMax:        b.CPUMax,
		MemUsedMin:    int64(b.MemUsedMin),
		MemUsedAvg:    int64(b.MemUsedAvg),
		MemUsedMax:    int64(b.MemUsedMax),
		MemTotal:      int64(b.MemTotal),
		DiskMin:       b.DiskMin,
		DiskAvg:       b.DiskAvg,
		DiskMax:       b.DiskMax,
		NetRxTotal:    int64(b.NetRxTotal),
		NetTxTotal:    int64(b.NetTxTotal),
		NetRxPeak:     int64(b.NetRxPeak),
		NetTxPeak:     int64(b.NetTxPeak),
	}
	if b.CPUP95 != nil {
		p95 := *b.CPUP95
		rec.CPUP95 = &p95
	}
	return rec
}

// ToBucket converts the record back to an aggregated bucket.
func (r *BucketRecord) ToBucket() types.AggregatedBucket {
	b := types.AggregatedBucket{
		Target:      r.Target,
		PeriodStart: time.UnixMilli(r.PeriodStartMs).UTC(),
		PeriodEnd:   time.UnixMilli(r.PeriodEndMs).UTC(),
		SampleCount: r.SampleCount,
		CPUMin:      r.CPUMin,
		CPUAvg:      r.CPUAvg,
		CPUMax:      r.CPUMax,
		MemUsedMin:  uint64(r.MemUsedMin),
		MemUsedAvg:  uint64(r.MemUsedAvg),
		MemUsedMax:  uint64(r.MemUsedMax),
		MemTotal:    uint64(r.MemTotal),
		DiskMin:     r.DiskMin,
		DiskAvg:     r.DiskAvg,
		DiskMax:     r.DiskMax,
		NetRxTotal:  uint64(r.NetRxTotal),
		NetTxTotal:  uint64(r.NetTxTotal),
		NetRxPeak:   uint64(r.NetRxPeak),
		NetTxPeak:   uint64(r.NetTxPeak),
	}
	if r.CPUP95 != nil {
		p95 := *r.CPUP95
		b.CPUP95 = &p95
	}
	return b
}
