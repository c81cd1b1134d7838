package sqlite

import (
	"time"

	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// Timestamps are stored as Unix milliseconds so that range filters and
// minute truncation are plain integer arithmetic.

type rawSample struct {
	ID          int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Target      string  `gorm:"column:target;not null;index:idx_raw_target_ts,priority:1"`
	TimestampMs int64   `gorm:"column:timestamp;not null;index:idx_raw_target_ts,priority:2"`
	CPUPct      float64 `gorm:"column:cpu_pct;not null"`
	Load1       float64 `gorm:"column:load1;not null"`
	Load5       float64 `gorm:"column:load5;not null"`
	Load15      float64 `gorm:"column:load15;not null"`
	MemTotal    int64   `gorm:"column:mem_total;not null"`
	MemUsed     int64   `gorm:"column:mem_used;not null"`
	MemAvail    int64   `gorm:"column:mem_avail;not null"`
	MemCached   int64   `gorm:"column:mem_cached;not null"`
	SwapTotal   int64   `gorm:"column:swap_total;not null"`
	SwapUsed    int64   `gorm:"column:swap_used;not null"`
	DiskTotal   int64   `gorm:"column:disk_total;not null"`
	DiskUsed    int64   `gorm:"column:disk_used;not null"`
	DiskAvail   int64   `gorm:"column:disk_avail;not null"`
	DiskPct     float64 `gorm:"column:disk_pct;not null"`
	NetRx       int64   `gorm:"column:net_rx;not null"`
	NetTx       int64   `gorm:"column:net_tx;not null"`
}

func (rawSample) TableName() string { return "raw_samples" }

func newRawSample(r types.RawRow) rawSample {
	return rawSample{
		Target:      r.Target,
		TimestampMs: r.Timestamp.UnixMilli(),
		CPUPct:      r.CPUPercent,
		Load1:       r.Load1,
		Load5:       r.Load5,
		Load15:      r.Load15,
		MemTotal:    int64(r.MemTotal),
		MemUsed:     int64(r.MemUsed),
		MemAvail:    int64(r.MemAvailable),
		MemCached:   int64(r.MemCached),
		SwapTotal:   int64(r.SwapTotal),
		SwapUsed:    int64(r.SwapUsed),
		DiskTotal:   int64(r.DiskTotal),
		DiskUsed:    int64(r.DiskUsed),
		DiskAvail:   int64(r.DiskAvailable),
		DiskPct:     r.DiskPercent,
		NetRx:       int64(r.NetRxBytes),
		NetTx:       int64(r.NetTxBytes),
	}
}

func (m rawSample) toRawRow() types.RawRow {
	return types.RawRow{
		Target:        m.Target,
		Timestamp:     time.UnixMilli(m.TimestampMs).UTC(),
		CPUPercent:    m.CPUPct,
		Load1:         m.Load1,
		Load5:         m.Load5,
		Load15:        m.Load15,
		MemTotal:      uint64(m.MemTotal),
		MemUsed:       uint64(m.MemUsed),
		MemAvailable:  uint64(m.MemAvail),
		MemCached:     uint64(m.MemCached),
		SwapTotal:     uint64(m.SwapTotal),
		SwapUsed:      uint64(m.SwapUsed),
		DiskTotal:     uint64(m.DiskTotal),
		DiskUsed:      uint64(m.DiskUsed),
		DiskAvailable: uint64(m.DiskAvail),
		DiskPercent:   m.DiskPct,
		NetRxBytes:    uint64(m.NetRx),
		NetTxBytes:    uint64(m.NetTx),
	}
}

type aggregatedBucket struct {
	Target        string   `gorm:"column:target;primaryKey"`
	PeriodStartMs int64    `gorm:"column:period_start;primaryKey;autoIncrement:false"`
	PeriodEndMs   int64    `gorm:"column:period_end;not null"`
	SampleCount   int64    `gorm:"column:sample_count;not null"`
	CPUMin        float64  `gorm:"column:cpu_min;not null"`
	CPUAvg        float64  `gorm:"column:cpu_avg;not null"`
	CPUMax        float64  `gorm:"column:cpu_max;not null"`
	CPUP95        *float64 `gorm:"column:cpu_p95"`
	MemUsedMin    int64    `gorm:"column:mem_used_min;not null"`
	MemUsedAvg    int64    `gorm:"column:mem_used_avg;not null"`
	MemUsedMax    int64    `gorm:"column:mem_used_max;not null"`
	MemTotal      int64    `gorm:"column:mem_total;not null"`
	DiskMin       float64  `gorm:"column:disk_min;not null"`
	DiskAvg       float64  `gorm:"column:disk_avg;not null"`
	DiskMax       float64  `gorm:"column:disk_max;not null"`
	NetRxTotal    int64    `gorm:"column:net_rx_total;not null"`
	NetTxTotal    int64    `gorm:"column:net_tx_total;not null"`
	NetRxPeak     int64    `gorm:"column:net_rx_peak;not null"`
	NetTxPeak     int64    `gorm:"column:net_tx_peak;not null"`
}

func (aggregatedBucket) TableName() string { return "aggregated_buckets" }

func newAggregatedBucket(b *types.AggregatedBucket) aggregatedBucket {
	return aggregatedBucket{
		Target:        b.Target,
		PeriodStartMs: b.PeriodStart.UnixMilli(),
		PeriodEndMs:   b.PeriodEnd.UnixMilli(),
		SampleCount:   b.SampleCount,
		CPUMin:        b.CPUMin,
		CPUAvg:        b.CPUAvg,
		CPUMax:        b.CPUMax,
		CPUP95:        b.CPUP95,
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
}

func (m aggregatedBucket) toBucket() types.AggregatedBucket {
	return types.AggregatedBucket{
		Target:      m.Target,
		PeriodStart: time.UnixMilli(m.PeriodStartMs).UTC(),
		PeriodEnd:   time.UnixMilli(m.PeriodEndMs).UTC(),
		SampleCount: m.SampleCount,
		CPUMin:      m.CPUMin,
		CPUAvg:      m.CPUAvg,
		CPUMax:      m.CPUMax,
		CPUP95:      m.CPUP95,
		MemUsedMin:  uint64(m.MemUsedMin),
		MemUsedAvg:  uint64(m.MemUsedAvg),
		MemUsedMax:  uint64(m.MemUsedMax),
		MemTotal:    uint64(m.MemTotal),
		DiskMin:     m.DiskMin,
		DiskAvg:     m.DiskAvg,
		DiskMax:     m.DiskMax,
		NetRxTotal:  uint64(m.NetRxTotal),
		NetTxTotal:  uint64(m.NetTxTotal),
		NetRxPeak:   uint64(m.NetRxPeak),
		NetTxPeak:   uint64(m.NetTxPeak),
	}
}

type alertLog struct {
	ID           int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Target       string  `gorm:"column:target;not null;index"`
	AlertType    string  `gorm:"column:alert_type;not null"`
	Threshold    float64 `gorm:"column:threshold;not null"`
	ActualValue  float64 `gorm:"column:actual_value;not null"`
	TimestampMs  int64   `gorm:"column:timestamp;not null;index"`
	Acknowledged bool    `gorm:"column:acknowledged;not null;default:false"`
}

func (alertLog) TableName() string { return "alert_log" }
