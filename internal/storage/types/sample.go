package types

import (
	"fmt"
	"math"
	"time"
)

// CPUStats holds processor utilization.
type CPUStats struct {
	UsagePercent float64    `json:"usage_percent"`
	PerCore      []float64  `json:"per_core,omitempty"`
	LoadAverage  [3]float64 `json:"load_average"`
}

// MemoryStats holds memory and swap totals in bytes.
type MemoryStats struct {
	TotalBytes     uint64 `json:"total_bytes"`
	UsedBytes      uint64 `json:"used_bytes"`
	AvailableBytes uint64 `json:"available_bytes"`
	CachedBytes    uint64 `json:"cached_bytes"`
	SwapTotalBytes uint64 `json:"swap_total_bytes"`
	SwapUsedBytes  uint64 `json:"swap_used_bytes"`
}

// UsagePercent returns used/total*100. ok is false when total is zero.
func (m MemoryStats) UsagePercent() (pct float64, ok bool) {
	if m.TotalBytes == 0 {
		return 0, false
	}
	return float64(m.UsedBytes) / float64(m.TotalBytes) * 100, true
}

// DiskStats holds filesystem totals.
type DiskStats struct {
	TotalBytes     uint64  `json:"total_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// InterfaceStats holds the cumulative counters of one network interface.
type InterfaceStats struct {
	Name      string `json:"name"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
}

// Sample is one resource-utilization snapshot of a target.
// It is produced once per target per collection tick.
type Sample struct {
	Target    string    `json:"target"`
	Timestamp time.Time `json:"timestamp"`

	CPU        CPUStats         `json:"cpu"`
	Memory     MemoryStats      `json:"memory"`
	Disk       DiskStats        `json:"disk"`
	Interfaces []InterfaceStats `json:"interfaces"`
}

// NetTotals returns rx and tx bytes summed over all interfaces.
func (s *Sample) NetTotals() (rx, tx uint64) {
	for _, iface := range s.Interfaces {
		rx += iface.RxBytes
		tx += iface.TxBytes
	}
	return rx, tx
}

// Validate reports the first violated invariant, or nil.
func (s *Sample) Validate() error {
	if s.Target == "" {
		return fmt.Errorf("sample: empty target")
	}
	if s.Memory.TotalBytes > 0 && s.Memory.UsedBytes > s.Memory.TotalBytes {
		return fmt.Errorf("sample %s: memory used %d exceeds total %d",
			s.Target, s.Memory.UsedBytes, s.Memory.TotalBytes)
	}
	if s.Disk.TotalBytes > 0 && s.Disk.UsedBytes > s.Disk.TotalBytes {
		return fmt.Errorf("sample %s: disk used %d exceeds total %d",
			s.Target, s.Disk.UsedBytes, s.Disk.TotalBytes)
	}
	if s.Disk.UsagePercent < 0 || s.Disk.UsagePercent > 100 {
		return fmt.Errorf("sample %s: disk usage %.2f out of range", s.Target, s.Disk.UsagePercent)
	}
	if s.CPU.UsagePercent < 0 || s.CPU.UsagePercent > 100 {
		return fmt.Errorf("sample %s: cpu usage %.2f out of range", s.Target, s.CPU.UsagePercent)
	}
	return nil
}

// Normalize clamps percent fields into [0, 100] and caps used bytes at
// total. Providers call it on values read from sources that can overshoot.
func (s *Sample) Normalize() {
	s.CPU.UsagePercent = clampPercent(s.CPU.UsagePercent)
	for i, v := range s.CPU.PerCore {
		s.CPU.PerCore[i] = clampPercent(v)
	}
	s.Disk.UsagePercent = clampPercent(s.Disk.UsagePercent)
	if s.Memory.TotalBytes > 0 && s.Memory.UsedBytes > s.Memory.TotalBytes {
		s.Memory.UsedBytes = s.Memory.TotalBytes
	}
	if s.Disk.TotalBytes > 0 && s.Disk.UsedBytes > s.Disk.TotalBytes {
		s.Disk.UsedBytes = s.Disk.TotalBytes
	}
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// RawRow is the durable, flattened projection of a Sample. Network
// counters are collapsed into one rx and one tx total across interfaces.
type RawRow struct {
	Target    string
	Timestamp time.Time

	CPUPercent float64
	Load1      float64
	Load5      float64
	Load15     float64

	MemTotal     uint64
	MemUsed      uint64
	MemAvailable uint64
	MemCached    uint64
	SwapTotal    uint64
	SwapUsed     uint64

	DiskTotal     uint64
	DiskUsed      uint64
	DiskAvailable uint64
	DiskPercent   float64

	NetRxBytes uint64
	NetTxBytes uint64
}

// ToRawRow flattens the sample.
func (s *Sample) ToRawRow() RawRow {
	rx, tx := s.NetTotals()
	return RawRow{
		Target:        s.Target,
		Timestamp:     s.Timestamp.UTC(),
		CPUPercent:    s.CPU.UsagePercent,
		Load1:         s.CPU.LoadAverage[0],
		Load5:         s.CPU.LoadAverage[1],
		Load15:        s.CPU.LoadAverage[2],
		MemTotal:      s.Memory.TotalBytes,
		MemUsed:       s.Memory.UsedBytes,
		MemAvailable:  s.Memory.AvailableBytes,
		MemCached:     s.Memory.CachedBytes,
		SwapTotal:     s.Memory.SwapTotalBytes,
		SwapUsed:      s.Memory.SwapUsedBytes,
		DiskTotal:     s.Disk.TotalBytes,
		DiskUsed:      s.Disk.UsedBytes,
		DiskAvailable: s.Disk.AvailableBytes,
		DiskPercent:   s.Disk.UsagePercent,
		NetRxBytes:    rx,
		NetTxBytes:    tx,
	}
}
