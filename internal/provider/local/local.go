// Package local samples the host hostwatch runs on through gopsutil.
package local

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/provider"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// Config holds local source configuration.
type Config struct {
	// Name is the target ID. Empty uses the hostname.
	Name string `yaml:"name"`

	// DiskPath is the mount point whose usage is reported.
	DiskPath string `yaml:"disk_path"`

	// ExcludeInterfaces are interface name prefixes left out of the
	// network totals.
	ExcludeInterfaces []string `yaml:"exclude_interfaces"`
}

// DefaultConfig returns default local source configuration.
func DefaultConfig() Config {
	return Config{
		DiskPath:          "/",
		ExcludeInterfaces: []string{"lo"},
	}
}

// Source is a provider.Source for the local host.
type Source struct {
	cfg Config
	now func() time.Time
}

// New creates a local source.
func New(cfg Config) *Source {
	if cfg.Name == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.Name = h
		} else {
			cfg.Name = "localhost"
		}
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	return &Source{cfg: cfg, now: time.Now}
}

// Name implements provider.Source.
func (s *Source) Name() string { return "local" }

// ListTargets reports the local host, always running.
func (s *Source) ListTargets(ctx context.Context) ([]provider.Target, error) {
	return []provider.Target{{ID: s.cfg.Name, State: provider.StateRunning}}, nil
}

// Sample reads CPU, load, memory, disk and interface counters. CPU
// percentages are measured since the previous call.
func (s *Source) Sample(ctx context.Context, target string) (*types.Sample, error) {
	if target != s.cfg.Name {
		return nil, errors.Collection(target, errors.NewNotFound("target", target))
	}

	out := &types.Sample{Target: target, Timestamp: s.now().UTC()}

	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, errors.Collection(target, errors.Wrap(err, "cpu"))
	}
	out.CPU.PerCore = perCore
	out.CPU.UsagePercent = mean(perCore)

	if avg, err := load.AvgWithContext(ctx); err == nil {
		out.CPU.LoadAverage = [3]float64{avg.Load1, avg.Load5, avg.Load15}
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, errors.Collection(target, errors.Wrap(err, "memory"))
	}
	out.Memory = types.MemoryStats{
		TotalBytes:     vm.Total,
		UsedBytes:      vm.Used,
		AvailableBytes: vm.Available,
		CachedBytes:    vm.Cached,
	}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		out.Memory.SwapTotalBytes = sw.Total
		out.Memory.SwapUsedBytes = sw.Used
	}

	du, err := disk.UsageWithContext(ctx, s.cfg.DiskPath)
	if err != nil {
		return nil, errors.Collection(target, errors.Wrapf(err, "disk %s", s.cfg.DiskPath))
	}
	out.Disk = types.DiskStats{
		TotalBytes:     du.Total,
		UsedBytes:      du.Used,
		AvailableBytes: du.Free,
		UsagePercent:   du.UsedPercent,
	}

	counters, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, errors.Collection(target, errors.Wrap(err, "network"))
	}
	for _, c := range counters {
		if s.excluded(c.Name) {
			continue
		}
		out.Interfaces = append(out.Interfaces, types.InterfaceStats{
			Name:      c.Name,
			RxBytes:   c.BytesRecv,
			TxBytes:   c.BytesSent,
			RxPackets: c.PacketsRecv,
			TxPackets: c.PacketsSent,
		})
	}

	out.Normalize()
	return out, nil
}

func (s *Source) excluded(name string) bool {
	for _, prefix := range s.cfg.ExcludeInterfaces {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
