package libvirt

import (
	"sort"
	"strings"

	golibvirt "github.com/digitalocean/go-libvirt"

	"github.com/xtxerr/hostwatch/internal/provider"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// Balloon fields are in KiB.
const (
	balloonAvailable = "balloon.available"
	balloonUnused    = "balloon.unused"
	balloonUsable    = "balloon.usable"
)

const (
	netSuffixName    = ".name"
	netSuffixRxBytes = ".rx.bytes"
	netSuffixTxBytes = ".tx.bytes"
	netSuffixRxPkts  = ".rx.pkts"
	netSuffixTxPkts  = ".tx.pkts"
)

type params struct {
	uints map[string]uint64
	strs  map[string]string
}

func decodeParams(ps []golibvirt.TypedParam) params {
	out := params{uints: map[string]uint64{}, strs: map[string]string{}}
	for _, p := range ps {
		if v, ok := p.Value.I.(string); ok {
			out.strs[p.Field] = v
			continue
		}
		out.uints[p.Field] = asUint64(p.Value.I)
	}
	return out
}

// memory reports guest memory. Used comes from the balloon driver's
// guest view when available, otherwise the balloon size counts as used.
func (p params) memory() types.MemoryStats {
	current := p.uints[golibvirt.DomainStatsBalloonCurrent] * 1024
	total := p.uints[golibvirt.DomainStatsBalloonMaximum] * 1024
	if total == 0 {
		total = current
	}

	m := types.MemoryStats{TotalBytes: total, UsedBytes: current}
	if avail := p.uints[balloonAvailable] * 1024; avail > 0 {
		unused := p.uints[balloonUnused] * 1024
		if unused <= avail {
			m.UsedBytes = avail - unused
		}
		m.AvailableBytes = p.uints[balloonUsable] * 1024
	}
	return m
}

// disk reports the first block device's allocation against its capacity.
func (p params) disk() types.DiskStats {
	capacity := p.uints["block.0.capacity"]
	alloc := p.uints["block.0.allocation"]
	d := types.DiskStats{TotalBytes: capacity, UsedBytes: alloc}
	if capacity > 0 {
		if alloc > capacity {
			alloc = capacity
		}
		d.AvailableBytes = capacity - alloc
		d.UsagePercent = float64(alloc) / float64(capacity) * 100
	}
	return d
}

// interfaces groups net.<n>.* fields by index.
func (p params) interfaces() []types.InterfaceStats {
	byIndex := map[string]*types.InterfaceStats{}
	get := func(idx string) *types.InterfaceStats {
		s, ok := byIndex[idx]
		if !ok {
			s = &types.InterfaceStats{}
			byIndex[idx] = s
		}
		return s
	}

	for key, v := range p.strs {
		if idx, ok := netIndex(key, netSuffixName); ok {
			get(idx).Name = v
		}
	}
	for key, v := range p.uints {
		switch {
		case strings.HasSuffix(key, netSuffixRxBytes):
			if idx, ok := netIndex(key, netSuffixRxBytes); ok {
				get(idx).RxBytes = v
			}
		case strings.HasSuffix(key, netSuffixTxBytes):
			if idx, ok := netIndex(key, netSuffixTxBytes); ok {
				get(idx).TxBytes = v
			}
		case strings.HasSuffix(key, netSuffixRxPkts):
			if idx, ok := netIndex(key, netSuffixRxPkts); ok {
				get(idx).RxPackets = v
			}
		case strings.HasSuffix(key, netSuffixTxPkts):
			if idx, ok := netIndex(key, netSuffixTxPkts); ok {
				get(idx).TxPackets = v
			}
		}
	}

	keys := make([]string, 0, len(byIndex))
	for k := range byIndex {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.InterfaceStats, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byIndex[k])
	}
	return out
}

func netIndex(key, suffix string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "net.")
	if !ok {
		return "", false
	}
	idx, ok := strings.CutSuffix(rest, suffix)
	if !ok || idx == "" || strings.Contains(idx, ".") {
		return "", false
	}
	return idx, true
}

// domainState maps virDomainState onto target availability.
func domainState(v uint64) provider.State {
	switch v {
	case 1, 2: // running, blocked
		return provider.StateRunning
	case 3, 4, 5, 6, 7: // paused, shutdown, shutoff, crashed, pmsuspended
		return provider.StateStopped
	default:
		return provider.StateUnknown
	}
}

func asUint64(v any) uint64 {
	switch t := v.(type) {
	case uint64:
		return t
	case uint32:
		return uint64(t)
	case int64:
		if t < 0 {
			return 0
		}
		return uint64(t)
	case int32:
		if t < 0 {
			return 0
		}
		return uint64(t)
	case int:
		if t < 0 {
			return 0
		}
		return uint64(t)
	case float64:
		if t < 0 {
			return 0
		}
		return uint64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}
