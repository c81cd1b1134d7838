package snmp

import (
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// OIDs read per sample.
const (
	oidProcessorLoad = ".1.3.6.1.2.1.25.3.3.1.2" // hrProcessorLoad
	oidStorageEntry  = ".1.3.6.1.2.1.25.2.3.1"   // hrStorageEntry
	oidIfXEntry      = ".1.3.6.1.2.1.31.1.1.1"   // ifXEntry

	oidMemTotalSwap = ".1.3.6.1.4.1.2021.4.3.0"
	oidMemAvailSwap = ".1.3.6.1.4.1.2021.4.4.0"
	oidMemTotalReal = ".1.3.6.1.4.1.2021.4.5.0"
	oidMemAvailReal = ".1.3.6.1.4.1.2021.4.6.0"
	oidMemBuffer    = ".1.3.6.1.4.1.2021.4.14.0"
	oidMemCached    = ".1.3.6.1.4.1.2021.4.15.0"
	oidLoad1        = ".1.3.6.1.4.1.2021.10.1.3.1"
	oidLoad5        = ".1.3.6.1.4.1.2021.10.1.3.2"
	oidLoad15       = ".1.3.6.1.4.1.2021.10.1.3.3"
)

// hrStorageEntry columns.
const (
	colStorageDescr = 3
	colStorageUnits = 4
	colStorageSize  = 5
	colStorageUsed  = 6
)

// ifXEntry columns.
const (
	colIfName          = 1
	colIfHCInOctets    = 6
	colIfHCInUcastPkts = 7
	colIfHCOutOctets   = 10
	colIfHCOutUcastPkt = 11
)

var scalarOIDs = []string{
	oidMemTotalSwap, oidMemAvailSwap, oidMemTotalReal, oidMemAvailReal,
	oidMemBuffer, oidMemCached, oidLoad1, oidLoad5, oidLoad15,
}

// column splits a table OID below entry into its column number and row
// index.
func column(name, entry string) (col int, index string, ok bool) {
	rest, found := strings.CutPrefix(name, entry+".")
	if !found {
		return 0, "", false
	}
	colStr, index, found := strings.Cut(rest, ".")
	if !found {
		return 0, "", false
	}
	col, err := strconv.Atoi(colStr)
	if err != nil {
		return 0, "", false
	}
	return col, index, true
}

func toUint(pdu gosnmp.SnmpPDU) (uint64, bool) {
	switch pdu.Type {
	case gosnmp.Counter32, gosnmp.Counter64, gosnmp.Gauge32, gosnmp.Uinteger32, gosnmp.TimeTicks, gosnmp.Integer:
		v := gosnmp.ToBigInt(pdu.Value)
		if v.Sign() < 0 {
			return 0, false
		}
		return v.Uint64(), true
	default:
		return 0, false
	}
}

func toString(pdu gosnmp.SnmpPDU) string {
	if b, ok := pdu.Value.([]byte); ok {
		return string(b)
	}
	if s, ok := pdu.Value.(string); ok {
		return s
	}
	return ""
}

// parseCPU fills per-core loads and their mean from hrProcessorLoad rows.
func parseCPU(rows []gosnmp.SnmpPDU, out *types.CPUStats) {
	var sum float64
	for _, pdu := range rows {
		v, ok := toUint(pdu)
		if !ok {
			continue
		}
		out.PerCore = append(out.PerCore, float64(v))
		sum += float64(v)
	}
	if len(out.PerCore) > 0 {
		out.UsagePercent = sum / float64(len(out.PerCore))
	}
}

// parseScalars fills memory and load average from UCD-SNMP-MIB values,
// which are reported in kilobytes.
func parseScalars(vars []gosnmp.SnmpPDU, cpu *types.CPUStats, mem *types.MemoryStats) {
	kb := make(map[string]uint64, len(vars))
	for _, pdu := range vars {
		name := pdu.Name
		if !strings.HasPrefix(name, ".") {
			name = "." + name
		}
		switch name {
		case oidLoad1, oidLoad5, oidLoad15:
			f, err := strconv.ParseFloat(strings.TrimSpace(toString(pdu)), 64)
			if err != nil {
				continue
			}
			switch name {
			case oidLoad1:
				cpu.LoadAverage[0] = f
			case oidLoad5:
				cpu.LoadAverage[1] = f
			default:
				cpu.LoadAverage[2] = f
			}
		default:
			if v, ok := toUint(pdu); ok {
				kb[name] = v
			}
		}
	}

	mem.TotalBytes = kb[oidMemTotalReal] * 1024
	mem.AvailableBytes = kb[oidMemAvailReal] * 1024
	mem.CachedBytes = kb[oidMemCached] * 1024
	mem.SwapTotalBytes = kb[oidMemTotalSwap] * 1024
	mem.SwapUsedBytes = subFloor(kb[oidMemTotalSwap], kb[oidMemAvailSwap]) * 1024

	free := kb[oidMemAvailReal] + kb[oidMemBuffer] + kb[oidMemCached]
	mem.UsedBytes = subFloor(kb[oidMemTotalReal], free) * 1024
}

// parseStorage picks the hrStorage row whose description equals mount.
func parseStorage(rows []gosnmp.SnmpPDU, mount string, out *types.DiskStats) bool {
	descr := map[string]string{}
	units := map[string]uint64{}
	size := map[string]uint64{}
	used := map[string]uint64{}

	for _, pdu := range rows {
		col, idx, ok := column(pdu.Name, oidStorageEntry)
		if !ok {
			continue
		}
		switch col {
		case colStorageDescr:
			descr[idx] = toString(pdu)
		case colStorageUnits:
			units[idx], _ = toUint(pdu)
		case colStorageSize:
			size[idx], _ = toUint(pdu)
		case colStorageUsed:
			used[idx], _ = toUint(pdu)
		}
	}

	for idx, d := range descr {
		if d != mount {
			continue
		}
		u := units[idx]
		out.TotalBytes = size[idx] * u
		out.UsedBytes = used[idx] * u
		out.AvailableBytes = subFloor(out.TotalBytes, out.UsedBytes)
		if out.TotalBytes > 0 {
			out.UsagePercent = float64(out.UsedBytes) / float64(out.TotalBytes) * 100
		}
		return true
	}
	return false
}

// parseInterfaces builds interface counters from ifXEntry rows.
func parseInterfaces(rows []gosnmp.SnmpPDU, exclude []string) []types.InterfaceStats {
	byIndex := map[string]*types.InterfaceStats{}
	var order []string

	get := func(idx string) *types.InterfaceStats {
		if s, ok := byIndex[idx]; ok {
			return s
		}
		s := &types.InterfaceStats{}
		byIndex[idx] = s
		order = append(order, idx)
		return s
	}

	for _, pdu := range rows {
		col, idx, ok := column(pdu.Name, oidIfXEntry)
		if !ok {
			continue
		}
		switch col {
		case colIfName:
			get(idx).Name = toString(pdu)
		case colIfHCInOctets:
			get(idx).RxBytes, _ = toUint(pdu)
		case colIfHCOutOctets:
			get(idx).TxBytes, _ = toUint(pdu)
		case colIfHCInUcastPkts:
			get(idx).RxPackets, _ = toUint(pdu)
		case colIfHCOutUcastPkt:
			get(idx).TxPackets, _ = toUint(pdu)
		}
	}

	out := make([]types.InterfaceStats, 0, len(order))
	for _, idx := range order {
		s := byIndex[idx]
		if excluded(s.Name, exclude) {
			continue
		}
		out = append(out, *s)
	}
	return out
}

func excluded(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func subFloor(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
