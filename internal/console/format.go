package console

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/xtxerr/hostwatch/internal/storage/query"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// PrintHistory renders a history response as a table. maxRows > 0 keeps
// only the most recent rows.
func PrintHistory(w io.Writer, h *query.History, maxRows int) {
	fmt.Fprintf(w, "%s  granularity=%s  points=%d\n", h.Target, h.Granularity, len(h.Points))

	points := h.Points
	if maxRows > 0 && len(points) > maxRows {
		points = points[len(points)-maxRows:]
	}

	table := newTable(w)
	table.SetHeader([]string{"time", "cpu %", "mem used", "mem %", "disk %", "rx/s", "tx/s"})
	for _, p := range points {
		memPct := "-"
		if p.MemTotalBytes > 0 {
			memPct = pct(float64(p.MemUsedBytes) / float64(p.MemTotalBytes) * 100)
		}
		table.Append([]string{
			p.Timestamp.Local().Format(time.TimeOnly),
			pct(p.CPUAvg),
			bytes(float64(p.MemUsedBytes)),
			memPct,
			pct(p.DiskUsagePercent),
			bytes(p.NetRxRate),
			bytes(p.NetTxRate),
		})
	}
	table.Render()
}

// PrintAlerts renders alert records most recent first.
func PrintAlerts(w io.Writer, alerts []types.AlertRecord) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "no alerts")
		return
	}

	table := newTable(w)
	table.SetHeader([]string{"id", "time", "target", "kind", "actual", "threshold", "ack"})
	for _, a := range alerts {
		ack := ""
		if a.Acknowledged {
			ack = "yes"
		}
		table.Append([]string{
			strconv.FormatInt(a.ID, 10),
			a.Timestamp.Local().Format(time.DateTime),
			a.Target,
			a.Kind.String(),
			pct(a.Actual),
			pct(a.Threshold),
			ack,
		})
	}
	table.Render()
}

// PrintThresholds renders the alert rules.
func PrintThresholds(w io.Writer, rules []types.AlertThreshold) {
	table := newTable(w)
	table.SetHeader([]string{"kind", "percent", "enabled"})
	for _, r := range rules {
		table.Append([]string{r.Kind.String(), pct(r.Percent), strconv.FormatBool(r.Enabled)})
	}
	table.Render()
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func pct(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func bytes(v float64) string {
	const unit = 1024
	if v < unit {
		return strconv.FormatFloat(v, 'f', 0, 64) + "B"
	}
	div, exp := float64(unit), 0
	for n := v / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", v/div, "KMGTP"[exp])
}
