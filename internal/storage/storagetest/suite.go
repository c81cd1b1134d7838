// Package storagetest provides a conformance suite shared by every storage
// backend.
package storagetest

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/xtxerr/hostwatch/internal/storage"
	"github.com/xtxerr/hostwatch/internal/storage/types"
	testutil "github.com/xtxerr/hostwatch/internal/testing"
)

// Opener opens a fresh, empty backend whose alert timestamps come from clock.
type Opener func(t *testing.T, clock *testutil.Clock) storage.Store

// Run executes the conformance suite against the backend.
func Run(t *testing.T, open Opener) {
	t.Run("RawRoundTripKeepsInvariants", func(t *testing.T) { testRawRoundTrip(t, open) })
	t.Run("QueryRawBoundsAndOrder", func(t *testing.T) { testQueryRawBounds(t, open) })
	t.Run("AggregateIdempotent", func(t *testing.T) { testAggregateIdempotent(t, open) })
	t.Run("AggregateWindowHalfOpen", func(t *testing.T) { testAggregateWindow(t, open) })
	t.Run("StoreAggregatedInsertIfAbsent", func(t *testing.T) { testStoreAggregated(t, open) })
	t.Run("Retention", func(t *testing.T) { testRetention(t, open) })
	t.Run("AlertLedger", func(t *testing.T) { testAlertLedger(t, open) })
	t.Run("AlertPurge", func(t *testing.T) { testAlertPurge(t, open) })
}

// Minute is the fixed base time used by the suite.
var Minute = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

// RandomSample builds a sample that satisfies the Sample invariants.
func RandomSample(rng *rand.Rand, target string, ts time.Time) *types.Sample {
	memTotal := uint64(rng.Int63n(64<<30)) + 1
	diskTotal := uint64(rng.Int63n(1<<40)) + 1
	diskUsed := uint64(rng.Int63n(int64(diskTotal) + 1))

	s := &types.Sample{
		Target:    target,
		Timestamp: ts,
		CPU: types.CPUStats{
			UsagePercent: rng.Float64() * 100,
			LoadAverage:  [3]float64{rng.Float64() * 8, rng.Float64() * 8, rng.Float64() * 8},
		},
		Memory: types.MemoryStats{
			TotalBytes:     memTotal,
			UsedBytes:      uint64(rng.Int63n(int64(memTotal) + 1)),
			AvailableBytes: uint64(rng.Int63n(int64(memTotal) + 1)),
			CachedBytes:    uint64(rng.Int63n(int64(memTotal) + 1)),
			SwapTotalBytes: 4 << 30,
			SwapUsedBytes:  uint64(rng.Int63n(4 << 30)),
		},
		Disk: types.DiskStats{
			TotalBytes:     diskTotal,
			UsedBytes:      diskUsed,
			AvailableBytes: diskTotal - diskUsed,
			UsagePercent:   float64(diskUsed) / float64(diskTotal) * 100,
		},
		Interfaces: []types.InterfaceStats{
			{Name: "eth0", RxBytes: uint64(rng.Int63n(1 << 40)), TxBytes: uint64(rng.Int63n(1 << 40))},
			{Name: "lo", RxBytes: uint64(rng.Int63n(1 << 30)), TxBytes: uint64(rng.Int63n(1 << 30))},
		},
	}
	return s
}

// CPUSample builds a minimal sample with the given CPU percent.
func CPUSample(target string, ts time.Time, cpu float64) *types.Sample {
	return &types.Sample{
		Target:    target,
		Timestamp: ts,
		CPU:       types.CPUStats{UsagePercent: cpu},
		Memory:    types.MemoryStats{TotalBytes: 1000, UsedBytes: 500},
		Disk:      types.DiskStats{TotalBytes: 100, UsedBytes: 50, UsagePercent: 50},
	}
}

func testRawRoundTrip(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, testutil.NewClock(Minute))

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	want := make(map[int64]types.RawRow)

	for i := 0; i < 200; i++ {
		ts := Minute.Add(time.Duration(i) * 2 * time.Second)
		s := RandomSample(rng, "ubuntu", ts)
		if err := s.Validate(); err != nil {
			t.Fatalf("generator produced invalid sample: %v", err)
		}
		if err := store.StoreRaw(ctx, s); err != nil {
			t.Fatalf("StoreRaw: %v", err)
		}
		want[ts.Unix()] = s.ToRawRow()
	}

	rows, err := store.QueryRaw(ctx, "ubuntu", Minute, Minute.Add(time.Hour))
	if err != nil {
		t.Fatalf("QueryRaw: %v", err)
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}

	for _, row := range rows {
		if row.MemTotal > 0 && row.MemUsed > row.MemTotal {
			t.Errorf("memory invariant violated: used %d > total %d", row.MemUsed, row.MemTotal)
		}
		if row.DiskTotal > 0 && row.DiskUsed > row.DiskTotal {
			t.Errorf("disk invariant violated: used %d > total %d", row.DiskUsed, row.DiskTotal)
		}
		if row.DiskPercent < 0 || row.DiskPercent > 100 {
			t.Errorf("disk percent out of range: %v", row.DiskPercent)
		}

		orig, ok := want[row.Timestamp.Unix()]
		if !ok {
			t.Errorf("unexpected row at %v", row.Timestamp)
			continue
		}
		if row.MemUsed != orig.MemUsed || row.DiskUsed != orig.DiskUsed ||
			row.NetRxBytes != orig.NetRxBytes || row.NetTxBytes != orig.NetTxBytes {
			t.Errorf("row at %v changed in round trip: got %+v, want %+v", row.Timestamp, row, orig)
		}
	}
}

func testQueryRawBounds(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, testutil.NewClock(Minute))

	// Insert out of order.
	for _, sec := range []int{30, 10, 20, 40} {
		if err := store.StoreRaw(ctx, CPUSample("ubuntu", Minute.Add(time.Duration(sec)*time.Second), float64(sec))); err != nil {
			t.Fatalf("StoreRaw: %v", err)
		}
	}
	if err := store.StoreRaw(ctx, CPUSample("debian", Minute.Add(20*time.Second), 99)); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}

	rows, err := store.QueryRaw(ctx, "ubuntu", Minute.Add(10*time.Second), Minute.Add(30*time.Second))
	if err != nil {
		t.Fatalf("QueryRaw: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (inclusive bounds)", len(rows))
	}
	for i, want := range []float64{10, 20, 30} {
		if rows[i].CPUPercent != want {
			t.Errorf("rows[%d].cpu = %v, want %v", i, rows[i].CPUPercent, want)
		}
		if rows[i].Target != "ubuntu" {
			t.Errorf("rows[%d].target = %q", i, rows[i].Target)
		}
	}
}

func testAggregateIdempotent(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, testutil.NewClock(Minute))

	if err := store.StoreRaw(ctx, CPUSample("ubuntu", Minute.Add(5*time.Second), 40)); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}
	if err := store.StoreRaw(ctx, CPUSample("ubuntu", Minute.Add(35*time.Second), 60)); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}

	start := Minute.Add(-30 * time.Minute)
	end := Minute.Add(5 * time.Minute)

	created, err := store.AggregateRawBuckets(ctx, start, end)
	if err != nil {
		t.Fatalf("AggregateRawBuckets: %v", err)
	}
	if created != 1 {
		t.Errorf("first run created %d buckets, want 1", created)
	}

	check := func(label string) {
		buckets, err := store.QueryAggregated(ctx, "ubuntu", start, end)
		if err != nil {
			t.Fatalf("%s: QueryAggregated: %v", label, err)
		}
		if len(buckets) != 1 {
			t.Fatalf("%s: got %d buckets, want 1", label, len(buckets))
		}
		b := buckets[0]
		if !b.PeriodStart.Equal(Minute) || !b.PeriodEnd.Equal(Minute.Add(time.Minute)) {
			t.Errorf("%s: period = [%v, %v), want [10:00:00, 10:01:00)", label, b.PeriodStart, b.PeriodEnd)
		}
		if b.CPUAvg != 50.0 {
			t.Errorf("%s: cpu_avg = %v, want 50", label, b.CPUAvg)
		}
		if b.SampleCount != 2 {
			t.Errorf("%s: sample_count = %d, want 2", label, b.SampleCount)
		}
		if b.CPUMin != 40 || b.CPUMax != 60 {
			t.Errorf("%s: cpu min/max = %v/%v, want 40/60", label, b.CPUMin, b.CPUMax)
		}
	}
	check("first run")

	// Overlapping second window.
	created, err = store.AggregateRawBuckets(ctx, start.Add(10*time.Minute), end.Add(time.Minute))
	if err != nil {
		t.Fatalf("second AggregateRawBuckets: %v", err)
	}
	if created != 0 {
		t.Errorf("second run created %d buckets, want 0", created)
	}
	check("second run")
}

func testAggregateWindow(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, testutil.NewClock(Minute))

	// One row in the window, one exactly at the exclusive end.
	if err := store.StoreRaw(ctx, CPUSample("ubuntu", Minute.Add(10*time.Second), 10)); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}
	if err := store.StoreRaw(ctx, CPUSample("ubuntu", Minute.Add(time.Minute), 90)); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}

	created, err := store.AggregateRawBuckets(ctx, Minute, Minute.Add(time.Minute))
	if err != nil {
		t.Fatalf("AggregateRawBuckets: %v", err)
	}
	if created != 1 {
		t.Fatalf("created %d buckets, want 1", created)
	}

	buckets, err := store.QueryAggregated(ctx, "ubuntu", Minute, Minute.Add(time.Hour))
	if err != nil {
		t.Fatalf("QueryAggregated: %v", err)
	}
	if len(buckets) != 1 || buckets[0].CPUAvg != 10 {
		t.Errorf("buckets = %+v, want one bucket with cpu_avg 10", buckets)
	}
}

func testStoreAggregated(t *testing.T, open Opener) {
	ctx := context.Background()
	store := open(t, testutil.NewClock(Minute))

	b := types.AggregatedBucket{
		Target:      "ubuntu",
		PeriodStart: Minute,
		PeriodEnd:   Minute.Add(time.Minute),
		SampleCount: 30,
		CPUAvg:      12,
		NetRxTotal:  6000,
	}
	if err := store.StoreAggregated(ctx, &b); err != nil {
		t.Fatalf("StoreAggregated: %v", err)
	}

	dup := b
	dup.CPUAvg = 99
	if err := store.StoreAggregated(ctx, &dup); err != nil {
		t.Fatalf("duplicate StoreAggregated: %v", err)
	}

	later := b
	later.PeriodStart = Minute.Add(time.Minute)
	later.PeriodEnd = Minute.Add(2 * time.Minute)
	if err := store.StoreAggregated(ctx, &later); err != nil {
		t.Fatalf("StoreAggregated: %v", err)
	}

	buckets, err := store.QueryAggregated(ctx, "ubuntu", Minute, Minute.Add(time.Minute))
	if err != nil {
		t.Fatalf("QueryAggregated: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("got %d buckets, want 2", len(buckets))
	}
	if buckets[0].CPUAvg != 12 {
		t.Errorf("duplicate insert overwrote bucket: cpu_avg = %v", buckets[0].CPUAvg)
	}
	if !buckets[0].PeriodStart.Before(buckets[1].PeriodStart) {
		t.Error("buckets not ordered by period_start")
	}
}

func testRetention(t *testing.T, open Opener) {
	ctx := context.Background()
	now := Minute.Add(48 * time.Hour)
	store := open(t, testutil.NewClock(now))

	if err := store.StoreRaw(ctx, CPUSample("ubuntu", now.Add(-2*time.Hour), 10)); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}
	if err := store.StoreRaw(ctx, CPUSample("ubuntu", now.Add(-10*time.Minute), 20)); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}

	old := types.AggregatedBucket{Target: "ubuntu", PeriodStart: now.Add(-25 * time.Hour), PeriodEnd: now.Add(-25*time.Hour + time.Minute), SampleCount: 1}
	fresh := types.AggregatedBucket{Target: "ubuntu", PeriodStart: now.Add(-2 * time.Hour), PeriodEnd: now.Add(-2*time.Hour + time.Minute), SampleCount: 1}
	for _, b := range []*types.AggregatedBucket{&old, &fresh} {
		if err := store.StoreAggregated(ctx, b); err != nil {
			t.Fatalf("StoreAggregated: %v", err)
		}
	}

	n, err := store.PurgeRawBefore(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PurgeRawBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d raw rows, want 1", n)
	}

	rows, err := store.QueryRaw(ctx, "ubuntu", now.Add(-3*time.Hour), now)
	if err != nil {
		t.Fatalf("QueryRaw: %v", err)
	}
	if len(rows) != 1 || rows[0].CPUPercent != 20 {
		t.Errorf("rows after purge = %+v, want only the 10-minute-old row", rows)
	}

	n, err = store.PurgeAggregatedBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeAggregatedBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d buckets, want 1", n)
	}

	buckets, err := store.QueryAggregated(ctx, "ubuntu", now.Add(-48*time.Hour), now)
	if err != nil {
		t.Fatalf("QueryAggregated: %v", err)
	}
	if len(buckets) != 1 || !buckets[0].PeriodStart.Equal(fresh.PeriodStart) {
		t.Errorf("buckets after purge = %+v, want only the 2h-old bucket", buckets)
	}
}

func testAlertLedger(t *testing.T, open Opener) {
	ctx := context.Background()
	clock := testutil.NewClock(Minute)
	store := open(t, clock)

	var ids []int64
	for i, target := range []string{"ubuntu", "debian", "ubuntu", "ubuntu"} {
		clock.Set(Minute.Add(time.Duration(i) * time.Minute))
		rec, err := store.RecordAlert(ctx, target, types.AlertCPU, 90, 91+float64(i))
		if err != nil {
			t.Fatalf("RecordAlert: %v", err)
		}
		if rec.Acknowledged {
			t.Error("new record should not be acknowledged")
		}
		ids = append(ids, rec.ID)
	}

	recent, err := store.GetRecentAlerts(ctx, "ubuntu", 2)
	if err != nil {
		t.Fatalf("GetRecentAlerts: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d alerts, want 2", len(recent))
	}
	if recent[0].ID != ids[3] || recent[1].ID != ids[2] {
		t.Errorf("order = [%d %d], want [%d %d]", recent[0].ID, recent[1].ID, ids[3], ids[2])
	}
	if recent[0].Kind != types.AlertCPU || recent[0].Threshold != 90 || recent[0].Actual != 94 {
		t.Errorf("record fields = %+v", recent[0])
	}

	all, err := store.GetRecentAlerts(ctx, "", 10)
	if err != nil {
		t.Fatalf("GetRecentAlerts all: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("got %d alerts across targets, want 4", len(all))
	}

	if err := store.AcknowledgeAlert(ctx, ids[2]); err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	if err := store.AcknowledgeAlert(ctx, 999999); err != nil {
		t.Errorf("acknowledging unknown id should be a no-op, got %v", err)
	}

	recent, err = store.GetRecentAlerts(ctx, "ubuntu", 10)
	if err != nil {
		t.Fatalf("GetRecentAlerts: %v", err)
	}
	for _, rec := range recent {
		if want := rec.ID == ids[2]; rec.Acknowledged != want {
			t.Errorf("alert %d acknowledged = %v, want %v", rec.ID, rec.Acknowledged, want)
		}
	}
}

func testAlertPurge(t *testing.T, open Opener) {
	ctx := context.Background()
	now := Minute.Add(48 * time.Hour)
	clock := testutil.NewClock(now.Add(-25 * time.Hour))
	store := open(t, clock)

	if _, err := store.RecordAlert(ctx, "ubuntu", types.AlertDisk, 80, 85); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	clock.Set(now.Add(-time.Hour))
	if _, err := store.RecordAlert(ctx, "ubuntu", types.AlertMemory, 80, 81); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}

	n, err := store.PurgeAlertsBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeAlertsBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d alerts, want 1", n)
	}

	left, err := store.GetRecentAlerts(ctx, "ubuntu", 10)
	if err != nil {
		t.Fatalf("GetRecentAlerts: %v", err)
	}
	if len(left) != 1 || left[0].Kind != types.AlertMemory {
		t.Errorf("alerts after purge = %+v, want the memory alert only", left)
	}
}
