package collector

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/provider"
	"github.com/xtxerr/hostwatch/internal/storage/memory"
	"github.com/xtxerr/hostwatch/internal/storage/types"
	testutil "github.com/xtxerr/hostwatch/internal/testing"
	"github.com/xtxerr/hostwatch/internal/thresholds"
)

var base = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	alerts []FiredAlert
}

func (s *recordingSink) Deliver(_ context.Context, a FiredAlert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

type fixture struct {
	clock  *testutil.Clock
	source *testutil.FakeSource
	store  *memory.Store
	rules  *thresholds.Store
	sink   *recordingSink
	c      *Collector
}

func newFixture(t *testing.T, rules []types.AlertThreshold, targets ...string) *fixture {
	t.Helper()
	clock := testutil.NewClock(base)
	store := memory.New(memory.WithNow(clock.Now))
	th, err := thresholds.NewStore(rules)
	if err != nil {
		t.Fatalf("thresholds: %v", err)
	}
	f := &fixture{
		clock:  clock,
		source: testutil.NewFakeSource(clock.Now, targets...),
		store:  store,
		rules:  th,
		sink:   &recordingSink{},
	}
	f.c = New(nil, Deps{
		Discoverer: f.source,
		Provider:   f.source,
		Repository: store,
		Ledger:     store,
		Thresholds: th,
		Sink:       f.sink,
		Now:        clock.Now,
	})
	return f
}

func (f *fixture) alerts(t *testing.T, target string) []types.AlertRecord {
	t.Helper()
	recs, err := f.store.GetRecentAlerts(context.Background(), target, 0)
	if err != nil {
		t.Fatalf("GetRecentAlerts: %v", err)
	}
	return recs
}

func (f *fixture) rawCount(t *testing.T, target string) int {
	t.Helper()
	rows, err := f.store.QueryRaw(context.Background(), target, base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("QueryRaw: %v", err)
	}
	return len(rows)
}

var cpuOnly = []types.AlertThreshold{{Kind: types.AlertCPU, Percent: 90, Enabled: true}}

func TestTick_CooldownSuppression(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cpuOnly, "ubuntu")

	f.source.Fixed("ubuntu", 95, 10, 10)
	res := f.c.Tick(ctx)
	if res.AlertsFired != 1 {
		t.Fatalf("first tick fired %d alerts, want 1", res.AlertsFired)
	}

	f.clock.Advance(2 * time.Second)
	f.source.Fixed("ubuntu", 96, 10, 10)
	res = f.c.Tick(ctx)
	if res.AlertsFired != 0 || res.AlertsSuppressed != 1 {
		t.Fatalf("second tick fired=%d suppressed=%d, want 0/1", res.AlertsFired, res.AlertsSuppressed)
	}
	if n := len(f.alerts(t, "ubuntu")); n != 1 {
		t.Fatalf("alert records = %d, want 1", n)
	}

	f.clock.Set(base.Add(5 * time.Minute))
	res = f.c.Tick(ctx)
	if res.AlertsFired != 1 {
		t.Fatalf("tick after cooldown fired %d, want 1", res.AlertsFired)
	}

	recs := f.alerts(t, "ubuntu")
	if len(recs) != 2 {
		t.Fatalf("alert records = %d, want 2", len(recs))
	}
	if recs[0].Actual != 96 || recs[0].Threshold != 90 || recs[0].Kind != types.AlertCPU {
		t.Errorf("latest record = %+v", recs[0])
	}
	if f.sink.Len() != 2 {
		t.Errorf("delivered %d alerts, want 2", f.sink.Len())
	}
}

func TestTick_CooldownIsPerTargetAndKind(t *testing.T) {
	ctx := context.Background()
	rules := []types.AlertThreshold{
		{Kind: types.AlertCPU, Percent: 90, Enabled: true},
		{Kind: types.AlertDisk, Percent: 80, Enabled: true},
	}
	f := newFixture(t, rules, "a", "b")
	f.source.Fixed("a", 95, 0, 85)
	f.source.Fixed("b", 95, 0, 0)

	if res := f.c.Tick(ctx); res.AlertsFired != 3 {
		t.Fatalf("fired %d, want 3", res.AlertsFired)
	}
	if n := f.c.CooldownEntries(); n != 3 {
		t.Errorf("cooldown entries = %d, want 3", n)
	}
}

func TestTick_CooldownEviction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cpuOnly, "ubuntu")

	f.source.Fixed("ubuntu", 95, 0, 0)
	f.c.Tick(ctx)
	if f.c.CooldownEntries() != 1 {
		t.Fatal("expected a cooldown entry")
	}

	f.source.Fixed("ubuntu", 10, 0, 0)
	f.clock.Advance(5 * time.Minute)
	f.c.Tick(ctx)
	if n := f.c.CooldownEntries(); n != 0 {
		t.Errorf("cooldown entries = %d after window, want 0", n)
	}
}

func TestTick_VanishedTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cpuOnly, "A", "B")

	f.source.Script("B", func(_ context.Context, target string) (*types.Sample, error) {
		return nil, errors.NewNotFound("target", target)
	})
	f.source.Script("A", func(context.Context, string) (*types.Sample, error) {
		return nil, io.ErrUnexpectedEOF
	})

	res := f.c.Tick(ctx)
	if res.Failures != 2 || res.Vanished != 1 {
		t.Errorf("failures=%d vanished=%d, want 2/1", res.Failures, res.Vanished)
	}
}

func TestTick_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cpuOnly, "A", "B", "C")

	f.source.Fixed("A", 95, 0, 0)
	f.source.Fixed("C", 95, 0, 0)
	f.source.Script("B", func(context.Context, string) (*types.Sample, error) {
		return nil, io.ErrUnexpectedEOF
	})

	res := f.c.Tick(ctx)
	if res.Samples != 2 || res.Failures != 1 {
		t.Fatalf("samples=%d failures=%d, want 2/1", res.Samples, res.Failures)
	}

	for _, tt := range []struct {
		target string
		rows   int
		alerts int
	}{
		{"A", 1, 1},
		{"B", 0, 0},
		{"C", 1, 1},
	} {
		if n := f.rawCount(t, tt.target); n != tt.rows {
			t.Errorf("%s: raw rows = %d, want %d", tt.target, n, tt.rows)
		}
		if n := len(f.alerts(t, tt.target)); n != tt.alerts {
			t.Errorf("%s: alerts = %d, want %d", tt.target, n, tt.alerts)
		}
	}
}

func TestTick_ProviderPanicIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cpuOnly, "A", "B")
	f.source.Script("B", func(context.Context, string) (*types.Sample, error) {
		panic("driver bug")
	})

	res := f.c.Tick(ctx)
	if res.Samples != 1 || res.Failures != 1 {
		t.Fatalf("samples=%d failures=%d, want 1/1", res.Samples, res.Failures)
	}
	if f.rawCount(t, "A") != 1 {
		t.Error("A not persisted")
	}
}

func TestSampleOne_WrapsTransient(t *testing.T) {
	f := newFixture(t, cpuOnly, "B")
	f.source.Script("B", func(context.Context, string) (*types.Sample, error) {
		return nil, io.EOF
	})

	r := f.c.sampleOne(context.Background(), "B", base)
	if !errors.IsTransientCollection(r.Err) || !errors.Is(r.Err, io.EOF) {
		t.Fatalf("err = %v", r.Err)
	}
}

func TestTick_MemoryAlertSkippedWithoutTotal(t *testing.T) {
	ctx := context.Background()
	rules := []types.AlertThreshold{{Kind: types.AlertMemory, Percent: 0, Enabled: true}}
	f := newFixture(t, rules, "ubuntu")
	f.source.Script("ubuntu", func(context.Context, string) (*types.Sample, error) {
		return &types.Sample{Target: "ubuntu", Timestamp: base}, nil
	})

	if res := f.c.Tick(ctx); res.AlertsFired != 0 {
		t.Fatalf("fired %d memory alerts with zero total", res.AlertsFired)
	}
}

func TestTick_DisabledRuleDoesNotFire(t *testing.T) {
	ctx := context.Background()
	rules := []types.AlertThreshold{{Kind: types.AlertCPU, Percent: 10, Enabled: false}}
	f := newFixture(t, rules, "ubuntu")
	f.source.Fixed("ubuntu", 99, 0, 0)

	if res := f.c.Tick(ctx); res.AlertsFired != 0 {
		t.Fatalf("disabled rule fired")
	}
}

func TestTick_ThresholdSnapshotReplaced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cpuOnly, "ubuntu")
	f.source.Fixed("ubuntu", 50, 0, 0)

	if res := f.c.Tick(ctx); res.AlertsFired != 0 {
		t.Fatal("fired below threshold")
	}

	if _, err := f.rules.Set([]types.AlertThreshold{{Kind: types.AlertCPU, Percent: 50, Enabled: true}}); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(2 * time.Second)
	if res := f.c.Tick(ctx); res.AlertsFired != 1 {
		t.Fatal("new snapshot not picked up; value equal to threshold must fire")
	}
}

func TestTick_SkipsStoppedTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cpuOnly)
	f.source.SetTargets(
		provider.Target{ID: "up", State: provider.StateRunning},
		provider.Target{ID: "down", State: provider.StateStopped},
	)

	res := f.c.Tick(ctx)
	if res.Targets != 2 || res.Live != 1 {
		t.Fatalf("targets=%d live=%d", res.Targets, res.Live)
	}
	if f.source.Calls("down") != 0 {
		t.Error("stopped target sampled")
	}
}

func TestTick_TargetCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cpuOnly, "ubuntu")

	f.c.Tick(ctx)
	f.clock.Advance(2 * time.Second)
	f.c.Tick(ctx)
	if n := f.source.Listings(); n != 1 {
		t.Errorf("listings within TTL = %d, want 1", n)
	}

	f.clock.Advance(10 * time.Second)
	f.c.Tick(ctx)
	if n := f.source.Listings(); n != 2 {
		t.Errorf("listings after TTL = %d, want 2", n)
	}
}

func TestTick_DiscoveryFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("no cache skips tick", func(t *testing.T) {
		f := newFixture(t, cpuOnly, "ubuntu")
		f.source.FailListing(errors.Discovery("fake", io.EOF))

		res := f.c.Tick(ctx)
		if !res.Skipped {
			t.Fatal("tick not skipped")
		}
		if f.source.Calls("ubuntu") != 0 {
			t.Error("sampled without a target list")
		}
		if f.c.Stats().TicksSkipped != 1 {
			t.Errorf("skipped = %d", f.c.Stats().TicksSkipped)
		}
	})

	t.Run("stale cache reused within bound", func(t *testing.T) {
		f := newFixture(t, cpuOnly, "ubuntu")
		f.c.Tick(ctx)

		f.source.FailListing(io.EOF)
		f.clock.Advance(30 * time.Second)

		res := f.c.Tick(ctx)
		if res.Skipped || !res.StaleTargets || res.Samples != 1 {
			t.Fatalf("result = %+v", res)
		}
	})

	t.Run("stale cache expires", func(t *testing.T) {
		f := newFixture(t, cpuOnly, "ubuntu")
		f.c.Tick(ctx)

		f.source.FailListing(io.EOF)
		f.clock.Advance(61 * time.Second)
		if res := f.c.Tick(ctx); !res.Skipped {
			t.Fatalf("tick past stale bound not skipped: %+v", res)
		}

		f.source.FailListing(nil)
		f.clock.Advance(2 * time.Second)
		if res := f.c.Tick(ctx); res.Skipped || res.Samples != 1 {
			t.Fatalf("recovery tick = %+v", res)
		}
	})
}

// failingRepo fails every raw write.
type failingRepo struct {
	*memory.Store
}

func (failingRepo) StoreRaw(context.Context, *types.Sample) error {
	return errors.Storage("store raw", io.ErrClosedPipe)
}

func TestTick_StoreFailureStillAlerts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cpuOnly, "ubuntu")
	f.c.deps.Repository = failingRepo{f.store}
	f.source.Fixed("ubuntu", 95, 0, 0)

	res := f.c.Tick(ctx)
	if res.StoreFailures != 1 {
		t.Errorf("store failures = %d, want 1", res.StoreFailures)
	}
	if res.AlertsFired != 1 || len(f.alerts(t, "ubuntu")) != 1 {
		t.Fatal("alert not recorded after store failure")
	}
}

// failingLedger fails every alert write.
type failingLedger struct {
	*memory.Store
}

func (failingLedger) RecordAlert(context.Context, string, types.AlertKind, float64, float64) (*types.AlertRecord, error) {
	return nil, errors.Storage("record alert", io.ErrClosedPipe)
}

func TestTick_LedgerFailureStillDelivers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, cpuOnly, "ubuntu")
	f.c.deps.Ledger = failingLedger{f.store}
	f.source.Fixed("ubuntu", 95, 0, 0)

	f.c.Tick(ctx)
	if f.sink.Len() != 1 {
		t.Fatalf("delivered %d, want 1", f.sink.Len())
	}
	a := f.sink.alerts[0]
	if a.Persisted || a.Alert.Target != "ubuntu" || a.Alert.Actual != 95 {
		t.Errorf("alert = %+v", a)
	}
}

func TestCollect_WorkerBound(t *testing.T) {
	ctx := context.Background()
	ids := []string{"a", "b", "c", "d", "e", "f"}
	f := newFixture(t, cpuOnly, ids...)
	f.c.cfg.Workers = 2

	var active, peak atomic.Int32
	for _, id := range ids {
		f.source.Script(id, func(_ context.Context, target string) (*types.Sample, error) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return testutil.Percentages(target, base, 1, 1, 1), nil
		})
	}

	res := f.c.Tick(ctx)
	if res.Samples != len(ids) {
		t.Fatalf("samples = %d", res.Samples)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, cpuOnly, "ubuntu")
	f.c.cfg.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.c.Run(ctx) }()

	testutil.WaitFor(t, 2*time.Second, func() bool { return f.c.Stats().Ticks >= 2 }, "collector ticks")
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSampleOne_Normalizes(t *testing.T) {
	f := newFixture(t, cpuOnly, "ubuntu")
	f.source.Script("ubuntu", func(context.Context, string) (*types.Sample, error) {
		return &types.Sample{
			CPU:    types.CPUStats{UsagePercent: 130},
			Memory: types.MemoryStats{TotalBytes: 100, UsedBytes: 150},
		}, nil
	})

	r := f.c.sampleOne(context.Background(), "ubuntu", base)
	if r.Err != nil {
		t.Fatalf("err = %v", r.Err)
	}
	if r.Sample.Target != "ubuntu" || !r.Sample.Timestamp.Equal(base) {
		t.Errorf("identity not filled: %+v", r.Sample)
	}
	if err := r.Sample.Validate(); err != nil {
		t.Errorf("sample not normalized: %v", err)
	}
}
