package query

import (
	"context"
	"io"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/memory"
	"github.com/xtxerr/hostwatch/internal/storage/storagetest"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

func TestResolver_TierSelection(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	base := storagetest.Minute

	for i := 0; i < 90; i++ {
		s := storagetest.CPUSample("ubuntu", base.Add(time.Duration(i)*time.Minute), float64(i%100))
		if err := store.StoreRaw(ctx, s); err != nil {
			t.Fatalf("StoreRaw: %v", err)
		}
	}
	if _, err := store.AggregateRawBuckets(ctx, base, base.Add(2*time.Hour)); err != nil {
		t.Fatalf("AggregateRawBuckets: %v", err)
	}

	r := New(store, DefaultOptions())

	tests := []struct {
		name string
		span time.Duration
		want types.Tier
	}{
		{"60 minutes", 60 * time.Minute, types.TierRaw},
		{"61 minutes", 61 * time.Minute, types.TierMinute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := r.History(ctx, "ubuntu", base, base.Add(tt.span))
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if h.Granularity != tt.want {
				t.Errorf("granularity = %s, want %s", h.Granularity, tt.want)
			}
			if h.Target != "ubuntu" {
				t.Errorf("target = %q", h.Target)
			}
			if len(h.Points) == 0 {
				t.Fatal("no points")
			}
			p := h.Points[0]
			if tt.want == types.TierMinute && (p.CPUMin == nil || p.CPUMax == nil) {
				t.Error("aggregated point missing cpu min/max")
			}
			if tt.want == types.TierRaw && (p.CPUMin != nil || p.CPUMax != nil) {
				t.Error("raw point should not carry cpu min/max")
			}
		})
	}

	stats := r.Stats()
	if stats.RawQueries != 1 || stats.BucketQueries != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestResolver_InvalidRange(t *testing.T) {
	r := New(memory.New(), DefaultOptions())
	_, err := r.History(context.Background(), "ubuntu", storagetest.Minute.Add(time.Minute), storagetest.Minute)
	if !errors.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

type failingRepo struct {
	*memory.Store
}

func (failingRepo) QueryRaw(context.Context, string, time.Time, time.Time) ([]types.RawRow, error) {
	return nil, io.ErrUnexpectedEOF
}

func TestResolver_StorageError(t *testing.T) {
	r := New(failingRepo{memory.New()}, DefaultOptions())
	_, err := r.History(context.Background(), "ubuntu", storagetest.Minute, storagetest.Minute.Add(time.Minute))
	if !errors.IsStorage(err) {
		t.Fatalf("err = %v, want storage error", err)
	}
	if r.Stats().Errors != 1 {
		t.Errorf("errors = %d", r.Stats().Errors)
	}
}

func TestRawPoints_Rates(t *testing.T) {
	base := storagetest.Minute
	rows := []types.RawRow{
		{Timestamp: base, NetRxBytes: 1000, NetTxBytes: 500},
		{Timestamp: base.Add(2 * time.Second), NetRxBytes: 3000, NetTxBytes: 900},
		{Timestamp: base.Add(4 * time.Second), NetRxBytes: 100, NetTxBytes: 1000},
	}

	points := RawPoints(rows, 2*time.Second)

	want := []struct{ rx, tx float64 }{
		{0, 0},
		{1000, 200},
		{0, 50},
	}
	for i, w := range want {
		if points[i].NetRxRate != w.rx || points[i].NetTxRate != w.tx {
			t.Errorf("point %d rate = %v/%v, want %v/%v", i, points[i].NetRxRate, points[i].NetTxRate, w.rx, w.tx)
		}
	}
}

// Counters in any order must never produce a negative or wrapped rate.
func TestRawPoints_NeverUnderflows(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for iter := 0; iter < 100; iter++ {
		rows := make([]types.RawRow, 50)
		for i := range rows {
			rows[i] = types.RawRow{
				Timestamp:  storagetest.Minute.Add(time.Duration(i) * 2 * time.Second),
				NetRxBytes: rng.Uint64(),
				NetTxBytes: uint64(rng.Intn(1 << 20)),
			}
		}
		for i, p := range RawPoints(rows, 2*time.Second) {
			if p.NetRxRate < 0 || p.NetTxRate < 0 || math.IsNaN(p.NetRxRate) || math.IsInf(p.NetRxRate, 0) {
				t.Fatalf("iteration %d point %d: rate %v/%v", iter, i, p.NetRxRate, p.NetTxRate)
			}
			if p.NetRxRate > float64(math.MaxUint64)/2 {
				t.Fatalf("iteration %d point %d: rx rate %v looks wrapped", iter, i, p.NetRxRate)
			}
		}
	}
}

func TestBucketPoints_Rates(t *testing.T) {
	base := storagetest.Minute
	buckets := []types.AggregatedBucket{
		{PeriodStart: base, PeriodEnd: base.Add(time.Minute), NetRxTotal: 6000, NetTxTotal: 120, CPUMin: 1, CPUAvg: 2, CPUMax: 3},
		{PeriodStart: base, PeriodEnd: base, NetRxTotal: 10},
	}

	points := BucketPoints(buckets)
	if points[0].NetRxRate != 100 || points[0].NetTxRate != 2 {
		t.Errorf("point 0 rate = %v/%v, want 100/2", points[0].NetRxRate, points[0].NetTxRate)
	}
	if *points[0].CPUMin != 1 || *points[0].CPUMax != 3 {
		t.Errorf("cpu min/max = %v/%v", *points[0].CPUMin, *points[0].CPUMax)
	}
	if points[1].NetRxRate != 10 {
		t.Errorf("zero-width bucket rate = %v, want 10", points[1].NetRxRate)
	}
}

// blockingRepo counts raw reads and holds them until released.
type blockingRepo struct {
	*memory.Store
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingRepo) QueryRaw(ctx context.Context, target string, from, to time.Time) ([]types.RawRow, error) {
	b.calls.Add(1)
	<-b.release
	return b.Store.QueryRaw(ctx, target, from, to)
}

func TestResolver_CoalescesIdenticalRequests(t *testing.T) {
	repo := &blockingRepo{Store: memory.New(), release: make(chan struct{})}
	r := New(repo, DefaultOptions())

	const callers = 8
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			if _, err := r.History(context.Background(), "ubuntu", storagetest.Minute, storagetest.Minute.Add(time.Minute)); err != nil {
				t.Errorf("History: %v", err)
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for repo.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(repo.release)
	wg.Wait()

	if n := repo.calls.Load(); n >= callers {
		t.Errorf("storage read %d times for %d identical requests", n, callers)
	}
}

func TestResolver_LeaderCancelDoesNotFailWaiters(t *testing.T) {
	repo := &blockingRepo{Store: memory.New(), release: make(chan struct{})}
	ctx := context.Background()
	if err := repo.StoreRaw(ctx, storagetest.CPUSample("ubuntu", storagetest.Minute.Add(10*time.Second), 40)); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}
	r := New(repo, DefaultOptions())
	from, to := storagetest.Minute, storagetest.Minute.Add(time.Minute)

	leaderCtx, cancelLeader := context.WithCancel(ctx)
	leaderErr := make(chan error, 1)
	go func() {
		_, err := r.History(leaderCtx, "ubuntu", from, to)
		leaderErr <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for repo.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		h   *History
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		h, err := r.History(ctx, "ubuntu", from, to)
		waiter <- result{h, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("leader err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(repo.release)
	got := <-waiter
	if got.err != nil {
		t.Fatalf("waiter: %v", got.err)
	}
	if len(got.h.Points) != 1 {
		t.Errorf("waiter points = %d, want 1", len(got.h.Points))
	}
	if n := repo.calls.Load(); n != 1 {
		t.Errorf("storage read %d times, want 1", n)
	}
}
