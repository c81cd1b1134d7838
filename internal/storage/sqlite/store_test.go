package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/hostwatch/internal/storage"
	"github.com/xtxerr/hostwatch/internal/storage/storagetest"
	testutil "github.com/xtxerr/hostwatch/internal/testing"
)

var _ storage.Store = (*Store)(nil)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, clock *testutil.Clock) storage.Store {
		s, err := New(Config{
			Path: filepath.Join(t.TempDir(), "hostwatch.sqlite"),
			Now:  clock.Now,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStore_InMemory(t *testing.T) {
	ctx := context.Background()

	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.StoreRaw(ctx, storagetest.CPUSample("ubuntu", storagetest.Minute, 12)); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}

	rows, err := s.QueryRaw(ctx, "ubuntu", storagetest.Minute.Add(-time.Minute), storagetest.Minute)
	if err != nil {
		t.Fatalf("QueryRaw: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if !rows[0].Timestamp.Equal(storagetest.Minute) {
		t.Errorf("timestamp = %v, want %v", rows[0].Timestamp, storagetest.Minute)
	}
}

func TestStore_AggregatedHasNoPercentile(t *testing.T) {
	ctx := context.Background()

	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.StoreRaw(ctx, storagetest.CPUSample("ubuntu", storagetest.Minute.Add(time.Second), 12)); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}
	if _, err := s.AggregateRawBuckets(ctx, storagetest.Minute, storagetest.Minute.Add(time.Minute)); err != nil {
		t.Fatalf("AggregateRawBuckets: %v", err)
	}

	buckets, err := s.QueryAggregated(ctx, "ubuntu", storagetest.Minute, storagetest.Minute)
	if err != nil {
		t.Fatalf("QueryAggregated: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("got %d buckets, want 1", len(buckets))
	}
	if buckets[0].CPUP95 != nil {
		t.Errorf("cpu_p95 = %v, want nil", *buckets[0].CPUP95)
	}
}
