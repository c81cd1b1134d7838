package duckdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage"
	"github.com/xtxerr/hostwatch/internal/storage/config"
	"github.com/xtxerr/hostwatch/internal/storage/storagetest"
	testutil "github.com/xtxerr/hostwatch/internal/testing"
)

var _ storage.Store = (*Store)(nil)

func openTestStore(t *testing.T, clock *testutil.Clock) *Store {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "hostwatch.duckdb")
	if clock != nil {
		cfg.Now = clock.Now
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, clock *testutil.Clock) storage.Store {
		return openTestStore(t, clock)
	})
}

func TestStore_InMemory(t *testing.T) {
	s, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hostwatch.duckdb")

	cfg := DefaultConfig()
	cfg.DSN = path

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.StoreRaw(ctx, storagetest.CPUSample("ubuntu", storagetest.Minute, 33)); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}
	if _, err := s.RecordAlert(ctx, "ubuntu", 0, 90, 95); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	s.Close()

	// Schema creation must tolerate existing tables and sequence.
	s, err = New(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	rows, err := s.QueryRaw(ctx, "ubuntu", storagetest.Minute, storagetest.Minute.Add(time.Second))
	if err != nil {
		t.Fatalf("QueryRaw: %v", err)
	}
	if len(rows) != 1 || rows[0].CPUPercent != 33 {
		t.Errorf("rows after reopen = %+v", rows)
	}

	rec, err := s.RecordAlert(ctx, "ubuntu", 0, 90, 96)
	if err != nil {
		t.Fatalf("RecordAlert after reopen: %v", err)
	}
	if rec.ID < 2 {
		t.Errorf("alert id = %d, sequence should continue", rec.ID)
	}
}

func TestStore_FromStorageConfig(t *testing.T) {
	sc := config.DefaultConfig()
	sc.Path = filepath.Join(t.TempDir(), "x.duckdb")
	sc.MemoryLimit = "256MB"

	cfg := FromStorageConfig(sc)
	if cfg.DSN != sc.Path || cfg.MaxOpenConns != sc.Pool.MaxOpenConns {
		t.Errorf("FromStorageConfig = %+v", cfg)
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New with memory limit: %v", err)
	}
	s.Close()
}

func TestStore_Closed(t *testing.T) {
	s := openTestStore(t, nil)
	s.Close()

	_, err := s.QueryRaw(context.Background(), "ubuntu", time.Time{}, time.Now())
	if !errors.IsStorage(err) {
		t.Errorf("QueryRaw after close = %v, want storage error", err)
	}
}

func TestLockHint(t *testing.T) {
	held := errors.New(`IO Error: Could not set lock on file "/var/lib/hostwatch.duckdb": Conflicting lock is held in /usr/bin/hostwatchd (PID 11144)`)

	err := lockHint("/var/lib/hostwatch.duckdb", held)
	if !errors.Is(err, ErrLocked) {
		t.Errorf("lock conflict not mapped to ErrLocked: %v", err)
	}
	if !errors.Is(err, held) {
		t.Error("driver error not reachable")
	}

	other := errors.New("IO Error: No such file or directory")
	if got := lockHint("x", other); got != other {
		t.Errorf("unrelated error rewritten: %v", got)
	}
}
