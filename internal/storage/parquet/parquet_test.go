package parquet

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/memory"
	"github.com/xtxerr/hostwatch/internal/storage/storagetest"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

func TestWriter_RawRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "raw.parquet")

	ts := storagetest.Minute.Add(5 * time.Second)
	rows := []types.RawRow{
		storagetest.CPUSample("ubuntu", ts, 40).ToRawRow(),
		storagetest.CPUSample("debian", ts.Add(2*time.Second), 60).ToRawRow(),
	}
	rows[0].NetRxBytes = 1 << 40

	w, err := NewWriter[RawRecord](path, DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	records := []RawRecord{FromRawRow(&rows[0]), FromRawRow(&rows[1])}
	if err := w.Write(records); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.RowCount() != 2 {
		t.Errorf("RowCount = %d, want 2", w.RowCount())
	}

	got, err := ReadRaw(path)
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d rows, want 2", len(got))
	}

	back := got[0].ToRawRow()
	if back.Target != "ubuntu" || !back.Timestamp.Equal(ts) {
		t.Errorf("row 0 = %+v", back)
	}
	if back.NetRxBytes != 1<<40 {
		t.Errorf("NetRxBytes = %d", back.NetRxBytes)
	}
	if got[1].CPUPercent != 60 {
		t.Errorf("CPUPercent = %v, want 60", got[1].CPUPercent)
	}
}

func TestWriter_Closed(t *testing.T) {
	w, err := NewWriter[RawRecord](filepath.Join(t.TempDir(), "x.parquet"), Options{Compression: CompressionNone})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.Write([]RawRecord{{Target: "a"}}); err != ErrWriterClosed {
		t.Errorf("Write after close = %v, want ErrWriterClosed", err)
	}
}

func TestNewReader_NotParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.parquet")
	if err := os.WriteFile(path, []byte("target,cpu\nubuntu,40\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadRaw(path); err == nil {
		t.Fatal("expected error for a non-parquet file")
	}
	if _, err := ReadRaw(filepath.Join(t.TempDir(), "missing.parquet")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestBucketRecord_OptionalP95(t *testing.T) {
	p95 := 72.5
	with := types.AggregatedBucket{Target: "a", PeriodStart: storagetest.Minute, PeriodEnd: storagetest.Minute.Add(time.Minute), CPUP95: &p95}
	without := with
	without.CPUP95 = nil

	path := filepath.Join(t.TempDir(), "buckets.parquet")
	w, err := NewWriter[BucketRecord](path, Options{Compression: CompressionSnappy})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Write([]BucketRecord{FromBucket(&with), FromBucket(&without)}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadBuckets(path)
	if err != nil {
		t.Fatalf("ReadBuckets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d buckets, want 2", len(got))
	}
	if b := got[0].ToBucket(); b.CPUP95 == nil || *b.CPUP95 != 72.5 {
		t.Errorf("p95 lost: %+v", b.CPUP95)
	}
	if b := got[1].ToBucket(); b.CPUP95 != nil {
		t.Errorf("p95 = %v, want nil", *b.CPUP95)
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	for i := 0; i < 10; i++ {
		ts := storagetest.Minute.Add(time.Duration(i) * 10 * time.Second)
		for _, target := range []string{"ubuntu", "debian"} {
			if err := store.StoreRaw(ctx, storagetest.CPUSample(target, ts, float64(i))); err != nil {
				t.Fatalf("StoreRaw: %v", err)
			}
		}
	}
	if _, err := store.AggregateRawBuckets(ctx, storagetest.Minute, storagetest.Minute.Add(2*time.Minute)); err != nil {
		t.Fatalf("AggregateRawBuckets: %v", err)
	}

	dir := t.TempDir()
	from, to := storagetest.Minute, storagetest.Minute.Add(time.Hour)

	n, err := Export(ctx, store, ExportRequest{
		Targets: []string{"ubuntu", "debian"},
		From:    from,
		To:      to,
		Tier:    types.TierRaw,
		Path:    filepath.Join(dir, "raw.parquet"),
		Options: DefaultOptions(),
	})
	if err != nil {
		t.Fatalf("Export raw: %v", err)
	}
	if n != 20 {
		t.Errorf("raw rows = %d, want 20", n)
	}

	n, err = Export(ctx, store, ExportRequest{
		Targets: []string{"ubuntu"},
		From:    from,
		To:      to,
		Tier:    types.TierMinute,
		Path:    filepath.Join(dir, "1m.parquet"),
		Options: DefaultOptions(),
	})
	if err != nil {
		t.Fatalf("Export buckets: %v", err)
	}
	if n != 2 {
		t.Errorf("bucket rows = %d, want 2", n)
	}

	if _, err := os.Stat(filepath.Join(dir, "1m.parquet")); err != nil {
		t.Errorf("bucket file missing: %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"snappy", CompressionSnappy, false},
		{"ZSTD", CompressionZstd, false},
		{" lz4 ", CompressionLZ4, false},
		{"none", CompressionNone, false},
		{"", CompressionZstd, false},
		{"brotli", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if tt.wantErr {
			if !errors.IsValidation(err) {
				t.Errorf("ParseCompression(%q) error = %v, want validation error", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseCompression(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}
