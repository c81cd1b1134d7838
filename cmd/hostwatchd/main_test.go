package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/hostwatch/internal/console"
	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/parquet"
	"github.com/xtxerr/hostwatch/internal/storage/query"
	"github.com/xtxerr/hostwatch/internal/storage/types"
	testutil "github.com/xtxerr/hostwatch/internal/testing"
)

func TestParseRange(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		since     time.Duration
		from, to  string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{"since", 30 * time.Minute, "", "", now.Add(-30 * time.Minute), now, false},
		{"from overrides since", time.Hour, "2026-01-15T09:00:00Z", "", time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC), now, false},
		{"explicit to", time.Hour, "", "2026-01-15T11:00:00Z", time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC), time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC), false},
		{"bad from", time.Hour, "yesterday", "", time.Time{}, time.Time{}, true},
		{"zero since", 0, "", "", time.Time{}, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := parseRange(tt.since, tt.from, tt.to, now)
			if tt.wantErr {
				if !errors.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRange: %v", err)
			}
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("range = %v..%v, want %v..%v", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(errors.NewInvalidValue("since", "-1h", "must be positive")); got != 2 {
		t.Errorf("validation exit code = %d, want 2", got)
	}
	if got := exitCode(errors.Storage("open database", os.ErrPermission)); got != 1 {
		t.Errorf("storage exit code = %d, want 1", got)
	}
}

func writeTestConfig(t *testing.T, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hostwatch.yaml")
	body := "log:\n  level: error\n" +
		"storage:\n  backend: sqlite\n  path: " + filepath.Join(dir, "hostwatch.db") + "\n" +
		"thresholds:\n  file: " + filepath.Join(dir, "thresholds.yaml") + "\n" +
		strings.Join(extra, "")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoadConfig_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	if _, err := run(t, "--config", missing, "alerts"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("explicit missing config: err = %v, want ErrNotExist", err)
	}

	cfg, err := loadConfig(&rootOptions{configPath: missing, backend: "memory"})
	if err != nil {
		t.Fatalf("default path fallback: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("backend = %q, want memory", cfg.Storage.Backend)
	}
}

func TestThresholdsCommands(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "--config", cfg, "thresholds", "get")
	if err != nil {
		t.Fatalf("thresholds get: %v", err)
	}
	if !strings.Contains(out, "90.0") {
		t.Errorf("defaults missing: %s", out)
	}

	if _, err := run(t, "--config", cfg, "thresholds", "set", "cpu=80", "disk=95:off"); err != nil {
		t.Fatalf("thresholds set: %v", err)
	}

	out, err = run(t, "--config", cfg, "thresholds", "get")
	if err != nil {
		t.Fatalf("thresholds get: %v", err)
	}
	if !strings.Contains(out, "80.0") || strings.Contains(out, "memory") {
		t.Errorf("rules not replaced: %s", out)
	}

	if _, err := run(t, "--config", cfg, "thresholds", "set", "gpu=10"); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestAlertsAndHistory_Empty(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "--config", cfg, "alerts")
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if !strings.Contains(out, "no alerts") {
		t.Errorf("alerts output = %s", out)
	}

	out, err = run(t, "--config", cfg, "history", "web", "--since", "2h")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "granularity=1m") {
		t.Errorf("history output = %s", out)
	}

	if _, err := run(t, "--config", cfg, "ack", "abc"); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := run(t, "--config", cfg, "export", "web", "web"); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := run(t, "--config", cfg, "export", "--compression", "brotli", "web"); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCommands_WhileServing(t *testing.T) {
	cfg := writeTestConfig(t, "providers:\n  local:\n    enabled: true\n    name: testhost\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- serve(ctx, &rootOptions{configPath: cfg}, nil) }()

	// Reads go through a second connection while serve keeps writing.
	testutil.WaitFor(t, 15*time.Second, func() bool {
		out, err := run(t, "--config", cfg, "history", "testhost", "--since", "5m", "--json")
		if err != nil {
			return false
		}
		var h query.History
		return json.Unmarshal([]byte(out), &h) == nil && len(h.Points) > 0
	}, "history of a running daemon stayed empty")

	if _, err := run(t, "--config", cfg, "alerts"); err != nil {
		t.Errorf("alerts while serving: %v", err)
	}
	if _, err := run(t, "--config", cfg, "ack", "4242"); err != nil {
		t.Errorf("ack while serving: %v", err)
	}
	if out, err := run(t, "--config", cfg, "thresholds", "get"); err != nil || !strings.Contains(out, "cpu") {
		t.Errorf("thresholds get while serving: %q, %v", out, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServe_ConsoleNeedsTerminal(t *testing.T) {
	if console.CheckTerminal() == nil {
		t.Skip("stdin is a terminal")
	}
	cfg := writeTestConfig(t)
	if _, err := run(t, "--config", cfg, "serve", "--console"); !errors.Is(err, console.ErrNotTerminal) {
		t.Errorf("err = %v, want ErrNotTerminal", err)
	}
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.parquet")
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	w, err := parquet.NewWriter[parquet.RawRecord](path, parquet.DefaultOptions())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	rows := []types.RawRow{
		{Target: "web", Timestamp: base, CPUPercent: 40, NetRxBytes: 1000},
		{Target: "db", Timestamp: base, CPUPercent: 10},
		{Target: "web", Timestamp: base.Add(2 * time.Second), CPUPercent: 50, NetRxBytes: 3000},
	}
	records := make([]parquet.RawRecord, len(rows))
	for i := range rows {
		records[i] = parquet.FromRawRow(&rows[i])
	}
	if err := w.Write(records); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out, err := run(t, "inspect", path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	web := strings.Index(out, "web  granularity=raw  points=2")
	db := strings.Index(out, "db  granularity=raw  points=1")
	if web < 0 || db < 0 || web > db {
		t.Errorf("inspect output = %s", out)
	}

	if _, err := run(t, "inspect", "--tier", "5m", path); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := run(t, "inspect", filepath.Join(t.TempDir(), "missing.parquet")); err == nil {
		t.Error("expected error for a missing file")
	}
}
