package console

import (
	stdbytes "bytes"
	"context"
	"strings"
	"testing"
	"time"

	prompt "github.com/c-bata/go-prompt"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/query"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

type fakeAPI struct {
	historyTarget string
	from, to      time.Time

	alertTarget string
	alertLimit  int
	acked       []int64
	rules       []types.AlertThreshold
}

func (f *fakeAPI) GetHistory(ctx context.Context, target string, from, to time.Time) (*query.History, error) {
	f.historyTarget, f.from, f.to = target, from, to
	return &query.History{
		Target:      target,
		Granularity: types.TierRaw,
		Points: []query.Point{
			{Timestamp: from, CPUAvg: 12.5, MemUsedBytes: 512, MemTotalBytes: 1024, NetRxRate: 2048},
		},
	}, nil
}

func (f *fakeAPI) GetRecentAlerts(ctx context.Context, target string, limit int) ([]types.AlertRecord, error) {
	f.alertTarget, f.alertLimit = target, limit
	return []types.AlertRecord{{ID: 7, Target: "web", Kind: types.AlertCPU, Threshold: 90, Actual: 95, Timestamp: time.Now()}}, nil
}

func (f *fakeAPI) AcknowledgeAlert(ctx context.Context, id int64) error {
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeAPI) GetThresholds() []types.AlertThreshold { return f.rules }

func (f *fakeAPI) SetThresholds(list []types.AlertThreshold) error {
	f.rules = list
	return nil
}

func newTestConsole() (*Console, *fakeAPI, *stdbytes.Buffer) {
	api := &fakeAPI{}
	var out stdbytes.Buffer
	c := New(api, func() []string { return []string{"db", "web"} }, &out)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, api, &out
}

func TestExecute_History(t *testing.T) {
	c, api, out := newTestConsole()

	if _, err := c.Execute(context.Background(), "history web 30m"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if api.historyTarget != "web" || api.to.Sub(api.from) != 30*time.Minute {
		t.Errorf("history called with %q %v..%v", api.historyTarget, api.from, api.to)
	}
	if !strings.Contains(out.String(), "granularity=raw") || !strings.Contains(out.String(), "2.0KiB") {
		t.Errorf("output = %s", out)
	}

	if _, err := c.Execute(context.Background(), "history web"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if api.to.Sub(api.from) != time.Hour {
		t.Errorf("default range = %v", api.to.Sub(api.from))
	}

	if _, err := c.Execute(context.Background(), "history web soon"); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := c.Execute(context.Background(), "history"); !errors.IsValidation(err) {
		t.Errorf("expected usage error, got %v", err)
	}
}

func TestExecute_Alerts(t *testing.T) {
	c, api, out := newTestConsole()

	if _, err := c.Execute(context.Background(), "alerts web 5"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if api.alertTarget != "web" || api.alertLimit != 5 {
		t.Errorf("alerts called with %q %d", api.alertTarget, api.alertLimit)
	}
	if !strings.Contains(out.String(), "95.0") {
		t.Errorf("output = %s", out)
	}

	if _, err := c.Execute(context.Background(), "alerts"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if api.alertTarget != "" || api.alertLimit != 0 {
		t.Errorf("alerts called with %q %d", api.alertTarget, api.alertLimit)
	}
}

func TestExecute_AckAndThresholds(t *testing.T) {
	c, api, out := newTestConsole()

	if _, err := c.Execute(context.Background(), "ack 7"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if len(api.acked) != 1 || api.acked[0] != 7 {
		t.Errorf("acked = %v", api.acked)
	}
	if _, err := c.Execute(context.Background(), "ack seven"); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	if _, err := c.Execute(context.Background(), "thresholds cpu=85 disk=95:off"); err != nil {
		t.Fatalf("thresholds: %v", err)
	}
	if len(api.rules) != 2 || api.rules[0].Percent != 85 || api.rules[1].Enabled {
		t.Errorf("rules = %+v", api.rules)
	}
	if !strings.Contains(out.String(), "85.0") {
		t.Errorf("output = %s", out)
	}

	if _, err := c.Execute(context.Background(), "thresholds gpu=10"); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestExecute_Control(t *testing.T) {
	c, _, out := newTestConsole()

	quit, err := c.Execute(context.Background(), "   ")
	if quit || err != nil {
		t.Errorf("blank line: quit=%v err=%v", quit, err)
	}
	if _, err := c.Execute(context.Background(), "reboot"); err == nil {
		t.Error("expected unknown command error")
	}
	if _, err := c.Execute(context.Background(), "help"); err != nil || !strings.Contains(out.String(), "ack <id>") {
		t.Errorf("help: err=%v out=%s", err, out)
	}
	for _, line := range []string{"exit", "quit", "EXIT"} {
		if quit, err := c.Execute(context.Background(), line); !quit || err != nil {
			t.Errorf("%s: quit=%v err=%v", line, quit, err)
		}
	}
}

func complete(c *Console, text string) []string {
	b := prompt.NewBuffer()
	b.InsertText(text, false, true)
	var out []string
	for _, s := range c.Complete(*b.Document()) {
		out = append(out, s.Text)
	}
	return out
}

func TestComplete(t *testing.T) {
	c, _, _ := newTestConsole()

	tests := []struct {
		text string
		want []string
	}{
		{"hi", []string{"history"}},
		{"a", []string{"alerts", "ack"}},
		{"history ", []string{"db", "web"}},
		{"history w", []string{"web"}},
		{"history web ", nil},
		{"thresholds d", []string{"disk="}},
	}
	for _, tt := range tests {
		got := complete(c, tt.text)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Complete(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
