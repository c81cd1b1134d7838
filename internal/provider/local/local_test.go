package local

import (
	"context"
	"testing"

	"github.com/xtxerr/hostwatch/internal/errors"
)

func TestSource_ListTargets(t *testing.T) {
	s := New(Config{Name: "workstation"})
	targets, err := s.ListTargets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0].ID != "workstation" || !targets[0].Live() {
		t.Errorf("targets = %+v", targets)
	}
}

func TestSource_DefaultsName(t *testing.T) {
	if s := New(Config{}); s.cfg.Name == "" || s.cfg.DiskPath != "/" {
		t.Errorf("cfg = %+v", s.cfg)
	}
}

func TestSource_UnknownTarget(t *testing.T) {
	s := New(Config{Name: "workstation"})
	_, err := s.Sample(context.Background(), "other")
	if !errors.IsTransientCollection(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestSource_Sample(t *testing.T) {
	s := New(DefaultConfig())
	sample, err := s.Sample(context.Background(), s.cfg.Name)
	if err != nil {
		t.Skipf("host metrics unavailable: %v", err)
	}
	if err := sample.Validate(); err != nil {
		t.Errorf("invalid sample: %v", err)
	}
	for _, iface := range sample.Interfaces {
		if iface.Name == "lo" {
			t.Error("loopback not excluded")
		}
	}
}

func TestMean(t *testing.T) {
	if got := mean(nil); got != 0 {
		t.Errorf("mean(nil) = %v", got)
	}
	if got := mean([]float64{10, 20, 60}); got != 30 {
		t.Errorf("mean = %v", got)
	}
}
