// Package thresholds owns the alert rules as a replaceable, versioned
// snapshot. Readers take one snapshot per use; writers replace it whole.
package thresholds

import (
	"fmt"
	"math"
	"sync"

	"github.com/xtxerr/hostwatch/config"
	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// Snapshot is an immutable view of the rules. Version increases on every
// successful Set.
type Snapshot struct {
	Version    uint64
	Thresholds []types.AlertThreshold
}

// Find returns the rule for kind.
func (s Snapshot) Find(kind types.AlertKind) (types.AlertThreshold, bool) {
	for _, t := range s.Thresholds {
		if t.Kind == kind {
			return t, true
		}
	}
	return types.AlertThreshold{}, false
}

// Store holds the current snapshot.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
}

// Defaults returns the initial rules: every kind enabled at its default
// percent.
func Defaults() []types.AlertThreshold {
	return []types.AlertThreshold{
		{Kind: types.AlertCPU, Percent: config.DefaultCPUThreshold, Enabled: true},
		{Kind: types.AlertMemory, Percent: config.DefaultMemoryThreshold, Enabled: true},
		{Kind: types.AlertDisk, Percent: config.DefaultDiskThreshold, Enabled: true},
	}
}

// NewStore creates a store. A nil initial set uses Defaults.
func NewStore(initial []types.AlertThreshold) (*Store, error) {
	if initial == nil {
		initial = Defaults()
	}
	if err := Validate(initial); err != nil {
		return nil, err
	}
	return &Store{snap: Snapshot{Version: 1, Thresholds: clone(initial)}}, nil
}

// Get returns the current snapshot.
func (s *Store) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Version: s.snap.Version, Thresholds: clone(s.snap.Thresholds)}
}

// Set validates and replaces all rules. On error the snapshot is unchanged.
func (s *Store) Set(thresholds []types.AlertThreshold) (Snapshot, error) {
	if err := Validate(thresholds); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = Snapshot{Version: s.snap.Version + 1, Thresholds: clone(thresholds)}
	return Snapshot{Version: s.snap.Version, Thresholds: clone(s.snap.Thresholds)}, nil
}

// Validate checks a rule set: known kinds, each at most once, percent
// finite and within 0..100.
func Validate(thresholds []types.AlertThreshold) error {
	errs := errors.NewValidationErrors()
	seen := make(map[types.AlertKind]bool, len(thresholds))

	for i, t := range thresholds {
		field := fmt.Sprintf("thresholds[%d]", i)

		if !knownKind(t.Kind) {
			errs.Add(errors.Wrapf(errors.ErrUnknownAlertKind, "%s.kind %d", field, int(t.Kind)))
			continue
		}
		if seen[t.Kind] {
			errs.AddField(field+".kind", fmt.Sprintf("duplicate kind %s", t.Kind))
		}
		seen[t.Kind] = true

		if math.IsNaN(t.Percent) || math.IsInf(t.Percent, 0) || t.Percent < 0 || t.Percent > 100 {
			errs.Add(errors.NewInvalidValue(field+".percent", t.Percent, "must be within 0..100"))
		}
	}

	return errs.Err()
}

func knownKind(k types.AlertKind) bool {
	for _, known := range types.AllAlertKinds() {
		if k == known {
			return true
		}
	}
	return false
}

func clone(in []types.AlertThreshold) []types.AlertThreshold {
	out := make([]types.AlertThreshold, len(in))
	copy(out, in)
	return out
}
