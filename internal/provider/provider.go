// Package provider defines the ports through which hostwatch discovers
// targets and samples them, plus a Mux that combines several sources.
package provider

import (
	"context"

	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// State is the availability of a target as reported by discovery.
type State int

const (
	StateUnknown State = iota
	StateRunning
	StateStopped
)

// String returns the display form of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Target is one discovered host.
type Target struct {
	ID    string
	State State
}

// Live reports whether the target should be sampled.
func (t Target) Live() bool {
	return t.State == StateRunning
}

// MetricsProvider samples one target. It is called concurrently for
// different targets and must honor ctx cancellation.
type MetricsProvider interface {
	Sample(ctx context.Context, target string) (*types.Sample, error)
}

// Discoverer lists the known targets.
type Discoverer interface {
	ListTargets(ctx context.Context) ([]Target, error)
}

// Source both discovers and samples its own targets.
type Source interface {
	MetricsProvider
	Discoverer

	// Name identifies the source in logs and errors.
	Name() string
}
