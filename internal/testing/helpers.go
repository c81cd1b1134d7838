// Package testing provides test helpers for the hostwatch application.
//
// Using t.Fatal() or t.FailNow() in goroutines causes undefined behavior because
// these methods call runtime.Goexit() which only terminates the current goroutine,
// not the test goroutine. TestHelper collects goroutine errors instead.
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/hostwatch/internal/provider"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// =============================================================================
// Error Channel Pattern
// =============================================================================

// TestHelper manages error collection from goroutines.
//
// Usage:
//
//	h := NewTestHelper(t)
//	for i := 0; i < 10; i++ {
//	    h.Go(func() error { return doSomething(i) })
//	}
//	h.Wait()
type TestHelper struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
}

// NewTestHelper creates a new test helper.
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{
		t:      t,
		errors: make(chan error, 100),
	}
}

// Go runs fn in a goroutine and records its error.
func (h *TestHelper) Go(fn func() error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := fn(); err != nil {
			h.Error(err)
		}
	}()
}

// Errorf records a test error from a goroutine.
// This is safe to call from any goroutine.
func (h *TestHelper) Errorf(format string, args ...interface{}) {
	h.Error(fmt.Errorf(format, args...))
}

// Error records a test error from a goroutine.
func (h *TestHelper) Error(err error) {
	if err == nil {
		return
	}
	select {
	case h.errors <- err:
	default:
		// Buffer full, error will be lost but test will still fail
	}
}

// Wait waits for all goroutines and reports any errors.
func (h *TestHelper) Wait() {
	h.t.Helper()
	h.wg.Wait()
	close(h.errors)

	var failed bool
	for err := range h.errors {
		h.t.Errorf("goroutine error: %v", err)
		failed = true
	}

	if failed {
		h.t.FailNow()
	}
}

// WaitFor polls cond until it returns true or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %s: %s", timeout, msg)
}

// =============================================================================
// Clock
// =============================================================================

// Clock is a manually advanced clock, safe for concurrent use.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock creates a clock set to t.
func NewClock(t time.Time) *Clock {
	return &Clock{t: t.UTC()}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// =============================================================================
// Fake source
// =============================================================================

// SampleFunc produces the next sample of a target.
type SampleFunc func(ctx context.Context, target string) (*types.Sample, error)

// FakeSource is a scripted provider.Source. Targets without a script
// return a zero sample stamped with the source clock.
type FakeSource struct {
	mu       sync.Mutex
	targets  []provider.Target
	listErr  error
	scripts  map[string]SampleFunc
	calls    map[string]int
	listings int
	now      func() time.Time
}

// NewFakeSource creates a source reporting targets as running.
func NewFakeSource(now func() time.Time, ids ...string) *FakeSource {
	f := &FakeSource{
		scripts: make(map[string]SampleFunc),
		calls:   make(map[string]int),
		now:     now,
	}
	for _, id := range ids {
		f.targets = append(f.targets, provider.Target{ID: id, State: provider.StateRunning})
	}
	return f
}

// Name implements provider.Source.
func (f *FakeSource) Name() string { return "fake" }

// SetTargets replaces the reported target list.
func (f *FakeSource) SetTargets(targets ...provider.Target) {
	f.mu.Lock()
	f.targets = targets
	f.mu.Unlock()
}

// FailListing makes ListTargets return err (nil restores it).
func (f *FakeSource) FailListing(err error) {
	f.mu.Lock()
	f.listErr = err
	f.mu.Unlock()
}

// Script installs the sample function of target.
func (f *FakeSource) Script(target string, fn SampleFunc) {
	f.mu.Lock()
	f.scripts[target] = fn
	f.mu.Unlock()
}

// Fixed scripts target to report cpu, memory and disk percentages.
func (f *FakeSource) Fixed(target string, cpu, mem, disk float64) {
	f.Script(target, func(ctx context.Context, id string) (*types.Sample, error) {
		return Percentages(id, f.now(), cpu, mem, disk), nil
	})
}

// ListTargets implements provider.Discoverer.
func (f *FakeSource) ListTargets(ctx context.Context) ([]provider.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]provider.Target, len(f.targets))
	copy(out, f.targets)
	return out, nil
}

// Sample implements provider.MetricsProvider.
func (f *FakeSource) Sample(ctx context.Context, target string) (*types.Sample, error) {
	f.mu.Lock()
	f.calls[target]++
	fn := f.scripts[target]
	f.mu.Unlock()

	if fn == nil {
		return &types.Sample{Target: target, Timestamp: f.now()}, nil
	}
	return fn(ctx, target)
}

// Calls returns how often target was sampled.
func (f *FakeSource) Calls(target string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[target]
}

// Listings returns how often ListTargets was called.
func (f *FakeSource) Listings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listings
}

// =============================================================================
// Sample builders
// =============================================================================

// Percentages builds a sample with the given cpu, memory and disk usage.
// Memory and disk totals are 1000 bytes.
func Percentages(target string, ts time.Time, cpu, mem, disk float64) *types.Sample {
	return &types.Sample{
		Target:    target,
		Timestamp: ts,
		CPU:       types.CPUStats{UsagePercent: cpu},
		Memory:    types.MemoryStats{TotalBytes: 1000, UsedBytes: uint64(mem * 10)},
		Disk:      types.DiskStats{TotalBytes: 1000, UsedBytes: uint64(disk * 10), UsagePercent: disk},
	}
}
