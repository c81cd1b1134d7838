// Package retention purges expired raw rows, buckets and alert records.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/xtxerr/hostwatch/internal/storage"
	"github.com/xtxerr/hostwatch/internal/storage/config"
)

// Scope names one purgeable data set.
type Scope string

const (
	ScopeRaw        Scope = "raw"
	ScopeAggregated Scope = "aggregated"
	ScopeAlerts     Scope = "alerts"
)

// Manager handles cleanup of expired data.
type Manager struct {
	mu        sync.RWMutex
	repo      storage.Repository
	ledger    storage.AlertLedger
	retention config.RetentionConfig
	now       func() time.Time
	stats     Stats
}

// Stats holds retention statistics.
type Stats struct {
	LastRunTime       time.Time
	RawDeleted        int64
	AggregatedDeleted int64
	AlertsDeleted     int64
	Errors            int64
}

// CleanupResult holds the result of one purge.
type CleanupResult struct {
	Scope   Scope
	Cutoff  time.Time
	Deleted int64
	Err     error
}

// New creates a new retention manager. A nil clock uses time.Now.
func New(repo storage.Repository, ledger storage.AlertLedger, retention config.RetentionConfig, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		repo:      repo,
		ledger:    ledger,
		retention: retention,
		now:       now,
	}
}

// RunCleanup purges every scope. The purges are independent: a failure in
// one scope is reported in its result and does not stop the others.
func (m *Manager) RunCleanup(ctx context.Context) []CleanupResult {
	now := m.now()

	results := []CleanupResult{
		m.cleanup(ctx, ScopeRaw, now),
		m.cleanup(ctx, ScopeAggregated, now),
		m.cleanup(ctx, ScopeAlerts, now),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.LastRunTime = now
	for _, r := range results {
		if r.Err != nil {
			m.stats.Errors++
			continue
		}
		switch r.Scope {
		case ScopeRaw:
			m.stats.RawDeleted += r.Deleted
		case ScopeAggregated:
			m.stats.AggregatedDeleted += r.Deleted
		case ScopeAlerts:
			m.stats.AlertsDeleted += r.Deleted
		}
	}

	return results
}

func (m *Manager) cleanup(ctx context.Context, scope Scope, now time.Time) CleanupResult {
	cutoff := now.Add(-m.Retention(scope))
	result := CleanupResult{Scope: scope, Cutoff: cutoff}

	switch scope {
	case ScopeRaw:
		result.Deleted, result.Err = m.repo.PurgeRawBefore(ctx, cutoff)
	case ScopeAggregated:
		result.Deleted, result.Err = m.repo.PurgeAggregatedBefore(ctx, cutoff)
	case ScopeAlerts:
		result.Deleted, result.Err = m.ledger.PurgeAlertsBefore(ctx, cutoff)
	}

	return result
}

// Retention returns the retention duration for a scope.
func (m *Manager) Retention(scope Scope) time.Duration {
	switch scope {
	case ScopeRaw:
		return m.retention.Raw
	case ScopeAggregated:
		return m.retention.Aggregated
	case ScopeAlerts:
		return m.retention.Alerts
	default:
		return 0
	}
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
