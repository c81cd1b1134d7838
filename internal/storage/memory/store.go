// Package memory provides an in-process storage backend.
//
// The memory backend keeps raw rows, buckets and alerts in maps guarded by a
// single RWMutex. Aggregation uses the streaming aggregates of package
// aggregate, including the DDSketch CPU p95. Data does not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/aggregate"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// Option configures a Store.
type Option func(*Store)

// WithNow sets the clock used to stamp alert records.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithAggregateOptions sets bucket folding options.
func WithAggregateOptions(opts aggregate.Options) Option {
	return func(s *Store) { s.aggOpts = opts }
}

// Store implements storage.Store in memory.
//
// Store is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	raw     map[string][]types.RawRow
	buckets map[string]map[int64]types.AggregatedBucket
	alerts  []types.AlertRecord
	nextID  int64
	closed  bool

	now     func() time.Time
	aggOpts aggregate.Options
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		raw:     make(map[string][]types.RawRow),
		buckets: make(map[string]map[int64]types.AggregatedBucket),
		nextID:  1,
		now:     time.Now,
		aggOpts: aggregate.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// Repository
// =============================================================================

// StoreRaw appends one raw row.
func (s *Store) StoreRaw(ctx context.Context, sample *types.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Storage("store raw", errors.ErrClosed)
	}

	row := sample.ToRawRow()
	rows := s.raw[row.Target]

	// Keep rows sorted; samples almost always arrive in order.
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Timestamp.After(row.Timestamp) })
	rows = append(rows, types.RawRow{})
	copy(rows[i+1:], rows[i:])
	rows[i] = row
	s.raw[row.Target] = rows

	return nil
}

// QueryRaw returns rows of target within [from, to].
func (s *Store) QueryRaw(ctx context.Context, target string, from, to time.Time) ([]types.RawRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.Storage("query raw", errors.ErrClosed)
	}

	var out []types.RawRow
	for _, row := range s.raw[target] {
		if row.Timestamp.Before(from) || row.Timestamp.After(to) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// StoreAggregated inserts the bucket unless (target, period_start) exists.
func (s *Store) StoreAggregated(ctx context.Context, b *types.AggregatedBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Storage("store aggregated", errors.ErrClosed)
	}

	s.insertBucketLocked(*b)
	return nil
}

func (s *Store) insertBucketLocked(b types.AggregatedBucket) bool {
	byStart, ok := s.buckets[b.Target]
	if !ok {
		byStart = make(map[int64]types.AggregatedBucket)
		s.buckets[b.Target] = byStart
	}

	key := b.PeriodStart.UTC().Unix()
	if _, exists := byStart[key]; exists {
		return false
	}
	byStart[key] = b
	return true
}

// QueryAggregated returns buckets of target with period_start within [from, to].
func (s *Store) QueryAggregated(ctx context.Context, target string, from, to time.Time) ([]types.AggregatedBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.Storage("query aggregated", errors.ErrClosed)
	}

	var out []types.AggregatedBucket
	for _, b := range s.buckets[target] {
		if b.PeriodStart.Before(from) || b.PeriodStart.After(to) {
			continue
		}
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}

// AggregateRawBuckets folds rows within [start, end) into buckets.
func (s *Store) AggregateRawBuckets(ctx context.Context, start, end time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.Storage("aggregate raw buckets", errors.ErrClosed)
	}

	var window []types.RawRow
	for _, rows := range s.raw {
		for _, row := range rows {
			if row.Timestamp.Before(start) || !row.Timestamp.Before(end) {
				continue
			}
			window = append(window, row)
		}
	}

	var created int64
	for _, b := range aggregate.Fold(window, s.aggOpts) {
		if s.insertBucketLocked(b) {
			created++
		}
	}
	return created, nil
}

// PurgeRawBefore deletes rows strictly older than t.
func (s *Store) PurgeRawBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.Storage("purge raw", errors.ErrClosed)
	}

	var deleted int64
	for target, rows := range s.raw {
		kept := rows[:0]
		for _, row := range rows {
			if row.Timestamp.Before(t) {
				deleted++
				continue
			}
			kept = append(kept, row)
		}
		if len(kept) == 0 {
			delete(s.raw, target)
			continue
		}
		s.raw[target] = kept
	}
	return deleted, nil
}

// PurgeAggregatedBefore deletes buckets whose period_start is older than t.
func (s *Store) PurgeAggregatedBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.Storage("purge aggregated", errors.ErrClosed)
	}

	var deleted int64
	for target, byStart := range s.buckets {
		for key, b := range byStart {
			if b.PeriodStart.Before(t) {
				delete(byStart, key)
				deleted++
			}
		}
		if len(byStart) == 0 {
			delete(s.buckets, target)
		}
	}
	return deleted, nil
}

// =============================================================================
// AlertLedger
// =============================================================================

// RecordAlert appends an unacknowledged alert record.
func (s *Store) RecordAlert(ctx context.Context, target string, kind types.AlertKind, threshold, actual float64) (*types.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.Storage("record alert", errors.ErrClosed)
	}

	rec := types.AlertRecord{
		ID:        s.nextID,
		Target:    target,
		Kind:      kind,
		Threshold: threshold,
		Actual:    actual,
		Timestamp: s.now().UTC(),
	}
	s.nextID++
	s.alerts = append(s.alerts, rec)

	return &rec, nil
}

// GetRecentAlerts returns the newest records first.
func (s *Store) GetRecentAlerts(ctx context.Context, target string, limit int) ([]types.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.Storage("get recent alerts", errors.ErrClosed)
	}

	out := make([]types.AlertRecord, 0)
	for i := len(s.alerts) - 1; i >= 0; i-- {
		rec := s.alerts[i]
		if target != "" && rec.Target != target {
			continue
		}
		out = append(out, rec)
	}

	// Records are appended in id order, not timestamp order, when the
	// clock steps back. Sort before capping so the newest survive.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AcknowledgeAlert marks the record acknowledged.
func (s *Store) AcknowledgeAlert(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Storage("acknowledge alert", errors.ErrClosed)
	}

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Acknowledged = true
			return nil
		}
	}
	return nil
}

// PurgeAlertsBefore deletes records strictly older than t.
func (s *Store) PurgeAlertsBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.Storage("purge alerts", errors.ErrClosed)
	}

	kept := s.alerts[:0]
	var deleted int64
	for _, rec := range s.alerts {
		if rec.Timestamp.Before(t) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.alerts = kept
	return deleted, nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// Health reports whether the store is open.
func (s *Store) Health(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.Storage("health", errors.ErrClosed)
	}
	return nil
}

// Close releases all data.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.raw = nil
	s.buckets = nil
	s.alerts = nil
	return nil
}
