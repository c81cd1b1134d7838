// Package sqlite provides a pure-Go SQLite storage backend built on gorm.
package sqlite

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/storage/config"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

var log = logging.Component("sqlite")

// Config holds store configuration options.
type Config struct {
	// Path is the database file. Empty opens a private in-memory database.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// Now stamps alert records. Defaults to time.Now.
	Now func() time.Time
}

// FromStorageConfig maps the storage section of the config file.
func FromStorageConfig(cfg *config.Config) Config {
	return Config{
		Path:         cfg.Path,
		MaxOpenConns: cfg.Pool.MaxOpenConns,
	}
}

// Store implements storage.Store on SQLite.
//
// Store is safe for concurrent use. SQLite allows one writer at a time, so
// writes are serialized by writeMu.
type Store struct {
	db      *gorm.DB
	now     func() time.Time
	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

// New opens the database and migrates the schema.
func New(cfg Config) (*Store, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Storage("open database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Storage("open database", err)
	}

	// An in-memory database exists once per connection.
	if cfg.Path == "" || cfg.MaxOpenConns <= 0 {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.AutoMigrate(&rawSample{}, &aggregatedBucket{}, &alertLog{}); err != nil {
		sqlDB.Close()
		return nil, errors.Storage("migrate", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	log.Info("sqlite store opened", "path", dsn)

	return &Store{db: db, now: now}, nil
}

func (s *Store) checkOpen(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.Storage(op, errors.ErrClosed)
	}
	return nil
}

// =============================================================================
// Repository
// =============================================================================

// StoreRaw appends one raw row.
func (s *Store) StoreRaw(ctx context.Context, sample *types.Sample) error {
	if err := s.checkOpen("store raw"); err != nil {
		return err
	}

	m := newRawSample(sample.ToRawRow())

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return errors.Storage("store raw", s.db.WithContext(ctx).Create(&m).Error)
}

// QueryRaw returns rows of target within [from, to].
func (s *Store) QueryRaw(ctx context.Context, target string, from, to time.Time) ([]types.RawRow, error) {
	if err := s.checkOpen("query raw"); err != nil {
		return nil, err
	}

	var models []rawSample
	err := s.db.WithContext(ctx).
		Where("target = ? AND timestamp >= ? AND timestamp <= ?", target, from.UnixMilli(), to.UnixMilli()).
		Order("timestamp ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Storage("query raw", err)
	}

	out := make([]types.RawRow, 0, len(models))
	for _, m := range models {
		out = append(out, m.toRawRow())
	}
	return out, nil
}

// StoreAggregated inserts the bucket unless (target, period_start) exists.
func (s *Store) StoreAggregated(ctx context.Context, b *types.AggregatedBucket) error {
	if err := s.checkOpen("store aggregated"); err != nil {
		return err
	}

	m := newAggregatedBucket(b)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&m).Error
	return errors.Storage("store aggregated", err)
}

// QueryAggregated returns buckets of target with period_start within [from, to].
func (s *Store) QueryAggregated(ctx context.Context, target string, from, to time.Time) ([]types.AggregatedBucket, error) {
	if err := s.checkOpen("query aggregated"); err != nil {
		return nil, err
	}

	var models []aggregatedBucket
	err := s.db.WithContext(ctx).
		Where("target = ? AND period_start >= ? AND period_start <= ?", target, from.UnixMilli(), to.UnixMilli()).
		Order("period_start ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Storage("query aggregated", err)
	}

	out := make([]types.AggregatedBucket, 0, len(models))
	for _, m := range models {
		out = append(out, m.toBucket())
	}
	return out, nil
}

// aggregateSQL has no percentile: SQLite lacks an ordered-set aggregate.
const aggregateSQL = `
INSERT OR IGNORE INTO aggregated_buckets (
	target, period_start, period_end, sample_count,
	cpu_min, cpu_avg, cpu_max, cpu_p95,
	mem_used_min, mem_used_avg, mem_used_max, mem_total,
	disk_min, disk_avg, disk_max,
	net_rx_total, net_tx_total, net_rx_peak, net_tx_peak
)
SELECT
	target,
	(timestamp / 60000) * 60000 AS bucket,
	(timestamp / 60000) * 60000 + 60000,
	COUNT(*),
	MIN(cpu_pct), AVG(cpu_pct), MAX(cpu_pct), NULL,
	MIN(mem_used), CAST(AVG(mem_used) AS INTEGER), MAX(mem_used), MAX(mem_total),
	MIN(disk_pct), AVG(disk_pct), MAX(disk_pct),
	SUM(net_rx), SUM(net_tx), MAX(net_rx), MAX(net_tx)
FROM raw_samples
WHERE timestamp >= ? AND timestamp < ?
GROUP BY target, bucket`

// AggregateRawBuckets folds rows within [start, end) into 1-minute buckets.
func (s *Store) AggregateRawBuckets(ctx context.Context, start, end time.Time) (int64, error) {
	if err := s.checkOpen("aggregate raw buckets"); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var created int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(aggregateSQL, start.UnixMilli(), end.UnixMilli())
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, errors.Storage("aggregate raw buckets", err)
	}
	return created, nil
}

// PurgeRawBefore deletes rows strictly older than t.
func (s *Store) PurgeRawBefore(ctx context.Context, t time.Time) (int64, error) {
	return s.purge(ctx, "purge raw", &rawSample{}, "timestamp < ?", t)
}

// PurgeAggregatedBefore deletes buckets whose period_start is older than t.
func (s *Store) PurgeAggregatedBefore(ctx context.Context, t time.Time) (int64, error) {
	return s.purge(ctx, "purge aggregated", &aggregatedBucket{}, "period_start < ?", t)
}

func (s *Store) purge(ctx context.Context, op string, model any, cond string, t time.Time) (int64, error) {
	if err := s.checkOpen(op); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res := s.db.WithContext(ctx).Where(cond, t.UnixMilli()).Delete(model)
	if res.Error != nil {
		return 0, errors.Storage(op, res.Error)
	}
	return res.RowsAffected, nil
}

// =============================================================================
// AlertLedger
// =============================================================================

// RecordAlert appends an unacknowledged alert record.
func (s *Store) RecordAlert(ctx context.Context, target string, kind types.AlertKind, threshold, actual float64) (*types.AlertRecord, error) {
	if err := s.checkOpen("record alert"); err != nil {
		return nil, err
	}

	ts := s.now().UTC()
	m := alertLog{
		Target:      target,
		AlertType:   kind.String(),
		Threshold:   threshold,
		ActualValue: actual,
		TimestampMs: ts.UnixMilli(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, errors.Storage("record alert", err)
	}

	return &types.AlertRecord{
		ID:        m.ID,
		Target:    target,
		Kind:      kind,
		Threshold: threshold,
		Actual:    actual,
		Timestamp: time.UnixMilli(m.TimestampMs).UTC(),
	}, nil
}

// GetRecentAlerts returns the newest records first. An empty target lists
// every target.
func (s *Store) GetRecentAlerts(ctx context.Context, target string, limit int) ([]types.AlertRecord, error) {
	if err := s.checkOpen("get recent alerts"); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = math.MaxInt32
	}

	q := s.db.WithContext(ctx).Order("timestamp DESC").Order("id DESC").Limit(limit)
	if target != "" {
		q = q.Where("target = ?", target)
	}

	var models []alertLog
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Storage("get recent alerts", err)
	}

	out := make([]types.AlertRecord, 0, len(models))
	for _, m := range models {
		kind, err := types.ParseAlertKind(m.AlertType)
		if err != nil {
			log.Warn("skipping alert with unknown kind", "id", m.ID, "kind", m.AlertType)
			continue
		}
		out = append(out, types.AlertRecord{
			ID:           m.ID,
			Target:       m.Target,
			Kind:         kind,
			Threshold:    m.Threshold,
			Actual:       m.ActualValue,
			Timestamp:    time.UnixMilli(m.TimestampMs).UTC(),
			Acknowledged: m.Acknowledged,
		})
	}
	return out, nil
}

// AcknowledgeAlert marks the record acknowledged. Unknown ids are a no-op.
func (s *Store) AcknowledgeAlert(ctx context.Context, id int64) error {
	if err := s.checkOpen("acknowledge alert"); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).
		Model(&alertLog{}).
		Where("id = ?", id).
		Update("acknowledged", true).Error
	return errors.Storage("acknowledge alert", err)
}

// PurgeAlertsBefore deletes records strictly older than t.
func (s *Store) PurgeAlertsBefore(ctx context.Context, t time.Time) (int64, error) {
	return s.purge(ctx, "purge alerts", &alertLog{}, "timestamp < ?", t)
}

// =============================================================================
// Lifecycle
// =============================================================================

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	if err := s.checkOpen("health"); err != nil {
		return err
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Storage("health", err)
	}
	return errors.Storage("health", sqlDB.PingContext(ctx))
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
