package storage

import (
	"context"
	"time"

	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// Repository is the durable store of raw rows and aggregated buckets.
type Repository interface {
	// StoreRaw appends one raw row for the sample. No deduplication.
	StoreRaw(ctx context.Context, s *types.Sample) error

	// QueryRaw returns rows of target with from <= timestamp <= to,
	// ascending by timestamp.
	QueryRaw(ctx context.Context, target string, from, to time.Time) ([]types.RawRow, error)

	// StoreAggregated inserts a bucket unless one exists for
	// (target, period_start).
	StoreAggregated(ctx context.Context, b *types.AggregatedBucket) error

	// QueryAggregated returns buckets of target with
	// from <= period_start <= to, ascending by period_start.
	QueryAggregated(ctx context.Context, target string, from, to time.Time) ([]types.AggregatedBucket, error)

	// AggregateRawBuckets folds raw rows with start <= timestamp < end into
	// 1-minute buckets grouped by target and returns the number of buckets
	// newly created. Buckets that already exist are left untouched.
	AggregateRawBuckets(ctx context.Context, start, end time.Time) (int64, error)

	// PurgeRawBefore deletes raw rows strictly older than t.
	PurgeRawBefore(ctx context.Context, t time.Time) (int64, error)

	// PurgeAggregatedBefore deletes buckets whose period_start is strictly
	// older than t.
	PurgeAggregatedBefore(ctx context.Context, t time.Time) (int64, error)
}

// AlertLedger is the durable store of alert firings.
type AlertLedger interface {
	// RecordAlert appends an unacknowledged record stamped with the
	// current time.
	RecordAlert(ctx context.Context, target string, kind types.AlertKind, threshold, actual float64) (*types.AlertRecord, error)

	// GetRecentAlerts returns records of target, most recent first, at
	// most limit. An empty target lists every target.
	GetRecentAlerts(ctx context.Context, target string, limit int) ([]types.AlertRecord, error)

	// AcknowledgeAlert marks a record acknowledged. Unknown ids are a no-op.
	AcknowledgeAlert(ctx context.Context, id int64) error

	// PurgeAlertsBefore deletes records strictly older than t.
	PurgeAlertsBefore(ctx context.Context, t time.Time) (int64, error)
}

// Store is a backend that implements both ports.
type Store interface {
	Repository
	AlertLedger

	// Health checks backend connectivity.
	Health(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
