package parquet

import (
	"context"
	"time"

	"github.com/xtxerr/hostwatch/internal/storage"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// ExportRequest selects what to export.
type ExportRequest struct {
	Targets []string
	From    time.Time
	To      time.Time
	Tier    types.Tier
	Path    string
	Options Options
}

// Export writes the selected tier for every requested target into one
// Parquet file and returns the number of rows written.
func Export(ctx context.Context, repo storage.Repository, req ExportRequest) (int64, error) {
	switch req.Tier {
	case types.TierMinute:
		return exportBuckets(ctx, repo, req)
	default:
		return exportRaw(ctx, repo, req)
	}
}

func exportRaw(ctx context.Context, repo storage.Repository, req ExportRequest) (int64, error) {
	w, err := NewWriter[RawRecord](req.Path, req.Options)
	if err != nil {
		return 0, err
	}

	for _, target := range req.Targets {
		rows, err := repo.QueryRaw(ctx, target, req.From, req.To)
		if err != nil {
			w.Close()
			return w.RowCount(), err
		}

		records := make([]RawRecord, len(rows))
		for i := range rows {
			records[i] = FromRawRow(&rows[i])
		}
		if err := w.Write(records); err != nil {
			w.Close()
			return w.RowCount(), err
		}
	}

	return w.RowCount(), w.Close()
}

func exportBuckets(ctx context.Context, repo storage.Repository, req ExportRequest) (int64, error) {
	w, err := NewWriter[BucketRecord](req.Path, req.Options)
	if err != nil {
		return 0, err
	}

	for _, target := range req.Targets {
		buckets, err := repo.QueryAggregated(ctx, target, req.From, req.To)
		if err != nil {
			w.Close()
			return w.RowCount(), err
		}

		records := make([]BucketRecord, len(buckets))
		for i := range buckets {
			records[i] = FromBucket(&buckets[i])
		}
		if err := w.Write(records); err != nil {
			w.Close()
			return w.RowCount(), err
		}
	}

	return w.RowCount(), w.Close()
}
