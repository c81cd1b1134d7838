package duckdb

import (
	"context"
	"math"
	"time"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// RecordAlert appends an unacknowledged alert record.
func (s *Store) RecordAlert(ctx context.Context, target string, kind types.AlertKind, threshold, actual float64) (*types.AlertRecord, error) {
	if err := s.checkOpen("record alert"); err != nil {
		return nil, err
	}

	rec := &types.AlertRecord{
		Target:    target,
		Kind:      kind,
		Threshold: threshold,
		Actual:    actual,
		Timestamp: s.now().UTC(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO alert_log (target, alert_type, threshold, actual_value, "timestamp", acknowledged)
		 VALUES (?, ?, ?, ?, ?, false) RETURNING id`,
		rec.Target, rec.Kind.String(), rec.Threshold, rec.Actual, rec.Timestamp,
	).Scan(&rec.ID)
	if err != nil {
		return nil, errors.Storage("record alert", err)
	}

	return rec, nil
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

	query := `SELECT id, target, alert_type, threshold, actual_value, "timestamp", acknowledged
		FROM alert_log WHERE (? = '' OR target = ?)
		ORDER BY "timestamp" DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, target, target, limit)
	if err != nil {
		return nil, errors.Storage("get recent alerts", err)
	}
	defer rows.Close()

	out := make([]types.AlertRecord, 0)
	for rows.Next() {
		var (
			rec  types.AlertRecord
			kind string
		)
		if err := rows.Scan(&rec.ID, &rec.Target, &kind, &rec.Threshold, &rec.Actual, &rec.Timestamp, &rec.Acknowledged); err != nil {
			return nil, errors.Storage("scan alert", err)
		}

		rec.Kind, err = types.ParseAlertKind(kind)
		if err != nil {
			log.Warn("skipping alert with unknown kind", "id", rec.ID, "kind", kind)
			continue
		}
		rec.Timestamp = rec.Timestamp.UTC()

		out = append(out, rec)
	}

	return out, errors.Storage("iterate alerts", rows.Err())
}

// AcknowledgeAlert marks the record acknowledged. Unknown ids are a no-op.
func (s *Store) AcknowledgeAlert(ctx context.Context, id int64) error {
	if err := s.checkOpen("acknowledge alert"); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE alert_log SET acknowledged = true WHERE id = ?`, id)
	return errors.Storage("acknowledge alert", err)
}

// PurgeAlertsBefore deletes records strictly older than t.
func (s *Store) PurgeAlertsBefore(ctx context.Context, t time.Time) (int64, error) {
	return s.purge(ctx, "purge alerts", `DELETE FROM alert_log WHERE "timestamp" < ?`, t)
}
