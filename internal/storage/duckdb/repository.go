package duckdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// =============================================================================
// Raw Rows
// =============================================================================

const insertRawSQL = `
INSERT INTO raw_samples (
	target, "timestamp", cpu_pct, load1, load5, load15,
	mem_total, mem_used, mem_avail, mem_cached, swap_total, swap_used,
	disk_total, disk_used, disk_avail, disk_pct, net_rx, net_tx
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// StoreRaw appends one raw row.
func (s *Store) StoreRaw(ctx context.Context, sample *types.Sample) error {
	if err := s.checkOpen("store raw"); err != nil {
		return err
	}

	r := sample.ToRawRow()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, insertRawSQL,
		r.Target, r.Timestamp, r.CPUPercent, r.Load1, r.Load5, r.Load15,
		int64(r.MemTotal), int64(r.MemUsed), int64(r.MemAvailable), int64(r.MemCached),
		int64(r.SwapTotal), int64(r.SwapUsed),
		int64(r.DiskTotal), int64(r.DiskUsed), int64(r.DiskAvailable), r.DiskPercent,
		int64(r.NetRxBytes), int64(r.NetTxBytes),
	)
	return errors.Storage("store raw", err)
}

const queryRawSQL = `
SELECT target, "timestamp", cpu_pct, load1, load5, load15,
	mem_total, mem_used, mem_avail, mem_cached, swap_total, swap_used,
	disk_total, disk_used, disk_avail, disk_pct, net_rx, net_tx
FROM raw_samples
WHERE target = ? AND "timestamp" >= ? AND "timestamp" <= ?
ORDER BY "timestamp" ASC`

// QueryRaw returns rows of target within [from, to].
func (s *Store) QueryRaw(ctx context.Context, target string, from, to time.Time) ([]types.RawRow, error) {
	if err := s.checkOpen("query raw"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, queryRawSQL, target, from.UTC(), to.UTC())
	if err != nil {
		return nil, errors.Storage("query raw", err)
	}
	defer rows.Close()

	var out []types.RawRow
	for rows.Next() {
		var (
			r                                      types.RawRow
			memTotal, memUsed, memAvail, memCached int64
			swapTotal, swapUsed                    int64
			diskTotal, diskUsed, diskAvail, rx, tx int64
		)
		if err := rows.Scan(
			&r.Target, &r.Timestamp, &r.CPUPercent, &r.Load1, &r.Load5, &r.Load15,
			&memTotal, &memUsed, &memAvail, &memCached, &swapTotal, &swapUsed,
			&diskTotal, &diskUsed, &diskAvail, &r.DiskPercent, &rx, &tx,
		); err != nil {
			return nil, errors.Storage("scan raw row", err)
		}

		r.Timestamp = r.Timestamp.UTC()
		r.MemTotal, r.MemUsed = uint64(memTotal), uint64(memUsed)
		r.MemAvailable, r.MemCached = uint64(memAvail), uint64(memCached)
		r.SwapTotal, r.SwapUsed = uint64(swapTotal), uint64(swapUsed)
		r.DiskTotal, r.DiskUsed, r.DiskAvailable = uint64(diskTotal), uint64(diskUsed), uint64(diskAvail)
		r.NetRxBytes, r.NetTxBytes = uint64(rx), uint64(tx)

		out = append(out, r)
	}

	return out, errors.Storage("iterate raw rows", rows.Err())
}

// PurgeRawBefore deletes rows strictly older than t.
func (s *Store) PurgeRawBefore(ctx context.Context, t time.Time) (int64, error) {
	return s.purge(ctx, "purge raw", `DELETE FROM raw_samples WHERE "timestamp" < ?`, t)
}

// =============================================================================
// Aggregated Buckets
// =============================================================================

const insertBucketSQL = `
INSERT OR IGNORE INTO aggregated_buckets (
	target, period_start, period_end, sample_count,
	cpu_min, cpu_avg, cpu_max, cpu_p95,
	mem_used_min, mem_used_avg, mem_used_max, mem_total,
	disk_min, disk_avg, disk_max,
	net_rx_total, net_tx_total, net_rx_peak, net_tx_peak
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// StoreAggregated inserts the bucket unless (target, period_start) exists.
func (s *Store) StoreAggregated(ctx context.Context, b *types.AggregatedBucket) error {
	if err := s.checkOpen("store aggregated"); err != nil {
		return err
	}

	var p95 sql.NullFloat64
	if b.CPUP95 != nil {
		p95 = sql.NullFloat64{Float64: *b.CPUP95, Valid: true}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, insertBucketSQL,
		b.Target, b.PeriodStart.UTC(), b.PeriodEnd.UTC(), b.SampleCount,
		b.CPUMin, b.CPUAvg, b.CPUMax, p95,
		int64(b.MemUsedMin), int64(b.MemUsedAvg), int64(b.MemUsedMax), int64(b.MemTotal),
		b.DiskMin, b.DiskAvg, b.DiskMax,
		int64(b.NetRxTotal), int64(b.NetTxTotal), int64(b.NetRxPeak), int64(b.NetTxPeak),
	)
	return errors.Storage("store aggregated", err)
}

const queryBucketsSQL = `
SELECT target, period_start, period_end, sample_count,
	cpu_min, cpu_avg, cpu_max, cpu_p95,
	mem_used_min, mem_used_avg, mem_used_max, mem_total,
	disk_min, disk_avg, disk_max,
	net_rx_total, net_tx_total, net_rx_peak, net_tx_peak
FROM aggregated_buckets
WHERE target = ? AND period_start >= ? AND period_start <= ?
ORDER BY period_start ASC`

// QueryAggregated returns buckets of target with period_start within [from, to].
func (s *Store) QueryAggregated(ctx context.Context, target string, from, to time.Time) ([]types.AggregatedBucket, error) {
	if err := s.checkOpen("query aggregated"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, queryBucketsSQL, target, from.UTC(), to.UTC())
	if err != nil {
		return nil, errors.Storage("query aggregated", err)
	}
	defer rows.Close()

	var out []types.AggregatedBucket
	for rows.Next() {
		var (
			b                              types.AggregatedBucket
			p95                            sql.NullFloat64
			memMin, memAvg, memMax, memTot int64
			rxTot, txTot, rxPeak, txPeak   int64
		)
		if err := rows.Scan(
			&b.Target, &b.PeriodStart, &b.PeriodEnd, &b.SampleCount,
			&b.CPUMin, &b.CPUAvg, &b.CPUMax, &p95,
			&memMin, &memAvg, &memMax, &memTot,
			&b.DiskMin, &b.DiskAvg, &b.DiskMax,
			&rxTot, &txTot, &rxPeak, &txPeak,
		); err != nil {
			return nil, errors.Storage("scan bucket", err)
		}

		b.PeriodStart, b.PeriodEnd = b.PeriodStart.UTC(), b.PeriodEnd.UTC()
		if p95.Valid {
			v := p95.Float64
			b.CPUP95 = &v
		}
		b.MemUsedMin, b.MemUsedAvg, b.MemUsedMax, b.MemTotal = uint64(memMin), uint64(memAvg), uint64(memMax), uint64(memTot)
		b.NetRxTotal, b.NetTxTotal = uint64(rxTot), uint64(txTot)
		b.NetRxPeak, b.NetTxPeak = uint64(rxPeak), uint64(txPeak)

		out = append(out, b)
	}

	return out, errors.Storage("iterate buckets", rows.Err())
}

// aggregateSQL folds a half-open window in one statement. INSERT OR IGNORE
// against the (target, period_start) primary key keeps it idempotent.
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
	date_trunc('minute', "timestamp") AS bucket,
	date_trunc('minute', "timestamp") + INTERVAL 1 MINUTE,
	COUNT(*),
	MIN(cpu_pct), AVG(cpu_pct), MAX(cpu_pct), quantile_cont(cpu_pct, 0.95),
	MIN(mem_used), CAST(AVG(mem_used) AS BIGINT), MAX(mem_used), MAX(mem_total),
	MIN(disk_pct), AVG(disk_pct), MAX(disk_pct),
	CAST(SUM(net_rx) AS BIGINT), CAST(SUM(net_tx) AS BIGINT), MAX(net_rx), MAX(net_tx)
FROM raw_samples
WHERE "timestamp" >= ? AND "timestamp" < ?
GROUP BY target, bucket`

// AggregateRawBuckets folds rows within [start, end) into 1-minute buckets.
func (s *Store) AggregateRawBuckets(ctx context.Context, start, end time.Time) (int64, error) {
	if err := s.checkOpen("aggregate raw buckets"); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var created int64
	err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, aggregateSQL, start.UTC(), end.UTC())
		if err != nil {
			return err
		}
		created, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, errors.Storage("aggregate raw buckets", err)
	}
	return created, nil
}

// PurgeAggregatedBefore deletes buckets whose period_start is older than t.
func (s *Store) PurgeAggregatedBefore(ctx context.Context, t time.Time) (int64, error) {
	return s.purge(ctx, "purge aggregated", `DELETE FROM aggregated_buckets WHERE period_start < ?`, t)
}

func (s *Store) purge(ctx context.Context, op, stmt string, t time.Time) (int64, error) {
	if err := s.checkOpen(op); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, stmt, t.UTC())
	if err != nil {
		return 0, errors.Storage(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Storage(op, err)
	}
	return n, nil
}
