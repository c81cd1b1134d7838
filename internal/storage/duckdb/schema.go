package duckdb

import (
	"context"
	"database/sql"

	"github.com/xtxerr/hostwatch/internal/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS raw_samples (
		target      VARCHAR   NOT NULL,
		"timestamp" TIMESTAMP NOT NULL,
		cpu_pct     DOUBLE    NOT NULL,
		load1       DOUBLE    NOT NULL,
		load5       DOUBLE    NOT NULL,
		load15      DOUBLE    NOT NULL,
		mem_total   BIGINT    NOT NULL,
		mem_used    BIGINT    NOT NULL,
		mem_avail   BIGINT    NOT NULL,
		mem_cached  BIGINT    NOT NULL,
		swap_total  BIGINT    NOT NULL,
		swap_used   BIGINT    NOT NULL,
		disk_total  BIGINT    NOT NULL,
		disk_used   BIGINT    NOT NULL,
		disk_avail  BIGINT    NOT NULL,
		disk_pct    DOUBLE    NOT NULL,
		net_rx      BIGINT    NOT NULL,
		net_tx      BIGINT    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_samples_target_ts ON raw_samples (target, "timestamp")`,

	`CREATE TABLE IF NOT EXISTS aggregated_buckets (
		target       VARCHAR   NOT NULL,
		period_start TIMESTAMP NOT NULL,
		period_end   TIMESTAMP NOT NULL,
		sample_count BIGINT    NOT NULL,
		cpu_min      DOUBLE    NOT NULL,
		cpu_avg      DOUBLE    NOT NULL,
		cpu_max      DOUBLE    NOT NULL,
		cpu_p95      DOUBLE,
		mem_used_min BIGINT    NOT NULL,
		mem_used_avg BIGINT    NOT NULL,
		mem_used_max BIGINT    NOT NULL,
		mem_total    BIGINT    NOT NULL,
		disk_min     DOUBLE    NOT NULL,
		disk_avg     DOUBLE    NOT NULL,
		disk_max     DOUBLE    NOT NULL,
		net_rx_total BIGINT    NOT NULL,
		net_tx_total BIGINT    NOT NULL,
		net_rx_peak  BIGINT    NOT NULL,
		net_tx_peak  BIGINT    NOT NULL,
		PRIMARY KEY (target, period_start)
	)`,

	`CREATE SEQUENCE IF NOT EXISTS alert_log_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS alert_log (
		id           BIGINT    PRIMARY KEY DEFAULT nextval('alert_log_id_seq'),
		target       VARCHAR   NOT NULL,
		alert_type   VARCHAR   NOT NULL,
		threshold    DOUBLE    NOT NULL,
		actual_value DOUBLE    NOT NULL,
		"timestamp"  TIMESTAMP NOT NULL,
		acknowledged BOOLEAN   NOT NULL DEFAULT false
	)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Storage("migrate", err)
		}
	}
	return nil
}
