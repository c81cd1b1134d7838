// Package storage defines the durable storage contracts of hostwatch.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Collector  │────▶│ Repository  │◀────│ Aggregator  │
//	│   (2s)      │     │  raw / 1m   │     │   (60s)     │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	       │                   ▲                   │
//	       ▼                   │                   ▼
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│ AlertLedger │     │   Query     │     │  Retention  │
//	│             │     │  Resolver   │     │   Manager   │
//	└─────────────┘     └─────────────┘     └─────────────┘
//
// Implementations live in sub-packages:
//   - duckdb: DuckDB via database/sql (default)
//   - sqlite: pure-Go SQLite via gorm
//   - memory: in-process maps with streaming aggregates
//
// Every implementation is safe for concurrent use by the collector,
// the aggregator and API callers. Errors wrap errors.ErrStorage.
package storage
