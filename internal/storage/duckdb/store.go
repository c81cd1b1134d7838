// Package duckdb provides the DuckDB storage backend.
//
// This package handles all persistence of raw rows, 1-minute buckets and
// alert records. It uses DuckDB through database/sql.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/storage/config"
)

var log = logging.Component("duckdb")

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// DSN is the database path. Empty opens an in-memory database.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration

	// PingTimeout bounds the connectivity check in New.
	PingTimeout time.Duration

	// MemoryLimit is passed to SET memory_limit when non-empty.
	MemoryLimit string

	// Now stamps alert records. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// FromStorageConfig maps the storage section of the config file.
func FromStorageConfig(cfg *config.Config) Config {
	return Config{
		DSN:             cfg.Path,
		MaxOpenConns:    cfg.Pool.MaxOpenConns,
		MaxIdleConns:    cfg.Pool.MaxIdleConns,
		ConnMaxLifetime: cfg.Pool.ConnMaxLifetime,
		PingTimeout:     cfg.Pool.PingTimeout,
		MemoryLimit:     cfg.MemoryLimit,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store implements storage.Store on DuckDB.
//
// Store is safe for concurrent use. Writers are serialized by writeMu so
// that aggregation and purges never conflict inside DuckDB.
type Store struct {
	db      *sql.DB
	config  Config
	now     func() time.Time
	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

// New opens the database, verifies connectivity and applies the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, errors.Storage("open database", lockHint(cfg.DSN, err))
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Storage("ping database", lockHint(cfg.DSN, err))
	}

	if cfg.MemoryLimit != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit='%s'", cfg.MemoryLimit)); err != nil {
			db.Close()
			return nil, errors.Storage("set memory limit", err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	log.Info("duckdb store opened", "dsn", displayDSN(cfg.DSN))

	return &Store{
		db:     db,
		config: cfg,
		now:    now,
	}, nil
}

// ErrLocked is returned by New when another process holds the database file.
var ErrLocked = errors.New("database file is locked by another process")

// lockHint maps DuckDB's cross-process file lock conflict to ErrLocked.
func lockHint(dsn string, err error) error {
	if !isLockConflict(err) {
		return err
	}
	return fmt.Errorf("%s: %w (run the CLI inside `hostwatchd serve --console` or use the sqlite backend): %w", dsn, ErrLocked, err)
}

func isLockConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Could not set lock on file")
}

func displayDSN(dsn string) string {
	if dsn == "" {
		return ":memory:"
	}
	return dsn
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// DB returns the underlying database connection.
// Use with caution - prefer using Store methods.
func (s *Store) DB() *sql.DB {
	return s.db
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
// Transaction Support
// =============================================================================

// TransactionContext executes a function within a database transaction.
//
// If the function returns an error, the transaction is rolled back.
// If the function returns nil, the transaction is committed.
func (s *Store) TransactionContext(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// =============================================================================
// Health Check
// =============================================================================

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	if err := s.checkOpen("health"); err != nil {
		return err
	}
	return errors.Storage("health", s.db.PingContext(ctx))
}
