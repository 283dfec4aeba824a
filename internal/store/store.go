// Package store provides the durable event store for the pulse pipeline.
//
// Events are persisted in a single DuckDB database file. All writes go
// through one dedicated connection serialized by a commit lock; reads use
// the connection pool and never touch that lock. Retention deletes share
// the write path so a cleanup can never interleave with a batch commit.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/pulse/internal/logging"
)

var log = logging.Component("store")

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// Path is the DuckDB database file. ":memory:" opens an in-memory
	// database, which is useful for tests.
	Path string

	// ReadConns is the read-side pool size. The write connection is
	// reserved on top of it.
	ReadConns int

	// ConnMaxLifetime is the maximum lifetime of a pooled connection.
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:            "pulse.duckdb",
		ReadConns:       4,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store provides durable persistence for latency events.
//
// Store is safe for concurrent use. Writers (the batch writer and the
// retention task) serialize on an internal lock; readers bypass it.
type Store struct {
	db        *sql.DB
	writeConn *sql.Conn
	writeMu   sync.Mutex
	config    Config

	mu     sync.RWMutex
	closed bool
}

// New opens the database, applies the schema and reserves the write
// connection. A failure here is fatal to the daemon; every later storage
// error is contained and counted instead.
func New(cfg Config) (*Store, error) {
	dsn := cfg.Path
	if dsn == ":memory:" {
		dsn = ""
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.ReadConns + 1)
	db.SetMaxIdleConns(cfg.ReadConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	writeConn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reserve write connection: %w", err)
	}

	log.Info("store opened", "path", cfg.Path, "read_conns", cfg.ReadConns)

	return &Store{
		db:        db,
		writeConn: writeConn,
		config:    cfg,
	}, nil
}

// Close releases the write connection and closes the database.
// It waits for an in-flight write transaction to finish.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.writeConn.Close(); err != nil {
		log.Warn("close write connection", "error", err)
	}
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// =============================================================================
// Write Path
// =============================================================================

// WriteTx executes fn inside a transaction on the dedicated write
// connection, holding the commit lock for the duration.
//
// If fn returns an error the transaction is rolled back; otherwise it is
// committed. All mutations of the event table go through here or through
// writeExec, so commits and retention deletes never interleave.
func (s *Store) WriteTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}

	tx, err := s.writeConn.BeginTx(ctx, nil)
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

// writeExec runs a single statement on the write connection under the
// commit lock. A lone statement commits atomically on its own, so this
// avoids the transaction overhead for single-statement writes.
func (s *Store) writeExec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.writeConn.ExecContext(ctx, query, args...)
}

// =============================================================================
// Read Path
// =============================================================================

// QueryContext executes a read query on the connection pool.
// Reads never acquire the commit lock.
func (s *Store) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a read query returning a single row.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// =============================================================================
// Health Check
// =============================================================================

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}
