package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - users and posts tables
const currentSchemaVersion = 1

// Supported database/sql driver names.
const (
	DriverCGo  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

// DefaultBusyTimeout bounds how long BEGIN IMMEDIATE waits for the write lock.
const DefaultBusyTimeout = 10 * time.Second

// Store is the storage handle: one pinned SQLite connection configured once
// at open time.
//
// A Store runs at most one transaction at a time and is not safe for
// concurrent transactions. The writer package's Coordinator is its only
// production caller.
type Store struct {
	db     *sql.DB
	conn   *sql.Conn
	driver string

	mu     sync.Mutex
	stmts  map[string]*sql.Stmt
	closed bool
}

type options struct {
	driver      string
	busyTimeout time.Duration
}

// Option configures Open.
type Option func(*options)

// WithDriver selects the database/sql driver (DriverCGo or DriverPure).
func WithDriver(name string) Option {
	return func(o *options) {
		o.driver = name
	}
}

// WithBusyTimeout sets the bounded wait before a lock-contention error is raised.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = d
	}
}

// Open creates or opens a SQLite database at the given path.
//
// The pool is capped at a single connection which is pinned for the
// lifetime of the Store. The pragma profile and schema are applied to that
// connection before Open returns:
//   - WAL journal mode
//   - NORMAL synchronous mode
//   - Foreign key enforcement
//   - Busy timeout (default 10 seconds)
//   - One-time planner hint (optimize=0x10002)
func Open(path string, opts ...Option) (*Store, error) {
	o := options{
		driver:      DriverCGo,
		busyTimeout: DefaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.driver != DriverCGo && o.driver != DriverPure {
		return nil, fmt.Errorf("unsupported driver %q", o.driver)
	}

	db, err := sql.Open(o.driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One physical connection: every statement, pragma and transaction
	// runs on the same handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(ctx, conn, o.busyTimeout); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(ctx, conn); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:     db,
		conn:   conn,
		driver: o.driver,
		stmts:  make(map[string]*sql.Stmt),
	}, nil
}

// Driver returns the database/sql driver name the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

// Close refreshes planner statistics and releases the connection.
// Failures are logged, never returned. Safe to call more than once.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.db == nil {
		return
	}
	s.closed = true

	ctx := context.Background()
	if _, err := s.conn.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		slog.Warn("store close: optimize failed", "error", err)
	}

	for query, stmt := range s.stmts {
		if err := stmt.Close(); err != nil {
			slog.Warn("store close: statement close failed", "query", query, "error", err)
		}
	}
	s.stmts = nil

	if err := s.conn.Close(); err != nil {
		slog.Warn("store close: connection close failed", "error", err)
	}
	if err := s.db.Close(); err != nil {
		slog.Warn("store close: database close failed", "error", err)
	}
}

// prepared returns a cached statement bound to the pinned connection.
func (s *Store) prepared(ctx context.Context, query string) (*sql.Stmt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, NewError(ErrCodeClosed, "prepare", errStoreClosed)
	}

	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}

	stmt, err := s.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	s.stmts[query] = stmt
	return stmt, nil
}

// applyPragmas sets the connection profile.
func applyPragmas(ctx context.Context, conn *sql.Conn, busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA optimize = 0x10002",
	}

	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the version.
// This function is idempotent.
func applySchema(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.conn.QueryRowContext(context.Background(), query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
