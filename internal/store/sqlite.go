// ABOUTME: SQLite implementation of the Store interfaces using database/sql
// ABOUTME: Opens or creates the database file, configures pragmas and runs migrations

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names registered with database/sql.
const (
	// DriverSQLite is the pure-Go modernc.org/sqlite driver. FTS5 is built in.
	DriverSQLite = "sqlite"
	// DriverSQLite3 is the cgo github.com/mattn/go-sqlite3 driver. FTS5 is
	// only present when built with the sqlite_fts5 tag.
	DriverSQLite3 = "sqlite3"
)

// DefaultBusyTimeout bounds how long a writer waits on another process's lock.
const DefaultBusyTimeout = 5 * time.Second

// SearchMode selects which search strategies are tried.
type SearchMode string

const (
	// SearchAuto tries the full-text index first and falls back to substring matching.
	SearchAuto SearchMode = "auto"
	// SearchSubstring always uses substring matching.
	SearchSubstring SearchMode = "substring"
)

// Options configures Open and OpenMemory. The zero value is usable.
type Options struct {
	Driver      string
	BusyTimeout time.Duration
	SearchMode  SearchMode
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Driver == "" {
		o.Driver = DriverSQLite
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}
	if o.SearchMode == "" {
		o.SearchMode = SearchAuto
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	driver   string
	logger   *slog.Logger
	fts      bool
	searcher *searchChain
}

var _ Store = (*SQLiteStore)(nil)

// Open opens or creates the database at path and applies pending migrations.
// Parent directories are created if needed.
func Open(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	if path == "" {
		return nil, invalidInput("path", "database path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	return open(ctx, path, path, opts)
}

// OpenMemory creates a process-local database that is discarded on Close.
func OpenMemory(ctx context.Context, opts Options) (*SQLiteStore, error) {
	return open(ctx, ":memory:", "", opts)
}

func open(ctx context.Context, dsn, path string, opts Options) (*SQLiteStore, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With("component", "store")

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, dbError("opening database", err)
	}

	// Pragmas are per connection and an in-memory database lives and dies
	// with its connection, so the pool is pinned to a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := configure(ctx, db, opts.BusyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		driver: opts.Driver,
		logger: logger,
	}

	s.fts = ftsModuleAvailable(ctx, db)
	if !s.fts {
		logger.Warn("fts5 module unavailable, search uses substring matching", "driver", opts.Driver)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.ensureSearchIndex(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.searcher = newSearchChain(s.strategies(opts.SearchMode), logger)

	if path == "" {
		logger.Debug("SQLite store initialized", "path", ":memory:")
	} else {
		logger.Debug("SQLite store initialized", "path", path)
	}
	return s, nil
}

// configure applies the durability and concurrency pragmas. Foreign keys are
// off: referential integrity between threads and messages is enforced by the
// cleanup layer, and the full-text shadow table is not a foreign-key target.
func configure(ctx context.Context, db *sql.DB, busyTimeout time.Duration) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = OFF",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return dbError("configuring database: "+strings.TrimPrefix(p, "PRAGMA "), err)
		}
	}
	return nil
}

// Path returns the database file path, or "" for an in-memory store.
func (s *SQLiteStore) Path() string {
	return s.path
}

// FullTextAvailable reports whether the FTS5 index backs search.
func (s *SQLiteStore) FullTextAvailable() bool {
	return s.fts
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Debug("closing SQLite store")
	return s.db.Close()
}

const timeLayout = "2006-01-02 15:04:05"

// formatTime renders t as a UTC, second-precision string. The layout sorts
// lexically in time order.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	layouts := []string{timeLayout, "2006-01-02T15:04:05", time.RFC3339Nano}
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, firstErr)
}

// nullString maps nil to SQL NULL.
func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
