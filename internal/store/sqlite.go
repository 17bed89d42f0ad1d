// ABOUTME: SQLite implementation of the CacheStore interface using modernc.org/sqlite
// ABOUTME: Provides user/emoji persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the CacheStore interface using SQLite
type SQLiteStore struct {
	db        *sql.DB
	logger    *slog.Logger
	enqueuer  Enqueuer
	staleness time.Duration
	now       func() time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		logger:    logger,
		staleness: StalenessThreshold,
		now:       time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the entity tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id          TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			pronouns    TEXT NOT NULL DEFAULT '',
			image_url   TEXT NOT NULL,
			ttl_seconds INTEGER NOT NULL,
			expires_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_expires ON users(expires_at);

		CREATE TABLE IF NOT EXISTS emojis (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			alias      TEXT,
			image_url  TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_emojis_expires ON emojis(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SetEnqueuer wires the background refresh queue. Must be called before the
// store serves reads; a nil enqueuer disables the stale-read hand-off.
func (s *SQLiteStore) SetEnqueuer(e Enqueuer) {
	s.enqueuer = e
}

// SetStalenessThreshold overrides the age at which a read extends a record's
// expiry and hands it to the refresh queue. Non-positive values keep the
// default.
func (s *SQLiteStore) SetStalenessThreshold(d time.Duration) {
	if d <= 0 {
		return
	}
	s.staleness = d
}

// SetClock overrides the store's time source. Used by tests.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

// DB exposes the underlying handle so the analytics aggregator and the
// migration manager can share the same database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// HealthCheck probes database connectivity. It is independent of data.
func (s *SQLiteStore) HealthCheck(ctx context.Context) bool {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		s.logger.Error("health check failed", "error", err)
		return false
	}
	return one == 1
}

// PurgeExpired removes all expired user and emoji rows and returns the
// number of rows removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) int64 {
	now := s.now().UTC().Format(time.RFC3339)

	var total int64
	for _, table := range []string{"users", "emojis"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE expires_at <= ?", table), now)
		if err != nil {
			s.logger.Error("purging expired rows", "table", table, "error", err)
			continue
		}
		n, err := res.RowsAffected()
		if err != nil {
			continue
		}
		total += n
	}

	if total > 0 {
		s.logger.Info("purged expired records", "count", total)
	}
	return total
}

// PurgeAll removes every cached user and emoji row.
func (s *SQLiteStore) PurgeAll(ctx context.Context) PurgeResult {
	var result PurgeResult

	if res, err := s.db.ExecContext(ctx, "DELETE FROM users"); err != nil {
		s.logger.Error("purging users", "error", err)
	} else {
		result.Users, _ = res.RowsAffected()
	}

	if res, err := s.db.ExecContext(ctx, "DELETE FROM emojis"); err != nil {
		s.logger.Error("purging emojis", "error", err)
	} else {
		result.Emojis, _ = res.RowsAffected()
	}

	s.logger.Info("purged all records", "users", result.Users, "emojis", result.Emojis)
	return result
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullString returns nil for empty strings, otherwise the string pointer
func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
