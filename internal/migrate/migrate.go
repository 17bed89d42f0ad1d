// ABOUTME: Versioned, ordered, idempotent schema migration manager
// ABOUTME: Applies pending migrations in transactions and records each one

package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Migration is a single versioned schema/data upgrade. Up runs inside a
// transaction that also inserts the migration's record, so a mid-migration
// failure leaves no partial record.
type Migration struct {
	Version     Version
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

// Record is an applied-migration row.
type Record struct {
	Version     Version
	AppliedAt   time.Time
	Description string
}

// Manager runs schema migrations at startup, before any other component
// serves traffic. Unlike the cache paths, migration failures are fatal: a
// skipped or partial schema change corrupts data downstream.
type Manager struct {
	db         *sql.DB
	logger     *slog.Logger
	current    Version
	migrations []Migration
	now        func() time.Time
}

// NewManager creates a migration manager for the given database. current is
// the running build's schema version; migrations newer than it are ignored.
func NewManager(db *sql.DB, current Version, migrations []Migration) *Manager {
	return &Manager{
		db:         db,
		logger:     slog.Default().With("component", "migrate"),
		current:    current,
		migrations: migrations,
		now:        time.Now,
	}
}

// SetClock overrides the manager's time source. Used by tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Run applies all pending migrations in version order and returns how many
// were applied. fresh indicates a brand-new database; on an existing
// database with no recorded migrations, a virtual baseline record for the
// version preceding the current build is synthesized first so historical
// migrations are not replayed against an already-current schema.
func (m *Manager) Run(ctx context.Context, fresh bool) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, fmt.Errorf("ensuring migrations table: %w", err)
	}

	last, found, err := m.lastApplied(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading applied migrations: %w", err)
	}

	if !found && !fresh {
		prev, ok := m.current.Previous()
		if ok {
			if err := m.insertRecord(ctx, m.db, prev, "virtual baseline for pre-migration install"); err != nil {
				return 0, fmt.Errorf("recording virtual baseline: %w", err)
			}
			m.logger.Warn("synthesized virtual baseline migration record",
				"version", prev, "current", m.current)
			last, found = prev, true
		}
	}

	pending := make([]Migration, 0, len(m.migrations))
	for _, mig := range m.migrations {
		if mig.Version.Compare(m.current) > 0 {
			continue // targets a future build
		}
		if found && mig.Version.Compare(last) <= 0 {
			continue // already applied (or superseded by the baseline)
		}
		pending = append(pending, mig)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version.Compare(pending[j].Version) < 0
	})

	for _, mig := range pending {
		if err := m.apply(ctx, mig); err != nil {
			m.logger.Error("migration failed", "version", mig.Version, "error", err)
			return 0, fmt.Errorf("applying migration %s: %w", mig.Version, err)
		}
		m.logger.Info("applied migration", "version", mig.Version, "description", mig.Description)
	}

	return len(pending), nil
}

// Applied returns all recorded migrations in version order.
func (m *Manager) Applied(ctx context.Context) ([]Record, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT version, applied_at, description FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var versionStr, appliedAtStr string
		var rec Record
		if err := rows.Scan(&versionStr, &appliedAtStr, &rec.Description); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		if rec.Version, err = ParseVersion(versionStr); err != nil {
			return nil, err
		}
		if rec.AppliedAt, err = time.Parse(time.RFC3339, appliedAtStr); err != nil {
			return nil, fmt.Errorf("parsing applied_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migration rows: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Version.Compare(records[j].Version) < 0
	})
	return records, nil
}

func (m *Manager) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     TEXT PRIMARY KEY,
			applied_at  TEXT NOT NULL,
			description TEXT NOT NULL
		)
	`)
	return err
}

// lastApplied returns the highest recorded version.
func (m *Manager) lastApplied(ctx context.Context) (Version, bool, error) {
	records, err := m.Applied(ctx)
	if err != nil {
		return Version{}, false, err
	}
	if len(records) == 0 {
		return Version{}, false, nil
	}
	return records[len(records)-1].Version, true, nil
}

// apply runs one migration and its record insert in a single transaction.
func (m *Manager) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := mig.Up(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("rolling back migration", "version", mig.Version, "error", rbErr)
		}
		return err
	}

	if err := m.insertRecord(ctx, tx, mig.Version, mig.Description); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("rolling back migration", "version", mig.Version, "error", rbErr)
		}
		return err
	}

	return tx.Commit()
}

// execer covers *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (m *Manager) insertRecord(ctx context.Context, db execer, v Version, description string) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		v.String(),
		m.now().UTC().Format(time.RFC3339),
		description,
	)
	if err != nil {
		return fmt.Errorf("inserting migration record %s: %w", v, err)
	}
	return nil
}
