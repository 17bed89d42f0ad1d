// ABOUTME: SQLite operations for cached custom emoji records
// ABOUTME: Implements single and transactional batch upserts plus TTL-aware reads

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const emojiUpsertQuery = `
	INSERT INTO emojis (id, name, alias, image_url, expires_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		alias      = excluded.alias,
		image_url  = excluded.image_url,
		expires_at = excluded.expires_at
`

// InsertEmoji upserts a single emoji keyed by its normalized name.
// A zero ttl means DefaultEmojiTTL. Reports false on storage failure.
func (s *SQLiteStore) InsertEmoji(ctx context.Context, e EmojiUpsert, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultEmojiTTL
	}
	expiresAt := s.now().UTC().Add(ttl).Format(time.RFC3339)

	name := NormalizeEmojiName(e.Name)
	if name == "" {
		return false
	}

	_, err := s.db.ExecContext(ctx, emojiUpsertQuery,
		uuid.New().String(),
		name,
		nullString(NormalizeEmojiName(e.Alias)),
		e.ImageURL,
		expiresAt,
	)
	if err != nil {
		s.logger.Error("inserting emoji", "name", name, "error", err)
		return false
	}
	return true
}

// BatchInsertEmoji upserts all entries inside one transaction so a partial
// emoji set is never visible to concurrent readers. Either every row commits
// or none do. Reports false if the batch was rolled back.
func (s *SQLiteStore) BatchInsertEmoji(ctx context.Context, entries []EmojiUpsert, ttl time.Duration) bool {
	if len(entries) == 0 {
		return true
	}
	if ttl <= 0 {
		ttl = DefaultEmojiTTL
	}
	expiresAt := s.now().UTC().Add(ttl).Format(time.RFC3339)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, emojiUpsertQuery)
		if err != nil {
			return fmt.Errorf("preparing emoji upsert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, e := range entries {
			name := NormalizeEmojiName(e.Name)
			if name == "" {
				return fmt.Errorf("emoji entry with empty name")
			}
			if _, err := stmt.ExecContext(ctx,
				uuid.New().String(),
				name,
				nullString(NormalizeEmojiName(e.Alias)),
				e.ImageURL,
				expiresAt,
			); err != nil {
				return fmt.Errorf("upserting emoji %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("batch inserting emojis", "count", len(entries), "error", err)
		return false
	}

	s.logger.Debug("cached emoji batch", "count", len(entries))
	return true
}

// GetEmoji returns the cached emoji for the given name (any case variant).
// Expired rows are deleted lazily and reported as absent.
func (s *SQLiteStore) GetEmoji(ctx context.Context, name string) (*EmojiRecord, bool) {
	name = NormalizeEmojiName(name)

	query := `
		SELECT id, name, alias, image_url, expires_at
		FROM emojis
		WHERE name = ?
	`

	rec, err := scanEmoji(s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.logger.Error("querying emoji", "name", name, "error", err)
		return nil, false
	}

	if !rec.ExpiresAt.After(s.now().UTC()) {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM emojis WHERE name = ?", name); err != nil {
			s.logger.Error("deleting expired emoji", "name", name, "error", err)
		}
		return nil, false
	}

	return rec, true
}

// ListEmojis returns all non-expired emoji records in no particular order.
// Storage failures degrade to an empty list.
func (s *SQLiteStore) ListEmojis(ctx context.Context) []EmojiRecord {
	query := `
		SELECT id, name, alias, image_url, expires_at
		FROM emojis
		WHERE expires_at > ?
	`

	rows, err := s.db.QueryContext(ctx, query, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		s.logger.Error("listing emojis", "error", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var emojis []EmojiRecord
	for rows.Next() {
		rec, err := scanEmoji(rows)
		if err != nil {
			s.logger.Error("scanning emoji row", "error", err)
			return nil
		}
		emojis = append(emojis, *rec)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("iterating emoji rows", "error", err)
		return nil
	}

	return emojis
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rolling back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// scanRow covers both *sql.Row and *sql.Rows.
type scanRow interface {
	Scan(dest ...any) error
}

// scanEmoji scans a single emoji row into an EmojiRecord.
func scanEmoji(row scanRow) (*EmojiRecord, error) {
	var rec EmojiRecord
	var alias sql.NullString
	var expiresAtStr string

	if err := row.Scan(&rec.ID, &rec.Name, &alias, &rec.ImageURL, &expiresAtStr); err != nil {
		return nil, err
	}

	rec.Alias = alias.String
	var err error
	rec.ExpiresAt, err = time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing emoji expiry: %w", err)
	}
	return &rec, nil
}
