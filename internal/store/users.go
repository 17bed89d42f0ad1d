// ABOUTME: SQLite operations for cached user profile records
// ABOUTME: Implements upsert, TTL-aware reads with stale refresh hand-off, purge

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// InsertUser upserts a user record keyed by its normalized external ID.
// On conflict every profile column and the expiry are overwritten from this
// call (last write wins). Reports false on storage failure.
func (s *SQLiteStore) InsertUser(ctx context.Context, u UserUpsert) bool {
	externalID := NormalizeUserID(u.ExternalID)
	if externalID == "" {
		return false
	}

	ttl := u.TTL
	if ttl <= 0 {
		ttl = DefaultUserTTL
	}
	expiresAt := s.now().UTC().Add(ttl)

	// Conflict columns enumerated explicitly: display_name, pronouns,
	// image_url, ttl_seconds and expires_at follow the new call; id does not.
	query := `
		INSERT INTO users (id, external_id, display_name, pronouns, image_url, ttl_seconds, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			display_name = excluded.display_name,
			pronouns     = excluded.pronouns,
			image_url    = excluded.image_url,
			ttl_seconds  = excluded.ttl_seconds,
			expires_at   = excluded.expires_at
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		externalID,
		u.DisplayName,
		u.Pronouns,
		u.ImageURL,
		int64(ttl.Seconds()),
		expiresAt.Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Error("inserting user", "external_id", externalID, "error", err)
		return false
	}

	s.logger.Debug("cached user", "external_id", externalID, "expires_at", expiresAt)
	return true
}

// GetUser returns the cached record for the given external ID (any case
// variant). Expired records are deleted lazily and reported as absent.
// Records older than the staleness threshold get their expiry extended by one
// full TTL and are handed to the refresh queue; the caller is never blocked
// on the refresh.
func (s *SQLiteStore) GetUser(ctx context.Context, externalID string) (*UserRecord, bool) {
	externalID = NormalizeUserID(externalID)

	query := `
		SELECT id, external_id, display_name, pronouns, image_url, ttl_seconds, expires_at
		FROM users
		WHERE external_id = ?
	`

	var rec UserRecord
	var ttlSeconds int64
	var expiresAtStr string
	err := s.db.QueryRowContext(ctx, query, externalID).Scan(
		&rec.ID,
		&rec.ExternalID,
		&rec.DisplayName,
		&rec.Pronouns,
		&rec.ImageURL,
		&ttlSeconds,
		&expiresAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.logger.Error("querying user", "external_id", externalID, "error", err)
		return nil, false
	}

	rec.TTL = time.Duration(ttlSeconds) * time.Second
	rec.ExpiresAt, err = time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		s.logger.Error("parsing user expiry", "external_id", externalID, "error", err)
		return nil, false
	}

	now := s.now().UTC()
	if !rec.ExpiresAt.After(now) {
		s.deleteUser(ctx, externalID)
		return nil, false
	}

	insertedAt := rec.ExpiresAt.Add(-rec.TTL)
	if now.Sub(insertedAt) > s.staleness {
		rec.ExpiresAt = s.extendUser(ctx, externalID, rec.TTL, rec.ExpiresAt)
		if s.enqueuer != nil {
			s.enqueuer.Enqueue(externalID)
		}
	}

	return &rec, true
}

// PurgeUser removes a single user row. Reports whether a row was removed.
func (s *SQLiteStore) PurgeUser(ctx context.Context, externalID string) bool {
	externalID = NormalizeUserID(externalID)

	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE external_id = ?", externalID)
	if err != nil {
		s.logger.Error("purging user", "external_id", externalID, "error", err)
		return false
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false
	}
	return n > 0
}

// deleteUser removes an expired row as a read side effect.
func (s *SQLiteStore) deleteUser(ctx context.Context, externalID string) {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE external_id = ?", externalID); err != nil {
		s.logger.Error("deleting expired user", "external_id", externalID, "error", err)
		return
	}
	s.logger.Debug("expired user removed", "external_id", externalID)
}

// extendUser pushes a stale record's expiry out by one full TTL and returns
// the new expiry. On failure the previous expiry is returned unchanged.
func (s *SQLiteStore) extendUser(ctx context.Context, externalID string, ttl time.Duration, prev time.Time) time.Time {
	expiresAt := s.now().UTC().Add(ttl)

	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET expires_at = ? WHERE external_id = ?",
		expiresAt.Format(time.RFC3339), externalID)
	if err != nil {
		s.logger.Error("extending user expiry", "external_id", externalID, "error", err)
		return prev
	}

	s.logger.Debug("extended stale user", "external_id", externalID, "expires_at", expiresAt)
	return expiresAt
}
