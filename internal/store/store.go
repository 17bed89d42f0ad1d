// ABOUTME: Store types and interfaces for cachet's persistent cache
// ABOUTME: Defines UserRecord, EmojiRecord and the CacheStore interface

package store

import (
	"context"
	"strings"
	"time"
)

// Default TTLs. User records are long-lived because reads lazily refresh
// them; emoji sets are replaced wholesale on a recurring full refresh.
const (
	DefaultUserTTL  = 30 * 24 * time.Hour
	DefaultEmojiTTL = 7 * 24 * time.Hour

	// StalenessThreshold is the record age past which a read extends the
	// record's expiry and enqueues a background refresh.
	StalenessThreshold = 24 * time.Hour
)

// UserRecord is a cached copy of an upstream user profile.
type UserRecord struct {
	ID          string
	ExternalID  string // normalized upper-case, unique
	DisplayName string
	Pronouns    string
	ImageURL    string
	TTL         time.Duration
	ExpiresAt   time.Time
}

// UserUpsert carries the fields written by InsertUser. A zero TTL means
// DefaultUserTTL.
type UserUpsert struct {
	ExternalID  string
	DisplayName string
	Pronouns    string
	ImageURL    string
	TTL         time.Duration
}

// EmojiRecord is a cached custom emoji. Alias, when set, names another
// emoji this one points to instead of carrying its own image.
type EmojiRecord struct {
	ID        string
	Name      string // normalized lower-case, unique
	Alias     string
	ImageURL  string
	ExpiresAt time.Time
}

// EmojiUpsert carries the fields written by InsertEmoji and BatchInsertEmoji.
type EmojiUpsert struct {
	Name     string
	Alias    string
	ImageURL string
}

// PurgeResult reports how many rows PurgeAll removed per table.
type PurgeResult struct {
	Users  int64
	Emojis int64
}

// Enqueuer accepts external user identifiers for background refresh.
// The store hands stale-but-live reads to it without blocking the caller.
type Enqueuer interface {
	Enqueue(externalID string)
}

// CacheStore defines the persistence operations for cached users and emojis.
// Operations degrade on storage failure: writes report false and reads report
// absence rather than surfacing errors, because the cache is allowed to
// behave as a miss without taking down the service.
type CacheStore interface {
	InsertUser(ctx context.Context, u UserUpsert) bool
	GetUser(ctx context.Context, externalID string) (*UserRecord, bool)
	PurgeUser(ctx context.Context, externalID string) bool

	InsertEmoji(ctx context.Context, e EmojiUpsert, ttl time.Duration) bool
	BatchInsertEmoji(ctx context.Context, entries []EmojiUpsert, ttl time.Duration) bool
	GetEmoji(ctx context.Context, name string) (*EmojiRecord, bool)
	ListEmojis(ctx context.Context) []EmojiRecord

	PurgeExpired(ctx context.Context) int64
	PurgeAll(ctx context.Context) PurgeResult
	HealthCheck(ctx context.Context) bool
}

// NormalizeUserID upper-cases an external user identifier so case variants
// collide on the same row.
func NormalizeUserID(externalID string) string {
	return strings.ToUpper(strings.TrimSpace(externalID))
}

// NormalizeEmojiName lower-cases an emoji name so case variants collide on
// the same row.
func NormalizeEmojiName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
