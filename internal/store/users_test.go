package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertUser_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ok := store.InsertUser(ctx, UserUpsert{
		ExternalID:  "u0266frgp",
		DisplayName: "krn",
		Pronouns:    "they/them",
		ImageURL:    "https://avatars.example/krn_512.png",
	})
	require.True(t, ok)

	// Any case variant of the external ID hits the same row.
	for _, id := range []string{"U0266FRGP", "u0266frgp", "U0266frgp"} {
		rec, found := store.GetUser(ctx, id)
		require.True(t, found, "lookup with %q", id)
		assert.Equal(t, "U0266FRGP", rec.ExternalID)
		assert.Equal(t, "krn", rec.DisplayName)
		assert.Equal(t, "they/them", rec.Pronouns)
		assert.Equal(t, "https://avatars.example/krn_512.png", rec.ImageURL)
	}
}

func TestInsertUser_ConflictLastWriteWins(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.InsertUser(ctx, UserUpsert{
		ExternalID:  "U1",
		DisplayName: "first",
		Pronouns:    "she/her",
		ImageURL:    "https://x/old.png",
	}))

	first, found := store.GetUser(ctx, "U1")
	require.True(t, found)

	require.True(t, store.InsertUser(ctx, UserUpsert{
		ExternalID:  "U1",
		DisplayName: "second",
		Pronouns:    "xe/xem",
		ImageURL:    "https://x/new.png",
	}))

	rec, found := store.GetUser(ctx, "U1")
	require.True(t, found)
	assert.Equal(t, "second", rec.DisplayName)
	assert.Equal(t, "xe/xem", rec.Pronouns)
	assert.Equal(t, "https://x/new.png", rec.ImageURL)
	assert.Equal(t, first.ID, rec.ID, "upsert keeps the original id")
}

func TestInsertUser_EmptyID(t *testing.T) {
	store := setupTestStore(t)
	assert.False(t, store.InsertUser(context.Background(), UserUpsert{DisplayName: "ghost"}))
}

func TestGetUser_Missing(t *testing.T) {
	store := setupTestStore(t)
	_, found := store.GetUser(context.Background(), "U404")
	assert.False(t, found)
}

func TestGetUser_ExpiredIsDeleted(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)

	require.True(t, store.InsertUser(ctx, UserUpsert{
		ExternalID: "U1", DisplayName: "a", ImageURL: "u", TTL: time.Hour,
	}))

	clock.Advance(2 * time.Hour)

	_, found := store.GetUser(ctx, "U1")
	assert.False(t, found)

	// The row is gone, not just hidden: a lookup at the original time would
	// otherwise still see it.
	var count int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Zero(t, count)
}

func TestGetUser_StaleExtendsAndEnqueues(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)

	queue := &recordingEnqueuer{}
	store.SetEnqueuer(queue)

	require.True(t, store.InsertUser(ctx, UserUpsert{
		ExternalID: "U1", DisplayName: "a", ImageURL: "u",
	}))

	// Past the staleness threshold but nowhere near the 30 day TTL.
	clock.Advance(StalenessThreshold + time.Hour)

	rec, found := store.GetUser(ctx, "U1")
	require.True(t, found, "stale-but-live record is still served")
	assert.Equal(t, clock.Now().UTC().Add(DefaultUserTTL).Unix(), rec.ExpiresAt.Unix(),
		"expiry extended by one full TTL")
	assert.Equal(t, []string{"U1"}, queue.ids)

	// A second read sees a freshly extended record and does not re-enqueue.
	_, found = store.GetUser(ctx, "U1")
	require.True(t, found)
	assert.Equal(t, []string{"U1"}, queue.ids)
}

func TestGetUser_ConfiguredStalenessThreshold(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)
	store.SetStalenessThreshold(72 * time.Hour)

	queue := &recordingEnqueuer{}
	store.SetEnqueuer(queue)

	require.True(t, store.InsertUser(ctx, UserUpsert{
		ExternalID: "U1", DisplayName: "a", ImageURL: "u",
	}))

	// Past the default threshold but within the configured one.
	clock.Advance(StalenessThreshold + time.Hour)

	rec, found := store.GetUser(ctx, "U1")
	require.True(t, found)
	assert.Empty(t, queue.ids, "record is not yet stale under the wider threshold")
	origExpiry := rec.ExpiresAt

	clock.Advance(72 * time.Hour)

	rec, found = store.GetUser(ctx, "U1")
	require.True(t, found)
	assert.Equal(t, []string{"U1"}, queue.ids)
	assert.True(t, rec.ExpiresAt.After(origExpiry), "expiry extended once past the configured threshold")
}

func TestSetStalenessThreshold_IgnoresNonPositive(t *testing.T) {
	store := setupTestStore(t)
	store.SetStalenessThreshold(0)
	assert.Equal(t, StalenessThreshold, store.staleness)
	store.SetStalenessThreshold(-time.Hour)
	assert.Equal(t, StalenessThreshold, store.staleness)
}

func TestGetUser_FreshDoesNotEnqueue(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	queue := &recordingEnqueuer{}
	store.SetEnqueuer(queue)

	require.True(t, store.InsertUser(ctx, UserUpsert{ExternalID: "U1", DisplayName: "a", ImageURL: "u"}))

	_, found := store.GetUser(ctx, "U1")
	require.True(t, found)
	assert.Empty(t, queue.ids)
}

func TestPurgeUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.True(t, store.InsertUser(ctx, UserUpsert{ExternalID: "U1", DisplayName: "a", ImageURL: "u"}))

	assert.True(t, store.PurgeUser(ctx, "u1"))
	assert.False(t, store.PurgeUser(ctx, "u1"), "second purge finds nothing")

	_, found := store.GetUser(ctx, "U1")
	assert.False(t, found)
}
