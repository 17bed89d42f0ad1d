package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taciturnaxolotl/cachet/internal/analytics"
	"github.com/taciturnaxolotl/cachet/internal/store"
	"github.com/taciturnaxolotl/cachet/internal/upstream"
)

// stubUpstream fakes the Slack API for server tests.
type stubUpstream struct {
	mu       sync.Mutex
	profiles map[string]*upstream.UserProfile
	emoji    map[string]string
	err      error
	fetches  int
}

func (u *stubUpstream) FetchUser(ctx context.Context, externalID string) (*upstream.UserProfile, error) {
	u.mu.Lock()
	u.fetches++
	u.mu.Unlock()

	if u.err != nil {
		return nil, u.err
	}
	if p, ok := u.profiles[externalID]; ok {
		return p, nil
	}
	return nil, upstream.ErrUserNotFound
}

func (u *stubUpstream) ListEmoji(ctx context.Context) (map[string]string, error) {
	if u.err != nil {
		return nil, u.err
	}
	return u.emoji, nil
}

func (u *stubUpstream) fetchCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.fetches
}

type testEnv struct {
	server   *Server
	store    *store.SQLiteStore
	agg      *analytics.Aggregator
	upstream *stubUpstream
	client   *httptest.Server
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	agg, err := analytics.New(st.DB(), analytics.Config{})
	require.NoError(t, err)

	up := &stubUpstream{
		profiles: map[string]*upstream.UserProfile{},
		emoji:    map[string]string{},
	}

	srv := New(st, up, up, agg, Options{
		Addr:        ":0",
		MetricsPath: "/metrics",
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, store: st, agg: agg, upstream: up, client: ts}
}

// get performs a GET and decodes the JSON body into out when non-nil.
func (e *testEnv) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.client.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "cachet-test/1.0")

	// Don't follow redirects; tests assert on them.
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (e *testEnv) post(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.client.URL+path, "application/json", nil)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	env := setupServer(t)

	var body map[string]string
	resp := env.get(t, "/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestGetUser_CacheHit(t *testing.T) {
	env := setupServer(t)
	require.True(t, env.store.InsertUser(context.Background(), store.UserUpsert{
		ExternalID: "U1", DisplayName: "krn", Pronouns: "they/them", ImageURL: "https://x/krn.png",
	}))

	var user UserResponse
	resp := env.get(t, "/users/u1", &user)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "U1", user.ID)
	assert.Equal(t, "krn", user.DisplayName)
	assert.Zero(t, env.upstream.fetchCount(), "cache hit never touches the upstream")
}

func TestGetUser_MissPopulatesCache(t *testing.T) {
	env := setupServer(t)
	env.upstream.profiles["U1"] = &upstream.UserProfile{
		ID: "U1", DisplayName: "krn", ImageURL: "https://x/krn.png",
	}

	var user UserResponse
	resp := env.get(t, "/users/U1", &user)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "krn", user.DisplayName)
	assert.Equal(t, 1, env.upstream.fetchCount())

	// Second lookup is served from the store.
	env.get(t, "/users/U1", &user)
	assert.Equal(t, 1, env.upstream.fetchCount())
}

func TestGetUser_MissAndHitShareShape(t *testing.T) {
	env := setupServer(t)
	env.upstream.profiles["U1"] = &upstream.UserProfile{
		ID: "U1", DisplayName: "krn", ImageURL: "https://x/krn.png",
	}

	var miss UserResponse
	resp := env.get(t, "/users/U1", &miss)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, miss.ExpiresAt, "miss response carries an expiry like a hit")

	missExpiry, err := time.Parse(time.RFC3339, miss.ExpiresAt)
	require.NoError(t, err)

	var hit UserResponse
	env.get(t, "/users/U1", &hit)
	require.NotEmpty(t, hit.ExpiresAt)

	hitExpiry, err := time.Parse(time.RFC3339, hit.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, hitExpiry, missExpiry, 5*time.Second)
}

func TestGetUser_NotFound(t *testing.T) {
	env := setupServer(t)
	resp := env.get(t, "/users/U404", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetUser_UpstreamFailure(t *testing.T) {
	env := setupServer(t)
	env.upstream.err = errors.New("ratelimited")

	resp := env.get(t, "/users/U1", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestUserRedirect(t *testing.T) {
	env := setupServer(t)
	require.True(t, env.store.InsertUser(context.Background(), store.UserUpsert{
		ExternalID: "U1", DisplayName: "krn", ImageURL: "https://x/krn.png",
	}))

	resp := env.get(t, "/users/U1/r", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://x/krn.png", resp.Header.Get("Location"))
}

func TestEmojis(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()
	require.True(t, env.store.BatchInsertEmoji(ctx, []store.EmojiUpsert{
		{Name: "blobhaj", ImageURL: "https://x/blobhaj.png"},
		{Name: "shark", Alias: "blobhaj"},
	}, 0))

	var list []EmojiResponse
	resp := env.get(t, "/emojis", &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list, 2)

	var emoji EmojiResponse
	resp = env.get(t, "/emojis/blobhaj", &emoji)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://x/blobhaj.png", emoji.ImageURL)

	// Redirect through the alias chain lands on the target's image.
	resp = env.get(t, "/emojis/shark/r", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://x/blobhaj.png", resp.Header.Get("Location"))

	resp = env.get(t, "/emojis/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEmojiRedirect_AliasCycle(t *testing.T) {
	env := setupServer(t)
	require.True(t, env.store.BatchInsertEmoji(context.Background(), []store.EmojiUpsert{
		{Name: "a", Alias: "b"},
		{Name: "b", Alias: "a"},
	}, 0))

	resp := env.get(t, "/emojis/a/r", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "alias cycles terminate")
}

func TestPurge(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()
	require.True(t, env.store.InsertUser(ctx, store.UserUpsert{ExternalID: "U1", DisplayName: "a", ImageURL: "u"}))
	require.True(t, env.store.InsertEmoji(ctx, store.EmojiUpsert{Name: "wave", ImageURL: "u"}, 0))

	resp := env.post(t, "/purge/U1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.post(t, "/purge/U1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.post(t, "/purge")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, env.store.ListEmojis(ctx))
}

func TestAnalyticsEndpoint(t *testing.T) {
	env := setupServer(t)

	env.get(t, "/users/U404", nil)
	env.get(t, "/health", nil)

	var report analytics.Report
	resp := env.get(t, "/analytics?days=1", &report)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, report.Days)
	assert.Equal(t, "10m", report.Resolution)

	resp = env.get(t, "/analytics?days=zero", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMiddleware_RecordsEachRequestOnce(t *testing.T) {
	env := setupServer(t)

	env.get(t, "/health", nil)
	env.get(t, "/users/U404", nil)
	env.get(t, "/unknown/path", nil)

	var events int64
	require.NoError(t, env.store.DB().QueryRow(
		"SELECT COALESCE(SUM(hits), 0) FROM analytics_10m").Scan(&events))
	assert.Equal(t, int64(3), events)

	var uaHits int64
	require.NoError(t, env.store.DB().QueryRow(
		"SELECT hits FROM user_agent_stats WHERE user_agent = 'cachet-test/1.0'").Scan(&uaHits))
	assert.Equal(t, int64(3), uaHits)
}

func TestStatusWriter_FlushPassthrough(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	var _ http.Flusher = sw
	sw.Flush()
	assert.True(t, rec.Flushed, "flush reaches the wrapped writer")
	assert.Same(t, rec, sw.Unwrap())
}

func TestRefreshEmojis(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	env.upstream.emoji = map[string]string{
		"blobhaj": "https://x/blobhaj.png",
		"shark":   "alias:blobhaj",
	}
	require.True(t, env.server.RefreshEmojis(ctx))

	rec, ok := env.store.GetEmoji(ctx, "shark")
	require.True(t, ok)
	assert.Equal(t, "blobhaj", rec.Alias)

	emojis := env.store.ListEmojis(ctx)
	assert.Len(t, emojis, 2)
}

func TestRefreshEmojis_UpstreamFailureKeepsCache(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()
	require.True(t, env.store.InsertEmoji(ctx, store.EmojiUpsert{Name: "wave", ImageURL: "u"}, 0))

	env.upstream.err = errors.New("down")
	assert.False(t, env.server.RefreshEmojis(ctx))
	assert.Len(t, env.store.ListEmojis(ctx), 1)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupServer(t)
	resp := env.get(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// Shutdown is exercised lightly; the real server lifecycle belongs to main.
func TestShutdown(t *testing.T) {
	env := setupServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, env.server.Shutdown(ctx))
}
