// ABOUTME: Background refresh queue for stale cached user profiles
// ABOUTME: Drains a pending set on a ticker, rate-limited against the upstream API

package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taciturnaxolotl/cachet/internal/store"
	"github.com/taciturnaxolotl/cachet/internal/upstream"
)

// Defaults bound worst-case upstream load independent of request volume.
const (
	DefaultInterval  = 30 * time.Second
	DefaultBatchSize = 3
	DefaultRate      = rate.Limit(1) // upstream calls per second within a batch
)

// UserSink receives refreshed profiles. Satisfied by store.SQLiteStore;
// persistence flows back through the store's normal insert path.
type UserSink interface {
	InsertUser(ctx context.Context, u store.UserUpsert) bool
}

// Config tunes the drain loop. Zero values take the defaults above.
type Config struct {
	Interval     time.Duration
	BatchSize    int
	UpstreamRate rate.Limit
	UserTTL      time.Duration // TTL applied to refreshed records; zero defers to the sink's default
}

// Queue is a process-local, unordered set of user identifiers pending a
// background refresh. Enqueue is idempotent. A single-flight drain runs on a
// fixed interval; overlapping ticks are skipped via a boolean guard.
type Queue struct {
	fetcher upstream.UserFetcher
	sink    UserSink
	logger  *slog.Logger
	limiter *rate.Limiter

	interval  time.Duration
	batchSize int
	userTTL   time.Duration

	mu       sync.Mutex
	pending  map[string]struct{}
	draining bool

	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewQueue creates a refresh queue. Start must be called to begin draining.
func NewQueue(fetcher upstream.UserFetcher, sink UserSink, cfg Config) *Queue {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.UpstreamRate <= 0 {
		cfg.UpstreamRate = DefaultRate
	}

	return &Queue{
		fetcher:   fetcher,
		sink:      sink,
		logger:    slog.Default().With("component", "refresh"),
		limiter:   rate.NewLimiter(cfg.UpstreamRate, 1),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		userTTL:   cfg.UserTTL,
		pending:   make(map[string]struct{}),
		done:      make(chan struct{}),
	}
}

// Enqueue adds an external user ID to the pending set. Adding an ID that is
// already pending is a no-op.
func (q *Queue) Enqueue(externalID string) {
	id := store.NormalizeUserID(externalID)
	if id == "" {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.pending[id]; exists {
		return
	}
	q.pending[id] = struct{}{}
	q.logger.Debug("enqueued refresh", "external_id", id, "pending", len(q.pending))
}

// Len reports the number of identifiers currently pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start launches the drain loop.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				q.drain(ctx)
			case <-q.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the drain loop and waits for an in-progress drain to finish.
// Safe to call multiple times.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
}

// drain processes one bounded batch from the pending set. Identifiers are
// removed from the set whether or not their refresh succeeds; a failed
// refresh is only retried if a later read re-enqueues it. If a drain is
// already in progress the call is skipped.
func (q *Queue) drain(ctx context.Context) int {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		q.logger.Debug("drain already in progress, skipping tick")
		return 0
	}
	q.draining = true

	batch := make([]string, 0, q.batchSize)
	for id := range q.pending {
		if len(batch) == q.batchSize {
			break
		}
		batch = append(batch, id)
		delete(q.pending, id)
	}
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	if len(batch) == 0 {
		return 0
	}

	refreshed := 0
	for _, id := range batch {
		if err := q.limiter.Wait(ctx); err != nil {
			return refreshed
		}

		profile, err := q.fetcher.FetchUser(ctx, id)
		if errors.Is(err, upstream.ErrUserNotFound) {
			q.logger.Debug("refresh target no longer exists", "external_id", id)
			continue
		}
		if err != nil {
			q.logger.Warn("refresh failed, dropping for this cycle", "external_id", id, "error", err)
			continue
		}

		if q.sink.InsertUser(ctx, store.UserUpsert{
			ExternalID:  profile.ID,
			DisplayName: profile.DisplayName,
			Pronouns:    profile.Pronouns,
			ImageURL:    profile.ImageURL,
			TTL:         q.userTTL,
		}) {
			refreshed++
		}
	}

	if refreshed > 0 {
		q.logger.Info("refreshed stale users", "count", refreshed, "batch", len(batch))
	}
	return refreshed
}
