// ABOUTME: HTTP serving layer wiring the cache core to inbound requests
// ABOUTME: Routes lookups, redirects, analytics and purge endpoints with request recording

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taciturnaxolotl/cachet/internal/analytics"
	"github.com/taciturnaxolotl/cachet/internal/store"
	"github.com/taciturnaxolotl/cachet/internal/upstream"
)

// Options tunes the serving layer.
type Options struct {
	Addr        string
	UserTTL     time.Duration // TTL for records cached on the miss path
	EmojiTTL    time.Duration // TTL for the wholesale emoji refresh
	MetricsPath string        // empty disables the prometheus endpoint
}

// Server exposes the cache over HTTP. Every request, regardless of outcome,
// is recorded into the analytics aggregator exactly once.
type Server struct {
	store     store.CacheStore
	fetcher   upstream.UserFetcher
	lister    upstream.EmojiLister
	analytics *analytics.Aggregator
	logger    *slog.Logger
	opts      Options
	httpSrv   *http.Server
}

// New wires the serving layer. fetcher handles the user miss path; lister
// feeds the recurring emoji refresh.
func New(cs store.CacheStore, fetcher upstream.UserFetcher, lister upstream.EmojiLister, agg *analytics.Aggregator, opts Options) *Server {
	s := &Server{
		store:     cs,
		fetcher:   fetcher,
		lister:    lister,
		analytics: agg,
		logger:    slog.Default().With("component", "server"),
		opts:      opts,
	}
	s.httpSrv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table wrapped in the request recorder.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	mux.HandleFunc("GET /users/{id}/r", s.handleUserRedirect)
	mux.HandleFunc("GET /emojis", s.handleListEmojis)
	mux.HandleFunc("GET /emojis/{name}", s.handleGetEmoji)
	mux.HandleFunc("GET /emojis/{name}/r", s.handleEmojiRedirect)
	mux.HandleFunc("GET /analytics", s.handleAnalytics)
	mux.HandleFunc("POST /purge", s.handlePurgeAll)
	mux.HandleFunc("POST /purge/{id}", s.handlePurgeUser)

	if s.opts.MetricsPath != "" {
		mux.Handle("GET "+s.opts.MetricsPath, promhttp.Handler())
	}

	return s.recordRequests(mux)
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.opts.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// RefreshEmojis replaces the cached emoji set wholesale from the upstream
// listing. Reports whether the replacement committed.
func (s *Server) RefreshEmojis(ctx context.Context) bool {
	listing, err := s.lister.ListEmoji(ctx)
	if err != nil {
		s.logger.Warn("emoji refresh failed, keeping cached set", "error", err)
		return false
	}

	entries := make([]store.EmojiUpsert, 0, len(listing))
	for name, value := range listing {
		entry := store.EmojiUpsert{Name: name}
		if alias, ok := upstream.ParseEmojiAlias(value); ok {
			entry.Alias = alias
		} else {
			entry.ImageURL = value
		}
		entries = append(entries, entry)
	}

	if !s.store.BatchInsertEmoji(ctx, entries, s.opts.EmojiTTL) {
		return false
	}
	s.logger.Info("refreshed emoji set", "count", len(entries))
	return true
}
