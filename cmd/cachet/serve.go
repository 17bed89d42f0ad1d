// ABOUTME: Serve subcommand: wires store, migrations, queue, analytics and HTTP
// ABOUTME: Owns the housekeeping tickers for purge sweeps and emoji refreshes

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taciturnaxolotl/cachet/internal/analytics"
	"github.com/taciturnaxolotl/cachet/internal/migrate"
	"github.com/taciturnaxolotl/cachet/internal/refresh"
	"github.com/taciturnaxolotl/cachet/internal/server"
	"github.com/taciturnaxolotl/cachet/internal/store"
	"github.com/taciturnaxolotl/cachet/internal/upstream"
)

const housekeepingInterval = time.Hour

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)

	fmt.Print(banner)
	slog.Info("starting cachet", "version", version)

	// Freshness must be sampled before the store creates the file, so the
	// migration manager can tell a new install from a pre-migration one.
	fresh := false
	if _, err := os.Stat(cfg.Database.Path); os.IsNotExist(err) {
		fresh = true
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()
	st.SetStalenessThreshold(cfg.Cache.StalenessThreshold)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Migrations run before anything serves traffic. A failure here is
	// fatal: a partial schema corrupts data downstream.
	manager := migrate.NewManager(st.DB(), migrate.Current, migrate.Migrations)
	applied, err := manager.Run(ctx, fresh)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	if applied > 0 {
		slog.Info("schema migrated", "applied", applied, "version", migrate.Current)
	}

	agg, err := analytics.New(st.DB(), analytics.Config{
		MemoTTL:  cfg.Analytics.MemoTTL,
		MemoSize: cfg.Analytics.MemoSize,
	})
	if err != nil {
		return fmt.Errorf("initializing analytics: %w", err)
	}

	slack := upstream.NewClient(cfg.Slack.BotToken)

	queue := refresh.NewQueue(slack, st, refresh.Config{
		Interval:  cfg.Cache.RefreshInterval,
		BatchSize: cfg.Cache.RefreshBatchSize,
		UserTTL:   cfg.Cache.UserTTL,
	})
	st.SetEnqueuer(queue)
	queue.Start(ctx)
	defer queue.Stop()

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
	}

	srv := server.New(st, slack, slack, agg, server.Options{
		Addr:        cfg.Server.HTTPAddr,
		UserTTL:     cfg.Cache.UserTTL,
		EmojiTTL:    cfg.Cache.EmojiTTL,
		MetricsPath: metricsPath,
	})

	// Populate the emoji set before taking traffic; a failure just means
	// we serve whatever survived in the cache.
	srv.RefreshEmojis(ctx)

	go runHousekeeping(ctx, st, agg, srv, cfg.Cache.EmojiRefreshHour)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runHousekeeping owns the wall-clock tickers: expired-row sweeps, analytics
// pruning and the daily wholesale emoji refresh. The off-peak window is
// enforced by checking the local hour inside the handler, not by a separate
// scheduler.
func runHousekeeping(ctx context.Context, st *store.SQLiteStore, agg *analytics.Aggregator, srv *server.Server, emojiRefreshHour int) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			st.PurgeExpired(ctx)
			agg.PruneOld(ctx)
			if now.Local().Hour() == emojiRefreshHour {
				srv.RefreshEmojis(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}
