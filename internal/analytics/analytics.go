// ABOUTME: Bucketed request-analytics aggregator over SQLite counter tables
// ABOUTME: Records events at three resolutions and serves memoized rollup reports

package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Bucket resolutions. Each event lands in all three tables; queries pick the
// coarsest table that still gives useful granularity for the window.
var resolutions = []struct {
	table string
	label string
	width int64 // seconds
}{
	{"analytics_10m", "10m", 600},
	{"analytics_1h", "1h", 3600},
	{"analytics_1d", "1d", 86400},
}

// Retention for the finest resolution. Coarser tables are kept indefinitely.
const fineRetention = 24 * time.Hour

// Defaults for the report memoization cache.
const (
	DefaultMemoTTL  = 30 * time.Second
	DefaultMemoSize = 8
)

// Event is one handled HTTP request as reported by the serving layer.
// UserAgent and ResponseTimeMs may be zero when the caller has nothing to
// report for them.
type Event struct {
	Endpoint       string
	StatusCode     int
	UserAgent      string
	ResponseTimeMs int64
}

// Config tunes the aggregator. Zero values take the defaults above.
type Config struct {
	MemoTTL  time.Duration
	MemoSize int
}

// Aggregator turns a stream of per-request events into pre-aggregated
// counters and serves rollup reports over them. All methods degrade on
// failure: RecordRequest drops the event, Query returns a zeroed report.
// Analytics must never block the primary serving path.
type Aggregator struct {
	db     *sql.DB
	logger *slog.Logger
	memo   *reportCache
	now    func() time.Time
}

// New creates an aggregator over the shared database handle and ensures its
// tables exist. The aggregator owns these tables exclusively.
func New(db *sql.DB, cfg Config) (*Aggregator, error) {
	if cfg.MemoTTL <= 0 {
		cfg.MemoTTL = DefaultMemoTTL
	}
	if cfg.MemoSize <= 0 {
		cfg.MemoSize = DefaultMemoSize
	}

	a := &Aggregator{
		db:     db,
		logger: slog.Default().With("component", "analytics"),
		memo:   newReportCache(cfg.MemoTTL, cfg.MemoSize),
		now:    time.Now,
	}
	if err := a.createSchema(); err != nil {
		return nil, fmt.Errorf("creating analytics schema: %w", err)
	}
	return a, nil
}

func (a *Aggregator) createSchema() error {
	schema := ""
	for _, res := range resolutions {
		schema += fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				bucket_start        INTEGER NOT NULL,
				endpoint_group      TEXT NOT NULL,
				status_code         INTEGER NOT NULL,
				hits                INTEGER NOT NULL DEFAULT 0,
				total_response_time INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (bucket_start, endpoint_group, status_code)
			);
		`, res.table)
	}
	schema += `
		CREATE TABLE IF NOT EXISTS user_agent_stats (
			user_agent TEXT PRIMARY KEY,
			hits       INTEGER NOT NULL DEFAULT 0,
			last_seen  INTEGER NOT NULL DEFAULT 0
		);
	`

	_, err := a.db.Exec(schema)
	return err
}

// SetClock overrides the aggregator's time source. Used by tests.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
	a.memo.now = now
}

// RecordRequest folds one request event into every resolution table and the
// user-agent rollup. Fire and forget: failures are counted and logged, never
// surfaced to the caller.
func (a *Aggregator) RecordRequest(ctx context.Context, ev Event) {
	group := Classify(ev.Endpoint)
	ts := a.now().UTC().Unix()

	failed := false
	for _, res := range resolutions {
		bucketStart := ts - ts%res.width
		_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (bucket_start, endpoint_group, status_code, hits, total_response_time)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT(bucket_start, endpoint_group, status_code) DO UPDATE SET
				hits                = hits + 1,
				total_response_time = total_response_time + excluded.total_response_time
		`, res.table), bucketStart, group, ev.StatusCode, ev.ResponseTimeMs)
		if err != nil {
			a.logger.Error("recording request bucket", "table", res.table, "group", group, "error", err)
			failed = true
		}
	}

	if ev.UserAgent != "" {
		_, err := a.db.ExecContext(ctx, `
			INSERT INTO user_agent_stats (user_agent, hits, last_seen)
			VALUES (?, 1, ?)
			ON CONFLICT(user_agent) DO UPDATE SET
				hits      = hits + 1,
				last_seen = MAX(last_seen, excluded.last_seen)
		`, ev.UserAgent, ts)
		if err != nil {
			a.logger.Error("recording user agent", "error", err)
			failed = true
		}
	}

	if failed {
		recordFailures.Inc()
		return
	}
	eventsRecorded.Inc()
}

// resolutionFor picks the coarsest table that still gives useful granularity
// for the requested window, bounding the rows scanned regardless of
// retention length.
func resolutionFor(days int) (table, label string) {
	switch {
	case days <= 1:
		return "analytics_10m", "10m"
	case days <= 30:
		return "analytics_1h", "1h"
	default:
		return "analytics_1d", "1d"
	}
}

// Query builds the aggregate report for the trailing window of the given
// number of days. Results are memoized for a short TTL. Any query-time
// failure yields a zeroed report rather than an error.
func (a *Aggregator) Query(ctx context.Context, days int) *Report {
	if days < 1 {
		days = 1
	}

	key := fmt.Sprintf("requests:%d", days)
	if cached, ok := a.memo.get(key); ok {
		reportCacheHits.Inc()
		return cached
	}
	reportCacheMisses.Inc()

	report, err := a.buildReport(ctx, days)
	if err != nil {
		a.logger.Error("building analytics report", "days", days, "error", err)
		_, label := resolutionFor(days)
		return &Report{
			Days:         days,
			Resolution:   label,
			GeneratedAt:  a.now().UTC(),
			StatusCounts: map[int]int64{},
		}
	}

	a.memo.set(key, report)
	return report
}

func (a *Aggregator) buildReport(ctx context.Context, days int) (*Report, error) {
	table, label := resolutionFor(days)
	now := a.now().UTC()
	since := now.Add(-time.Duration(days) * 24 * time.Hour).Unix()

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT endpoint_group, status_code, SUM(hits), SUM(total_response_time)
		FROM %s
		WHERE bucket_start >= ?
		GROUP BY endpoint_group, status_code
	`, table), since)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	report := &Report{
		Days:         days,
		Resolution:   label,
		GeneratedAt:  now,
		StatusCounts: map[int]int64{},
	}
	groups := map[string]*GroupStats{}

	for rows.Next() {
		var group string
		var status int
		var hits, totalRT int64
		if err := rows.Scan(&group, &status, &hits, &totalRT); err != nil {
			return nil, fmt.Errorf("scanning bucket row: %w", err)
		}

		g, ok := groups[group]
		if !ok {
			g = &GroupStats{Group: group}
			groups[group] = g
		}
		g.Hits += hits
		g.TotalResponseTime += totalRT
		if status >= 400 {
			g.Errors += hits
		}
		report.StatusCounts[status] += hits
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bucket rows: %w", err)
	}

	for _, g := range groups {
		report.Groups = append(report.Groups, *g)
	}
	sort.Slice(report.Groups, func(i, j int) bool {
		return report.Groups[i].Group < report.Groups[j].Group
	})

	agents, err := a.topUserAgents(ctx, 10)
	if err != nil {
		return nil, err
	}
	report.TopUserAgents = agents

	report.finalize()
	return report, nil
}

func (a *Aggregator) topUserAgents(ctx context.Context, limit int) ([]UserAgentStat, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT user_agent, hits, last_seen
		FROM user_agent_stats
		ORDER BY hits DESC, user_agent ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying user agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []UserAgentStat
	for rows.Next() {
		var stat UserAgentStat
		var lastSeen int64
		if err := rows.Scan(&stat.UserAgent, &stat.Hits, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning user agent row: %w", err)
		}
		stat.LastSeen = time.Unix(lastSeen, 0).UTC()
		agents = append(agents, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user agent rows: %w", err)
	}
	return agents, nil
}

// PruneOld removes 10-minute buckets older than the fine retention window.
// The hourly and daily tables are retained. Returns the rows removed.
func (a *Aggregator) PruneOld(ctx context.Context) int64 {
	cutoff := a.now().UTC().Add(-fineRetention).Unix()

	res, err := a.db.ExecContext(ctx,
		"DELETE FROM analytics_10m WHERE bucket_start < ?", cutoff)
	if err != nil {
		a.logger.Error("pruning fine-grained buckets", "error", err)
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}

	if n > 0 {
		a.memo.purge()
		a.logger.Info("pruned fine-grained analytics buckets", "count", n)
	}
	return n
}
