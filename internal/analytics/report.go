// ABOUTME: Aggregate report types and query-time derived metrics
// ABOUTME: Percentiles are reported as unavailable once data is bucketed into sums

package analytics

import "time"

// GroupStats is the rollup for one endpoint group over the report window.
type GroupStats struct {
	Group             string  `json:"group"`
	Hits              int64   `json:"hits"`
	Errors            int64   `json:"errors"`
	TotalResponseTime int64   `json:"total_response_time_ms"`
	AvgResponseTime   float64 `json:"avg_response_time_ms"`
}

// UserAgentStat is one row of the user-agent rollup.
type UserAgentStat struct {
	UserAgent string    `json:"user_agent"`
	Hits      int64     `json:"hits"`
	LastSeen  time.Time `json:"last_seen"`
}

// Report is the pre-aggregated analytics rollup for a requested window.
//
// Percentile latencies are nil by design: bucketed sums cannot reconstruct
// percentiles, and estimating them from sums would be wrong. Retaining a
// bounded reservoir sample per bucket is the path to real percentiles if
// they are ever needed.
type Report struct {
	Days        int       `json:"days"`
	Resolution  string    `json:"resolution"`
	GeneratedAt time.Time `json:"generated_at"`

	TotalHits         int64   `json:"total_hits"`
	TotalErrors       int64   `json:"total_errors"`
	ErrorRate         float64 `json:"error_rate_percent"`
	ThroughputPerHour float64 `json:"throughput_per_hour"`
	CacheHitRatio     float64 `json:"cache_hit_ratio_percent"`
	UptimeScore       float64 `json:"uptime_score"`

	LatencyP50 *float64 `json:"latency_p50_ms"`
	LatencyP90 *float64 `json:"latency_p90_ms"`
	LatencyP95 *float64 `json:"latency_p95_ms"`
	LatencyP99 *float64 `json:"latency_p99_ms"`

	Groups        []GroupStats    `json:"groups"`
	StatusCounts  map[int]int64   `json:"status_counts"`
	TopUserAgents []UserAgentStat `json:"top_user_agents"`
}

// finalize computes the derived metrics from the accumulated group stats.
func (r *Report) finalize() {
	for i := range r.Groups {
		g := &r.Groups[i]
		if g.Hits > 0 {
			g.AvgResponseTime = float64(g.TotalResponseTime) / float64(g.Hits)
		}
		r.TotalHits += g.Hits
		r.TotalErrors += g.Errors
	}

	if r.TotalHits > 0 {
		r.ErrorRate = 100 * float64(r.TotalErrors) / float64(r.TotalHits)
	}

	windowHours := float64(r.Days) * 24
	if windowHours > 0 {
		r.ThroughputPerHour = float64(r.TotalHits) / windowHours
	}

	// Redirect hits are cache hits served without a data payload; the ratio
	// of redirects to all user traffic approximates the cache hit rate.
	var redirects, data int64
	for _, g := range r.Groups {
		switch g.Group {
		case GroupUserRedirects:
			redirects = g.Hits
		case GroupUserData:
			data = g.Hits
		}
	}
	if redirects+data > 0 {
		r.CacheHitRatio = 100 * float64(redirects) / float64(redirects+data)
	}

	r.UptimeScore = 100 - 2*r.ErrorRate
	if r.UptimeScore < 0 {
		r.UptimeScore = 0
	}
}
