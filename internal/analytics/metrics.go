// ABOUTME: Prometheus instrumentation for the analytics aggregator
// ABOUTME: Counts recorded events, record failures and report cache traffic

package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachet_analytics_events_total",
		Help: "Request events recorded into the analytics buckets.",
	})

	recordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachet_analytics_record_failures_total",
		Help: "Request events dropped because a bucket write failed.",
	})

	reportCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachet_report_cache_hits_total",
		Help: "Analytics reports served from the memoization cache.",
	})

	reportCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachet_report_cache_misses_total",
		Help: "Analytics reports recomputed from the bucket tables.",
	})
)
