// Package analytics turns a stream of per-request events into pre-aggregated
// time-series counters and serves rollup reports over them.
//
// Events are folded into three independent bucket tables at 10-minute,
// 1-hour and 1-day widths, keyed by (bucket_start, endpoint_group,
// status_code), plus a user-agent rollup keyed by the raw User-Agent string.
// Rows are append-or-increment only. The 10-minute table is pruned after 24
// hours; the coarser resolutions are retained, so Query degrades resolution
// as the requested window grows and the rows scanned stay bounded.
//
// Derived metrics (error rate, throughput, cache-hit ratio, uptime score)
// are computed at query time from the sums. Percentile latencies are
// reported as unavailable: bucketed sums cannot reconstruct them, and the
// tradeoff of accuracy for space is deliberate.
//
// Nothing in this package raises errors to its callers. Recording drops the
// event on failure and querying returns a zeroed report; analytics must
// never block the serving path.
package analytics
