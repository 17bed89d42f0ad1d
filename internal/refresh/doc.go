// Package refresh re-fetches stale user records in the background so reads
// never block on upstream latency.
//
// The queue is an in-memory set owned by the service, drained on a fixed
// interval in small bounded batches. Only one drain runs at a time; a tick
// that lands during a drain is skipped. Identifiers leave the set whether or
// not their refresh succeeds — re-enqueueing is driven by subsequent stale
// reads, which keeps upstream load proportional to actual demand.
package refresh
