// Package server exposes the cache over HTTP.
//
// Lookups hit the entity store first; misses delegate to the upstream
// fetcher and populate the store before responding. Redirect endpoints send
// the caller straight to the cached image URL so clients can hotlink
// avatars and emojis without handling JSON. Every request is recorded into
// the analytics aggregator by middleware after the response is written.
//
// The serving layer holds no state of its own; shutdown is a plain
// http.Server drain.
package server
