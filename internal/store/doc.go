// Package store provides persistent TTL caching for cachet using SQLite.
//
// # Architecture
//
// SQLiteStore implements the CacheStore interface over a single SQLite
// database. Two entity tables exist:
//
//   - users: upstream profile copies keyed by the upper-cased external ID
//   - emojis: custom emoji copies keyed by the lower-cased emoji name
//
// Every record carries an expires_at timestamp set from "now + TTL" on each
// write. Reads are TTL-aware:
//
//   - expired rows are deleted lazily and reported as absent
//   - rows older than StalenessThreshold (but not yet expired) have their
//     expiry extended by one full TTL and are handed to the configured
//     Enqueuer for background refresh, without blocking the reader
//
// # Failure semantics
//
// Storage failures never escape the store. Writes report false, reads report
// absence, and the failure is logged — a cache is allowed to degrade to a
// miss without taking down the service. The migration manager is the one
// component that treats database failures as fatal; see internal/migrate.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The underlying *sql.DB is shared with internal/analytics and
// internal/migrate via DB(); those packages own their tables exclusively.
//
// # Testing
//
// Use NewSQLiteStore with t.TempDir() for integration tests, and SetClock to
// control expiry arithmetic.
package store
