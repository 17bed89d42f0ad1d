// Package migrate keeps the cachet database schema compatible across
// versions.
//
// Migrations are ordered by a three-part Version and applied ascending at
// startup, each inside a single transaction that also inserts its row in
// schema_migrations. A version is recorded at most once and records are
// never deleted, so a second run against an already-migrated database
// applies nothing.
//
// Databases created before the migration table existed get a synthesized
// "virtual baseline" record for the version preceding the running build, so
// historical migrations are not replayed against an already-current schema.
// See Version.Previous for the limits of that heuristic.
//
// Migration failures abort startup. Schema mismatches cause silent data
// corruption downstream, so this package does not share the degrade-to-miss
// error policy of the cache components.
package migrate
