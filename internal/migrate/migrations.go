// ABOUTME: Registered schema migrations for the cachet database
// ABOUTME: Each migration is check-then-apply so replays against a current schema are no-ops

package migrate

import (
	"context"
	"database/sql"
)

// Current is the schema version this build expects. Migrations targeting a
// newer version are ignored.
var Current = MustParseVersion("1.3.0")

// Migrations is the ordered history of schema changes. The baseline tables
// are created by internal/store; these entries upgrade older installs.
// SQLite has no ADD COLUMN IF NOT EXISTS, so column migrations check
// pragma_table_info first, which also makes them safe to replay on a fresh
// database that already has the full schema.
var Migrations = []Migration{
	{
		Version:     MustParseVersion("1.1.0"),
		Description: "add pronouns column to users",
		Up: addColumn("users", "pronouns",
			`ALTER TABLE users ADD COLUMN pronouns TEXT NOT NULL DEFAULT ''`),
	},
	{
		Version:     MustParseVersion("1.2.0"),
		Description: "add alias column to emojis",
		Up: addColumn("emojis", "alias",
			`ALTER TABLE emojis ADD COLUMN alias TEXT`),
	},
	{
		Version:     MustParseVersion("1.3.0"),
		Description: "create user_agent_stats table",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS user_agent_stats (
					user_agent TEXT PRIMARY KEY,
					hits       INTEGER NOT NULL DEFAULT 0,
					last_seen  INTEGER NOT NULL DEFAULT 0
				)
			`)
			return err
		},
	},
}

// addColumn builds an Up func that adds a column only if it is missing.
func addColumn(table, column, alter string) func(ctx context.Context, tx *sql.Tx) error {
	check := "SELECT 1 FROM pragma_table_info('" + table + "') WHERE name = '" + column + "'"
	return func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, check).Scan(&exists)
		if err == nil {
			return nil // column already present
		}
		if err != sql.ErrNoRows {
			return err
		}
		_, err = tx.ExecContext(ctx, alter)
		return err
	}
}
