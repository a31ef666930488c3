package sqlite

import (
	"database/sql"
	"fmt"
)

// migrations[i] moves the schema from version i to i+1.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS shares (
    id         TEXT PRIMARY KEY,
    code       TEXT NOT NULL,
    output     TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    expires_at TEXT NOT NULL,
    views      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_shares_expires ON shares(expires_at);
`,
	`
CREATE TABLE IF NOT EXISTS executions (
    id          TEXT PRIMARY KEY,
    mode        TEXT NOT NULL CHECK(mode IN ('batch','interactive')),
    status      TEXT NOT NULL,
    exit_code   INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_created ON executions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_executions_mode ON executions(mode);
`,
}

func schemaVersion() int { return len(migrations) }

func currentVersion(db *sql.DB) int {
	var current int
	// The table is missing on a fresh database.
	if err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&current); err != nil {
		return 0
	}
	return current
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}

	current := currentVersion(db)
	if current >= schemaVersion() {
		return nil
	}

	for v := current; v < schemaVersion(); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
	}

	_, err := db.Exec(`
		DELETE FROM schema_version;
		INSERT INTO schema_version (version) VALUES (?);
	`, schemaVersion())
	return err
}
