package observability

import (
	"database/sql"
	"fmt"
)

// Schema is the DDL of the run ledger.
const Schema = `
CREATE TABLE IF NOT EXISTS clone_runs (
    run_id TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('succeeded', 'failed')),
    stage TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    text_count INTEGER NOT NULL DEFAULT 0,
    images_count INTEGER NOT NULL DEFAULT 0,
    colors_count INTEGER NOT NULL DEFAULT 0,
    components_count INTEGER NOT NULL DEFAULT 0,
    navigation_count INTEGER NOT NULL DEFAULT 0,
    buttons_count INTEGER NOT NULL DEFAULT 0,
    palette TEXT NOT NULL DEFAULT '[]',
    html_bytes INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_clone_runs_started
    ON clone_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_clone_runs_status
    ON clone_runs(status, started_at DESC);
`

// Init applies Schema to db.
func Init(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("observability: init schema: %w", err)
	}
	return nil
}
