package store

import "database/sql"

// Schema is the complete postule schema. Timestamps are milliseconds
// since epoch. Attempts cascade with their session; jobs survive session
// deletion until the retention sweep removes orphans.
const Schema = `
-- Workflow sessions: the unit of resumable, cancellable work
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT PRIMARY KEY,
    owner            TEXT NOT NULL DEFAULT '',
    session_type     TEXT NOT NULL DEFAULT 'apply',
    status           TEXT NOT NULL DEFAULT 'active',
    cancel_requested INTEGER NOT NULL DEFAULT 0,
    processed_items  INTEGER NOT NULL DEFAULT 0,
    total_items      INTEGER NOT NULL DEFAULT 0,
    message          TEXT NOT NULL DEFAULT '',
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner, created_at DESC);

-- Structured session log (append-only)
CREATE TABLE IF NOT EXISTS session_logs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    level      TEXT NOT NULL DEFAULT 'info',
    message    TEXT NOT NULL,
    logged_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_logs_session ON session_logs(session_id, id);

-- Discovered job candidates with their computed match
CREATE TABLE IF NOT EXISTS jobs (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL,
    company       TEXT NOT NULL DEFAULT '',
    location      TEXT NOT NULL DEFAULT '',
    description   TEXT NOT NULL DEFAULT '',
    source        TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    remote        INTEGER NOT NULL DEFAULT 0,
    salary_min    INTEGER NOT NULL DEFAULT 0,
    salary_max    INTEGER NOT NULL DEFAULT 0,
    skills_json   TEXT NOT NULL DEFAULT '[]',
    match_score   REAL NOT NULL DEFAULT 0,
    fit           TEXT NOT NULL DEFAULT '',
    discovered_at INTEGER NOT NULL
);

-- One row per job per workflow run; finalized exactly once
CREATE TABLE IF NOT EXISTS attempts (
    id             TEXT PRIMARY KEY,
    session_id     TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    job_id         TEXT NOT NULL REFERENCES jobs(id),
    status         TEXT NOT NULL DEFAULT 'pending_confirmation',
    message        TEXT NOT NULL DEFAULT '',
    fields_filled  INTEGER NOT NULL DEFAULT 0,
    screenshot_ref TEXT NOT NULL DEFAULT '',
    started_at     INTEGER NOT NULL,
    finished_at    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id, started_at);
`

// ApplySchema executes the schema against db.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
