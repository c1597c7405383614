package sqlite

// schema holds the idempotent DDL run by Migrate, in dependency order.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS procession_sessions (
		id          TEXT PRIMARY KEY,
		workflow    TEXT NOT NULL,
		snapshot    BLOB NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS procession_processes (
		id            TEXT PRIMARY KEY,
		workflow      TEXT NOT NULL,
		cursor        INTEGER NOT NULL DEFAULT 0,
		state         BLOB NOT NULL,
		lifecycle     TEXT NOT NULL DEFAULT 'initial',
		run_state     TEXT NOT NULL DEFAULT 'running',
		error         TEXT NOT NULL DEFAULT '',
		started_at    TEXT NOT NULL,
		completed_at  TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_procession_processes_run_state
		ON procession_processes (run_state)`,

	`CREATE INDEX IF NOT EXISTS idx_procession_processes_workflow
		ON procession_processes (workflow)`,

	`CREATE TABLE IF NOT EXISTS procession_outcomes (
		id            TEXT PRIMARY KEY,
		process_id    TEXT NOT NULL REFERENCES procession_processes(id) ON DELETE CASCADE,
		step_name     TEXT NOT NULL,
		status        TEXT NOT NULL,
		error_detail  TEXT NOT NULL DEFAULT '',
		recorded_at   TEXT NOT NULL,
		UNIQUE(process_id, step_name, status)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_procession_outcomes_process
		ON procession_outcomes (process_id, recorded_at)`,

	`CREATE TABLE IF NOT EXISTS procession_events (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		payload     BLOB,
		acked       INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_procession_events_pending
		ON procession_events (name, created_at)
		WHERE acked = 0`,

	`CREATE TABLE IF NOT EXISTS procession_entities (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		name        TEXT NOT NULL DEFAULT '',
		lifecycle   TEXT NOT NULL,
		process_id  TEXT NOT NULL,
		attrs       BLOB,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_procession_entities_kind
		ON procession_entities (kind, lifecycle)`,
}
