package db

import "database/sql"

func init() {
	RegisterMigration(Migration{
		Version:     1,
		Description: "auth sessions and core agent session table",
		Up: func(db *sql.DB) error {
			_, err := db.Exec(`
				CREATE TABLE IF NOT EXISTS auth_sessions (
					id TEXT PRIMARY KEY,
					created_at INTEGER NOT NULL,
					expires_at INTEGER NOT NULL,
					last_used_at INTEGER NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_auth_sessions_expires ON auth_sessions(expires_at);

				CREATE TABLE IF NOT EXISTS sessions (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					project_dir TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'running',
					control_state TEXT NOT NULL DEFAULT 'cli_active',
					transcript_path TEXT,
					started_at INTEGER NOT NULL,
					last_activity INTEGER NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_sessions_project_dir ON sessions(project_dir);
				CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity);

				CREATE TABLE IF NOT EXISTS session_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
					event_type TEXT NOT NULL,
					data TEXT,
					created_at INTEGER NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_session_events_session_created ON session_events(session_id, created_at);
			`)
			return err
		},
	})
}
