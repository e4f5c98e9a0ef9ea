package db

import "database/sql"

func init() {
	RegisterMigration(Migration{
		Version:     3,
		Description: "permission requests/rules, tasks, session settings, session images",
		Up: func(db *sql.DB) error {
			_, err := db.Exec(`
				CREATE TABLE IF NOT EXISTS permission_requests (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
					tool_name TEXT NOT NULL,
					tool_input TEXT NOT NULL DEFAULT '{}',
					message TEXT NOT NULL DEFAULT '',
					decision TEXT NOT NULL DEFAULT 'pending',
					decided_by TEXT,
					created_at INTEGER NOT NULL,
					decided_at INTEGER
				);
				CREATE INDEX IF NOT EXISTS idx_permission_requests_session_created ON permission_requests(session_id, created_at);

				CREATE TABLE IF NOT EXISTS permission_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tool_name TEXT NOT NULL,
					pattern TEXT NOT NULL,
					rule_type TEXT NOT NULL,
					scope TEXT NOT NULL,
					session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
					created_at INTEGER NOT NULL,
					UNIQUE(tool_name, pattern, scope, session_id)
				);
				CREATE INDEX IF NOT EXISTS idx_permission_rules_lookup ON permission_rules(tool_name, scope, session_id);

				CREATE TABLE IF NOT EXISTS tasks (
					id TEXT PRIMARY KEY,
					session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
					project_dir TEXT NOT NULL,
					prompt TEXT NOT NULL,
					model TEXT,
					source TEXT NOT NULL DEFAULT 'web',
					status TEXT NOT NULL DEFAULT 'pending',
					result TEXT,
					success INTEGER,
					duration_ms INTEGER,
					num_turns INTEGER,
					error TEXT,
					created_at INTEGER NOT NULL,
					completed_at INTEGER
				);
				CREATE INDEX IF NOT EXISTS idx_tasks_session_created ON tasks(session_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_tasks_project_dir ON tasks(project_dir);

				CREATE TABLE IF NOT EXISTS session_settings (
					session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
					model TEXT,
					reasoning_effort TEXT,
					autonomy_level TEXT
				);

				CREATE TABLE IF NOT EXISTS session_images (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
					public_id TEXT NOT NULL,
					url TEXT NOT NULL,
					width INTEGER NOT NULL DEFAULT 0,
					height INTEGER NOT NULL DEFAULT 0,
					created_at INTEGER NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_session_images_session ON session_images(session_id);
			`)
			return err
		},
	})
}
