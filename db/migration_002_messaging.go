package db

import "database/sql"

func init() {
	RegisterMigration(Migration{
		Version:     2,
		Description: "chat messages, queued messages, notifications",
		Up: func(db *sql.DB) error {
			_, err := db.Exec(`
				CREATE TABLE IF NOT EXISTS chat_messages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
					type TEXT NOT NULL,
					content TEXT NOT NULL,
					status TEXT,
					duration_ms INTEGER,
					num_turns INTEGER,
					source TEXT NOT NULL DEFAULT 'web',
					images TEXT,
					created_at INTEGER NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created ON chat_messages(session_id, created_at);

				CREATE TABLE IF NOT EXISTS queued_messages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
					content TEXT NOT NULL,
					source TEXT NOT NULL DEFAULT 'web',
					status TEXT NOT NULL DEFAULT 'pending',
					created_at INTEGER NOT NULL,
					sent_at INTEGER
				);
				CREATE INDEX IF NOT EXISTS idx_queued_messages_session_created ON queued_messages(session_id, created_at);

				CREATE TABLE IF NOT EXISTS notifications (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
					type TEXT NOT NULL,
					title TEXT NOT NULL,
					message TEXT NOT NULL,
					read INTEGER NOT NULL DEFAULT 0,
					created_at INTEGER NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_notifications_session_created ON notifications(session_id, created_at);
			`)
			return err
		},
	})
}
