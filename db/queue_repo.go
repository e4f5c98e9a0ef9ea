package db

import (
	"database/sql"

	"github.com/agentbridge/bridge/models"
)

func scanQueuedMessageRows(row *sql.Rows) (models.QueuedMessage, error) {
	var q models.QueuedMessage
	var sentAt sql.NullInt64
	err := row.Scan(&q.ID, &q.SessionID, &q.Content, &q.Source, &q.Status, &q.CreatedAt, &sentAt)
	if sentAt.Valid {
		q.SentAt = &sentAt.Int64
	}
	return q, err
}

func scanQueuedMessageRow(row *sql.Row) (models.QueuedMessage, error) {
	var q models.QueuedMessage
	var sentAt sql.NullInt64
	err := row.Scan(&q.ID, &q.SessionID, &q.Content, &q.Source, &q.Status, &q.CreatedAt, &sentAt)
	if sentAt.Valid {
		q.SentAt = &sentAt.Int64
	}
	return q, err
}

// EnqueueMessage buffers a message sent while the CLI holds control.
func EnqueueMessage(sessionID, content string, source models.ChatSource, nowMs int64) (int64, error) {
	res, err := RunWithResult(
		`INSERT INTO queued_messages (session_id, content, source, status, created_at)
		 VALUES (?, ?, ?, 'pending', ?)`,
		sessionID, content, source, nowMs,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}

// ListQueuedMessages returns a session's queue, oldest first.
func ListQueuedMessages(sessionID string, status models.QueueStatus) ([]models.QueuedMessage, error) {
	if status == "" {
		return Select(
			`SELECT id, session_id, content, source, status, created_at, sent_at
			 FROM queued_messages WHERE session_id = ? ORDER BY created_at ASC`,
			[]QueryParam{sessionID},
			scanQueuedMessageRows,
		)
	}
	return Select(
		`SELECT id, session_id, content, source, status, created_at, sent_at
		 FROM queued_messages WHERE session_id = ? AND status = ? ORDER BY created_at ASC`,
		[]QueryParam{sessionID, status},
		scanQueuedMessageRows,
	)
}

// NextQueuedMessage returns the oldest pending queued message, or nil.
func NextQueuedMessage(sessionID string) (*models.QueuedMessage, error) {
	return SelectOne(
		`SELECT id, session_id, content, source, status, created_at, sent_at
		 FROM queued_messages WHERE session_id = ? AND status = 'pending' ORDER BY created_at ASC LIMIT 1`,
		[]QueryParam{sessionID},
		scanQueuedMessageRow,
	)
}

// MarkQueuedMessageSent transitions a queued message to sent.
func MarkQueuedMessageSent(id int64, nowMs int64) error {
	_, err := Run(`UPDATE queued_messages SET status = 'sent', sent_at = ? WHERE id = ?`, nowMs, id)
	return err
}

// CancelQueuedMessage transitions a queued message to cancelled.
func CancelQueuedMessage(id int64) error {
	_, err := Run(`UPDATE queued_messages SET status = 'cancelled' WHERE id = ?`, id)
	return err
}

// CancelAllQueuedMessages cancels every pending message for a session (used on release-to-cli).
func CancelAllQueuedMessages(sessionID string) error {
	_, err := Run(`UPDATE queued_messages SET status = 'cancelled' WHERE session_id = ? AND status = 'pending'`, sessionID)
	return err
}
