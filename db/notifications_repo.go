package db

import (
	"database/sql"

	"github.com/agentbridge/bridge/models"
)

func scanNotificationRows(row *sql.Rows) (models.Notification, error) {
	var n models.Notification
	var read int
	err := row.Scan(&n.ID, &n.SessionID, &n.Type, &n.Title, &n.Message, &read, &n.CreatedAt)
	n.Read = read != 0
	return n, err
}

// CreateNotification persists a badge item and returns its ID.
func CreateNotification(n models.Notification) (int64, error) {
	res, err := RunWithResult(
		`INSERT INTO notifications (session_id, type, title, message, read, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		n.SessionID, n.Type, n.Title, n.Message, n.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}

// ListNotifications returns a session's notifications, most recent first.
func ListNotifications(sessionID string, unreadOnly bool) ([]models.Notification, error) {
	if unreadOnly {
		return Select(
			`SELECT id, session_id, type, title, message, read, created_at
			 FROM notifications WHERE session_id = ? AND read = 0 ORDER BY created_at DESC`,
			[]QueryParam{sessionID},
			scanNotificationRows,
		)
	}
	return Select(
		`SELECT id, session_id, type, title, message, read, created_at
		 FROM notifications WHERE session_id = ? ORDER BY created_at DESC`,
		[]QueryParam{sessionID},
		scanNotificationRows,
	)
}

// MarkNotificationRead flips a notification's read flag.
func MarkNotificationRead(id int64) error {
	_, err := Run(`UPDATE notifications SET read = 1 WHERE id = ?`, id)
	return err
}
