package db

import (
	"database/sql"

	"github.com/agentbridge/bridge/models"
)

func scanSessionImageRows(row *sql.Rows) (models.SessionImage, error) {
	var img models.SessionImage
	err := row.Scan(&img.ID, &img.SessionID, &img.PublicID, &img.URL, &img.Width, &img.Height, &img.CreatedAt)
	return img, err
}

// RecordSessionImage tracks an uploaded image asset for cleanup on session delete.
func RecordSessionImage(img models.SessionImage) error {
	_, err := Run(
		`INSERT INTO session_images (session_id, public_id, url, width, height, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		img.SessionID, img.PublicID, img.URL, img.Width, img.Height, img.CreatedAt,
	)
	return err
}

// ListSessionImages returns every image uploaded to a session.
func ListSessionImages(sessionID string) ([]models.SessionImage, error) {
	return Select(
		`SELECT id, session_id, public_id, url, width, height, created_at FROM session_images WHERE session_id = ?`,
		[]QueryParam{sessionID},
		scanSessionImageRows,
	)
}

// DeleteSessionImage removes one image record by its public ID.
func DeleteSessionImage(sessionID, publicID string) error {
	_, err := Run(`DELETE FROM session_images WHERE session_id = ? AND public_id = ?`, sessionID, publicID)
	return err
}
