package db

import (
	"database/sql"
	"encoding/json"

	"github.com/agentbridge/bridge/models"
)

func scanChatMessageRows(row *sql.Rows) (models.ChatMessage, error) {
	var m models.ChatMessage
	var status sql.NullString
	var durationMs sql.NullInt64
	var numTurns sql.NullInt64
	var images sql.NullString
	err := row.Scan(&m.ID, &m.SessionID, &m.Type, &m.Content, &status, &durationMs, &numTurns, &m.Source, &images, &m.CreatedAt)
	if err != nil {
		return m, err
	}
	if status.Valid {
		m.Status = status.String
	}
	if durationMs.Valid {
		m.DurationMs = &durationMs.Int64
	}
	if numTurns.Valid {
		n := int(numTurns.Int64)
		m.NumTurns = &n
	}
	if images.Valid && images.String != "" {
		_ = json.Unmarshal([]byte(images.String), &m.Images)
	}
	return m, nil
}

// ListChatMessages returns a session's transcript in chronological order,
// optionally limited to the most recent limit rows (0 = all).
func ListChatMessages(sessionID string, limit int) ([]models.ChatMessage, error) {
	base := `SELECT id, session_id, type, content, status, duration_ms, num_turns, source, images, created_at
	          FROM chat_messages WHERE session_id = ?`
	query := base + ` ORDER BY created_at ASC`
	params := []QueryParam{sessionID}
	if limit > 0 {
		query = `SELECT * FROM (` + base + ` ORDER BY created_at DESC LIMIT ?) ORDER BY created_at ASC`
		params = append(params, limit)
	}
	return Select(query, params, scanChatMessageRows)
}

// AppendChatMessage inserts a conversation turn and returns its assigned ID.
func AppendChatMessage(m models.ChatMessage) (int64, error) {
	var imagesJSON *string
	if len(m.Images) > 0 {
		b, err := json.Marshal(m.Images)
		if err != nil {
			return 0, err
		}
		s := string(b)
		imagesJSON = &s
	}
	res, err := RunWithResult(
		`INSERT INTO chat_messages (session_id, type, content, status, duration_ms, num_turns, source, images, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SessionID, m.Type, m.Content, nullableString(m.Status), m.DurationMs, m.NumTurns, m.Source, imagesJSON, m.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
