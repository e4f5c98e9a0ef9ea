package db

import (
	"database/sql"

	"github.com/agentbridge/bridge/models"
)

func scanSessionSettingsRow(row *sql.Row) (models.SessionSettings, error) {
	var s models.SessionSettings
	var model, effort, autonomy sql.NullString
	err := row.Scan(&s.SessionID, &model, &effort, &autonomy)
	if err != nil {
		return s, err
	}
	if model.Valid {
		s.Model = model.String
	}
	if effort.Valid {
		s.ReasoningEffort = effort.String
	}
	if autonomy.Valid {
		s.AutonomyLevel = autonomy.String
	}
	return s, nil
}

// GetSessionSettings returns the per-session run configuration, or nil if unset.
func GetSessionSettings(sessionID string) (*models.SessionSettings, error) {
	return SelectOne(
		`SELECT session_id, model, reasoning_effort, autonomy_level FROM session_settings WHERE session_id = ?`,
		[]QueryParam{sessionID},
		scanSessionSettingsRow,
	)
}

// UpsertSessionSettings creates or replaces a session's run configuration.
func UpsertSessionSettings(s models.SessionSettings) error {
	_, err := Run(
		`INSERT INTO session_settings (session_id, model, reasoning_effort, autonomy_level)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET model = excluded.model,
		   reasoning_effort = excluded.reasoning_effort, autonomy_level = excluded.autonomy_level`,
		s.SessionID, nullableString(s.Model), nullableString(s.ReasoningEffort), nullableString(s.AutonomyLevel),
	)
	return err
}
