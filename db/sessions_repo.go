package db

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentbridge/bridge/models"
)

func scanSessionRow(row *sql.Row) (models.Session, error) {
	var s models.Session
	var transcriptPath sql.NullString
	err := row.Scan(&s.ID, &s.Name, &s.ProjectDir, &s.Status, &s.ControlState, &transcriptPath, &s.StartedAt, &s.LastActivity)
	if transcriptPath.Valid {
		s.TranscriptPath = transcriptPath.String
	}
	s.ControlState = coerceControlState(s.ControlState)
	return s, err
}

func scanSessionRows(row *sql.Rows) (models.Session, error) {
	var s models.Session
	var transcriptPath sql.NullString
	err := row.Scan(&s.ID, &s.Name, &s.ProjectDir, &s.Status, &s.ControlState, &transcriptPath, &s.StartedAt, &s.LastActivity)
	if transcriptPath.Valid {
		s.TranscriptPath = transcriptPath.String
	}
	s.ControlState = coerceControlState(s.ControlState)
	return s, err
}

// legacy control_state values are coerced to remote_active on read, per §6.
func coerceControlState(s models.ControlState) models.ControlState {
	if s.Valid() {
		return s
	}
	return models.ControlRemoteActive
}

// GetSession returns a session by exact ID, or nil if not found.
func GetSession(id string) (*models.Session, error) {
	return SelectOne(
		`SELECT id, name, project_dir, status, control_state, transcript_path, started_at, last_activity
		 FROM sessions WHERE id = ?`,
		[]QueryParam{id},
		scanSessionRow,
	)
}

// GetSessionByIDPrefix looks up a session by a >=8 char unique ID prefix.
func GetSessionByIDPrefix(prefix string) (*models.Session, error) {
	if len(prefix) < 8 {
		return nil, fmt.Errorf("session ID prefix must be at least 8 characters")
	}
	rows, err := Select(
		`SELECT id, name, project_dir, status, control_state, transcript_path, started_at, last_activity
		 FROM sessions WHERE id LIKE ? || '%' LIMIT 2`,
		[]QueryParam{prefix},
		scanSessionRows,
	)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, nil // ambiguous or not found
	}
	return &rows[0], nil
}

// GetSessionByName looks up a session by case-insensitive name (most recent wins).
func GetSessionByName(name string) (*models.Session, error) {
	return SelectOne(
		`SELECT id, name, project_dir, status, control_state, transcript_path, started_at, last_activity
		 FROM sessions WHERE LOWER(name) = LOWER(?) ORDER BY started_at DESC LIMIT 1`,
		[]QueryParam{name},
		scanSessionRow,
	)
}

// ListSessions returns all sessions in registration order.
func ListSessions() ([]models.Session, error) {
	rows, err := Select(
		`SELECT id, name, project_dir, status, control_state, transcript_path, started_at, last_activity
		 FROM sessions ORDER BY started_at ASC`,
		nil,
		scanSessionRows,
	)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].ControlState = coerceControlState(rows[i].ControlState)
	}
	return rows, nil
}

// GetSessionByIndex returns the Nth session (1-based) in registration order.
func GetSessionByIndex(index int) (*models.Session, error) {
	if index < 1 {
		return nil, fmt.Errorf("index must be >= 1")
	}
	return SelectOne(
		`SELECT id, name, project_dir, status, control_state, transcript_path, started_at, last_activity
		 FROM sessions ORDER BY started_at ASC LIMIT 1 OFFSET ?`,
		[]QueryParam{index - 1},
		scanSessionRow,
	)
}

var numberedNameRe = regexp.MustCompile(`^(.*) #(\d+)$`)

// NextDisplayName computes the display name for a new session in projectDir,
// given the basename b: first use is "b", subsequent uses are "b #2", "b #3", ...
func NextDisplayName(projectDir string) (string, error) {
	base := filepath.Base(projectDir)

	names, err := Select(
		`SELECT name FROM sessions WHERE project_dir = ?`,
		[]QueryParam{projectDir},
		func(row *sql.Rows) (string, error) {
			var n string
			err := row.Scan(&n)
			return n, err
		},
	)
	if err != nil {
		return "", err
	}

	if len(names) == 0 {
		return base, nil
	}

	maxSuffix := 1
	for _, n := range names {
		if n == base {
			continue
		}
		if m := numberedNameRe.FindStringSubmatch(n); m != nil && m[1] == base {
			if v, err := strconv.Atoi(m[2]); err == nil && v > maxSuffix {
				maxSuffix = v
			}
		}
	}
	return fmt.Sprintf("%s #%d", base, maxSuffix+1), nil
}

// CreateSession inserts a brand-new session row.
func CreateSession(s models.Session) error {
	_, err := Run(
		`INSERT INTO sessions (id, name, project_dir, status, control_state, transcript_path, started_at, last_activity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.ProjectDir, s.Status, s.ControlState, s.TranscriptPath, s.StartedAt, s.LastActivity,
	)
	return err
}

// TouchSessionActivity updates last_activity to now (ms).
func TouchSessionActivity(id string, nowMs int64) error {
	_, err := Run(`UPDATE sessions SET last_activity = ? WHERE id = ?`, nowMs, id)
	return err
}

// UpdateSessionStatus updates the observed Agent status and logs an event.
func UpdateSessionStatus(id string, status models.SessionStatus, nowMs int64) error {
	return Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE sessions SET status = ?, last_activity = ? WHERE id = ?`, status, nowMs, id); err != nil {
			return err
		}
		_, err := tx.Exec(
			`INSERT INTO session_events (session_id, event_type, data, created_at) VALUES (?, 'status_changed', ?, ?)`,
			id, string(status), nowMs,
		)
		return err
	})
}

// UpdateSessionControlState persists a validated control-state transition.
func UpdateSessionControlState(id string, state models.ControlState, nowMs int64) error {
	return Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE sessions SET control_state = ?, last_activity = ? WHERE id = ?`, state, nowMs, id); err != nil {
			return err
		}
		_, err := tx.Exec(
			`INSERT INTO session_events (session_id, event_type, data, created_at) VALUES (?, 'control_state_changed', ?, ?)`,
			id, string(state), nowMs,
		)
		return err
	})
}

// RenameSession updates the display name.
func RenameSession(id, name string) error {
	_, err := Run(`UPDATE sessions SET name = ? WHERE id = ?`, name, id)
	return err
}

// SetTranscriptPath records where the Agent is writing its transcript.
func SetTranscriptPath(id, path string) error {
	_, err := Run(`UPDATE sessions SET transcript_path = ? WHERE id = ?`, path, id)
	return err
}

// DeleteSession removes a session and cascades to dependent tables
// (tasks.session_id is SET NULL per §3, the rest CASCADE via FK).
func DeleteSession(id string) error {
	_, err := Run(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// ResolveSessionRef resolves a caller-supplied reference against, in order:
// exact ID, ID prefix (>=8 chars), case-insensitive name, 1-based index.
func ResolveSessionRef(ref string) (*models.Session, error) {
	if s, err := GetSession(ref); err == nil && s != nil {
		return s, nil
	}
	if len(ref) >= 8 {
		if s, err := GetSessionByIDPrefix(ref); err == nil && s != nil {
			return s, nil
		}
	}
	if s, err := GetSessionByName(strings.TrimSpace(ref)); err != nil || s != nil {
		return s, err
	}
	if idx, err := strconv.Atoi(ref); err == nil {
		if s, err := GetSessionByIndex(idx); err == nil && s != nil {
			return s, nil
		}
	}
	return nil, nil
}
