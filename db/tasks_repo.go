package db

import (
	"database/sql"

	"github.com/agentbridge/bridge/models"
)

func scanTask(
	id *string, sessionID *sql.NullString, projectDir, prompt *string, model *sql.NullString,
	source *models.ChatSource, status *models.TaskStatus, result *sql.NullString, success *sql.NullBool,
	durationMs, numTurns *sql.NullInt64, errStr *sql.NullString, createdAt *int64, completedAt *sql.NullInt64,
) models.Task {
	t := models.Task{
		ID:         *id,
		ProjectDir: *projectDir,
		Prompt:     *prompt,
		Source:     *source,
		Status:     *status,
		CreatedAt:  *createdAt,
	}
	if sessionID.Valid {
		t.SessionID = &sessionID.String
	}
	if model.Valid {
		t.Model = model.String
	}
	if result.Valid {
		t.Result = result.String
	}
	if success.Valid {
		t.Success = &success.Bool
	}
	if durationMs.Valid {
		t.DurationMs = &durationMs.Int64
	}
	if numTurns.Valid {
		n := int(numTurns.Int64)
		t.NumTurns = &n
	}
	if errStr.Valid {
		t.Error = errStr.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Int64
	}
	return t
}

func scanTaskRow(row *sql.Row) (models.Task, error) {
	var id, projectDir, prompt string
	var sessionID, model, result, errStr sql.NullString
	var source models.ChatSource
	var status models.TaskStatus
	var success sql.NullBool
	var durationMs, numTurns, completedAt sql.NullInt64
	var createdAt int64
	err := row.Scan(&id, &sessionID, &projectDir, &prompt, &model, &source, &status, &result, &success,
		&durationMs, &numTurns, &errStr, &createdAt, &completedAt)
	if err != nil {
		return models.Task{}, err
	}
	return scanTask(&id, &sessionID, &projectDir, &prompt, &model, &source, &status, &result, &success,
		&durationMs, &numTurns, &errStr, &createdAt, &completedAt), nil
}

func scanTaskRows(row *sql.Rows) (models.Task, error) {
	var id, projectDir, prompt string
	var sessionID, model, result, errStr sql.NullString
	var source models.ChatSource
	var status models.TaskStatus
	var success sql.NullBool
	var durationMs, numTurns, completedAt sql.NullInt64
	var createdAt int64
	err := row.Scan(&id, &sessionID, &projectDir, &prompt, &model, &source, &status, &result, &success,
		&durationMs, &numTurns, &errStr, &createdAt, &completedAt)
	if err != nil {
		return models.Task{}, err
	}
	return scanTask(&id, &sessionID, &projectDir, &prompt, &model, &source, &status, &result, &success,
		&durationMs, &numTurns, &errStr, &createdAt, &completedAt), nil
}

const taskColumns = `id, session_id, project_dir, prompt, model, source, status, result, success,
	duration_ms, num_turns, error, created_at, completed_at`

// CreateTask inserts a newly dispatched headless invocation.
func CreateTask(t models.Task) error {
	_, err := Run(
		`INSERT INTO tasks (id, session_id, project_dir, prompt, model, source, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.ProjectDir, t.Prompt, nullableString(t.Model), t.Source, t.Status, t.CreatedAt,
	)
	return err
}

// GetTask returns a single task by ID.
func GetTask(id string) (*models.Task, error) {
	return SelectOne(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, []QueryParam{id}, scanTaskRow)
}

// CompleteTask records the final outcome of a task.
func CompleteTask(id string, success bool, result string, errMsg string, durationMs int64, numTurns int, nowMs int64) error {
	status := models.TaskCompleted
	if !success {
		status = models.TaskFailed
	}
	_, err := Run(
		`UPDATE tasks SET status = ?, result = ?, success = ?, duration_ms = ?, num_turns = ?, error = ?, completed_at = ?
		 WHERE id = ?`,
		status, nullableString(result), success, durationMs, numTurns, nullableString(errMsg), nowMs, id,
	)
	return err
}

// CancelTask marks a task cancelled (hard-kill path).
func CancelTask(id string, nowMs int64) error {
	_, err := Run(`UPDATE tasks SET status = 'cancelled', completed_at = ? WHERE id = ?`, nowMs, id)
	return err
}

// MarkTaskRunning transitions a task from pending to running.
func MarkTaskRunning(id string) error {
	_, err := Run(`UPDATE tasks SET status = 'running' WHERE id = ?`, id)
	return err
}

// BindTaskSession attaches a newly created session to a task once the
// headless run reports one (new-session completion path).
func BindTaskSession(id, sessionID string) error {
	_, err := Run(`UPDATE tasks SET session_id = ? WHERE id = ?`, sessionID, id)
	return err
}

// ListTasks returns tasks most-recent-first, optionally filtered by projectDir.
func ListTasks(projectDir string, limit int) ([]models.Task, error) {
	if projectDir != "" {
		return Select(
			`SELECT `+taskColumns+` FROM tasks WHERE project_dir = ? ORDER BY created_at DESC LIMIT ?`,
			[]QueryParam{projectDir, limit},
			scanTaskRows,
		)
	}
	return Select(
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC LIMIT ?`,
		[]QueryParam{limit},
		scanTaskRows,
	)
}

// ListFailedTasks returns the most recent failed tasks for triage.
func ListFailedTasks(limit int) ([]models.Task, error) {
	return Select(
		`SELECT `+taskColumns+` FROM tasks WHERE status = 'failed' ORDER BY created_at DESC LIMIT ?`,
		[]QueryParam{limit},
		scanTaskRows,
	)
}
