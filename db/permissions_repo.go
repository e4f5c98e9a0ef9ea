package db

import (
	"database/sql"

	"github.com/agentbridge/bridge/models"
)

func scanPermissionRequestRow(row *sql.Row) (models.PermissionRequest, error) {
	var r models.PermissionRequest
	var decidedBy sql.NullString
	var decidedAt sql.NullInt64
	err := row.Scan(&r.ID, &r.SessionID, &r.ToolName, &r.ToolInput, &r.Message, &r.Decision, &decidedBy, &r.CreatedAt, &decidedAt)
	if decidedBy.Valid {
		db := models.DecidedBy(decidedBy.String)
		r.DecidedBy = &db
	}
	if decidedAt.Valid {
		r.DecidedAt = &decidedAt.Int64
	}
	return r, err
}

func scanPermissionRequestRows(row *sql.Rows) (models.PermissionRequest, error) {
	var r models.PermissionRequest
	var decidedBy sql.NullString
	var decidedAt sql.NullInt64
	err := row.Scan(&r.ID, &r.SessionID, &r.ToolName, &r.ToolInput, &r.Message, &r.Decision, &decidedBy, &r.CreatedAt, &decidedAt)
	if decidedBy.Valid {
		db := models.DecidedBy(decidedBy.String)
		r.DecidedBy = &db
	}
	if decidedAt.Valid {
		r.DecidedAt = &decidedAt.Int64
	}
	return r, err
}

// CreatePermissionRequest persists a new pending permission ask.
func CreatePermissionRequest(r models.PermissionRequest) error {
	_, err := Run(
		`INSERT INTO permission_requests (id, session_id, tool_name, tool_input, message, decision, created_at)
		 VALUES (?, ?, ?, ?, ?, 'pending', ?)`,
		r.ID, r.SessionID, r.ToolName, r.ToolInput, r.Message, r.CreatedAt,
	)
	return err
}

// GetPermissionRequest returns a single permission request by ID.
func GetPermissionRequest(id string) (*models.PermissionRequest, error) {
	return SelectOne(
		`SELECT id, session_id, tool_name, tool_input, message, decision, decided_by, created_at, decided_at
		 FROM permission_requests WHERE id = ?`,
		[]QueryParam{id},
		scanPermissionRequestRow,
	)
}

// ResolvePermissionRequest records the final decision on a permission ask.
func ResolvePermissionRequest(id string, decision models.PermissionDecision, decidedBy models.DecidedBy, nowMs int64) error {
	_, err := Run(
		`UPDATE permission_requests SET decision = ?, decided_by = ?, decided_at = ? WHERE id = ?`,
		decision, decidedBy, nowMs, id,
	)
	return err
}

// ListPermissionRequests returns a session's permission history, most recent first.
func ListPermissionRequests(sessionID string) ([]models.PermissionRequest, error) {
	return Select(
		`SELECT id, session_id, tool_name, tool_input, message, decision, decided_by, created_at, decided_at
		 FROM permission_requests WHERE session_id = ? ORDER BY created_at DESC`,
		[]QueryParam{sessionID},
		scanPermissionRequestRows,
	)
}

func scanPermissionRuleRows(row *sql.Rows) (models.PermissionRule, error) {
	var r models.PermissionRule
	var sessionID sql.NullString
	err := row.Scan(&r.ID, &r.ToolName, &r.Pattern, &r.RuleType, &r.Scope, &sessionID, &r.CreatedAt)
	if sessionID.Valid {
		r.SessionID = &sessionID.String
	}
	return r, err
}

// ListGlobalPermissionRules returns every global-scope rule for a tool.
func ListGlobalPermissionRules(toolName string) ([]models.PermissionRule, error) {
	return Select(
		`SELECT id, tool_name, pattern, rule_type, scope, session_id, created_at
		 FROM permission_rules WHERE tool_name = ? AND scope = 'global'`,
		[]QueryParam{toolName},
		scanPermissionRuleRows,
	)
}

// ListSessionPermissionRules returns every session-scope rule for a tool within a session.
func ListSessionPermissionRules(sessionID, toolName string) ([]models.PermissionRule, error) {
	return Select(
		`SELECT id, tool_name, pattern, rule_type, scope, session_id, created_at
		 FROM permission_rules WHERE tool_name = ? AND scope = 'session' AND session_id = ?`,
		[]QueryParam{toolName, sessionID},
		scanPermissionRuleRows,
	)
}

// ListAllPermissionRules returns the full allowlist/denylist for management UIs.
func ListAllPermissionRules() ([]models.PermissionRule, error) {
	return Select(
		`SELECT id, tool_name, pattern, rule_type, scope, session_id, created_at
		 FROM permission_rules ORDER BY created_at DESC`,
		nil,
		scanPermissionRuleRows,
	)
}

// UpsertPermissionRule materializes a durable allow/deny rule. A rule that
// already exists for the same (tool_name, pattern, scope, session_id) gets
// its rule_type updated instead of a second row being inserted.
func UpsertPermissionRule(r models.PermissionRule) error {
	if r.SessionID == nil {
		// NULL session_id never conflicts in the unique index, so global
		// rules are matched explicitly.
		res, err := RunWithResult(
			`UPDATE permission_rules SET rule_type = ?
			 WHERE tool_name = ? AND pattern = ? AND scope = ? AND session_id IS NULL`,
			r.RuleType, r.ToolName, r.Pattern, r.Scope,
		)
		if err != nil || res.RowsAffected > 0 {
			return err
		}
	}
	_, err := Run(
		`INSERT INTO permission_rules (tool_name, pattern, rule_type, scope, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tool_name, pattern, scope, session_id) DO UPDATE SET rule_type = excluded.rule_type`,
		r.ToolName, r.Pattern, r.RuleType, r.Scope, r.SessionID, r.CreatedAt,
	)
	return err
}

// DeletePermissionRule removes a rule by ID.
func DeletePermissionRule(id int64) error {
	_, err := Run(`DELETE FROM permission_rules WHERE id = ?`, id)
	return err
}
