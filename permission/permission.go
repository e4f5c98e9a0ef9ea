// Package permission resolves whether a hook-reported tool use is allowed,
// denied, or needs to ask a human, and runs the full decision-path-on-ask
// flow (write request, notify, block on the rendezvous queue, record, and
// optionally materialize a durable rule).
package permission

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/models"
	"github.com/agentbridge/bridge/notifications"
	"github.com/agentbridge/bridge/rendezvous"
	"github.com/bmatcuk/doublestar/v4"
)

// Verdict is the resolved answer to a PreToolUse ask.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictDeny  Verdict = "deny"
	VerdictAsk   Verdict = "ask"
)

var fileTools = map[string]bool{
	"Read": true, "Edit": true, "Create": true, "MultiEdit": true,
}

// Engine consults the rule table, and on a miss, runs the full ask flow.
type Engine struct {
	queue  *rendezvous.Queue
	notify *notifications.Service
	// AskTimeout bounds how long a PreToolUse ask blocks before failing
	// closed with deny (spec default: 120s).
	AskTimeout time.Duration
}

func New(queue *rendezvous.Queue, notify *notifications.Service, askTimeout time.Duration) *Engine {
	return &Engine{queue: queue, notify: notify, AskTimeout: askTimeout}
}

// Resolve implements the resolution order: session-deny > session-allow >
// global-deny > global-allow > ask. matchTarget is the command string for
// Execute or the resolved file path for file tools; unknown tools always
// match pattern "*".
func (e *Engine) Resolve(sessionID, toolName, matchTarget string) (Verdict, error) {
	sessionRules, err := db.ListSessionPermissionRules(sessionID, toolName)
	if err != nil {
		return VerdictAsk, err
	}
	if v, ok := firstMatch(sessionRules, toolName, matchTarget, models.RuleDeny); ok {
		return v, nil
	}
	if v, ok := firstMatch(sessionRules, toolName, matchTarget, models.RuleAllow); ok {
		return v, nil
	}

	globalRules, err := db.ListGlobalPermissionRules(toolName)
	if err != nil {
		return VerdictAsk, err
	}
	if v, ok := firstMatch(globalRules, toolName, matchTarget, models.RuleDeny); ok {
		return v, nil
	}
	if v, ok := firstMatch(globalRules, toolName, matchTarget, models.RuleAllow); ok {
		return v, nil
	}

	return VerdictAsk, nil
}

// firstMatch scans rules of the requested type for a match against
// matchTarget, honoring the most-recently-added tie-break (CreatedAt desc).
func firstMatch(rules []models.PermissionRule, toolName, matchTarget string, ruleType models.RuleType) (Verdict, bool) {
	var best *models.PermissionRule
	for i := range rules {
		r := &rules[i]
		if r.RuleType != ruleType {
			continue
		}
		if !matchesPattern(toolName, r.Pattern, matchTarget) {
			continue
		}
		if best == nil || r.CreatedAt > best.CreatedAt {
			best = r
		}
	}
	if best == nil {
		return "", false
	}
	if ruleType == models.RuleDeny {
		return VerdictDeny, true
	}
	return VerdictAllow, true
}

func matchesPattern(toolName, pattern, target string) bool {
	if pattern == "*" {
		return true
	}
	if toolName == "Execute" {
		return matchCommandGlob(pattern, target)
	}
	if fileTools[toolName] {
		ok, err := doublestar.Match(pattern, target)
		return err == nil && ok
	}
	return pattern == "*"
}

var globToRegexReplacer = strings.NewReplacer(
	`\*`, `[^/\\]*`,
	`\?`, `.`,
)

// matchCommandGlob matches a shell-command pattern where '*' means any run
// of non-path characters (so "npm *" matches "npm test" but not "npmx test")
// and '?' means exactly one character.
func matchCommandGlob(pattern, command string) bool {
	quoted := regexp.QuoteMeta(pattern)
	re := "^" + globToRegexReplacer.Replace(quoted) + "$"
	matched, err := regexp.MatchString(re, command)
	return err == nil && matched
}

// AskResult is the terminal outcome of a blocked permission ask.
type AskResult struct {
	Verdict   Verdict
	Reason    string
	DecidedBy models.DecidedBy
}

// Ask runs the decision-path-on-ask flow: persist a PermissionRequest,
// notify subscribers, block on the rendezvous queue under requestID, record
// the final decision, and materialize a durable rule if the response
// carries a session/global scope.
func (e *Engine) Ask(ctx context.Context, sessionID, requestID, toolName, toolInputJSON, message, matchTarget string, nowMs int64) (AskResult, error) {
	req := models.PermissionRequest{
		ID:        requestID,
		SessionID: sessionID,
		ToolName:  toolName,
		ToolInput: toolInputJSON,
		Message:   message,
		Decision:  models.DecisionPending,
		CreatedAt: nowMs,
	}
	if err := db.CreatePermissionRequest(req); err != nil {
		return AskResult{}, err
	}

	e.queue.Park(sessionID, requestID)
	if e.notify != nil {
		e.notify.NotifyPermissionRequested(sessionID, req)
	}

	resp, ok := e.queue.WaitForResponse(ctx, sessionID, requestID, e.AskTimeout)
	if !ok {
		if err := db.ResolvePermissionRequest(requestID, models.DecisionDenied, models.DecidedByAuto, nowMs); err != nil {
			return AskResult{}, err
		}
		if e.notify != nil {
			e.notify.NotifyPermissionResolved(sessionID, map[string]any{"requestId": requestID, "decision": models.DecisionDenied})
		}
		return AskResult{Verdict: VerdictDeny, Reason: "timed out", DecidedBy: models.DecidedByAuto}, nil
	}

	decision, decidedBy := parseDecisionResponse(resp)
	if err := db.ResolvePermissionRequest(requestID, decision, decidedBy, nowMs); err != nil {
		return AskResult{}, err
	}
	if e.notify != nil {
		e.notify.NotifyPermissionResolved(sessionID, map[string]any{"requestId": requestID, "decision": decision})
	}

	if rule, ok := ruleFromDecision(decision, toolName, matchTarget, sessionID, nowMs); ok {
		if err := db.UpsertPermissionRule(rule); err != nil {
			return AskResult{}, err
		}
	}

	verdict := VerdictDeny
	if decision == models.DecisionApproved || decision == models.DecisionApprovedSession || decision == models.DecisionApprovedGlobal {
		verdict = VerdictAllow
	}
	return AskResult{Verdict: verdict, DecidedBy: decidedBy}, nil
}

// parseDecisionResponse maps a rendezvous response payload ("approve",
// "deny", "approve_session", "deny_session", "approve_always", "deny_always")
// into a PermissionDecision plus the surface that decided it.
func parseDecisionResponse(resp string) (models.PermissionDecision, models.DecidedBy) {
	switch resp {
	case "approve_session":
		return models.DecisionApprovedSession, models.DecidedByWeb
	case "deny_session":
		return models.DecisionDeniedSession, models.DecidedByWeb
	case "approve_always", "approve_global":
		return models.DecisionApprovedGlobal, models.DecidedByWeb
	case "deny_always", "deny_global":
		return models.DecisionDeniedGlobal, models.DecidedByWeb
	case "deny":
		return models.DecisionDenied, models.DecidedByWeb
	default:
		return models.DecisionApproved, models.DecidedByWeb
	}
}

func ruleFromDecision(decision models.PermissionDecision, toolName, matchTarget, sessionID string, nowMs int64) (models.PermissionRule, bool) {
	switch decision {
	case models.DecisionApprovedSession:
		return models.PermissionRule{ToolName: toolName, Pattern: matchTarget, RuleType: models.RuleAllow, Scope: models.ScopeSession, SessionID: &sessionID, CreatedAt: nowMs}, true
	case models.DecisionDeniedSession:
		return models.PermissionRule{ToolName: toolName, Pattern: matchTarget, RuleType: models.RuleDeny, Scope: models.ScopeSession, SessionID: &sessionID, CreatedAt: nowMs}, true
	case models.DecisionApprovedGlobal:
		return models.PermissionRule{ToolName: toolName, Pattern: matchTarget, RuleType: models.RuleAllow, Scope: models.ScopeGlobal, CreatedAt: nowMs}, true
	case models.DecisionDeniedGlobal:
		return models.PermissionRule{ToolName: toolName, Pattern: matchTarget, RuleType: models.RuleDeny, Scope: models.ScopeGlobal, CreatedAt: nowMs}, true
	default:
		return models.PermissionRule{}, false
	}
}

// ResolveFileTarget resolves a file-tool's path argument to an absolute
// path for matching, mirroring how rules are authored against real paths.
func ResolveFileTarget(projectDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectDir, path)
}
