package permission

import (
	"testing"

	"github.com/agentbridge/bridge/models"
)

func TestMatchCommandGlob(t *testing.T) {
	tests := []struct {
		pattern string
		command string
		want    bool
	}{
		{"npm *", "npm test", true},
		{"npm *", "npm run build", true},
		{"npm *", "npmx test", false},
		{"git push", "git push", true},
		{"git push", "git push --force", false},
		{"rm ?", "rm a", true},
		{"rm ?", "rm ab", false},
	}
	for _, tt := range tests {
		if got := matchCommandGlob(tt.pattern, tt.command); got != tt.want {
			t.Errorf("matchCommandGlob(%q, %q) = %v, want %v", tt.pattern, tt.command, got, tt.want)
		}
	}
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name     string
		toolName string
		pattern  string
		target   string
		want     bool
	}{
		{"wildcard always matches", "Execute", "*", "anything", true},
		{"execute command glob", "Execute", "npm *", "npm install", true},
		{"execute command glob miss", "Execute", "npm *", "yarn install", false},
		{"file tool glob match", "Read", "/home/user/**/*.go", "/home/user/project/main.go", true},
		{"file tool glob miss", "Edit", "/home/user/**/*.go", "/home/user/project/main.py", false},
		{"unknown tool only wildcard", "SomeOtherTool", "foo", "foo", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesPattern(tt.toolName, tt.pattern, tt.target); got != tt.want {
				t.Errorf("matchesPattern(%q, %q, %q) = %v, want %v", tt.toolName, tt.pattern, tt.target, got, tt.want)
			}
		})
	}
}

func TestFirstMatchPrefersMostRecentRule(t *testing.T) {
	rules := []models.PermissionRule{
		{ToolName: "Execute", Pattern: "npm *", RuleType: models.RuleAllow, CreatedAt: 100},
		{ToolName: "Execute", Pattern: "npm *", RuleType: models.RuleAllow, CreatedAt: 200},
	}
	v, ok := firstMatch(rules, "Execute", "npm test", models.RuleAllow)
	if !ok || v != VerdictAllow {
		t.Fatalf("firstMatch = (%v, %v), want (allow, true)", v, ok)
	}
}

func TestFirstMatchNoMatch(t *testing.T) {
	rules := []models.PermissionRule{
		{ToolName: "Execute", Pattern: "yarn *", RuleType: models.RuleAllow, CreatedAt: 100},
	}
	if _, ok := firstMatch(rules, "Execute", "npm test", models.RuleAllow); ok {
		t.Fatal("expected no match for an unrelated pattern")
	}
}

func TestParseDecisionResponse(t *testing.T) {
	tests := []struct {
		resp          string
		wantDecision  models.PermissionDecision
		wantDecidedBy models.DecidedBy
	}{
		{"approve", models.DecisionApproved, models.DecidedByWeb},
		{"deny", models.DecisionDenied, models.DecidedByWeb},
		{"approve_session", models.DecisionApprovedSession, models.DecidedByWeb},
		{"deny_session", models.DecisionDeniedSession, models.DecidedByWeb},
		{"approve_always", models.DecisionApprovedGlobal, models.DecidedByWeb},
		{"deny_always", models.DecisionDeniedGlobal, models.DecidedByWeb},
		{"garbage", models.DecisionApproved, models.DecidedByWeb},
	}
	for _, tt := range tests {
		decision, decidedBy := parseDecisionResponse(tt.resp)
		if decision != tt.wantDecision || decidedBy != tt.wantDecidedBy {
			t.Errorf("parseDecisionResponse(%q) = (%v, %v), want (%v, %v)", tt.resp, decision, decidedBy, tt.wantDecision, tt.wantDecidedBy)
		}
	}
}

func TestRuleFromDecisionScopes(t *testing.T) {
	sess := "sess-1"
	rule, ok := ruleFromDecision(models.DecisionApprovedSession, "Execute", "npm test", sess, 123)
	if !ok {
		t.Fatal("expected a rule for a session decision")
	}
	if rule.Scope != models.ScopeSession || rule.SessionID == nil || *rule.SessionID != sess {
		t.Errorf("rule = %+v, want session-scoped to %q", rule, sess)
	}

	if _, ok := ruleFromDecision(models.DecisionApproved, "Execute", "npm test", sess, 123); ok {
		t.Error("a one-off approval should not materialize a durable rule")
	}
}

func TestResolveFileTarget(t *testing.T) {
	if got := ResolveFileTarget("/proj", "/abs/path.go"); got != "/abs/path.go" {
		t.Errorf("absolute path should pass through unchanged, got %q", got)
	}
	if got := ResolveFileTarget("/proj", "rel/path.go"); got != "/proj/rel/path.go" {
		t.Errorf("relative path should resolve against projectDir, got %q", got)
	}
}
