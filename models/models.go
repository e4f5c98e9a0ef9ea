// Package models defines the wire- and storage-level domain types shared
// across the registry, rendezvous, permission, executor, and API packages.
package models

// ControlState says who currently drives a session.
type ControlState string

const (
	ControlCLIActive    ControlState = "cli_active"
	ControlCLIWaiting   ControlState = "cli_waiting"
	ControlRemoteActive ControlState = "remote_active"
	ControlReleased     ControlState = "released"
)

// Valid reports whether s is one of the known control states. Unknown
// legacy values are coerced to ControlRemoteActive on read (see
// coerceControlState in db/sessions_repo.go).
func (s ControlState) Valid() bool {
	switch s {
	case ControlCLIActive, ControlCLIWaiting, ControlRemoteActive, ControlReleased:
		return true
	}
	return false
}

// controlTransitions enumerates the legal control-state graph from §3.
var controlTransitions = map[ControlState]map[ControlState]bool{
	ControlCLIActive:    {ControlCLIWaiting: true, ControlRemoteActive: true},
	ControlCLIWaiting:   {ControlRemoteActive: true},
	ControlRemoteActive: {ControlReleased: true},
	ControlReleased:     {ControlCLIActive: true, ControlRemoteActive: true},
}

// CanTransition reports whether from -> to is a legal control-state move.
func CanTransition(from, to ControlState) bool {
	return controlTransitions[from][to]
}

// SessionStatus is the last observed Agent state.
type SessionStatus string

const (
	StatusRunning SessionStatus = "running"
	StatusWaiting SessionStatus = "waiting"
	StatusStopped SessionStatus = "stopped"
)

// Session is one Agent conversation.
type Session struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	ProjectDir     string       `json:"projectDir"`
	Status         SessionStatus `json:"status"`
	ControlState   ControlState `json:"controlState"`
	TranscriptPath string       `json:"transcriptPath,omitempty"`
	StartedAt      int64        `json:"startedAt"`
	LastActivity   int64        `json:"lastActivity"`
}

// RequestType classifies a PendingRequest.
type RequestType string

const (
	RequestPermission RequestType = "permission"
	RequestStop       RequestType = "stop"
	RequestInfo       RequestType = "info"
)

// PendingRequest is one outstanding question from the Agent, held in the
// registry's in-memory cache (never persisted directly; permission-typed
// requests are mirrored into PermissionRequest).
type PendingRequest struct {
	ID              string         `json:"id"`
	SessionID       string         `json:"sessionId"`
	Type            RequestType    `json:"type"`
	Message         string         `json:"message"`
	ToolName        string         `json:"toolName,omitempty"`
	ToolInput       string         `json:"toolInput,omitempty"` // raw JSON
	Buttons         []string       `json:"buttons,omitempty"`
	CreatedAt       int64          `json:"createdAt"`
	ExternalMsgID   string         `json:"externalMessageId,omitempty"`
}

// ChatSource identifies which surface originated a ChatMessage or Task.
type ChatSource string

const (
	SourceCLI      ChatSource = "cli"
	SourceWeb      ChatSource = "web"
	SourceAPI      ChatSource = "api"
	SourceQueue    ChatSource = "queue"
	SourceTelegram ChatSource = "telegram"
)

// ChatMessageType distinguishes user vs. assistant turns.
type ChatMessageType string

const (
	ChatUser      ChatMessageType = "user"
	ChatAssistant ChatMessageType = "assistant"
)

// ChatMessage is one persisted conversation turn.
type ChatMessage struct {
	ID         int64           `json:"id"`
	SessionID  string          `json:"sessionId"`
	Type       ChatMessageType `json:"type"`
	Content    string          `json:"content"`
	Status     string          `json:"status,omitempty"`
	DurationMs *int64          `json:"durationMs,omitempty"`
	NumTurns   *int            `json:"numTurns,omitempty"`
	Source     ChatSource      `json:"source"`
	Images     []string        `json:"images,omitempty"`
	CreatedAt  int64           `json:"createdAt"`
}

// QueueStatus tracks a QueuedMessage through its lifecycle.
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueSent      QueueStatus = "sent"
	QueueCancelled QueueStatus = "cancelled"
)

// QueuedMessage is buffered work while the CLI holds control.
type QueuedMessage struct {
	ID        int64       `json:"id"`
	SessionID string      `json:"sessionId"`
	Content   string      `json:"content"`
	Source    ChatSource  `json:"source"`
	Status    QueueStatus `json:"status"`
	CreatedAt int64       `json:"createdAt"`
	SentAt    *int64      `json:"sentAt,omitempty"`
}

// PermissionDecision is the resolved (or pending) verdict on a permission ask.
type PermissionDecision string

const (
	DecisionPending        PermissionDecision = "pending"
	DecisionApproved       PermissionDecision = "approved"
	DecisionDenied         PermissionDecision = "denied"
	DecisionApprovedSession PermissionDecision = "approved_session"
	DecisionDeniedSession  PermissionDecision = "denied_session"
	DecisionApprovedGlobal PermissionDecision = "approved_global"
	DecisionDeniedGlobal   PermissionDecision = "denied_global"
)

// DecidedBy records which surface (or auto-policy) resolved a request.
type DecidedBy string

const (
	DecidedByWeb  DecidedBy = "web"
	DecidedByBot  DecidedBy = "bot"
	DecidedByHook DecidedBy = "hook"
	DecidedByAuto DecidedBy = "auto"
)

// PermissionRequest is the audit record of a hook permission ask.
type PermissionRequest struct {
	ID         string              `json:"id"`
	SessionID  string              `json:"sessionId"`
	ToolName   string              `json:"toolName"`
	ToolInput  string              `json:"toolInput"` // raw JSON blob
	Message    string              `json:"message"`
	Decision   PermissionDecision  `json:"decision"`
	DecidedBy  *DecidedBy          `json:"decidedBy,omitempty"`
	CreatedAt  int64               `json:"createdAt"`
	DecidedAt  *int64              `json:"decidedAt,omitempty"`
}

// RuleType is allow or deny.
type RuleType string

const (
	RuleAllow RuleType = "allow"
	RuleDeny  RuleType = "deny"
)

// RuleScope is global or session.
type RuleScope string

const (
	ScopeGlobal  RuleScope = "global"
	ScopeSession RuleScope = "session"
)

// PermissionRule is a reusable, pattern-matched decision.
type PermissionRule struct {
	ID        int64     `json:"id"`
	ToolName  string    `json:"toolName"`
	Pattern   string    `json:"pattern"`
	RuleType  RuleType  `json:"ruleType"`
	Scope     RuleScope `json:"scope"`
	SessionID *string   `json:"sessionId,omitempty"`
	CreatedAt int64     `json:"createdAt"`
}

// TaskStatus tracks a headless Agent invocation.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is one invocation of the headless Agent.
type Task struct {
	ID          string     `json:"id"`
	SessionID   *string    `json:"sessionId,omitempty"`
	ProjectDir  string     `json:"projectDir"`
	Prompt      string     `json:"prompt"`
	Model       string     `json:"model,omitempty"`
	Source      ChatSource `json:"source"`
	Status      TaskStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	Success     *bool      `json:"success,omitempty"`
	DurationMs  *int64     `json:"durationMs,omitempty"`
	NumTurns    *int       `json:"numTurns,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   int64      `json:"createdAt"`
	CompletedAt *int64     `json:"completedAt,omitempty"`
}

// SessionSettings is the one-to-one per-session run configuration.
type SessionSettings struct {
	SessionID       string `json:"sessionId"`
	Model           string `json:"model,omitempty"`
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
	AutonomyLevel   string `json:"autonomyLevel,omitempty"` // low|medium|high
}

// Notification is a persisted badge item.
type Notification struct {
	ID        int64  `json:"id"`
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"createdAt"`
}

// SessionImage tracks an uploaded image asset for cleanup on session delete.
type SessionImage struct {
	ID        int64  `json:"id"`
	SessionID string `json:"sessionId"`
	PublicID  string `json:"publicId"`
	URL       string `json:"url"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}
