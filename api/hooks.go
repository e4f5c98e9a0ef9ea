package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agentbridge/bridge/log"
	"github.com/agentbridge/bridge/models"
	"github.com/agentbridge/bridge/permission"
)

// RegisterSession handles POST /hooks/sessions/register. A hook calls this
// once at the start of every Agent invocation (fresh or resumed).
func (h *Handlers) RegisterSession(c *gin.Context) {
	var body struct {
		SessionID      string `json:"session_id" binding:"required"`
		ProjectDir     string `json:"project_dir" binding:"required"`
		SessionName    string `json:"session_name,omitempty"`
		TranscriptPath string `json:"transcript_path,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}

	now := time.Now().UnixMilli()
	s, err := h.server.Registry().Register(body.SessionID, body.ProjectDir, body.SessionName, body.TranscriptPath, now)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}

	if body.TranscriptPath != "" {
		h.server.Watcher().Watch(body.SessionID, body.TranscriptPath)
	}

	RespondData(c, s)
}

// UpdateSession handles PATCH /hooks/sessions/{id}.
func (h *Handlers) UpdateSession(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		Status         *string                 `json:"status,omitempty"`
		PendingRequest *models.PendingRequest `json:"pending_request,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}

	now := time.Now().UnixMilli()
	if body.Status != nil {
		if err := h.server.Registry().UpdateStatus(id, models.SessionStatus(*body.Status), now); err != nil {
			RespondInternalError(c, err.Error())
			return
		}
	} else {
		if err := h.server.Registry().Touch(id, now); err != nil {
			RespondInternalError(c, err.Error())
			return
		}
	}

	h.server.Registry().SetPendingRequest(id, body.PendingRequest)

	RespondData(c, gin.H{"success": true})
}

// NotifySession handles POST /hooks/sessions/{id}/notify: the hook asks a
// question (or posts an FYI) and gets back a request id it can later wait
// on. If a bot gateway is connected, the prompt is also pushed there.
func (h *Handlers) NotifySession(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		SessionName string   `json:"session_name,omitempty"`
		Message     string   `json:"message" binding:"required"`
		Type        string   `json:"type,omitempty"`
		Buttons     []string `json:"buttons,omitempty"`
		ToolName    string   `json:"tool_name,omitempty"`
		ToolInput   string   `json:"tool_input,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}

	requestID := uuid.NewString()
	now := time.Now().UnixMilli()

	req := models.PendingRequest{
		ID:        requestID,
		SessionID: id,
		Type:      models.RequestInfo,
		Message:   body.Message,
		ToolName:  body.ToolName,
		ToolInput: body.ToolInput,
		Buttons:   body.Buttons,
		CreatedAt: now,
	}
	if body.Type == string(models.RequestPermission) {
		req.Type = models.RequestPermission
	} else if body.Type == string(models.RequestStop) {
		req.Type = models.RequestStop
	}

	h.server.Rendezvous().Park(id, requestID)
	h.server.Registry().SetPendingRequest(id, &req)

	if bot := h.server.Bot(); bot != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.server.Config().NotifyTimeout)
		externalID, err := bot.SendMessage(ctx, id, body.Message, body.Buttons, requestID)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("bot notify failed")
		} else {
			req.ExternalMsgID = externalID
			h.server.Registry().SetPendingRequest(id, &req)
		}
	}

	h.server.Notifications().NotifyGeneric(id, req)

	RespondData(c, gin.H{"success": true, "request_id": requestID})
}

// WaitForResponse handles POST /hooks/sessions/{id}/wait: blocks until a
// response is delivered for request_id or timeout (seconds) elapses.
func (h *Handlers) WaitForResponse(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		RequestID string  `json:"request_id" binding:"required"`
		Timeout   float64 `json:"timeout"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}
	timeout := time.Duration(body.Timeout * float64(time.Second))
	if timeout <= 0 {
		timeout = h.server.Config().DefaultTimeout
	}

	resp, ok := h.server.Rendezvous().WaitForResponse(c.Request.Context(), id, body.RequestID, timeout)
	RespondData(c, gin.H{"response": resp, "timeout": !ok, "has_response": ok})
}

// GetResponse handles GET /hooks/sessions/{id}/response/{request_id}: a
// non-blocking peek at whether a response has arrived yet.
func (h *Handlers) GetResponse(c *gin.Context) {
	id := c.Param("id")
	requestID := c.Param("request_id")

	resp, ok := h.server.Rendezvous().WaitForResponse(c.Request.Context(), id, requestID, 1*time.Millisecond)
	RespondData(c, gin.H{"response": resp, "timeout": !ok, "has_response": ok})
}

// RespondToSession handles POST /hooks/sessions/{id}/respond: used by the
// CLI itself to answer its own pending ask (e.g. a Stop-hook follow-up typed
// directly into the terminal).
func (h *Handlers) RespondToSession(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		RequestID string `json:"request_id,omitempty"`
		Response  string `json:"response" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}

	delivered := h.server.Rendezvous().Deliver(id, body.RequestID, body.Response)
	h.server.Registry().SetPendingRequest(id, nil)
	h.server.Notifications().NotifyGeneric(id, gin.H{"requestId": body.RequestID, "delivered": delivered})

	RespondData(c, gin.H{"success": true})
}

// CLIThinking handles POST /hooks/sessions/{id}/cli-thinking: a lightweight
// signal the Agent emits at the start of a turn, shown as a live status line.
func (h *Handlers) CLIThinking(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		Prompt string `json:"prompt"`
	}
	_ = c.ShouldBindJSON(&body)

	h.server.Notifications().NotifyCLIThinking(id, gin.H{"prompt": body.Prompt})
	RespondData(c, gin.H{"success": true})
}

// CheckAllowlist handles GET /hooks/allowlist/check. No session context is
// available here (the hook checks before a session may even be registered),
// so resolution only ever consults global rules.
func (h *Handlers) CheckAllowlist(c *gin.Context) {
	toolName := c.Query("tool_name")
	toolInputRaw := c.Query("tool_input")

	var toolInput map[string]any
	if toolInputRaw != "" {
		if err := json.Unmarshal([]byte(toolInputRaw), &toolInput); err != nil {
			// Fail-open: an unparseable permission ask should never strand
			// the Agent waiting on a human.
			RespondData(c, gin.H{"allowed": true})
			return
		}
	}

	matchTarget := matchTargetFromToolInput(toolName, toolInput)

	verdict, err := h.server.Permissions().Resolve("", toolName, matchTarget)
	if err != nil {
		RespondData(c, gin.H{"allowed": true})
		return
	}

	RespondData(c, gin.H{"allowed": verdict == permission.VerdictAllow})
}

func matchTargetFromToolInput(toolName string, toolInput map[string]any) string {
	if toolName == "Execute" {
		if cmd, ok := toolInput["command"].(string); ok {
			return cmd
		}
		return ""
	}
	for _, key := range []string{"file_path", "path"} {
		if v, ok := toolInput[key].(string); ok {
			return v
		}
	}
	return ""
}
