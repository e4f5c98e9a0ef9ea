package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/models"
)

// ListAllowlist handles GET /allowlist: every durable permission rule,
// global and per-session.
func (h *Handlers) ListAllowlist(c *gin.Context) {
	rules, err := db.ListAllPermissionRules()
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, rules, nil)
}

// CreateAllowlistRule handles POST /allowlist.
func (h *Handlers) CreateAllowlistRule(c *gin.Context) {
	var body struct {
		ToolName  string  `json:"toolName" binding:"required"`
		Pattern   string  `json:"pattern" binding:"required"`
		RuleType  string  `json:"ruleType" binding:"required"`
		Scope     string  `json:"scope" binding:"required"`
		SessionID *string `json:"sessionId,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}

	rule := models.PermissionRule{
		ToolName:  body.ToolName,
		Pattern:   body.Pattern,
		RuleType:  models.RuleType(body.RuleType),
		Scope:     models.RuleScope(body.Scope),
		SessionID: body.SessionID,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := db.UpsertPermissionRule(rule); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondCreated(c, rule, "")
}

// DeleteAllowlistRule handles DELETE /allowlist/{ruleId}.
func (h *Handlers) DeleteAllowlistRule(c *gin.Context) {
	ruleID, err := strconv.ParseInt(c.Param("ruleId"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "invalid rule id")
		return
	}
	if err := db.DeletePermissionRule(ruleID); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}
