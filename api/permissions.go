package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/models"
)

// ListSessionPermissions handles GET /sessions/{id}/permissions.
func (h *Handlers) ListSessionPermissions(c *gin.Context) {
	reqs, err := db.ListPermissionRequests(c.Param("id"))
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, reqs, nil)
}

// ResolveSessionPermission handles POST /sessions/{id}/permissions/{reqId}/resolve
// {decision}: an operator answers a pending permission ask from the web UI
// (as opposed to the realtime socket's inline approve/deny actions).
func (h *Handlers) ResolveSessionPermission(c *gin.Context) {
	sessionID := c.Param("id")
	reqID := c.Param("reqId")

	var body struct {
		Decision string `json:"decision" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}

	req, err := db.GetPermissionRequest(reqID)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	if req == nil {
		RespondNotFound(c, "permission request not found")
		return
	}

	delivered := h.server.Rendezvous().Deliver(sessionID, reqID, body.Decision)
	if !delivered {
		if err := db.ResolvePermissionRequest(reqID, models.PermissionDecision(body.Decision), models.DecidedByWeb, time.Now().UnixMilli()); err != nil {
			RespondInternalError(c, err.Error())
			return
		}
	}

	h.server.Notifications().NotifyPermissionResolved(sessionID, gin.H{"requestId": reqID, "decision": body.Decision})
	RespondData(c, gin.H{"success": true})
}
