package api

import (
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentbridge/bridge/db"
)

// ListSessions handles GET /sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions, err := h.server.Registry().List()
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, sessions, nil)
}

// GetSession handles GET /sessions/{id}.
func (h *Handlers) GetSession(c *gin.Context) {
	s, err := h.server.Registry().Get(c.Param("id"))
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	if s == nil {
		RespondNotFound(c, "session not found")
		return
	}
	RespondData(c, s)
}

// RenameSession handles PATCH /sessions/{id}/rename.
func (h *Handlers) RenameSession(c *gin.Context) {
	var body struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}
	if err := h.server.Registry().Rename(c.Param("id"), body.Name); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// DeleteSession handles DELETE /sessions/{id}.
func (h *Handlers) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	h.server.Rendezvous().CancelAllWaits(id)
	h.server.Watcher().Unwatch(id)
	if err := h.server.Registry().Remove(id); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// HandoffSession handles POST /sessions/{id}/handoff: the web UI or bot
// takes control away from the CLI.
func (h *Handlers) HandoffSession(c *gin.Context) {
	s, err := h.server.Registry().HandoffToRemote(c.Param("id"), time.Now().UnixMilli())
	if err != nil {
		RespondConflict(c, err.Error())
		return
	}
	RespondData(c, s)
}

// ReleaseSession handles POST /sessions/{id}/release: control goes back to
// the CLI, and any still-pending queued messages are cancelled.
func (h *Handlers) ReleaseSession(c *gin.Context) {
	s, err := h.server.Registry().ReleaseToCLI(c.Param("id"), time.Now().UnixMilli())
	if err != nil {
		RespondConflict(c, err.Error())
		return
	}
	RespondData(c, s)
}

// GetSessionEvents handles GET /sessions/{id}/events: the recent
// notification/badge history for a session.
func (h *Handlers) GetSessionEvents(c *gin.Context) {
	events, err := db.ListNotifications(c.Param("id"), false)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, events, nil)
}

// GetSessionTimeline handles GET /sessions/{id}/timeline: chat history plus
// the permission asks interleaved with it, in chronological order.
func (h *Handlers) GetSessionTimeline(c *gin.Context) {
	id := c.Param("id")

	chat, err := db.ListChatMessages(id, 500)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	perms, err := db.ListPermissionRequests(id)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}

	type timelineEntry struct {
		Kind      string `json:"kind"`
		CreatedAt int64  `json:"createdAt"`
		Data      any    `json:"data"`
	}
	entries := make([]timelineEntry, 0, len(chat)+len(perms))
	for _, m := range chat {
		entries = append(entries, timelineEntry{Kind: "chat", CreatedAt: m.CreatedAt, Data: m})
	}
	for _, p := range perms {
		entries = append(entries, timelineEntry{Kind: "permission", CreatedAt: p.CreatedAt, Data: p})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt < entries[j].CreatedAt })

	RespondList(c, entries, nil)
}
