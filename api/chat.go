package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/models"
)

// GetChat handles GET /sessions/{id}/chat?limit: the most recent limit
// messages (default 100) in chronological order. No offset is read.
func (h *Handlers) GetChat(c *gin.Context) {
	id := c.Param("id")
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := db.ListChatMessages(id, limit)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, msgs, nil)
}

// PostChat handles POST /sessions/{id}/chat: a human (web UI or bot) sends a
// message into the conversation. If the CLI holds control it is queued
// instead of appended directly, mirroring ShouldQueueMessage.
func (h *Handlers) PostChat(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		Content string `json:"content" binding:"required"`
		Source  string `json:"source,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}
	source := models.SourceWeb
	if body.Source != "" {
		source = models.ChatSource(body.Source)
	}

	shouldQueue, err := h.server.Registry().ShouldQueueMessage(id)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	now := time.Now().UnixMilli()

	if shouldQueue {
		msgID, err := db.EnqueueMessage(id, body.Content, source, now)
		if err != nil {
			RespondInternalError(c, err.Error())
			return
		}
		h.server.Notifications().NotifyQueueUpdated(id, gin.H{"id": msgID})
		RespondData(c, gin.H{"queued": true, "id": msgID})
		return
	}

	msg := models.ChatMessage{
		SessionID: id,
		Type:      models.ChatUser,
		Content:   body.Content,
		Source:    source,
		CreatedAt: now,
	}
	msgID, err := db.AppendChatMessage(msg)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}

	h.server.Rendezvous().Deliver(id, "", body.Content)
	h.server.Notifications().NotifyChatUpdated(id, gin.H{"id": msgID})

	RespondData(c, gin.H{"queued": false, "id": msgID})
}

// DeleteChat handles DELETE /sessions/{id}/chat: clears a session's queued
// backlog (chat history itself is durable and not deleted here).
func (h *Handlers) DeleteChat(c *gin.Context) {
	id := c.Param("id")
	if err := db.CancelAllQueuedMessages(id); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	h.server.Notifications().NotifyQueueUpdated(id, nil)
	RespondNoContent(c)
}
