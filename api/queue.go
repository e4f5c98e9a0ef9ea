package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/models"
)

// ListQueue handles GET /sessions/{id}/queue.
func (h *Handlers) ListQueue(c *gin.Context) {
	msgs, err := db.ListQueuedMessages(c.Param("id"), models.QueuePending)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, msgs, nil)
}

// EnqueueMessage handles POST /sessions/{id}/queue: buffer a message while
// the CLI holds control.
func (h *Handlers) EnqueueMessage(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}

	msgID, err := db.EnqueueMessage(id, body.Content, models.SourceWeb, time.Now().UnixMilli())
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	h.server.Notifications().NotifyQueueUpdated(id, gin.H{"id": msgID})
	RespondCreated(c, gin.H{"id": msgID}, "")
}

// CancelAllQueued handles DELETE /sessions/{id}/queue.
func (h *Handlers) CancelAllQueued(c *gin.Context) {
	id := c.Param("id")
	if err := db.CancelAllQueuedMessages(id); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	h.server.Notifications().NotifyQueueUpdated(id, nil)
	RespondNoContent(c)
}

// CancelQueuedMessage handles DELETE /sessions/{id}/queue/{msgId}.
func (h *Handlers) CancelQueuedMessage(c *gin.Context) {
	id := c.Param("id")
	msgID, err := strconv.ParseInt(c.Param("msgId"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "invalid message id")
		return
	}
	if err := db.CancelQueuedMessage(msgID); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	h.server.Notifications().NotifyQueueUpdated(id, gin.H{"id": msgID})
	RespondNoContent(c)
}

// SendNextQueued handles POST /sessions/{id}/queue/send-next: deliver the
// oldest pending message through the rendezvous queue as if it were a live
// CLI response, unblocking whatever the Agent is currently waiting on.
func (h *Handlers) SendNextQueued(c *gin.Context) {
	id := c.Param("id")

	msg, err := db.NextQueuedMessage(id)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	if msg == nil {
		RespondData(c, gin.H{"sent": false})
		return
	}

	h.server.Rendezvous().Deliver(id, "", msg.Content)
	if err := db.MarkQueuedMessageSent(msg.ID, time.Now().UnixMilli()); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	h.server.Notifications().NotifyQueueUpdated(id, gin.H{"id": msg.ID})
	RespondData(c, gin.H{"sent": true, "message": msg})
}

// ProcessQueue handles POST /sessions/{id}/queue/process: drains every
// pending message, delivering each in order.
func (h *Handlers) ProcessQueue(c *gin.Context) {
	id := c.Param("id")

	sent := 0
	for {
		msg, err := db.NextQueuedMessage(id)
		if err != nil {
			RespondInternalError(c, err.Error())
			return
		}
		if msg == nil {
			break
		}
		h.server.Rendezvous().Deliver(id, "", msg.Content)
		if err := db.MarkQueuedMessageSent(msg.ID, time.Now().UnixMilli()); err != nil {
			RespondInternalError(c, err.Error())
			return
		}
		sent++
	}
	h.server.Notifications().NotifyQueueUpdated(id, gin.H{"sent": sent})
	RespondData(c, gin.H{"sent": sent})
}
