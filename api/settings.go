package api

import (
	"github.com/gin-gonic/gin"

	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/models"
)

// GetSessionSettings handles GET /sessions/{id}/settings.
func (h *Handlers) GetSessionSettings(c *gin.Context) {
	id := c.Param("id")
	s, err := db.GetSessionSettings(id)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	if s == nil {
		RespondData(c, models.SessionSettings{SessionID: id})
		return
	}
	RespondData(c, s)
}

// PutSessionSettings handles PUT /sessions/{id}/settings.
func (h *Handlers) PutSessionSettings(c *gin.Context) {
	id := c.Param("id")

	var body models.SessionSettings
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}
	body.SessionID = id

	if err := db.UpsertSessionSettings(body); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondData(c, body)
}
