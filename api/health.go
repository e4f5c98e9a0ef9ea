package api

import "github.com/gin-gonic/gin"

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	RespondData(c, gin.H{
		"status":      "ok",
		"connections": h.server.Hub().BroadcastCount(),
	})
}
