package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/models"
)

const maxImageUploadBytes = 10 << 20 // 10 MiB

// UploadImage handles POST /upload-image: a multipart form with a session id
// field and an "image" file part.
func (h *Handlers) UploadImage(c *gin.Context) {
	sessionID := c.PostForm("session_id")
	if sessionID == "" {
		RespondBadRequest(c, "session_id is required")
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		RespondBadRequest(c, "image file is required")
		return
	}
	defer file.Close()

	if header.Size > maxImageUploadBytes {
		RespondBadRequest(c, "image too large")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxImageUploadBytes+1))
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	if len(data) > maxImageUploadBytes {
		RespondBadRequest(c, "image too large")
		return
	}

	publicID, url, width, height, err := h.server.Images().Put(c.Request.Context(), sessionID, data)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}

	img := models.SessionImage{
		SessionID: sessionID,
		PublicID:  publicID,
		URL:       url,
		Width:     width,
		Height:    height,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := db.RecordSessionImage(img); err != nil {
		RespondInternalError(c, err.Error())
		return
	}

	RespondCreated(c, img, url)
}

// DeleteImage handles POST /delete-image.
func (h *Handlers) DeleteImage(c *gin.Context) {
	var body struct {
		SessionID string `json:"session_id" binding:"required"`
		PublicID  string `json:"public_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}

	if err := h.server.Images().Delete(c.Request.Context(), body.SessionID, body.PublicID); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	if err := db.DeleteSessionImage(body.SessionID, body.PublicID); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondNoContent(c)
}

// ServeImage handles GET /images/{sessionId}/{publicId}, the URL LocalStore
// hands back from Put.
func (h *Handlers) ServeImage(c *gin.Context) {
	sessionID := c.Param("sessionId")
	publicID := c.Param("publicId")

	f, err := h.server.Images().Open(sessionID, publicID)
	if err != nil {
		RespondNotFound(c, "image not found")
		return
	}
	defer f.Close()

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Status(http.StatusOK)
	io.Copy(c.Writer, f)
}
