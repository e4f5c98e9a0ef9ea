package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentbridge/bridge/server"
)

// SetupRoutes mounts the hook group, the UI group, the realtime socket, and
// the handful of fully public routes onto r.
func SetupRoutes(r *gin.Engine, srv *server.Server) {
	h := NewHandlers(srv)

	r.GET("/health", h.Health)
	r.POST("/auth/login", h.Login)

	// Hook group: in-process Agent hooks, authenticated with the shared
	// bridge secret only.
	hooks := r.Group("/hooks", HookAuthMiddleware())
	{
		hooks.POST("/sessions/register", h.RegisterSession)
		hooks.PATCH("/sessions/:id", h.UpdateSession)
		hooks.POST("/sessions/:id/notify", h.NotifySession)
		hooks.POST("/sessions/:id/wait", h.WaitForResponse)
		hooks.GET("/sessions/:id/response/:request_id", h.GetResponse)
		hooks.POST("/sessions/:id/respond", h.RespondToSession)
		hooks.POST("/sessions/:id/cli-thinking", h.CLIThinking)
		hooks.GET("/allowlist/check", h.CheckAllowlist)
	}

	// UI group: the web UI and the bot gateway, authenticated with a bridge
	// bearer token, an OIDC token, or a password session.
	ui := r.Group("/", AuthMiddleware())
	{
		ui.GET("/auth/verify", h.VerifyAuth)
		ui.POST("/auth/refresh", h.RefreshAuth)

		ui.GET("/sessions", h.ListSessions)
		ui.GET("/sessions/:id", h.GetSession)
		ui.PATCH("/sessions/:id/rename", h.RenameSession)
		ui.DELETE("/sessions/:id", h.DeleteSession)

		ui.GET("/sessions/:id/queue", h.ListQueue)
		ui.POST("/sessions/:id/queue", h.EnqueueMessage)
		ui.DELETE("/sessions/:id/queue", h.CancelAllQueued)
		ui.DELETE("/sessions/:id/queue/:msgId", h.CancelQueuedMessage)
		ui.POST("/sessions/:id/queue/send-next", h.SendNextQueued)
		ui.POST("/sessions/:id/queue/process", h.ProcessQueue)

		ui.POST("/sessions/:id/handoff", h.HandoffSession)
		ui.POST("/sessions/:id/release", h.ReleaseSession)

		ui.GET("/sessions/:id/chat", h.GetChat)
		ui.POST("/sessions/:id/chat", h.PostChat)
		ui.DELETE("/sessions/:id/chat", h.DeleteChat)

		ui.GET("/sessions/:id/settings", h.GetSessionSettings)
		ui.PUT("/sessions/:id/settings", h.PutSessionSettings)

		ui.GET("/sessions/:id/permissions", h.ListSessionPermissions)
		ui.POST("/sessions/:id/permissions/:reqId/resolve", h.ResolveSessionPermission)

		ui.GET("/sessions/:id/events", h.GetSessionEvents)
		ui.GET("/sessions/:id/timeline", h.GetSessionTimeline)

		ui.POST("/tasks/execute", h.ExecuteTask)
		ui.POST("/tasks/:task_id/cancel", h.CancelTask)
		ui.GET("/tasks/:project_dir/session", h.GetSessionMap)
		ui.DELETE("/tasks/:project_dir/session", h.DeleteSessionMap)
		ui.GET("/tasks", h.ListTasks)
		ui.GET("/tasks/failed", h.ListFailedTasks)

		ui.GET("/allowlist", h.ListAllowlist)
		ui.POST("/allowlist", h.CreateAllowlistRule)
		ui.DELETE("/allowlist/:ruleId", h.DeleteAllowlistRule)

		ui.POST("/upload-image", h.UploadImage)
		ui.POST("/delete-image", h.DeleteImage)

		ui.GET("/filesystem/browse", h.BrowseFilesystem)

		ui.GET("/ws", func(c *gin.Context) {
			srv.Hub().ServeHTTP(c.Writer, c.Request)
		})
	}

	// OAuth routes are their own auth dance; none of the three AuthMiddleware
	// credentials apply until after the exchange completes.
	oauth := r.Group("/api/oauth")
	{
		oauth.GET("/authorize", h.OAuthAuthorize)
		oauth.GET("/callback", h.OAuthCallback)
		oauth.POST("/refresh", h.OAuthRefresh)
		oauth.GET("/token", h.OAuthToken)
		oauth.POST("/logout", h.OAuthLogout)
	}

	r.GET("/images/:sessionId/:publicId", h.ServeImage)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}
