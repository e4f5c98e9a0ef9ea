package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/log"
	"github.com/agentbridge/bridge/models"
)

// ExecuteTask handles POST /tasks/execute: dispatches a headless Agent
// invocation in the background and returns immediately; the outcome is
// delivered over the realtime socket (task_started/task_activity/task_completed).
func (h *Handlers) ExecuteTask(c *gin.Context) {
	var body struct {
		ProjectDir string `json:"project_dir" binding:"required"`
		Prompt     string `json:"prompt" binding:"required"`
		Model      string `json:"model,omitempty"`
		SessionID  string `json:"session_id,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}

	canExec, err := h.server.Executor().CanExecute(body.SessionID)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	if !canExec {
		RespondConflict(c, "session is not under remote control")
		return
	}

	now := time.Now().UnixMilli()
	task := models.Task{
		ID:         uuid.NewString(),
		ProjectDir: body.ProjectDir,
		Prompt:     body.Prompt,
		Model:      body.Model,
		Source:     models.SourceAPI,
		Status:     models.TaskPending,
		CreatedAt:  now,
	}
	if body.SessionID != "" {
		task.SessionID = &body.SessionID
	}
	if err := db.CreateTask(task); err != nil {
		RespondInternalError(c, err.Error())
		return
	}

	go h.runTask(task)

	RespondAccepted(c, gin.H{"task_id": task.ID, "session_id": body.SessionID, "status": "pending"})
}

func (h *Handlers) runTask(task models.Task) {
	if err := db.MarkTaskRunning(task.ID); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("failed to mark task running")
		return
	}
	sessionID := ""
	if task.SessionID != nil {
		sessionID = *task.SessionID
	}
	h.server.Notifications().NotifyTaskStarted(sessionID, gin.H{"taskId": task.ID})

	ctx := context.Background()
	result, err := h.server.Executor().Execute(ctx, task)
	now := time.Now().UnixMilli()

	if err != nil {
		if cerr := db.CompleteTask(task.ID, false, "", err.Error(), 0, 0, now); cerr != nil {
			log.Error().Err(cerr).Str("task_id", task.ID).Msg("failed to record task failure")
		}
		h.server.Notifications().NotifyTaskFailed(sessionID, gin.H{"taskId": task.ID, "error": err.Error()})
		return
	}

	if result.SessionID != "" {
		if berr := db.BindTaskSession(task.ID, result.SessionID); berr != nil {
			log.Error().Err(berr).Str("task_id", task.ID).Msg("failed to bind task session")
		}
	}
	if cerr := db.CompleteTask(task.ID, result.Success, result.Result, result.Error, result.DurationMs, result.NumTurns, now); cerr != nil {
		log.Error().Err(cerr).Str("task_id", task.ID).Msg("failed to record task completion")
	}

	if result.Success {
		h.server.Notifications().NotifyTaskCompleted(result.SessionID, gin.H{"taskId": task.ID, "result": result.Result})
	} else {
		h.server.Notifications().NotifyTaskFailed(result.SessionID, gin.H{"taskId": task.ID, "error": result.Error})
	}
}

// CancelTask handles POST /tasks/{task_id}/cancel.
func (h *Handlers) CancelTask(c *gin.Context) {
	taskID := c.Param("task_id")
	killed := h.server.Executor().Cancel(taskID)
	if err := db.CancelTask(taskID, time.Now().UnixMilli()); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondData(c, gin.H{"cancelled": killed})
}

// GetSessionMap handles GET /tasks/{project_dir}/session: the remembered
// continuation session id for a project directory, if any.
func (h *Handlers) GetSessionMap(c *gin.Context) {
	projectDir := c.Param("project_dir")
	sessionID, ok := h.server.Executor().SessionForProject(projectDir)
	RespondData(c, gin.H{"session_id": sessionID, "found": ok})
}

// DeleteSessionMap handles DELETE /tasks/{project_dir}/session: forgets the
// remembered continuation, so the next task starts a brand-new Agent session.
func (h *Handlers) DeleteSessionMap(c *gin.Context) {
	h.server.Executor().ForgetSession(c.Param("project_dir"))
	RespondNoContent(c)
}

// ListTasks handles GET /tasks?project_dir=&limit=.
func (h *Handlers) ListTasks(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	tasks, err := db.ListTasks(c.Query("project_dir"), limit)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, tasks, nil)
}

// ListFailedTasks handles GET /tasks/failed?limit=.
func (h *Handlers) ListFailedTasks(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	tasks, err := db.ListFailedTasks(limit)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondList(c, tasks, nil)
}
