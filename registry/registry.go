// Package registry is the single-writer owner of session state: it is the
// only thing that may flip a session's control_state and it is what every
// other component asks before touching a session.
package registry

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/log"
	"github.com/agentbridge/bridge/models"
	"github.com/agentbridge/bridge/notifications"
)

// refCacheSize bounds the session-reference cache. A bridge rarely juggles
// more than a few dozen concurrent sessions; this just absorbs repeated
// ref lookups (bot commands, hook calls) within a burst of activity.
const refCacheSize = 256

// Registry tracks every known session and the one pending request (if any)
// each session is currently blocked on. Session rows live in SQLite;
// PendingRequest is cached in memory only, mirroring the actor pattern used
// for rendezvous waits.
type Registry struct {
	mu      sync.Mutex
	pending map[string]models.PendingRequest // sessionID -> pending request
	notify  *notifications.Service

	refCache *lru.Cache[string, models.Session] // ref string -> resolved session
}

func New(notify *notifications.Service) *Registry {
	cache, _ := lru.New[string, models.Session](refCacheSize)
	return &Registry{
		pending:  make(map[string]models.PendingRequest),
		notify:   notify,
		refCache: cache,
	}
}

// Register creates a session on first contact, or sets status to running
// (and records a new transcript_path, if given) on re-registration; the
// stored project_dir is not changed then. A new session registered without
// a name gets a unique one within its project_dir by appending " #2",
// " #3", ... (see db.NextDisplayName); a supplied name is used as-is.
func (r *Registry) Register(id, projectDir, name, transcriptPath string, nowMs int64) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := db.GetSession(id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.ProjectDir = projectDir
		existing.Status = models.StatusRunning
		if transcriptPath != "" {
			existing.TranscriptPath = transcriptPath
		}
		if err := db.UpdateSessionStatus(id, models.StatusRunning, nowMs); err != nil {
			return nil, err
		}
		if transcriptPath != "" {
			if err := db.SetTranscriptPath(id, transcriptPath); err != nil {
				return nil, err
			}
		}
		log.Info().Str("session_id", id).Str("name", existing.Name).Msg("session re-registered")
		r.emitSessionsUpdate()
		return existing, nil
	}

	displayName := name
	if displayName == "" {
		n, err := db.NextDisplayName(projectDir)
		if err != nil {
			return nil, err
		}
		displayName = n
	}

	s := models.Session{
		ID:             id,
		Name:           displayName,
		ProjectDir:     projectDir,
		Status:         models.StatusRunning,
		ControlState:   models.ControlCLIActive,
		TranscriptPath: transcriptPath,
		StartedAt:      nowMs,
		LastActivity:   nowMs,
	}
	if err := db.CreateSession(s); err != nil {
		return nil, err
	}
	delete(r.pending, id)
	log.Info().Str("session_id", id).Str("name", displayName).Msg("session registered")
	r.emitSessionsUpdate()
	return &s, nil
}

// Get resolves a caller-supplied reference (exact ID, ID prefix, name, or
// index), short-circuiting through a small LRU cache for repeated lookups
// of the same ref (bot commands and hook calls both tend to reuse one).
func (r *Registry) Get(ref string) (*models.Session, error) {
	if s, ok := r.refCache.Get(ref); ok {
		fresh, err := db.GetSession(s.ID)
		if err == nil && fresh != nil {
			r.refCache.Add(ref, *fresh)
			return fresh, nil
		}
		r.refCache.Remove(ref)
	}

	s, err := db.ResolveSessionRef(ref)
	if err != nil || s == nil {
		return s, err
	}
	r.refCache.Add(ref, *s)
	return s, nil
}

// List returns every known session in registration order.
func (r *Registry) List() ([]models.Session, error) {
	return db.ListSessions()
}

// UpdateStatus records the last observed Agent status (running/waiting/stopped).
func (r *Registry) UpdateStatus(sessionID string, status models.SessionStatus, nowMs int64) error {
	if err := db.UpdateSessionStatus(sessionID, status, nowMs); err != nil {
		return err
	}
	r.emitSessionsUpdate()
	return nil
}

// Touch bumps last_activity without changing status.
func (r *Registry) Touch(sessionID string, nowMs int64) error {
	return db.TouchSessionActivity(sessionID, nowMs)
}

// HandoffToRemote transitions cli_active or cli_waiting (or a previously
// released session) into remote_active, letting the web UI or bot drive.
func (r *Registry) HandoffToRemote(sessionID string, nowMs int64) (*models.Session, error) {
	s, err := db.GetSession(sessionID)
	if err != nil || s == nil {
		return nil, err
	}
	if !models.CanTransition(s.ControlState, models.ControlRemoteActive) {
		return nil, fmt.Errorf("cannot hand off session %s from state %s", sessionID, s.ControlState)
	}
	if err := db.UpdateSessionControlState(sessionID, models.ControlRemoteActive, nowMs); err != nil {
		return nil, err
	}
	s.ControlState = models.ControlRemoteActive
	r.emitSessionsUpdate()
	return s, nil
}

// ReleaseToCLI hands control back from remote_active to released, letting
// the CLI resume driving. Any pending queued messages are cancelled.
func (r *Registry) ReleaseToCLI(sessionID string, nowMs int64) (*models.Session, error) {
	s, err := db.GetSession(sessionID)
	if err != nil || s == nil {
		return nil, err
	}
	if !models.CanTransition(s.ControlState, models.ControlReleased) {
		return nil, fmt.Errorf("cannot release session %s from state %s", sessionID, s.ControlState)
	}
	if err := db.UpdateSessionControlState(sessionID, models.ControlReleased, nowMs); err != nil {
		return nil, err
	}
	if err := db.CancelAllQueuedMessages(sessionID); err != nil {
		return nil, err
	}
	s.ControlState = models.ControlReleased
	r.emitSessionsUpdate()
	return s, nil
}

// SetControlState applies any other legal transition (e.g. cli_active -> cli_waiting,
// released -> cli_active on the next hook call).
func (r *Registry) SetControlState(sessionID string, to models.ControlState, nowMs int64) (*models.Session, error) {
	s, err := db.GetSession(sessionID)
	if err != nil || s == nil {
		return nil, err
	}
	if s.ControlState == to {
		return s, nil
	}
	if !models.CanTransition(s.ControlState, to) {
		return nil, fmt.Errorf("illegal control-state transition for session %s: %s -> %s", sessionID, s.ControlState, to)
	}
	if err := db.UpdateSessionControlState(sessionID, to, nowMs); err != nil {
		return nil, err
	}
	s.ControlState = to
	r.emitSessionsUpdate()
	return s, nil
}

// CanExecuteRemoteTask reports whether a headless task may run against this
// session right now: only when remote already holds control.
func (r *Registry) CanExecuteRemoteTask(sessionID string) (bool, error) {
	s, err := db.GetSession(sessionID)
	if err != nil || s == nil {
		return false, err
	}
	return s.ControlState == models.ControlRemoteActive, nil
}

// ShouldQueueMessage reports whether an incoming chat message must be
// buffered (CLI currently holds control) rather than delivered immediately.
func (r *Registry) ShouldQueueMessage(sessionID string) (bool, error) {
	s, err := db.GetSession(sessionID)
	if err != nil || s == nil {
		return false, err
	}
	return s.ControlState == models.ControlCLIActive || s.ControlState == models.ControlCLIWaiting, nil
}

// SetPendingRequest records the single outstanding hook ask for a session
// (nil clears it). This is the in-memory half of the rendezvous handshake;
// the rendezvous package owns the actual blocking wait. A permission-typed
// request is also written to the permission_requests table the first time
// it is set; clearing leaves that record in place.
func (r *Registry) SetPendingRequest(sessionID string, req *models.PendingRequest) {
	if req != nil && req.Type == models.RequestPermission {
		if existing, err := db.GetPermissionRequest(req.ID); err == nil && existing == nil {
			pr := models.PermissionRequest{ID: req.ID, SessionID: sessionID, ToolName: req.ToolName,
				ToolInput: req.ToolInput, Message: req.Message, Decision: models.DecisionPending, CreatedAt: req.CreatedAt}
			if err := db.CreatePermissionRequest(pr); err != nil {
				log.Warn().Err(err).Str("request_id", req.ID).Msg("failed to mirror permission request")
			}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if req == nil {
		delete(r.pending, sessionID)
		return
	}
	r.pending[sessionID] = *req
}

// PendingRequest returns the session's current outstanding ask, if any.
func (r *Registry) PendingRequest(sessionID string) (models.PendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[sessionID]
	return req, ok
}

// Rename changes a session's display name.
func (r *Registry) Rename(sessionID, name string) error {
	if err := db.RenameSession(sessionID, name); err != nil {
		return err
	}
	r.refCache.Purge()
	r.emitSessionsUpdate()
	return nil
}

// Remove deletes a session and clears its in-memory pending request.
func (r *Registry) Remove(sessionID string) error {
	r.mu.Lock()
	delete(r.pending, sessionID)
	r.mu.Unlock()
	if err := db.DeleteSession(sessionID); err != nil {
		return err
	}
	r.refCache.Purge()
	r.emitSessionsUpdate()
	return nil
}

func (r *Registry) emitSessionsUpdate() {
	if r.notify == nil {
		return
	}
	r.notify.NotifySessionsUpdate("", nil)
}
