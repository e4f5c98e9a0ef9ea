// Package realtime is the UI-facing websocket adapter: it mirrors every
// notifications.Event onto connected clients and accepts a small set of
// client-originated actions (subscribe, respond, approve, deny) that feed
// back into the rendezvous queue and permission engine.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/agentbridge/bridge/log"
	"github.com/agentbridge/bridge/notifications"
	"github.com/agentbridge/bridge/rendezvous"
)

// wireEvent maps an internal notifications.EventType to the exact wire
// identifier the UI expects on the socket.
var wireEvent = map[notifications.EventType]string{
	notifications.EventConnected:          "connected",
	notifications.EventSessionsUpdate:     "sessions_update",
	notifications.EventChatUpdated:        "chat_updated",
	notifications.EventTaskStarted:        "task_started",
	notifications.EventTaskProgress:       "task_activity",
	notifications.EventTaskCompleted:      "task_completed",
	notifications.EventTaskFailed:         "task_cancelled",
	notifications.EventCLIThinking:        "cli_thinking",
	notifications.EventCLIThinkingUpdate:  "cli_thinking_done",
	notifications.EventQueueUpdated:       "queue_updated",
	notifications.EventPermissionAsked:    "notification",
	notifications.EventPermissionResolved: "permission_resolved",
	notifications.EventNotification:       "notification",
}

// ClientAction is an inbound message from a connected UI client.
type ClientAction struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId,omitempty"`
	Response  string `json:"response,omitempty"`
	Scope     string `json:"scope,omitempty"`
}

// ServerMessage is an outbound frame.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Hub accepts websocket upgrades, subscribes each connection to the shared
// notification fan-out, and filters frames by the session(s) a client has
// subscribed to.
type Hub struct {
	notify *notifications.Service
	queue  *rendezvous.Queue

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn    *websocket.Conn
	mu      sync.Mutex // serializes writes; coder/websocket conns are not write-concurrent-safe
	subs    map[string]struct{}
	allSubs bool
}

func NewHub(notify *notifications.Service, queue *rendezvous.Queue) *Hub {
	return &Hub{notify: notify, queue: queue, clients: make(map[*client]struct{})}
}

// ServeHTTP upgrades the connection and runs the client's read/write loops
// until it disconnects. Auth (bridge token via header or ?token= query) is
// applied by middleware before this handler is reached.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	c := &client{conn: conn, subs: make(map[string]struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	ch, unsubscribe := h.notify.Subscribe()
	defer unsubscribe()

	ctx := r.Context()

	go h.writeLoop(ctx, c, ch)
	h.readLoop(ctx, c)
}

func (h *Hub) writeLoop(ctx context.Context, c *client, ch <-chan notifications.Event) {
	c.send(ctx, ServerMessage{Type: "connected", Timestamp: time.Now().UnixMilli()})
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !c.subscribedTo(ev.SessionID) {
				continue
			}
			wire, known := wireEvent[ev.Type]
			if !known {
				wire = string(ev.Type)
			}
			c.send(ctx, ServerMessage{Type: wire, SessionID: ev.SessionID, Data: ev.Data, Timestamp: ev.Timestamp})
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		var action ClientAction
		if err := wsjson.Read(ctx, c.conn, &action); err != nil {
			return
		}
		h.handleAction(ctx, c, action)
	}
}

func (h *Hub) handleAction(ctx context.Context, c *client, action ClientAction) {
	switch action.Type {
	case "subscribe":
		c.mu.Lock()
		if action.SessionID == "" || action.SessionID == "*" {
			c.allSubs = true
		} else {
			c.subs[action.SessionID] = struct{}{}
		}
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		if action.SessionID == "" {
			c.subs = make(map[string]struct{})
			c.allSubs = false
		} else {
			delete(c.subs, action.SessionID)
		}
		c.mu.Unlock()
	case "respond":
		h.queue.Deliver(action.SessionID, action.RequestID, action.Response)
	case "approve":
		resp := approveScopeResponse(action.Scope)
		h.queue.Deliver(action.SessionID, action.RequestID, resp)
	case "deny":
		resp := denyScopeResponse(action.Scope)
		h.queue.Deliver(action.SessionID, action.RequestID, resp)
	default:
		log.Debug().Str("type", action.Type).Msg("unknown realtime client action")
	}
}

func approveScopeResponse(scope string) string {
	switch scope {
	case "session":
		return "approve_session"
	case "always", "global":
		return "approve_always"
	default:
		return "approve"
	}
}

func denyScopeResponse(scope string) string {
	switch scope {
	case "session":
		return "deny_session"
	case "always", "global":
		return "deny_always"
	default:
		return "deny"
	}
}

func (c *client) subscribedTo(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allSubs || sessionID == "" {
		return true
	}
	_, ok := c.subs[sessionID]
	return ok
}

func (c *client) send(ctx context.Context, msg ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, c.conn, msg); err != nil {
		log.Debug().Err(err).Msg("realtime write failed")
	}
}

// BroadcastCount reports how many clients are currently connected, used by
// health/metrics endpoints.
func (h *Hub) BroadcastCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
