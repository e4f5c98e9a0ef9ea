package notifications

import (
	"sync"
	"time"
)

// EventType represents the type of fan-out event pushed to the web UI over
// the realtime socket.
type EventType string

const (
	EventConnected         EventType = "connected"
	EventSessionsUpdate    EventType = "sessions_update"
	EventChatUpdated       EventType = "chat_updated"
	EventTaskStarted       EventType = "task_started"
	EventTaskProgress      EventType = "task_progress"
	EventTaskCompleted     EventType = "task_completed"
	EventTaskFailed        EventType = "task_failed"
	EventCLIThinking       EventType = "cli_thinking"
	EventCLIThinkingUpdate EventType = "cli_thinking_update"
	EventQueueUpdated      EventType = "queue_updated"
	EventPermissionAsked   EventType = "permission_requested"
	EventPermissionResolved EventType = "permission_resolved"
	EventNotification      EventType = "notification"
)

// Event represents a single fan-out event.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	SessionID string    `json:"sessionId,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Service manages subscriptions and event broadcasting. It is the single
// source of truth for fan-out: the realtime websocket hub (realtime.Hub)
// subscribes to it once per connected client.
type Service struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	done        chan struct{}
}

// NewService creates a new notification service
func NewService() *Service {
	return &Service{
		subscribers: make(map[chan Event]struct{}),
		done:        make(chan struct{}),
	}
}

// Subscribe creates a new subscription channel.
// Returns the event channel and an unsubscribe function.
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, exists := s.subscribers[ch]; exists {
			delete(s.subscribers, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Notify broadcasts an event to all subscribers
func (s *Service) Notify(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber, drop rather than block the whole fan-out.
		}
	}
}

func (s *Service) emit(sessionID string, t EventType, data any) {
	s.Notify(Event{Type: t, SessionID: sessionID, Data: data})
}

// NotifySessionsUpdate signals that the session list/status changed.
func (s *Service) NotifySessionsUpdate(sessionID string, data any) {
	s.emit(sessionID, EventSessionsUpdate, data)
}

// NotifyChatUpdated signals a new chat message for a session.
func (s *Service) NotifyChatUpdated(sessionID string, data any) {
	s.emit(sessionID, EventChatUpdated, data)
}

// NotifyTaskStarted signals a remote task began executing.
func (s *Service) NotifyTaskStarted(sessionID string, data any) {
	s.emit(sessionID, EventTaskStarted, data)
}

// NotifyTaskProgress signals incremental task activity (tool use, output).
func (s *Service) NotifyTaskProgress(sessionID string, data any) {
	s.emit(sessionID, EventTaskProgress, data)
}

// NotifyTaskCompleted signals a task finished successfully.
func (s *Service) NotifyTaskCompleted(sessionID string, data any) {
	s.emit(sessionID, EventTaskCompleted, data)
}

// NotifyTaskFailed signals a task errored, was cancelled, or timed out.
func (s *Service) NotifyTaskFailed(sessionID string, data any) {
	s.emit(sessionID, EventTaskFailed, data)
}

// NotifyCLIThinking signals the in-process Agent started a turn.
func (s *Service) NotifyCLIThinking(sessionID string, data any) {
	s.emit(sessionID, EventCLIThinking, data)
}

// NotifyCLIThinkingUpdate signals an incremental update to the current turn.
func (s *Service) NotifyCLIThinkingUpdate(sessionID string, data any) {
	s.emit(sessionID, EventCLIThinkingUpdate, data)
}

// NotifyQueueUpdated signals the session's queued-message backlog changed.
func (s *Service) NotifyQueueUpdated(sessionID string, data any) {
	s.emit(sessionID, EventQueueUpdated, data)
}

// NotifyPermissionRequested signals a new permission prompt is pending.
func (s *Service) NotifyPermissionRequested(sessionID string, data any) {
	s.emit(sessionID, EventPermissionAsked, data)
}

// NotifyPermissionResolved signals a permission prompt was answered
// (by a rule, the operator, or a timeout).
func (s *Service) NotifyPermissionResolved(sessionID string, data any) {
	s.emit(sessionID, EventPermissionResolved, data)
}

// NotifyGeneric sends a free-form notification banner event.
func (s *Service) NotifyGeneric(sessionID string, data any) {
	s.emit(sessionID, EventNotification, data)
}

// Shutdown closes the notification service
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		// already closed
	default:
		close(s.done)
	}

	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Event]struct{})
}

// SubscriberCount returns the number of active subscribers
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
