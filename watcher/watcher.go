// Package watcher tails a session's Agent transcript file for writes the
// Agent makes on its own (outside any hook round-trip) so the UI still sees
// chat_updated events for purely autonomous CLI activity.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentbridge/bridge/log"
	"github.com/agentbridge/bridge/notifications"
)

// Watcher fans out a debounced "transcript changed" signal per session by
// watching each session's transcript_path with fsnotify.
type Watcher struct {
	notify   *notifications.Service
	debounce time.Duration

	mu     sync.Mutex
	active map[string]context.CancelFunc // sessionID -> stop func
}

func New(notify *notifications.Service) *Watcher {
	return &Watcher{
		notify:   notify,
		debounce: 150 * time.Millisecond,
		active:   make(map[string]context.CancelFunc),
	}
}

// Watch starts tailing path for sessionID, replacing any existing watch for
// that session. A no-op if path is empty.
func (w *Watcher) Watch(sessionID, path string) {
	if path == "" {
		return
	}

	w.Unwatch(sessionID)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to create transcript watcher")
		return
	}
	if err := fw.Add(path); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("transcript file not watchable yet")
		fw.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.active[sessionID] = cancel
	w.mu.Unlock()

	go w.loop(ctx, sessionID, fw)
}

// Unwatch stops tailing a session's transcript, if any.
func (w *Watcher) Unwatch(sessionID string) {
	w.mu.Lock()
	cancel, ok := w.active[sessionID]
	if ok {
		delete(w.active, sessionID)
	}
	w.mu.Unlock()
	if ok {
		cancel()
	}
}

// Close stops every active watch.
func (w *Watcher) Close() {
	w.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(w.active))
	for _, c := range w.active {
		cancels = append(cancels, c)
	}
	w.active = make(map[string]context.CancelFunc)
	w.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (w *Watcher) loop(ctx context.Context, sessionID string, fw *fsnotify.Watcher) {
	defer fw.Close()

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	pending := false

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = true
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			if pending && w.notify != nil {
				w.notify.NotifyChatUpdated(sessionID, nil)
			}
			pending = false

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Debug().Err(err).Str("session_id", sessionID).Msg("transcript watcher error")

		case <-ctx.Done():
			return
		}
	}
}
