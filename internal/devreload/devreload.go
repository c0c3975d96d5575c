// Package devreload pushes reload events to connected browsers while
// developing. A filesystem watcher feeds a broadcast hub; each browser holds
// a websocket open on /__reload and refreshes when an event arrives.
package devreload

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// debounceWindow collapses editor save bursts into one reload.
const debounceWindow = 100 * time.Millisecond

type subscriber struct {
	send chan string
}

// Hub fans reload events out to subscribers. Slow subscribers drop events
// rather than block the watcher.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a listener. The returned cancel must be called when the
// listener goes away.
func (h *Hub) Subscribe() (<-chan string, func()) {
	s := &subscriber{send: make(chan string, 4)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[s]; ok {
			delete(h.subs, s)
			close(s.send)
		}
	}
	return s.send, cancel
}

// Broadcast delivers an event to every subscriber, dropping it for any whose
// buffer is full.
func (h *Hub) Broadcast(event string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.send <- event:
		default:
		}
	}
}

// Len reports the current subscriber count.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Watch broadcasts "reload" whenever one of the given files changes. It
// watches the parent directories because editors replace files on save,
// which re-creates the inode a direct watch is bound to. Blocks until ctx is
// done.
func Watch(ctx context.Context, hub *Hub, files ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if !watched[abs] || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			log.Debug().Str("file", abs).Str("op", event.Op.String()).Msg("dev reload trigger")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() { hub.Broadcast("reload") })
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("dev reload watcher error")
		}
	}
}

// Handler upgrades /__reload requests and streams hub events as text frames.
func Handler(hub *Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("dev reload accept failed")
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		events, cancel := hub.Subscribe()
		defer cancel()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := conn.Write(ctx, websocket.MessageText, []byte(event)); err != nil {
					return
				}
			}
		}
	})
}
