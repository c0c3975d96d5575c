// Package render drives server-side page rendering.
//
// DESIGN: The orchestrator runs the application setup for a URL, captures the
// markup and state it produces, and maps any captured failure to a response
// status. A failed loader must still yield a deliverable page: partial
// markup with an error status, never a crash.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// State is the per-render lifecycle.
type State int

const (
	StateIdle State = iota
	StateRendering
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRendering:
		return "rendering"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Context carries the originating request's identity into the render.
type Context struct {
	Host      string // scheme://host of the originating request
	UserAgent string
}

// Page is what the application produces for one URL.
type Page struct {
	Markup    string
	HeadTags  string
	HTMLAttrs string
	BodyAttrs string
	// State is a JSON object of loader results, keyed by loader.
	State json.RawMessage
	// Modules lists the route modules used, for preload link resolution.
	Modules []string
}

// App is the application boundary the orchestrator drives. Render must
// return a usable Page even when it also returns an error.
type App interface {
	Render(ctx context.Context, url string, rc Context) (Page, error)
}

// Result is produced exactly once per server render and consumed exactly
// once to build the final document.
type Result struct {
	Err          error
	AppMarkup    string
	PreloadLinks string
	SyncState    json.RawMessage
	HeadTags     string
	HTMLAttrs    string
	BodyAttrs    string
	State        State
	// Crashed marks a render that panicked rather than failing a loader.
	// There is no page to deliver; the server sends the raw detail instead.
	Crashed bool
}

// StatusCode maps the captured error to the delivered HTTP status.
// A "404"-prefixed error keeps not-found semantics; any other captured error
// becomes 202 so intermediate proxies do not cache a degraded page as a
// success. A crash is a plain 500.
func (r *Result) StatusCode() int {
	switch {
	case r.Crashed:
		return 500
	case r.Err == nil:
		return 200
	case strings.HasPrefix(r.Err.Error(), "404"):
		return 404
	default:
		return 202
	}
}

// Renderer is the render orchestrator.
type Renderer struct {
	app App

	mu    sync.Mutex
	state State
}

// New creates a Renderer over the given application.
func New(app App) *Renderer {
	return &Renderer{app: app, state: StateIdle}
}

// State reports where the most recent render stands: Idle before the first
// call, Rendering while the application runs, then Succeeded or Failed.
// Concurrent renders share the cell last-write-wins, like the session
// identity.
func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Renderer) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Render executes one render request. Loader failures are captured into the
// result; a panicking application degrades to a failed result with the raw
// detail rather than taking the process down.
func (r *Renderer) Render(ctx context.Context, url string, manifest Manifest, rc Context) (result *Result) {
	r.setState(StateRendering)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("url", url).Interface("panic", rec).Msg("render panicked")
			result = &Result{
				Err:       fmt.Errorf("render panicked: %v", rec),
				SyncState: json.RawMessage("{}"),
				State:     StateFailed,
				Crashed:   true,
			}
		}
		r.setState(result.State)
	}()

	page, err := r.app.Render(ctx, url, rc)

	syncState := page.State
	if len(syncState) == 0 {
		syncState = json.RawMessage("{}")
	}

	result = &Result{
		Err:          err,
		AppMarkup:    page.Markup,
		PreloadLinks: manifest.PreloadLinks(page.Modules),
		SyncState:    syncState,
		HeadTags:     page.HeadTags,
		HTMLAttrs:    page.HTMLAttrs,
		BodyAttrs:    page.BodyAttrs,
		State:        StateSucceeded,
	}
	if err != nil {
		result.State = StateFailed
		log.Error().Str("url", url).Str("user_agent", rc.UserAgent).Err(err).Msg("render failed")
	}
	return result
}
