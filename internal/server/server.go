// Package server is the HTTP front of the render service.
//
// DESIGN: Request flow:
//   - handleRender():  catch-all GET, runs a render and delivers the document
//   - handleStatic():  dotted paths served from the client dist dir
//   - handleHealth():  JSON health with a cache round trip
//   - /__reload:       dev-only websocket fed by the file watcher
//
// A failed render still delivers a document with a degraded status; only a
// broken template or a panic past the orchestrator becomes a 500.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storelight/storelight/internal/cache"
	"github.com/storelight/storelight/internal/config"
	"github.com/storelight/storelight/internal/devreload"
	"github.com/storelight/storelight/internal/hydrate"
	"github.com/storelight/storelight/internal/render"
)

// Server serves rendered pages, static assets, and health.
type Server struct {
	cfg      *config.Config
	renderer *render.Renderer
	store    cache.Store
	hub      *devreload.Hub

	// Cached document inputs, loaded once unless dev reload is on.
	template *hydrate.Template
	manifest render.Manifest

	static http.Handler
}

// New builds a Server. Outside dev mode the template and manifest are loaded
// once here; in dev mode they are re-read per request so edits show up
// without a restart.
func New(cfg *config.Config, renderer *render.Renderer, store cache.Store) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		renderer: renderer,
		store:    store,
		static:   http.FileServer(http.Dir(cfg.Render.ClientDist)),
	}
	if cfg.Dev.Reload {
		s.hub = devreload.NewHub()
		return s, nil
	}

	tmpl, manifest, err := loadDocumentInputs(cfg)
	if err != nil {
		return nil, err
	}
	s.template = tmpl
	s.manifest = manifest
	return s, nil
}

func loadDocumentInputs(cfg *config.Config) (*hydrate.Template, render.Manifest, error) {
	raw, err := os.ReadFile(cfg.Render.Template)
	if err != nil {
		return nil, nil, fmt.Errorf("reading template: %w", err)
	}
	tmpl, err := hydrate.ParseTemplate(string(raw))
	if err != nil {
		return nil, nil, err
	}
	manifest, err := render.LoadManifest(cfg.Render.Manifest)
	if err != nil {
		return nil, nil, err
	}
	return tmpl, manifest, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.hub != nil {
		mux.Handle("/__reload", devreload.Handler(s.hub))
	}
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// handleRoot splits dotted paths (assets) from page paths (renders).
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.Contains(path.Base(r.URL.Path), ".") {
		s.handleStatic(w, r)
		return
	}
	s.handleRender(w, r)
}

// handleStatic serves fingerprinted build assets with a long cache lifetime.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control",
		fmt.Sprintf("public, max-age=%d, immutable", int(config.StaticCacheMaxAge.Seconds())))
	s.static.ServeHTTP(w, r)
}

// handleRender runs a render for the request URL and writes the assembled
// document with the status the orchestrator decided on.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	tmpl, manifest := s.template, s.manifest
	if s.hub != nil {
		var err error
		tmpl, manifest, err = loadDocumentInputs(s.cfg)
		if err != nil {
			log.Error().Err(err).Msg("document inputs unavailable")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	rc := render.Context{
		Host:      requestHost(r),
		UserAgent: r.UserAgent(),
	}
	res := s.renderer.Render(r.Context(), r.URL.RequestURI(), manifest, rc)
	if res.Crashed {
		// No page survived; deliver the raw detail rather than an empty shell.
		http.Error(w, res.Err.Error(), res.StatusCode())
		return
	}
	doc := tmpl.Build(res)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(res.StatusCode())
	_, _ = w.Write([]byte(doc))
}

func requestHost(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// handleHealth reports service health. The cache round trip catches a dead
// sqlite file before a render does.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}

	probe := json.RawMessage(`"ok"`)
	s.store.Set("_health_", probe)
	if got, ok := s.store.Get("_health_"); !ok || string(got) != string(probe) {
		health["status"] = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if health["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(health)
}

// Run serves until ctx is cancelled, then drains in-flight renders. In dev
// mode it also starts the file watcher feeding /__reload.
func (s *Server) Run(ctx context.Context) error {
	if s.hub != nil {
		go func() {
			err := devreload.Watch(ctx, s.hub, s.cfg.Render.Template, s.cfg.Render.Manifest)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("dev reload watcher stopped")
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout.Std(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Bool("dev", s.hub != nil).Msg("render server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down, draining in-flight renders")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
