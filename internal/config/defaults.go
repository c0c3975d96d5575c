// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: Default values that appear in more than one place live here so the
// serve command, the tests, and the docs agree on them.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultListenAddr is the address the render server binds to.
const DefaultListenAddr = ":3000"

// DefaultReadTimeout bounds how long a client may take to send a request.
const DefaultReadTimeout = 15 * time.Second

// DefaultWriteTimeout bounds the full render-and-deliver cycle.
const DefaultWriteTimeout = 30 * time.Second

// DefaultShutdownTimeout is the grace period for in-flight renders on exit.
const DefaultShutdownTimeout = 10 * time.Second

// =============================================================================
// BACKEND API
// =============================================================================

// DefaultBackendTimeout is the transport timeout for gateway calls.
// No per-call override is exposed; this is the only timeout in play.
const DefaultBackendTimeout = 10 * time.Second

// MaxResponseSize caps backend response bodies read into memory (10MB).
const MaxResponseSize = 10 * 1024 * 1024

// =============================================================================
// CACHE
// =============================================================================

// DefaultCacheMaxEntries bounds the read cache before LRU eviction kicks in.
const DefaultCacheMaxEntries = 1000

// DefaultCacheTTL is how long a cached read stays servable.
const DefaultCacheTTL = 10 * time.Minute

// =============================================================================
// RENDER
// =============================================================================

// DefaultTemplatePath is the HTML shell with the injection markers.
const DefaultTemplatePath = "web/index.html"

// DefaultManifestPath maps route modules to their preloadable assets.
const DefaultManifestPath = "web/ssr-manifest.json"

// DefaultClientDist is the directory static assets are served from.
const DefaultClientDist = "web/dist"

// StaticCacheMaxAge is the Cache-Control lifetime for fingerprinted assets.
const StaticCacheMaxAge = 365 * 24 * time.Hour
