// Package session holds the identity attached to every outgoing gateway call.
//
// DESIGN: The identity is a shared reference cell, not a snapshot. The auth
// subsystem updates it on login/logout; the gateway reads it at call time, so
// a refreshed token takes effect without rebuilding the client. Writes are
// last-write-wins; calls already in flight keep the headers they were built
// with.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Claims is the point-in-time view a single call is built from.
type Claims struct {
	Token    string
	DeviceID string
	Platform string
}

// Identity is the mutable session cell.
type Identity struct {
	mu     sync.RWMutex
	claims Claims
}

// New creates an Identity. An empty deviceID is replaced with a generated one
// so the backend can always correlate a device.
func New(token, deviceID, platform string) *Identity {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	return &Identity{claims: Claims{Token: token, DeviceID: deviceID, Platform: platform}}
}

// Snapshot returns the current claims.
func (i *Identity) Snapshot() Claims {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.claims
}

// SetToken replaces the bearer token (login, refresh).
func (i *Identity) SetToken(token string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.claims.Token = token
}

// Clear drops the token (logout). Device id and platform survive.
func (i *Identity) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.claims.Token = ""
}
