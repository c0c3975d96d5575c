package hydrate

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
)

// StateStore seeds client-side application state from the document's
// embedded payload. It is read exactly once at startup; each entry is
// consumed exactly once, after which the gateway takes over. This is what
// guarantees no duplicate fetch on first paint.
type StateStore struct {
	mu      sync.Mutex
	seeded  bool
	entries map[string]json.RawMessage
}

// NewStateStore creates an empty, unseeded store.
func NewStateStore() *StateStore {
	return &StateStore{entries: make(map[string]json.RawMessage)}
}

// Seed loads the embedded payload. Seeding twice is a programming error;
// the payload exists exactly once per delivered document.
func (s *StateStore) Seed(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seeded {
		return fmt.Errorf("state store already seeded")
	}
	if !gjson.ValidBytes(payload) {
		return fmt.Errorf("invalid sync state payload")
	}
	gjson.ParseBytes(payload).ForEach(func(key, value gjson.Result) bool {
		s.entries[key.String()] = json.RawMessage(value.Raw)
		return true
	})
	s.seeded = true
	return nil
}

// Take returns and consumes the seeded entry for key. A second Take for the
// same key misses, forcing subsequent navigations through the gateway.
func (s *StateStore) Take(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	return value, ok
}

// Seeded reports whether a payload has been loaded.
func (s *StateStore) Seeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded
}
