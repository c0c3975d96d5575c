// Package cache provides the bounded, time-expiring store backing the
// gateway's CACHE pseudo-method.
//
// DESIGN: Two backends share one contract:
//   - Memory: in-process map + LRU list, the default
//   - SQLite: persistent, survives restarts (see sqlite.go)
//
// There is no invalidation API. Entries age out after the TTL or are evicted
// least-recently-used when the store is full.
package cache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"
)

// Store is the contract the gateway depends on. A Get miss and an expired
// entry are indistinguishable to callers.
type Store interface {
	Get(key string) (json.RawMessage, bool)
	Set(key string, value json.RawMessage)
}

type memoryEntry struct {
	key       string
	value     json.RawMessage
	expiresAt time.Time
}

// Memory is the in-process Store.
type Memory struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	entries    map[string]*list.Element
	order      *list.List // front = most recently used

	now func() time.Time
}

// NewMemory creates a Memory store bounded at maxEntries with the given TTL.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	return &Memory{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the cached value for key if present and unexpired. An expired
// entry is purged and reported as a miss. A hit refreshes recency, not expiry.
func (m *Memory) Get(key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*memoryEntry)
	if m.now().After(entry.expiresAt) {
		m.order.Remove(elem)
		delete(m.entries, key)
		return nil, false
	}
	m.order.MoveToFront(elem)
	return entry.value, true
}

// Set inserts or refreshes key with a fresh expiry. When the store is full
// the least-recently-used entry is evicted first.
func (m *Memory) Set(key string, value json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = m.now().Add(m.ttl)
		m.order.MoveToFront(elem)
		return
	}

	if m.order.Len() >= m.maxEntries {
		oldest := m.order.Back()
		if oldest != nil {
			m.order.Remove(oldest)
			delete(m.entries, oldest.Value.(*memoryEntry).key)
		}
	}

	entry := &memoryEntry{key: key, value: value, expiresAt: m.now().Add(m.ttl)}
	m.entries[key] = m.order.PushFront(entry)
}

// Len reports the number of live entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
