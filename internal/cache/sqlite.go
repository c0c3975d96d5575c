package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	key        TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	expires_at INTEGER NOT NULL,
	touched_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_touched ON entries(touched_at);
`

// SQLite is a persistent Store with the same TTL and LRU semantics as Memory.
// Recency is tracked in touched_at; the bound is enforced on insert.
//
// Cache I/O errors are logged and degrade to misses; a broken cache must
// never fail a render.
type SQLite struct {
	db         *sql.DB
	maxEntries int
	ttl        time.Duration

	now func() time.Time
}

// OpenSQLite opens (creating if needed) the cache database at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(path string, maxEntries int, ttl time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	// The store is accessed from request goroutines; a single connection
	// sidesteps SQLITE_BUSY on concurrent writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &SQLite{db: db, maxEntries: maxEntries, ttl: ttl, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// Get implements Store.
func (s *SQLite) Get(key string) (json.RawMessage, bool) {
	var body []byte
	var expiresAt int64
	err := s.db.QueryRow(`SELECT body, expires_at FROM entries WHERE key = ?`, key).
		Scan(&body, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("cache read failed")
		return nil, false
	}

	nowUnix := s.now().UnixNano()
	if nowUnix > expiresAt {
		if _, err := s.db.Exec(`DELETE FROM entries WHERE key = ?`, key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("cache purge failed")
		}
		return nil, false
	}

	if _, err := s.db.Exec(`UPDATE entries SET touched_at = ? WHERE key = ?`, nowUnix, key); err != nil {
		log.Error().Err(err).Str("key", key).Msg("cache touch failed")
	}
	return json.RawMessage(body), true
}

// Set implements Store.
func (s *SQLite) Set(key string, value json.RawMessage) {
	nowUnix := s.now().UnixNano()
	_, err := s.db.Exec(
		`INSERT INTO entries (key, body, expires_at, touched_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body,
			expires_at = excluded.expires_at, touched_at = excluded.touched_at`,
		key, []byte(value), s.now().Add(s.ttl).UnixNano(), nowUnix,
	)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	s.evictOverflow()
}

// Len reports the number of stored entries.
func (s *SQLite) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		log.Error().Err(err).Msg("cache count failed")
		return 0
	}
	return n
}

func (s *SQLite) evictOverflow() {
	n := s.Len()
	if n <= s.maxEntries {
		return
	}
	_, err := s.db.Exec(
		`DELETE FROM entries WHERE key IN (
			SELECT key FROM entries ORDER BY touched_at ASC LIMIT ?
		 )`, n-s.maxEntries,
	)
	if err != nil {
		log.Error().Err(err).Msg("cache eviction failed")
	}
}
