package search

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"slrforge/internal/fault"
	"slrforge/internal/logging"
)

// Cache memoizes normalized provider responses in SQLite so re-running the
// same query plan inside the TTL window does not re-hit the services.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS search_cache (
	provider    TEXT NOT NULL,
	query       TEXT NOT NULL,
	max_results INTEGER NOT NULL,
	documents   TEXT NOT NULL,
	cached_at   INTEGER NOT NULL,
	PRIMARY KEY (provider, query, max_results)
);`

// OpenCache opens (creating if needed) the response cache at path.
func OpenCache(path string, ttl time.Duration) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fault.IO(err, "creating cache directory %s", dir)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fault.IO(err, "opening cache at %s", path)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.CacheDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.CacheDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fault.IO(err, "initializing cache schema")
	}

	logging.Cache("Search cache ready at %s (ttl %s)", path, ttl)
	return &Cache{db: db, ttl: ttl}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached documents for (provider, query, maxResults) when
// present and still fresh.
func (c *Cache) Get(provider, query string, maxResults int) ([]Document, bool) {
	var blob string
	var cachedAt int64
	err := c.db.QueryRow(
		`SELECT documents, cached_at FROM search_cache
		 WHERE provider = ? AND query = ? AND max_results = ?`,
		provider, query, maxResults,
	).Scan(&blob, &cachedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logging.CacheWarn("Cache lookup failed for %s: %v", provider, err)
		}
		return nil, false
	}
	if time.Since(time.Unix(cachedAt, 0)) > c.ttl {
		return nil, false
	}

	var docs []Document
	if err := json.Unmarshal([]byte(blob), &docs); err != nil {
		logging.CacheWarn("Dropping undecodable cache entry for %s: %v", provider, err)
		return nil, false
	}
	logging.CacheDebug("Cache hit for %s (%d documents)", provider, len(docs))
	return docs, true
}

// Put stores the documents under the key, replacing any previous entry.
// Cache failures are logged and swallowed; the search result still stands.
func (c *Cache) Put(provider, query string, maxResults int, docs []Document) {
	blob, err := json.Marshal(docs)
	if err != nil {
		logging.CacheWarn("Skipping cache write for %s: %v", provider, err)
		return
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO search_cache (provider, query, max_results, documents, cached_at)
		 VALUES (?, ?, ?, ?, ?)`,
		provider, query, maxResults, string(blob), time.Now().Unix(),
	)
	if err != nil {
		logging.CacheWarn("Cache write failed for %s: %v", provider, err)
	}
}
