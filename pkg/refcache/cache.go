// Package refcache implements the two-level reference-data cache (spec
// §4.3): (category, code) -> description, refreshed from Postgres every 30
// minutes and on-demand after the scheduler's reference-scrape job
// completes.
package refcache

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultRefreshInterval matches spec §4.3.
const DefaultRefreshInterval = 30 * time.Minute

// Row is one reference-data record as read from storage.
type Row struct {
	Category    string
	Code        string
	Description string
}

// Loader fetches the full reference-data table. Implemented by pkg/db.
type Loader func(ctx context.Context) ([]Row, error)

// Cache is a read/write-locked two-level map. Readers never allocate on
// lookup.
type Cache struct {
	mu     sync.RWMutex
	byCat  map[string]map[string]string
	load   Loader
	pool   *pgxpool.Pool
}

// New constructs an empty cache; call Refresh (or Start) to populate it.
func New(pool *pgxpool.Pool, load Loader) *Cache {
	return &Cache{
		byCat: make(map[string]map[string]string),
		load:  load,
		pool:  pool,
	}
}

// Lookup returns the description for (category, code).
func (c *Cache) Lookup(category, code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byCat[category]
	if !ok {
		return "", false
	}
	v, ok := m[code]
	return v, ok
}

// Refresh reloads the entire cache from storage and swaps it in atomically
// (readers never observe a half-populated map).
func (c *Cache) Refresh(ctx context.Context) error {
	rows, err := c.load(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]map[string]string)
	for _, r := range rows {
		m, ok := next[r.Category]
		if !ok {
			m = make(map[string]string)
			next[r.Category] = m
		}
		m[r.Code] = r.Description
	}
	c.mu.Lock()
	c.byCat = next
	c.mu.Unlock()
	return nil
}

// Start populates the cache once, then refreshes on the given interval
// until ctx is cancelled. Errors are logged by the caller-supplied onError
// and do not stop the loop — a failed refresh just leaves the previous
// snapshot in place.
func (c *Cache) Start(ctx context.Context, interval time.Duration, onError func(error)) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if err := c.Refresh(ctx); err != nil && onError != nil {
		onError(err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
