// Package cache implements the request-collapsing TTL cache that shields the
// rate-limited upstream ETA APIs. One cache fronts one provider adapter: a
// fresh entry is served immediately, concurrent misses for the same key are
// collapsed into a single upstream fetch, and every waiter receives that
// fetch's result.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/markmybytes/HKETA-Server/internal/clock"
	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// fetchBudget bounds one detached upstream fetch including retries.
const fetchBudget = 45 * time.Second

// FetchFunc loads fresh records for a query, typically an adapter fetch
// wrapped with normalization.
type FetchFunc func(ctx context.Context, q eta.Query) ([]eta.Record, error)

// Entry is one published fetch result.
type Entry struct {
	Records   []eta.Record
	FetchedAt time.Time
}

// Cache is safe for concurrent use. Entries are evicted lazily on read;
// expired entries linger until overwritten, which is acceptable because the
// key space is the fixed route/stop catalogue.
type Cache struct {
	fetch FetchFunc
	ttl   time.Duration
	clk   clock.Clock

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates a cache in front of fetch with the given TTL.
func New(fetch FetchFunc, ttl time.Duration, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.System()
	}
	return &Cache{
		fetch:   fetch,
		ttl:     ttl,
		clk:     clk,
		entries: make(map[string]Entry),
	}
}

// Get returns the records for q, fetching upstream at most once per TTL
// window regardless of concurrent demand. A fetch failure is surfaced to
// every waiter; the cache never falls back to stale data on its own, that
// policy belongs to the caller via Stale.
//
// Cancellation of one waiter abandons only that waiter. The shared fetch
// runs on a detached context to completion and publishes its entry for
// future readers.
func (c *Cache) Get(ctx context.Context, q eta.Query) ([]eta.Record, error) {
	key := q.Key()
	if entry, ok := c.fresh(key); ok {
		return entry.Records, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Re-check under the flight: a concurrent flight may have published
		// between the freshness check and joining the group.
		if entry, ok := c.fresh(key); ok {
			return entry, nil
		}
		return c.refresh(q)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Entry).Records, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refresh performs the single upstream fetch for a key and publishes the
// resulting entry. Joined waiters receive the return value through the
// in-flight group.
func (c *Cache) refresh(q eta.Query) (Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchBudget)
	defer cancel()

	records, err := c.fetch(ctx, q)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{Records: records, FetchedAt: c.clk.Now()}
	c.mu.Lock()
	c.entries[q.Key()] = entry
	c.mu.Unlock()
	return entry, nil
}

// fresh returns the entry for key if it has not outlived the TTL.
func (c *Cache) fresh(key string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if c.clk.Now().Sub(entry.FetchedAt) > c.ttl {
		return Entry{}, false
	}
	return entry, true
}

// Stale returns the last published entry for q even when expired. Callers
// use it to implement serve-stale-on-error policies.
func (c *Cache) Stale(q eta.Query) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[q.Key()]
	return entry, ok
}

// Invalidate drops the entry for q.
func (c *Cache) Invalidate(q eta.Query) {
	c.mu.Lock()
	delete(c.entries, q.Key())
	c.mu.Unlock()
}

// Flush drops every entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

// FreshRecords returns the records of every non-expired entry, for feed
// exports over the cache's current hot set.
func (c *Cache) FreshRecords() []eta.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clk.Now()
	var records []eta.Record
	for _, entry := range c.entries {
		if now.Sub(entry.FetchedAt) > c.ttl {
			continue
		}
		records = append(records, entry.Records...)
	}
	return records
}
