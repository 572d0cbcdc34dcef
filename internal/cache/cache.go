// Package cache holds captured HTTP responses in process memory, keyed by
// request method, path and raw query.
package cache

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultBaseSegments = 3
)

// Response is a captured response body with the headers worth replaying.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Stats are simple counters for cache behavior.
type Stats struct {
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	Sets          int64         `json:"sets"`
	Deletes       int64         `json:"deletes"`
	Invalidations int64         `json:"invalidations"`
	Size          int           `json:"size"`
	TTL           time.Duration `json:"ttl"`
}

type Config struct {
	TTL time.Duration
	// BaseSegments is how many leading path segments BasePath keeps.
	BaseSegments int
}

type entry struct {
	value     Response
	expiresAt time.Time
}

// ResponseCache is safe for concurrent use. It does not coalesce concurrent
// misses for the same key.
type ResponseCache struct {
	mu           sync.RWMutex
	entries      map[string]entry
	ttl          time.Duration
	baseSegments int
	now          func() time.Time

	hits          int64
	misses        int64
	sets          int64
	deletes       int64
	invalidations int64
}

func New(c Config) *ResponseCache {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.BaseSegments <= 0 {
		c.BaseSegments = DefaultBaseSegments
	}
	return &ResponseCache{
		entries:      make(map[string]entry),
		ttl:          c.TTL,
		baseSegments: c.BaseSegments,
		now:          time.Now,
	}
}

// SetClock replaces the time source used for expiry.
func (c *ResponseCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Key builds "METHOD:path" with "?rawQuery" appended when there is a query.
// The query is used verbatim, so parameter order matters.
func Key(method, path, rawQuery string) string {
	key := strings.ToUpper(method) + ":" + path
	if rawQuery != "" {
		key += "?" + rawQuery
	}
	return key
}

// RequestKey is Key applied to r.
func RequestKey(r *http.Request) string {
	return Key(r.Method, r.URL.Path, r.URL.RawQuery)
}

func (c *ResponseCache) ttlOrDefault(ttl []time.Duration) time.Duration {
	if len(ttl) > 0 && ttl[0] > 0 {
		return ttl[0]
	}
	return c.ttl
}

// Set stores value under key. An optional ttl overrides the default.
func (c *ResponseCache) Set(key string, value Response, ttl ...time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		value:     value,
		expiresAt: c.now().Add(c.ttlOrDefault(ttl)),
	}
	atomic.AddInt64(&c.sets, 1)
}

// Get returns the live entry for key. Expired entries are removed and
// reported as misses.
func (c *ResponseCache) Get(key string) (Response, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return Response{}, false
	}
	if !now.Before(e.expiresAt) {
		atomic.AddInt64(&c.misses, 1)
		c.mu.Lock()
		// Another writer may have refreshed the entry since the read lock was dropped.
		if current, ok := c.entries[key]; ok && !c.now().Before(current.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return Response{}, false
	}

	atomic.AddInt64(&c.hits, 1)
	return e.value, true
}

// TouchTTL pushes the expiry of a live entry out by ttl, or the default.
func (c *ResponseCache) TouchTTL(key string, ttl ...time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	now := c.now()
	if !ok || !now.Before(e.expiresAt) {
		return false
	}
	e.expiresAt = now.Add(c.ttlOrDefault(ttl))
	c.entries[key] = e
	return true
}

func (c *ResponseCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		atomic.AddInt64(&c.deletes, 1)
	}
}

// InvalidateByPrefix removes every entry whose path (the key with its
// "METHOD:" segment stripped) starts with basePath, whatever the method or
// query. It returns the number of entries removed.
func (c *ResponseCache) InvalidateByPrefix(basePath string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		_, rest, ok := strings.Cut(key, ":")
		if !ok {
			rest = key
		}
		if strings.HasPrefix(rest, basePath) {
			delete(c.entries, key)
			removed++
		}
	}
	atomic.AddInt64(&c.invalidations, int64(removed))
	return removed
}

// InvalidateRequest drops every entry under the base path of r's URL.
func (c *ResponseCache) InvalidateRequest(r *http.Request) int {
	return c.InvalidateByPrefix(BasePath(r.URL.Path, c.baseSegments))
}

// BasePath keeps the first n segments of path, so "/api/v1/categories/7"
// becomes "/api/v1/categories" for n = 3.
func BasePath(path string, n int) string {
	if n <= 0 {
		n = DefaultBaseSegments
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) > n {
		segments = segments[:n]
	}
	return "/" + strings.Join(segments, "/")
}

// Prune removes expired entries and returns how many were dropped.
func (c *ResponseCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Run prunes expired entries every interval until ctx is done.
func (c *ResponseCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}

func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ResponseCache) Stats() Stats {
	return Stats{
		Hits:          atomic.LoadInt64(&c.hits),
		Misses:        atomic.LoadInt64(&c.misses),
		Sets:          atomic.LoadInt64(&c.sets),
		Deletes:       atomic.LoadInt64(&c.deletes),
		Invalidations: atomic.LoadInt64(&c.invalidations),
		Size:          c.Len(),
		TTL:           c.ttl,
	}
}
