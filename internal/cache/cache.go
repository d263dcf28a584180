// internal/cache/cache.go
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

// Cache stores fetched pages so a detail page requested twice within a short
// window (fetch followed by show, or an update straight after a fetch) is
// only downloaded once.
type Cache interface {
	Get(key string) (*Entry, bool)
	Set(key string, entry *Entry)
	Purge()
}

// Entry is one cached response body
type Entry struct {
	URL         string
	Body        []byte
	ContentType string
	FetchedAt   time.Time
}

// PageCache is an LRU cache with a per-entry TTL
type PageCache struct {
	lru *expirable.LRU[string, *Entry]
}

// NewPageCache creates a cache holding at most size pages for ttl each
func NewPageCache(size int, ttl time.Duration) *PageCache {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PageCache{lru: expirable.NewLRU[string, *Entry](size, nil, ttl)}
}

// Get returns the cached page for key
func (c *PageCache) Get(key string) (*Entry, bool) {
	e, ok := c.lru.Get(key)
	if ok {
		log.Debug().Str("key", key).Msg("Page cache hit")
	}
	return e, ok
}

// Set stores a page under key
func (c *PageCache) Set(key string, entry *Entry) {
	if entry == nil {
		return
	}
	c.lru.Add(key, entry)
}

// Purge removes every entry
func (c *PageCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries
func (c *PageCache) Len() int {
	return c.lru.Len()
}

// Key builds the cache key for a GET of url within one authority's session
func Key(authority, url string) string {
	return authority + "::" + url
}
