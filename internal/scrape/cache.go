package scrape

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const defaultCacheSize = 1024

type cacheEntry struct {
	result  Result
	expires time.Time
}

// resultCache is a size-bounded LRU of scrape results with a fixed TTL.
type resultCache struct {
	mu  sync.Mutex
	lru *lru.Cache
	ttl time.Duration
	now func() time.Time
}

func newResultCache(size int, ttl time.Duration, now func() time.Time) *resultCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, _ := lru.New(size) // only errors on size <= 0
	return &resultCache{lru: c, ttl: ttl, now: now}
}

func (c *resultCache) get(url string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(url)
	if !ok {
		return nil, false
	}
	e := v.(cacheEntry)
	if !c.now().Before(e.expires) {
		c.lru.Remove(url)
		return nil, false
	}
	r := e.result
	r.Cached = true
	return &r, true
}

func (c *resultCache) put(url string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(url, cacheEntry{result: *r, expires: c.now().Add(c.ttl)})
}
