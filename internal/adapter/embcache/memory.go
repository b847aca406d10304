package embcache

import (
	"context"
	"time"

	"retrieval-pipeline/internal/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTTL is the stock entry lifetime for a deployment that does not
// configure one.
const DefaultTTL = 24 * time.Hour

type entry struct {
	embedding []float32
	createdAt time.Time
}

// MemoryCache is a bounded in-process embedding cache. Capacity is enforced
// by LRU eviction; freshness by a per-entry TTL checked on read. An expired
// entry is treated as absent and removed lazily (or eagerly via Sweep).
type MemoryCache struct {
	entries *lru.Cache[string, entry]
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a cache holding at most size entries, each valid
// for ttl after its write.
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Get returns the cached embedding for query if present and unexpired.
// A miss has no side effects beyond dropping an expired entry.
func (c *MemoryCache) Get(_ context.Context, query string) ([]float32, bool) {
	key := cacheKey(query)
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.createdAt) > c.ttl {
		c.entries.Remove(key)
		return nil, false
	}
	return e.embedding, true
}

// Put stores or overwrites the entry for query, stamped with the current
// time. Last writer wins.
func (c *MemoryCache) Put(_ context.Context, query string, embedding []float32) {
	c.entries.Add(cacheKey(query), entry{embedding: embedding, createdAt: c.now()})
}

// Sweep eagerly drops expired entries and reports how many were removed.
func (c *MemoryCache) Sweep() int {
	removed := 0
	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if ok && c.now().Sub(e.createdAt) > c.ttl {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Purge drops all entries.
func (c *MemoryCache) Purge() {
	c.entries.Purge()
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

var _ domain.EmbeddingCache = (*MemoryCache)(nil)
