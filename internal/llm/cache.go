package llm

import (
	"context"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"sqlcoach/internal/metrics"
)

const maxCacheEntries = 512

// Cache memoizes completions per (model, prompt) to avoid repeated upstream
// calls for identical requests.
type Cache struct {
	next    Completer
	model   string
	ttl     time.Duration
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[[32]byte]cacheEntry
}

type cacheEntry struct {
	value   string
	expires time.Time
}

// NewCache wraps next. A ttl <= 0 disables caching.
func NewCache(next Completer, model string, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		next:    next,
		model:   model,
		ttl:     ttl,
		metrics: m,
		entries: make(map[[32]byte]cacheEntry),
	}
}

// Key digests everything that determines a completion.
func (c *Cache) Key(req Request) [32]byte {
	h := blake3.New()
	mode := "text"
	if req.JSON {
		mode = "json"
	}
	for _, part := range []string{c.model, mode, req.System, req.User} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	var k [32]byte
	copy(k[:], h.Sum(nil))
	return k
}

// Complete returns the cached completion or fetches a fresh one.
func (c *Cache) Complete(ctx context.Context, req Request) (string, error) {
	if c.ttl <= 0 {
		return c.next.Complete(ctx, req)
	}

	key := c.Key(req)
	now := time.Now()
	c.mu.Lock()
	ent, ok := c.entries[key]
	if ok && now.Before(ent.expires) {
		v := ent.value
		c.mu.Unlock()
		c.metrics.RecordCache(true)
		if info := callInfoFrom(ctx); info != nil {
			info.CacheHits++
		}
		return v, nil
	}
	c.mu.Unlock()
	c.metrics.RecordCache(false)

	// Fetch without holding the lock.
	v, err := c.next.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if len(c.entries) >= maxCacheEntries {
		c.evictLocked(now)
	}
	c.entries[key] = cacheEntry{value: v, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return v, nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries, then the soonest-expiring ones until
// there is room for one more.
func (c *Cache) evictLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	for len(c.entries) >= maxCacheEntries {
		var oldest [32]byte
		var oldestExp time.Time
		first := true
		for k, e := range c.entries {
			if first || e.expires.Before(oldestExp) {
				oldest, oldestExp, first = k, e.expires, false
			}
		}
		delete(c.entries, oldest)
	}
}

// CallInfo accumulates what happened during the LLM calls of one action.
type CallInfo struct {
	Calls     int
	Attempts  int
	CacheHits int
}

type callInfoKey struct{}

// WithCallInfo attaches a fresh CallInfo to ctx.
func WithCallInfo(ctx context.Context) (context.Context, *CallInfo) {
	info := &CallInfo{}
	return context.WithValue(ctx, callInfoKey{}, info), info
}

func callInfoFrom(ctx context.Context) *CallInfo {
	info, _ := ctx.Value(callInfoKey{}).(*CallInfo)
	return info
}
