package api

import (
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	token   string
	value   any
	expires time.Time
}

// queryCache keeps list query results for a short time. Entries are bound to
// the token they were fetched with. Any invalidation bumps the generation so
// that a fetch started before it cannot store its (now stale) result.
type queryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	gen     uint64
	entries map[string]cacheEntry
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (q *queryCache) generation() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.gen
}

func (q *queryCache) get(key, token string) (any, bool) {
	if q.ttl <= 0 {
		return nil, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[key]
	if !ok || e.token != token || !q.now().Before(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (q *queryCache) put(key, token string, value any, gen uint64) {
	if q.ttl <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if gen != q.gen {
		return
	}
	q.entries[key] = cacheEntry{token: token, value: value, expires: q.now().Add(q.ttl)}
}

// invalidate drops every entry whose key starts with prefix.
func (q *queryCache) invalidate(prefix string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.gen++
	for key := range q.entries {
		if strings.HasPrefix(key, prefix) {
			delete(q.entries, key)
		}
	}
}
