package services

import (
	"sync"
	"time"
)

type cachedValue struct {
	value   float64
	expires time.Time
}

// ProgressCache memoises progress percentages per project. Every write that
// can change a project's counts invalidates that project's entries.
// A nil *ProgressCache is valid and caches nothing.
type ProgressCache struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[uint]map[string]cachedValue
	now     func() time.Time
}

func NewProgressCache(ttl time.Duration) *ProgressCache {
	return &ProgressCache{
		ttl:     ttl,
		entries: make(map[uint]map[string]cachedValue),
		now:     time.Now,
	}
}

func (c *ProgressCache) Get(projectID uint, key string) (float64, bool) {
	if c == nil || c.ttl <= 0 {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[projectID][key]
	if !ok {
		return 0, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries[projectID], key)
		return 0, false
	}
	return entry.value, true
}

func (c *ProgressCache) Set(projectID uint, key string, value float64) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	project, ok := c.entries[projectID]
	if !ok {
		project = make(map[string]cachedValue)
		c.entries[projectID] = project
	}
	project[key] = cachedValue{value: value, expires: c.now().Add(c.ttl)}
}

// Invalidate drops every entry of the given projects.
func (c *ProgressCache) Invalidate(projectIDs ...uint) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range projectIDs {
		delete(c.entries, id)
	}
}

func (c *ProgressCache) InvalidateAll() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[uint]map[string]cachedValue)
	c.mu.Unlock()
}
