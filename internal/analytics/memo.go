// ABOUTME: Short-lived FIFO memoization cache for expensive report rollups
// ABOUTME: TTL-based with a small size cap; oldest entry evicted first

package analytics

import (
	"container/list"
	"sync"
	"time"
)

// memoEntry stores one cached report with its insertion time and position.
type memoEntry struct {
	key     string
	report  *Report
	addedAt time.Time
	element *list.Element
}

// reportCache memoizes the last few distinct report results for a short TTL.
// Eviction is FIFO, not LRU: the cardinality of (kind, days) keys is tiny,
// so recency tracking buys nothing.
type reportCache struct {
	mu      sync.RWMutex
	entries map[string]*memoEntry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

func newReportCache(ttl time.Duration, maxSize int) *reportCache {
	return &reportCache{
		entries: make(map[string]*memoEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// get returns the cached report for key if it is present and unexpired.
// Expired entries are removed as a side effect.
func (c *reportCache) get(key string) (*Report, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	fresh := ok && c.now().Sub(entry.addedAt) < c.ttl
	c.mu.RUnlock()

	if fresh {
		return entry.report, true
	}
	if ok {
		c.mu.Lock()
		// Re-check: another goroutine may have replaced the entry.
		if entry, ok := c.entries[key]; ok && c.now().Sub(entry.addedAt) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	return nil, false
}

// set stores a report under key, evicting the oldest entry once the size cap
// is exceeded. Re-setting an existing key refreshes its value and its
// position in insertion order.
func (c *reportCache) set(key string, report *Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[key]; exists {
		c.order.Remove(entry.element)
		delete(c.entries, key)
	}

	if len(c.entries) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.entries, oldest)
		}
	}

	c.entries[key] = &memoEntry{
		key:     key,
		report:  report,
		addedAt: c.now(),
		element: c.order.PushBack(key),
	}
}

// purge drops every entry. Called when the underlying tables are pruned or
// reset so reports never outlive their data.
func (c *reportCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*memoEntry)
	c.order.Init()
}
