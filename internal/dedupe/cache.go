// ABOUTME: TTL and size bounded set of retired keys, used for retired session ids.
// ABOUTME: A key stays reserved until it expires or is evicted as the oldest entry.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type retiredEntry struct {
	retiredAt time.Time
	element   *list.Element
}

// Cache remembers retired keys so they can be refused for reuse.
// Insertion order is kept in a linked list so eviction of the oldest key is O(1).
type Cache struct {
	mu      sync.Mutex
	entries map[string]*retiredEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache holding at most maxSize keys for ttl each.
// A background goroutine sweeps expired keys once a minute until Close.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*retiredEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweepLoop()
	return c
}

// Contains reports whether key is retired and not yet expired.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	return ok && c.live(entry)
}

// Retire records key. Retiring an already retired key refreshes its TTL.
func (c *Cache) Retire(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retireLocked(key)
}

// Len returns the number of stored keys, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) live(entry *retiredEntry) bool {
	return c.now().Sub(entry.retiredAt) < c.ttl
}

// retireLocked must be called with mu held.
func (c *Cache) retireLocked(key string) {
	now := c.now()

	if entry, ok := c.entries[key]; ok {
		entry.retiredAt = now
		c.order.MoveToBack(entry.element)
		return
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &retiredEntry{
		retiredAt: now,
		element:   c.order.PushBack(key),
	}
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// Sweep drops every expired key.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Entries are ordered by retirement time, so stop at the first live one.
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		if c.live(c.entries[key]) {
			return
		}
		c.order.Remove(front)
		delete(c.entries, key)
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
