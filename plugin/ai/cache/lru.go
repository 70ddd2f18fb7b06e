package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache implements an LRU cache with idle expiry.
//
// An entry expires when it has not been touched for the idle TTL. Entries the
// evictable hook refuses are never dropped, neither for capacity nor for
// expiry, so the cache may grow past capacity while they are pinned.
type LRUCache[V any] struct {
	capacity int
	idleTTL  time.Duration
	mu       sync.Mutex

	cache map[string]*entry[V]
	order *list.List // Doubly linked list for LRU ordering

	evictable func(key string, value V) bool
	onEvict   func(key string, value V)
	now       func() time.Time
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	element   *list.Element
}

// Option configures an LRUCache.
type Option[V any] func(*LRUCache[V])

// WithEvictable installs a hook consulted before an entry is dropped.
func WithEvictable[V any](fn func(key string, value V) bool) Option[V] {
	return func(c *LRUCache[V]) { c.evictable = fn }
}

// WithOnEvict installs a callback run after an entry is dropped by capacity or expiry.
// It is called without the cache lock held.
func WithOnEvict[V any](fn func(key string, value V)) Option[V] {
	return func(c *LRUCache[V]) { c.onEvict = fn }
}

// WithClock overrides the time source.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *LRUCache[V]) { c.now = now }
}

// NewLRUCache creates a new LRU cache. A non-positive idleTTL disables expiry.
func NewLRUCache[V any](capacity int, idleTTL time.Duration, opts ...Option[V]) *LRUCache[V] {
	if capacity <= 0 {
		capacity = 1000
	}

	c := &LRUCache[V]{
		capacity: capacity,
		idleTTL:  idleTTL,
		cache:    make(map[string]*entry[V]),
		order:    list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value from the cache and refreshes its idle deadline.
func (c *LRUCache[V]) Get(key string) (V, bool) {
	return c.GetAndHold(key, nil)
}

// GetAndHold is Get that also runs hold on the value before the cache lock is
// released. Whatever hold marks on the value is seen by the evictable hook of
// every later eviction decision.
func (c *LRUCache[V]) GetAndHold(key string, hold func(V)) (V, bool) {
	var zero V
	var evicted []*entry[V]

	c.mu.Lock()
	e, ok := c.cache[key]
	if ok && c.expired(e) && c.canEvict(e) {
		c.removeEntry(e)
		evicted = append(evicted, e)
		ok = false
	}
	if ok {
		c.touch(e)
		if hold != nil {
			hold(e.value)
		}
	}
	c.mu.Unlock()

	c.notify(evicted)
	if !ok {
		return zero, false
	}
	return e.value, true
}

// Set stores a value in the cache.
func (c *LRUCache[V]) Set(key string, value V) {
	var evicted []*entry[V]

	c.mu.Lock()
	if e, ok := c.cache[key]; ok {
		e.value = value
		c.touch(e)
		c.mu.Unlock()
		return
	}

	// Evict if at capacity
	for len(c.cache) >= c.capacity {
		e := c.oldestEvictable()
		if e == nil {
			break
		}
		c.removeEntry(e)
		evicted = append(evicted, e)
	}

	e := &entry[V]{key: key, value: value}
	e.element = c.order.PushFront(e)
	c.touch(e)
	c.cache[key] = e
	c.mu.Unlock()

	c.notify(evicted)
}

// Remove deletes key unconditionally and returns the value it held.
// The eviction callback is not run.
func (c *LRUCache[V]) Remove(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.removeEntry(e)
	return e.value, true
}

// Size returns the number of entries in the cache.
func (c *LRUCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Clear removes all entries from the cache.
func (c *LRUCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*entry[V])
	c.order.Init()
}

// CleanupExpired removes all expired, evictable entries.
// Returns the number of entries removed.
func (c *LRUCache[V]) CleanupExpired() int {
	c.mu.Lock()
	var toDelete []*entry[V]
	for _, e := range c.cache {
		if c.expired(e) && c.canEvict(e) {
			toDelete = append(toDelete, e)
		}
	}
	for _, e := range toDelete {
		c.removeEntry(e)
	}
	c.mu.Unlock()

	c.notify(toDelete)
	return len(toDelete)
}

// oldestEvictable walks from the back of the list.
// Must be called with lock held.
func (c *LRUCache[V]) oldestEvictable() *entry[V] {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry[V])
		if c.canEvict(e) {
			return e
		}
	}
	return nil
}

// Must be called with lock held.
func (c *LRUCache[V]) touch(e *entry[V]) {
	if c.idleTTL > 0 {
		e.expiresAt = c.now().Add(c.idleTTL)
	}
	c.order.MoveToFront(e.element)
}

func (c *LRUCache[V]) expired(e *entry[V]) bool {
	return c.idleTTL > 0 && c.now().After(e.expiresAt)
}

func (c *LRUCache[V]) canEvict(e *entry[V]) bool {
	return c.evictable == nil || c.evictable(e.key, e.value)
}

// removeEntry removes an entry from the cache.
// Must be called with lock held.
func (c *LRUCache[V]) removeEntry(e *entry[V]) {
	c.order.Remove(e.element)
	delete(c.cache, e.key)
}

func (c *LRUCache[V]) notify(evicted []*entry[V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range evicted {
		c.onEvict(e.key, e.value)
	}
}
