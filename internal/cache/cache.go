// Package cache holds the client-side record cache the engine owns.
package cache

import (
	"slices"
	"sync"
)

// Record is a value the cache can key and deep-copy.
type Record[T any] interface {
	Key() string
	Clone() T
}

// Cache is an insertion-ordered keyed collection of records. Upsert replaces
// the whole record in its original slot; values are cloned on the way in and
// out so callers never alias cache state.
type Cache[T Record[T]] struct {
	mu      sync.RWMutex
	index   map[string]int
	items   []T
	version uint64
}

// New returns an empty cache.
func New[T Record[T]]() *Cache[T] {
	return &Cache[T]{index: make(map[string]int)}
}

// Upsert stores r, replacing any record with the same key.
func (c *Cache[T]) Upsert(r T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r = r.Clone()
	if i, ok := c.index[r.Key()]; ok {
		c.items[i] = r
	} else {
		c.index[r.Key()] = len(c.items)
		c.items = append(c.items, r)
	}
	c.version++
}

// Remove deletes the record with the given key. Removing an absent key is a
// no-op and leaves the version unchanged. It reports whether a record was removed.
func (c *Cache[T]) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return false
	}
	delete(c.index, id)
	c.items = append(c.items[:i], c.items[i+1:]...)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].Key()] = j
	}
	c.version++
	return true
}

// InsertAt stores r at position i of the iteration order, clamped to the
// current length. A record with the same key is replaced in its own slot.
func (c *Cache[T]) InsertAt(i int, r T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r = r.Clone()
	if j, ok := c.index[r.Key()]; ok {
		c.items[j] = r
		c.version++
		return
	}
	i = max(0, min(i, len(c.items)))
	c.items = slices.Insert(c.items, i, r)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].Key()] = j
	}
	c.version++
}

// Replace swaps the whole content for records, in order. Used for the
// initial fetch and full refreshes.
func (c *Cache[T]) Replace(records []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[string]int, len(records))
	c.items = c.items[:0]
	for _, r := range records {
		r = r.Clone()
		if i, ok := c.index[r.Key()]; ok {
			c.items[i] = r
			continue
		}
		c.index[r.Key()] = len(c.items)
		c.items = append(c.items, r)
	}
	c.version++
}

// Get returns a copy of the record with the given key.
func (c *Cache[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i].Clone(), true
}

// Has reports whether a record with the given key is cached.
func (c *Cache[T]) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[id]
	return ok
}

// All returns copies of every record in insertion order.
func (c *Cache[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, len(c.items))
	for i, r := range c.items {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of cached records.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Version is incremented on every mutation.
func (c *Cache[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}
