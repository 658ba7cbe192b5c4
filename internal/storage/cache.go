package storage

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Septimus4/Futurisys/internal/models"
)

// cacheEntry is a cached lookup with its expiration
type cacheEntry struct {
	key       uuid.UUID
	value     *models.LedgerLookup
	expiresAt time.Time
}

// LookupCache is a thread-safe LRU cache with TTL for finished ledger lookups
type LookupCache struct {
	mu           sync.Mutex
	capacity     int
	ttl          time.Duration
	items        map[uuid.UUID]*list.Element
	evictionList *list.List
	now          func() time.Time
}

// NewLookupCache creates a new LRU lookup cache
func NewLookupCache(capacity int, ttl time.Duration) *LookupCache {
	return &LookupCache{
		capacity:     capacity,
		ttl:          ttl,
		items:        make(map[uuid.UUID]*list.Element, capacity),
		evictionList: list.New(),
		now:          time.Now,
	}
}

// Get retrieves a lookup from the cache
func (c *LookupCache) Get(_ context.Context, id uuid.UUID) (*models.LedgerLookup, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.items[id]
	if !found {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)

	if c.now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, false
	}

	// Move to front (most recently used)
	c.evictionList.MoveToFront(elem)
	return entry.value, true
}

// Set adds or refreshes a lookup in the cache
func (c *LookupCache) Set(_ context.Context, lookup *models.LedgerLookup) {
	if lookup == nil || c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := lookup.Entry.ID
	expiresAt := c.now().Add(c.ttl)

	if elem, found := c.items[id]; found {
		c.evictionList.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = lookup
		entry.expiresAt = expiresAt
		return
	}

	elem := c.evictionList.PushFront(&cacheEntry{key: id, value: lookup, expiresAt: expiresAt})
	c.items[id] = elem

	if c.evictionList.Len() > c.capacity {
		c.removeOldest()
	}
}

// Delete removes a lookup from the cache
func (c *LookupCache) Delete(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[id]; found {
		c.removeElement(elem)
	}
}

// Clear removes all items from the cache
func (c *LookupCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[uuid.UUID]*list.Element, c.capacity)
	c.evictionList.Init()
}

// Len returns the current number of items in the cache
func (c *LookupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.evictionList.Len()
}

func (c *LookupCache) removeOldest() {
	if elem := c.evictionList.Back(); elem != nil {
		c.removeElement(elem)
	}
}

func (c *LookupCache) removeElement(elem *list.Element) {
	c.evictionList.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}

// CleanupExpired removes all expired items and returns how many were dropped
func (c *LookupCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0

	var next *list.Element
	for elem := c.evictionList.Back(); elem != nil; elem = next {
		next = elem.Prev()
		if now.After(elem.Value.(*cacheEntry).expiresAt) {
			c.removeElement(elem)
			removed++
		}
	}

	return removed
}

// CacheStats describes the cache occupancy
type CacheStats struct {
	Capacity int
	Size     int
	TTL      time.Duration
}

// GetStats returns current cache statistics
func (c *LookupCache) GetStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Capacity: c.capacity,
		Size:     c.evictionList.Len(),
		TTL:      c.ttl,
	}
}
