package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with a per-entry TTL and a size bound.
type MemoryStore struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]memoryEntry
}

type memoryEntry struct {
	members   []string
	expiresAt time.Time
}

// NewMemoryStore builds a MemoryStore. Non-positive ttl and maxEntries fall
// back to 30 seconds and 1024 entries.
func NewMemoryStore(ttl time.Duration, maxEntries int, now func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]memoryEntry),
	}
}

// Get returns a copy of the cached members for key.
func (c *MemoryStore) Get(_ context.Context, key string) ([]string, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		if current, still := c.entries[key]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return cloneMembers(entry.members), true, nil
}

// Set stores a copy of members under key, evicting expired entries first and
// an arbitrary entry when the store is full.
func (c *MemoryStore) Set(_ context.Context, key string, members []string) error {
	cloned := cloneMembers(members)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.cleanupLocked()
		if len(c.entries) >= c.maxEntries {
			c.evictOneLocked()
		}
	}
	c.entries[key] = memoryEntry{members: cloned, expiresAt: expiry}
	return nil
}

// Purge drops every entry.
func (c *MemoryStore) Purge(context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

// Len reports the number of entries currently held, expired or not.
func (c *MemoryStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryStore) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryStore) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}
