package hook

import (
	"context"
	"sync"
	"time"
)

// MemCache is the default in-process MemoryCache used when a context is
// built without an explicit memory provider. Entries expire lazily on
// read.
type MemCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

type memEntry struct {
	value     any
	expiresAt time.Time // zero means no expiry
}

// NewMemCache creates an empty in-process cache.
func NewMemCache() *MemCache {
	return &MemCache{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// Compile-time interface check.
var _ MemoryCache = (*MemCache)(nil)

func memKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// Get returns the value for (namespace, key), expiring stale entries.
func (c *MemCache) Get(_ context.Context, namespace, key string) (any, bool, error) {
	k := memKey(namespace, key)

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, k)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores a value. A zero ttl means the entry never expires.
func (c *MemCache) Set(_ context.Context, namespace, key string, value any, ttl time.Duration) error {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[memKey(namespace, key)] = e
	c.mu.Unlock()
	return nil
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (c *MemCache) Delete(_ context.Context, namespace, key string) error {
	c.mu.Lock()
	delete(c.entries, memKey(namespace, key))
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, including not-yet-expired
// stale ones.
func (c *MemCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
