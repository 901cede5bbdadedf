package loader

import (
	"sync"
	"time"
)

// Clock abstracts time so TTL expiry can be tested without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Entry is a cached dataset.
type Entry struct {
	Resource Resource
	Data     []byte
	StoredAt time.Time
}

// Cache holds one entry per resource. Stale entries are evicted lazily on
// the next read, never by a background sweep.
type Cache struct {
	mu      sync.Mutex
	entries map[Resource]Entry
	ttl     time.Duration
	clock   Clock
}

// NewCache creates a cache whose entries live for ttl.
func NewCache(ttl time.Duration, clock Clock) *Cache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Cache{
		entries: make(map[Resource]Entry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the data cached for r if it is still fresh.
func (c *Cache) Get(r Resource) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[r]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.StoredAt.Add(c.ttl)) {
		delete(c.entries, r)
		return nil, false
	}
	return e.Data, true
}

// Set stores data for r, stamped with the current time.
func (c *Cache) Set(r Resource, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[r] = Entry{Resource: r, Data: data, StoredAt: c.clock.Now()}
}

// Invalidate drops the entry of r.
func (c *Cache) Invalidate(r Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, r)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Resource]Entry)
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
