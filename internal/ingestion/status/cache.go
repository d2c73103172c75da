package status

import "sync"

// Cache memoizes normalization results per (raw value, allowed-set signature)
// so repeated values within and across runs avoid lookups and AI calls. It is
// an explicit, injectable object so tests can isolate runs.
type Cache struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string)
}

// Len reports the number of memoized entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
