package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// Cache hands stage inputs across stage boundaries by key instead of
// passing whole objects through shared state. One instance lives for the
// process lifetime; keys are minted per rule per orchestrator invocation
// and never reused.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]interface{}
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]interface{})}
}

// Put stores the rule and returns the opaque key the rule's flow uses to
// retrieve its input later.
func (c *Cache) Put(rule Rule) string {
	key := rule.ID() + "/" + uuid.NewString()
	c.mu.Lock()
	c.entries[key] = rule
	c.mu.Unlock()
	return key
}

// Get returns the entry stored under key.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Remove drops the entry stored under key.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
