package rules

import (
	"sync"
	"time"
)

// InMemorySettingsCache is the in-process SettingsCache
type InMemorySettingsCache struct {
	settings map[string]Setting
	cachedAt time.Time
	config   CacheConfig
	now      func() time.Time
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemorySettingsCache creates a new in-memory settings cache
func NewInMemorySettingsCache(config CacheConfig) *InMemorySettingsCache {
	return &InMemorySettingsCache{
		config: config,
		now:    time.Now,
	}
}

// Get retrieves cached settings.
// Returns nil if the cache is invalid or expired.
func (c *InMemorySettingsCache) Get() map[string]Setting {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid() {
		return nil
	}

	out := make(map[string]Setting, len(c.settings))
	for id, st := range c.settings {
		out[id] = st
	}
	return out
}

// Set stores a copy of settings
func (c *InMemorySettingsCache) Set(settings map[string]Setting) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings = make(map[string]Setting, len(settings))
	for id, st := range settings {
		c.settings[id] = st
	}
	c.cachedAt = c.now()
	c.isValid = true
}

// Invalidate clears the cache
func (c *InMemorySettingsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.settings = nil
}

// IsValid returns true if the cache contains unexpired settings
func (c *InMemorySettingsCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.valid()
}

// valid must be called with c.mu held
func (c *InMemorySettingsCache) valid() bool {
	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return c.now().Sub(c.cachedAt) <= c.config.TTL
	}
	return true
}
