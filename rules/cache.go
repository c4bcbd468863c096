package rules

import "time"

// SettingsCache holds the configuration read performed by a Registry.
// Implementations can be swapped for a shared cache when several
// processes serve the same store.
type SettingsCache interface {
	// Get returns cached settings, or nil on a miss or after expiry
	Get() map[string]Setting

	// Set stores settings in the cache
	Set(settings map[string]Setting)

	// Invalidate clears the cache, forcing a configuration read on next Get
	Invalidate()

	// IsValid returns true if the cache holds unexpired data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached settings.
	// Zero means no expiration; only Invalidate clears the cache.
	TTL time.Duration
}

// DefaultCacheConfig caches for the registry lifetime
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
