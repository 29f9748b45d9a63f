package common

import (
	"encoding/json"
	"fmt"
	"time"
)

// CacheInterface defines the contract for cache implementations
type CacheInterface interface {
	// Set stores a value in cache with the given key and duration
	Set(key string, value interface{}, duration time.Duration)

	// Get retrieves a value from cache by key
	// Returns the value and true if found, nil and false otherwise
	Get(key string) (interface{}, bool)

	// Delete removes a value from cache by key
	Delete(key string)

	// GetOrSet retrieves a value from cache, or loads it using the loader function if not found
	GetOrSet(key string, duration time.Duration, loader func() (any, error)) (interface{}, error)

	// Close closes any underlying connections (for Redis, etc.)
	Close() error
}

// CachedAs is GetOrSet with a typed result. Values that come back from a
// JSON-backed cache as generic maps are decoded into T.
func CachedAs[T any](c CacheInterface, key string, duration time.Duration, loader func() (T, error)) (T, error) {
	var zero T
	val, err := c.GetOrSet(key, duration, func() (any, error) { return loader() })
	if err != nil {
		return zero, err
	}
	if typed, ok := val.(T); ok {
		return typed, nil
	}

	raw, err := json.Marshal(val)
	if err != nil {
		return zero, fmt.Errorf("cache %s: failed to re-encode value: %w", key, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("cache %s: failed to decode value: %w", key, err)
	}
	return out, nil
}
