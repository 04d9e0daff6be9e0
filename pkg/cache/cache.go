// Slotcache keeps a bounded number of lazily built, resource owning values in memory. This module provides the
// interface shared by the single cache (IntLRU) and its concurrency wrappers (Locked, Sharded), together with the
// errors they report.

package cache

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCapacity = errors.New("cache capacity must be a positive 32 bit integer")
	ErrNilCallback     = errors.New("cache constructor and releaser must be non-nil")
	ErrInvalidOption   = errors.New("invalid cache option")
	ErrNegativeKey     = errors.New("cache keys must be non-negative")
	ErrKeyOutOfRange   = errors.New("cache key is out of the configured range")
	ErrClosed          = errors.New("cache is closed")
)

// ReleaseError reports a failing Releaser along with the key whose value was being released.
type ReleaseError struct {
	Key int
	Err error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("failed to release value of key %d: %v", e.Key, e.Err)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}

// Layer is implemented by every cache flavour so that callers can switch between a single shard cache and a
// sharded one without changing code.
type Layer[V any] interface {
	// Lookup returns the value of key, constructing it on a miss. The value is borrowed from the cache.
	Lookup(key int) (V, error)
	// Use calls fn with the value of key while it's guaranteed not to be released by a concurrent lookup.
	Use(key int, fn func(V) error) error
	Len() int    // Returns the number of resident values.
	Keys() []int // Returns the resident keys.
	// Close releases all resident values. No other method may be called after a successful Close.
	Close() error
}
