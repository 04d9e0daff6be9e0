// IntLRU is a fixed capacity LRU cache for values that wrap externally managed resources (file handles, buffers,
// connections). Values are built by a Constructor on a miss and handed to a Releaser exactly once, either when they
// are evicted as the least recently used entry or when the cache is closed.
//
// Storage is a fixed array of slots. Recency is an intrusive doubly linked list over slot positions and keys are
// mapped to positions by a slotIndex, so neither hits nor misses allocate once the cache is built.

package cache

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/nobletooth/slotcache/pkg/utils"
)

// Constructor builds the value of `key` on a cache miss. A returned error is passed to the caller of Lookup as is.
// Resources partially acquired before failing are the constructor's to clean up.
type Constructor[V any] func(key int) (V, error)

// Releaser disposes of a value leaving the cache. It is called exactly once per constructed value.
type Releaser[V any] func(value V) error

// Stats are the lifetime counters of a single cache.
type Stats struct {
	Hits              uint64
	Misses            uint64
	Evictions         uint64
	ConstructFailures uint64
	ReleaseFailures   uint64
	Reconstructions   uint64 // Approximate; only counted WithChurnTracking.
}

// add returns the element-wise sum of two Stats.
func (s Stats) add(other Stats) Stats {
	return Stats{
		Hits:              s.Hits + other.Hits,
		Misses:            s.Misses + other.Misses,
		Evictions:         s.Evictions + other.Evictions,
		ConstructFailures: s.ConstructFailures + other.ConstructFailures,
		ReleaseFailures:   s.ReleaseFailures + other.ReleaseFailures,
		Reconstructions:   s.Reconstructions + other.Reconstructions,
	}
}

// slot holds one resident key / value pair. Emptiness is tracked by `occupied` only.
type slot[V any] struct {
	key      int
	value    V
	occupied bool
}

// IntLRU is not safe for concurrent use; wrap it with Locked or Sharded when it's shared between goroutines.
type IntLRU[V any] struct { // Implements Layer.
	capacity  int
	slots     []slot[V]
	order     *slotList // Front is the most recently used slot.
	index     slotIndex
	free      []int32 // Stack of unoccupied slot positions.
	maxKey    int     // Zero if keys are not bounded.
	construct Constructor[V]
	release   Releaser[V]
	churn     *bloom.BloomFilter // Nil unless churn tracking is enabled.
	stats     Stats
	metrics   *cacheMetrics
	closed    bool
}

var _ Layer[int] = (*IntLRU[int])(nil)

// NewIntLRU creates a cache holding at most `capacity` values.
func NewIntLRU[V any](capacity int, construct Constructor[V], release Releaser[V], opts ...Option) (*IntLRU[V], error) {
	if capacity <= 0 || capacity > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if construct == nil || release == nil {
		return nil, ErrNilCallback
	}
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &IntLRU[V]{
		capacity:  capacity,
		slots:     make([]slot[V], capacity),
		order:     newSlotList(capacity),
		free:      make([]int32, capacity),
		maxKey:    cfg.maxKey,
		construct: construct,
		release:   release,
		metrics:   newCacheMetrics(cfg.name),
	}
	// Hand out low positions first.
	for i := range c.free {
		c.free[i] = int32(capacity - 1 - i)
	}
	if cfg.maxKey > 0 {
		c.index = newDirectIndex(cfg.maxKey)
	} else {
		c.index = newHashedIndex(capacity)
	}
	if cfg.churnExpectedKeys > 0 {
		c.churn = bloom.NewWithEstimates(cfg.churnExpectedKeys, cfg.churnFPRate)
	}
	return c, nil
}

// checkKey validates `key` against the supported key range.
func (c *IntLRU[V]) checkKey(key int) error {
	if key < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeKey, key)
	}
	if c.maxKey > 0 && key >= c.maxKey {
		return fmt.Errorf("%w: %d is not below %d", ErrKeyOutOfRange, key, c.maxKey)
	}
	return nil
}

// Lookup returns the value of `key`, constructing it on a miss. When the cache is full, the least recently used
// value is evicted and released before the constructor runs; a failing constructor leaves that slot empty.
// The returned value is borrowed: it stays valid until it's evicted and must not be released by the caller.
func (c *IntLRU[V]) Lookup(key int) (V, error) {
	var zero V
	if c.closed {
		return zero, ErrClosed
	}
	if err := c.checkKey(key); err != nil {
		return zero, err
	}

	if pos, found := c.index.get(key); found {
		if s := c.slots[pos]; !s.occupied || s.key != key {
			utils.RaiseInvariant("cache", "index_points_to_foreign_slot",
				"Slot index returned a slot not holding the key.", "key", key, "pos", pos, "slotKey", s.key)
			return zero, fmt.Errorf("corrupted slot index for key %d", key)
		}
		c.order.MoveToFront(pos)
		c.stats.Hits++
		c.metrics.hits.Inc()
		return c.slots[pos].value, nil
	}

	c.stats.Misses++
	c.metrics.misses.Inc()
	if len(c.free) == 0 {
		if err := c.evictLeastRecent(); err != nil {
			return zero, err
		}
	}

	value, err := c.construct(key)
	if err != nil {
		c.stats.ConstructFailures++
		c.metrics.constructErrors.Inc()
		return zero, err
	}
	if c.churn != nil {
		var keyBytes [8]byte
		binary.LittleEndian.PutUint64(keyBytes[:], uint64(key))
		if c.churn.TestAndAdd(keyBytes[:]) {
			c.stats.Reconstructions++
			c.metrics.reconstructions.Inc()
		}
	}

	pos := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	c.slots[pos] = slot[V]{key: key, value: value, occupied: true}
	c.index.put(key, pos)
	c.order.PushFront(pos)
	return value, nil
}

// evictLeastRecent frees the least recently used slot and releases its value.
func (c *IntLRU[V]) evictLeastRecent() error {
	pos := c.order.Back()
	if pos == nilSlot {
		utils.RaiseInvariant("cache", "no_eviction_victim",
			"Cache has no free slots but its recency list is empty.", "capacity", c.capacity)
		return fmt.Errorf("no eviction victim in a full cache of capacity %d", c.capacity)
	}
	evicted := c.vacate(pos)
	c.stats.Evictions++
	c.metrics.evictions.Inc()
	return c.releaseSlot(evicted)
}

// vacate unlinks and unindexes the occupied slot at `pos`, returning its former contents.
func (c *IntLRU[V]) vacate(pos int32) slot[V] {
	vacated := c.slots[pos]
	if !vacated.occupied {
		utils.RaiseInvariant("cache", "vacating_empty_slot",
			"Recency list contains an unoccupied slot.", "pos", pos)
	}
	c.order.Remove(pos)
	c.index.remove(vacated.key)
	c.slots[pos] = slot[V]{}
	c.free = append(c.free, pos)
	return vacated
}

// releaseSlot hands the value of a vacated slot to the releaser. Ownership passes to the releaser even if it fails.
func (c *IntLRU[V]) releaseSlot(vacated slot[V]) error {
	c.metrics.releases.Inc()
	if err := c.release(vacated.value); err != nil {
		c.stats.ReleaseFailures++
		c.metrics.releaseErrors.Inc()
		return &ReleaseError{Key: vacated.key, Err: err}
	}
	return nil
}

// Close releases every resident value, from the least to the most recently used, and makes the cache unusable.
// The first failing release stops the batch: the remaining values stay resident and Close may be called again.
func (c *IntLRU[V]) Close() error {
	if c.closed {
		return nil
	}
	for pos := c.order.Back(); pos != nilSlot; pos = c.order.Back() {
		if err := c.releaseSlot(c.vacate(pos)); err != nil {
			return err
		}
	}
	c.closed = true
	return nil
}

// Use calls `fn` with the value of `key`, looking it up first.
func (c *IntLRU[V]) Use(key int, fn func(V) error) error {
	value, err := c.Lookup(key)
	if err != nil {
		return err
	}
	return fn(value)
}

// Len returns the number of resident values.
func (c *IntLRU[V]) Len() int {
	return c.order.Len()
}

// Capacity returns the maximum number of resident values.
func (c *IntLRU[V]) Capacity() int {
	return c.capacity
}

// Contains reports whether `key` is resident without affecting its recency.
func (c *IntLRU[V]) Contains(key int) bool {
	if c.checkKey(key) != nil {
		return false
	}
	_, found := c.index.get(key)
	return found
}

// Keys returns the resident keys from the most to the least recently used.
func (c *IntLRU[V]) Keys() []int {
	keys := make([]int, 0, c.order.Len())
	for pos := c.order.Front(); pos != nilSlot; pos = c.order.Next(pos) {
		keys = append(keys, c.slots[pos].key)
	}
	return keys
}

// Stats returns a snapshot of the cache counters.
func (c *IntLRU[V]) Stats() Stats {
	return c.stats
}
