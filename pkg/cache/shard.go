// This module implements cache sharding which distributes keys uniformly across Locked caches. Each shard has its
// own mutex, so goroutines looking up keys of different shards don't wait on each other. Every key lives in exactly
// one shard, which keeps the release-exactly-once guarantee of a single IntLRU.

package cache

import (
	"errors"
	"fmt"

	"github.com/nobletooth/slotcache/pkg/utils"
)

// Sharded distributes keys across multiple Locked shards by hashing them.
type Sharded[V any] struct { // Implements Layer.
	shards []*Locked[V]
}

var _ Layer[int] = (*Sharded[int])(nil)

// NewSharded creates `shardCount` shards using `newShard`. The total capacity is the sum of the shard capacities.
func NewSharded[V any](newShard func() (*Locked[V], error), shardCount int) (*Sharded[V], error) {
	// Ensure there is at least one shard.
	if shardCount <= 0 {
		utils.RaiseInvariant("shard", "non_positive_shard_count",
			"Invalid shard count has been given to sharded cache.", "shardCount", shardCount)
		shardCount = 1
	}
	sharded := &Sharded[V]{shards: make([]*Locked[V], 0, shardCount)}
	for i := range shardCount {
		shard, err := newShard()
		if err != nil {
			// Shards built so far are still empty, closing them only marks them closed.
			return nil, errors.Join(fmt.Errorf("failed to create shard %d: %w", i, err), sharded.Close())
		}
		sharded.shards = append(sharded.shards, shard)
	}
	return sharded, nil
}

// getShard determines which shard a given key belongs to.
func (s *Sharded[V]) getShard(key int) *Locked[V] {
	return s.shards[hashKey(key)%uint64(len(s.shards))]
}

// Lookup finds the appropriate shard for the key and looks the key up in it.
func (s *Sharded[V]) Lookup(key int) (V, error) {
	return s.getShard(key).Lookup(key)
}

// Use calls `fn` with the value of `key` while holding the lock of the key's shard.
func (s *Sharded[V]) Use(key int, fn func(V) error) error {
	return s.getShard(key).Use(key, fn)
}

// Len returns the number of resident values across all shards.
func (s *Sharded[V]) Len() int {
	total := 0
	for _, shard := range s.shards {
		total += shard.Len()
	}
	return total
}

// Keys aggregates the keys from all shards. Keys are only ordered by recency within their own shard.
func (s *Sharded[V]) Keys() []int {
	keys := make([]int, 0)
	for _, shard := range s.shards {
		keys = append(keys, shard.Keys()...)
	}
	return keys
}

// Stats sums the counters of all shards.
func (s *Sharded[V]) Stats() Stats {
	var total Stats
	for _, shard := range s.shards {
		total = total.add(shard.Stats())
	}
	return total
}

// Close closes every shard, even if some fail, and joins their errors.
func (s *Sharded[V]) Close() error {
	var errs []error
	for i, shard := range s.shards {
		if err := shard.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close shard %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
