package cache

import "fmt"

const defaultCacheName = "default"

type options struct {
	name              string
	maxKey            int // Zero selects the hashed index.
	churnExpectedKeys uint
	churnFPRate       float64
}

func defaultOptions() options {
	return options{name: defaultCacheName}
}

func (o options) validate() error {
	if o.name == "" {
		return fmt.Errorf("%w: empty cache name", ErrInvalidOption)
	}
	if o.maxKey < 0 {
		return fmt.Errorf("%w: max key must be positive, got %d", ErrInvalidOption, o.maxKey)
	}
	if o.churnExpectedKeys > 0 && (o.churnFPRate <= 0 || o.churnFPRate >= 1) {
		return fmt.Errorf("%w: churn false positive rate must be in (0, 1), got %v", ErrInvalidOption, o.churnFPRate)
	}
	return nil
}

// Option configures an IntLRU.
type Option func(*options)

// WithName sets the name reported in the `cache` label of the slot cache metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithMaxKey restricts keys to [0, maxKey) and indexes them with a direct table of `maxKey` cells instead of a
// hash table. Use it when keys are small and dense, e.g. file ids handed out sequentially.
func WithMaxKey(maxKey int) Option {
	return func(o *options) {
		if maxKey == 0 {
			maxKey = -1 // Zero means "unset" internally; an explicit zero bound is invalid.
		}
		o.maxKey = maxKey
	}
}

// WithChurnTracking remembers every constructed key in a Bloom filter sized for `expectedKeys` and counts misses
// on keys that were seen before as reconstructions. The count is approximate due to false positives.
func WithChurnTracking(expectedKeys uint, falsePositiveRate float64) Option {
	return func(o *options) {
		o.churnExpectedKeys = expectedKeys
		o.churnFPRate = falsePositiveRate
	}
}
