package cache

import "sync"

// Locked serializes all access to an IntLRU with a mutex. Recency updates mutate the cache on every hit, so there is
// no read-only path that could use a read lock.
type Locked[V any] struct { // Implements Layer.
	mux   sync.Mutex
	inner *IntLRU[V]
}

var _ Layer[int] = (*Locked[int])(nil)

// NewLocked creates a goroutine safe IntLRU; see NewIntLRU for the arguments.
func NewLocked[V any](capacity int, construct Constructor[V], release Releaser[V], opts ...Option) (*Locked[V], error) {
	inner, err := NewIntLRU(capacity, construct, release, opts...)
	if err != nil {
		return nil, err
	}
	return &Locked[V]{inner: inner}, nil
}

// Lookup returns the value of `key`. Another goroutine may evict and release the value as soon as Lookup returns;
// prefer Use when the value wraps a resource.
func (l *Locked[V]) Lookup(key int) (V, error) {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.inner.Lookup(key)
}

// Use calls `fn` with the value of `key` while holding the lock, so the value can't be released under `fn`.
// `fn` must not call back into the same cache.
func (l *Locked[V]) Use(key int, fn func(V) error) error {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.inner.Use(key, fn)
}

func (l *Locked[V]) Len() int {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.inner.Len()
}

func (l *Locked[V]) Keys() []int {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.inner.Keys()
}

// Stats returns a snapshot of the cache counters.
func (l *Locked[V]) Stats() Stats {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.inner.Stats()
}

func (l *Locked[V]) Close() error {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.inner.Close()
}
