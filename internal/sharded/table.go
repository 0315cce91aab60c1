// Package sharded implements a lock-striped concurrent map.
//
// Every engine in this module that needs a process-wide keyed store (the
// connector registry, the tenant store, the per-service SLO trackers, the
// per-metric baselines) uses a Table instead of a single global
// sync.RWMutex-guarded map, so that unrelated keys never contend on the same
// lock. Only value-typed snapshots ever leave a Table; callers never get a
// pointer into a shard's backing map.
package sharded

import (
	"hash/maphash"
	"sort"
	"sync"
)

const defaultShardCount = 32

// Table is a lock-striped map from string keys to values of type V.
// The zero value is not usable; construct with New.
type Table[V any] struct {
	seed   maphash.Seed
	shards []*shard[V]
}

type shard[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

// New returns a Table with the default number of shards.
func New[V any]() *Table[V] {
	return NewWithShards[V](defaultShardCount)
}

// NewWithShards returns a Table with n shards. n must be at least 1.
func NewWithShards[V any](n int) *Table[V] {
	if n < 1 {
		n = 1
	}
	t := &Table[V]{
		seed:   maphash.MakeSeed(),
		shards: make([]*shard[V], n),
	}
	for i := range t.shards {
		t.shards[i] = &shard[V]{m: make(map[string]V)}
	}
	return t
}

func (t *Table[V]) shardFor(key string) *shard[V] {
	var h maphash.Hash
	h.SetSeed(t.seed)
	_, _ = h.WriteString(key)
	return t.shards[h.Sum64()%uint64(len(t.shards))]
}

// Get returns the value stored for key, if any.
func (t *Table[V]) Get(key string) (V, bool) {
	s := t.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Set stores v under key, overwriting any previous value.
func (t *Table[V]) Set(key string, v V) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = v
}

// SetIfAbsent stores v under key only if key is not already present.
// Returns true if the value was inserted.
func (t *Table[V]) SetIfAbsent(key string, v V) bool {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.m[key]; exists {
		return false
	}
	s.m[key] = v
	return true
}

// Update atomically applies fn to the current value for key (the zero value
// of V if absent) and stores the result.
func (t *Table[V]) Update(key string, fn func(current V, existed bool) V) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, existed := s.m[key]
	s.m[key] = fn(cur, existed)
}

// UpdateIfExists atomically applies fn to the current value for key and
// stores the result, but only if key is already present. Returns the
// updated value and true, or the zero value and false if key was absent
// (in which case fn is never called and nothing is written).
func (t *Table[V]) UpdateIfExists(key string, fn func(current V) V) (V, bool) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, existed := s.m[key]
	if !existed {
		var zero V
		return zero, false
	}
	updated := fn(cur)
	s.m[key] = updated
	return updated, true
}

// Delete removes key, if present.
func (t *Table[V]) Delete(key string) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// Len returns the total number of entries across all shards.
func (t *Table[V]) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Keys returns a sorted snapshot of all keys currently in the table.
func (t *Table[V]) Keys() []string {
	keys := make([]string, 0, t.Len())
	for _, s := range t.shards {
		s.mu.RLock()
		for k := range s.m {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys
}

// All returns a value-typed snapshot of every entry, keyed by the same
// string keys passed to Set. The returned map is owned by the caller.
func (t *Table[V]) All() map[string]V {
	out := make(map[string]V, t.Len())
	for _, s := range t.shards {
		s.mu.RLock()
		for k, v := range s.m {
			out[k] = v
		}
		s.mu.RUnlock()
	}
	return out
}
