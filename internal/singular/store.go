package singular

import (
	"slices"
	"sync"
)

type entry[V any] struct {
	value V
	refs  int
}

// Store maps each key to exactly one instance.
type Store[K comparable, V comparable] struct {
	mu      sync.RWMutex
	cmp     func(a, b K) int
	entries map[K]*entry[V]
}

// New builds a store whose listings are ordered by cmp.
func New[K comparable, V comparable](cmp func(a, b K) int) *Store[K, V] {
	return &Store[K, V]{
		cmp:     cmp,
		entries: make(map[K]*entry[V]),
	}
}

// FindOrAdd returns the instance stored under key, inserting build() when
// absent. The returned bool reports whether the instance was inserted. Either
// way the caller holds one new reference.
func (s *Store[K, V]) FindOrAdd(key K, build func() V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.refs++
		return e.value, false
	}
	e := &entry[V]{value: build(), refs: 1}
	s.entries[key] = e
	return e.value, true
}

// Find is a lookup without side effects.
func (s *Store[K, V]) Find(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Acquire looks up key and takes a reference on the instance.
func (s *Store[K, V]) Acquire(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	e.refs++
	return e.value, true
}

// Release drops one reference and returns the remaining count, or -1 when key
// is unknown. The instance stays in the store at zero.
func (s *Store[K, V]) Release(key K) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return -1
	}
	if e.refs > 0 {
		e.refs--
	}
	return e.refs
}

// Refs is the reference count on key, zero when key is unknown.
func (s *Store[K, V]) Refs(key K) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Remove deletes key when it maps to v and nobody holds a reference.
func (s *Store[K, V]) Remove(key K, v V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.value != v || e.refs > 0 {
		return false
	}
	delete(s.entries, key)
	return true
}

// Unreferenced lists zero-reference instances in descending key order.
func (s *Store[K, V]) Unreferenced() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]K, 0)
	for k, e := range s.entries {
		if e.refs == 0 {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b K) int { return s.cmp(b, a) })
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.entries[k].value)
	}
	return out
}

// Keys lists every key in ascending order.
func (s *Store[K, V]) Keys() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedKeys()
}

// Values lists every instance in ascending key order.
func (s *Store[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.sortedKeys()
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.entries[k].value)
	}
	return out
}

// Len counts stored instances, referenced or not.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops every instance regardless of references.
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
}

func (s *Store[K, V]) sortedKeys() []K {
	keys := make([]K, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, s.cmp)
	return keys
}
