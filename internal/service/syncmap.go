package service

import (
	"iter"
	"sync"
)

// SyncMap is a type-safe concurrent map guarded by a RWMutex.
type SyncMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

// NewSyncMap creates an empty map.
func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{m: make(map[K]V)}
}

// Load returns the value stored for key.
func (sm *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	value, ok = sm.m[key]
	return
}

// LoadOrStore returns the existing value for key if present. Otherwise it
// stores value and returns it. loaded is true if the value was already there.
func (sm *SyncMap[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if existing, ok := sm.m[key]; ok {
		return existing, true
	}
	sm.m[key] = value
	return value, false
}

// CompareAndDelete removes key only while match reports true for its value.
func (sm *SyncMap[K, V]) CompareAndDelete(key K, match func(V) bool) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if v, ok := sm.m[key]; ok && match(v) {
		delete(sm.m, key)
		return true
	}
	return false
}

// Len returns the number of entries.
func (sm *SyncMap[K, V]) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.m)
}

// All iterates over a snapshot of the map.
func (sm *SyncMap[K, V]) All() iter.Seq2[K, V] {
	sm.mu.RLock()
	snapshot := make(map[K]V, len(sm.m))
	for k, v := range sm.m {
		snapshot[k] = v
	}
	sm.mu.RUnlock()

	return func(yield func(K, V) bool) {
		for k, v := range snapshot {
			if !yield(k, v) {
				return
			}
		}
	}
}
