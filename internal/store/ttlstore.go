// Package store provides a generic in-memory map with per-entry TTL and a
// background sweep. The device registry uses it to expire registrations
// whose keepalive lapsed.
package store

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// TTLStore maps keys to values that expire unless refreshed. A sweep
// goroutine removes expired entries on a fixed interval and reports each
// one to the eviction callback.
type TTLStore[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]*entry[V]
	stopCh  chan struct{}
	onEvict func(key K, value V)
}

// NewTTLStore starts the sweep goroutine. onEvict may be nil; it runs
// outside the store lock, so callbacks may call back into the store.
func NewTTLStore[K comparable, V any](sweepInterval time.Duration, onEvict func(key K, value V)) *TTLStore[K, V] {
	s := &TTLStore[K, V]{
		items:   make(map[K]*entry[V]),
		stopCh:  make(chan struct{}),
		onEvict: onEvict,
	}
	go s.sweepLoop(sweepInterval)
	return s
}

// Set stores value under key with the given lifetime, replacing any
// previous entry.
func (s *TTLStore[K, V]) Set(key K, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = &entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
}

// Get returns the live value for key. Expired entries read as absent even
// before the sweep removes them.
func (s *TTLStore[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	if !ok || e.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Has reports whether key holds a live entry.
func (s *TTLStore[K, V]) Has(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	return ok && !e.expired(time.Now())
}

// Refresh extends the lifetime of an existing entry. It returns false if
// the key is absent.
func (s *TTLStore[K, V]) Refresh(key K, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok {
		return false
	}
	e.expiresAt = time.Now().Add(ttl)
	return true
}

// Delete removes key without invoking the eviction callback.
func (s *TTLStore[K, V]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)
	return true
}

// Len counts live entries.
func (s *TTLStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	n := 0
	for _, e := range s.items {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// All snapshots the live entries.
func (s *TTLStore[K, V]) All() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	out := make(map[K]V, len(s.items))
	for k, e := range s.items {
		if !e.expired(now) {
			out[k] = e.value
		}
	}
	return out
}

// ForEach visits live entries under the read lock; fn must not block or
// call back into the store. Return false to stop early.
func (s *TTLStore[K, V]) ForEach(fn func(key K, value V) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	for k, e := range s.items {
		if e.expired(now) {
			continue
		}
		if !fn(k, e.value) {
			return
		}
	}
}

// Close stops the sweep goroutine. Remaining entries are dropped without
// eviction callbacks.
func (s *TTLStore[K, V]) Close() {
	close(s.stopCh)
	s.mu.Lock()
	s.items = make(map[K]*entry[V])
	s.mu.Unlock()
}

func (s *TTLStore[K, V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *TTLStore[K, V]) sweep() {
	type evicted struct {
		key   K
		value V
	}
	now := time.Now()

	s.mu.Lock()
	var gone []evicted
	for k, e := range s.items {
		if e.expired(now) {
			gone = append(gone, evicted{k, e.value})
			delete(s.items, k)
		}
	}
	onEvict := s.onEvict
	s.mu.Unlock()

	if onEvict == nil {
		return
	}
	for _, e := range gone {
		onEvict(e.key, e.value)
	}
}
