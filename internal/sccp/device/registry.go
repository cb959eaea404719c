// Package device owns the per-connection listener: registration, the
// keepalive-bounded read loop, status request handling and dispatch into
// the call machine.
package device

import (
	"sort"
	"sync"
	"time"

	"github.com/rbeving/sccpd/internal/store"
)

// Registry tracks registered devices by name. A name registers at most
// once across all connections; entries expire when keepalives stop.
type Registry struct {
	mu    sync.Mutex
	ttl   time.Duration
	store *store.TTLStore[string, *Listener]
}

// NewRegistry creates a registry whose entries live for ttl without a
// refresh. onExpire runs for each evicted device, off the sweep
// goroutine.
func NewRegistry(ttl, sweepInterval time.Duration, onExpire func(name string, l *Listener)) *Registry {
	return &Registry{
		ttl:   ttl,
		store: store.NewTTLStore[string, *Listener](sweepInterval, onExpire),
	}
}

// Add claims name for l. It fails when another listener holds the name.
func (r *Registry) Add(name string, l *Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store.Get(name); ok {
		return false
	}
	r.store.Set(name, l, r.ttl)
	return true
}

// Refresh extends the lease, called on every message from the device.
func (r *Registry) Refresh(name string) {
	r.store.Refresh(name, r.ttl)
}

// Remove drops name only while l still owns it, so a reconnecting
// device cannot be unregistered by its dying predecessor.
func (r *Registry) Remove(name string, l *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.store.Get(name); ok && cur == l {
		r.store.Delete(name)
	}
}

func (r *Registry) Get(name string) (*Listener, bool) {
	return r.store.Get(name)
}

// Names returns the registered device names, sorted.
func (r *Registry) Names() []string {
	all := r.store.All()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int { return r.store.Len() }

// Close stops the sweep goroutine. Listeners are closed by their owner.
func (r *Registry) Close() { r.store.Close() }
