// Package session tracks live calls. The directory is the single shared
// table between listener goroutines, the expiry sweep and the admin API,
// guarded by one mutex. All getters return copies so callers never touch
// telephony or media interfaces while the lock is held.
package session

import (
	"sync"
	"time"

	"github.com/rbeving/sccpd/internal/sccp/wire"
)

// Key identifies one line appearance of one device.
type Key struct {
	Device   string
	Instance uint32
}

// Entry is the live state of one call leg on one line appearance.
type Entry struct {
	Key          Key
	CallID       uint32
	Handle       string // telephony core channel handle
	State        wire.CallState
	Digits       string
	CallType     uint32
	RemoteName   string
	RemoteNumber string

	// Transfer linkage. On the consultation leg TransferFrom names the
	// held call; on the held call TransferTo names the consultation leg.
	TransferFrom uint32
	TransferTo   uint32

	CreatedAt time.Time
}

type entryKey struct {
	key    Key
	callID uint32
}

// Directory is the shared call table.
type Directory struct {
	mu      sync.Mutex
	entries map[entryKey]*Entry
}

func NewDirectory() *Directory {
	return &Directory{entries: make(map[entryKey]*Entry)}
}

// Put inserts or replaces the entry for (key, callID).
func (d *Directory) Put(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := e
	d.entries[entryKey{e.Key, e.CallID}] = &copied
}

// Get returns a copy of the entry for (key, callID). CallID 0 matches any
// call on the key, preferring the most recently created.
func (d *Directory) Get(key Key, callID uint32) (Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.locate(key, callID)
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// State returns the call state for (key, callID), with the CallID 0
// wildcard of Get.
func (d *Directory) State(key Key, callID uint32) (wire.CallState, bool) {
	e, ok := d.Get(key, callID)
	if !ok {
		return 0, false
	}
	return e.State, true
}

// Update applies fn to the entry for (key, callID) under the lock. fn must
// not block or call out. Key, CallID and CreatedAt changes are discarded.
func (d *Directory) Update(key Key, callID uint32, fn func(*Entry)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.locate(key, callID)
	if e == nil {
		return false
	}
	k, id, created := e.Key, e.CallID, e.CreatedAt
	fn(e)
	e.Key, e.CallID, e.CreatedAt = k, id, created
	return true
}

// Remove deletes the entry for (key, callID) and reports whether it
// existed. CallID 0 is not a wildcard here; removal is always exact.
func (d *Directory) Remove(key Key, callID uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ek := entryKey{key, callID}
	if _, ok := d.entries[ek]; !ok {
		return false
	}
	delete(d.entries, ek)
	return true
}

// FindByCallID returns a copy of the entry carrying callID.
func (d *Directory) FindByCallID(callID uint32) (Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ek, e := range d.entries {
		if ek.callID == callID {
			return *e, true
		}
	}
	return Entry{}, false
}

// FindByHandle returns a copy of the entry owning a telephony core
// channel handle.
func (d *Directory) FindByHandle(handle string) (Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.Handle == handle {
			return *e, true
		}
	}
	return Entry{}, false
}

// FindByDevice returns copies of all entries for a device. Instance 0
// matches every line appearance.
func (d *Directory) FindByDevice(device string, instance uint32) []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Entry
	for _, e := range d.entries {
		if e.Key.Device != device {
			continue
		}
		if instance != 0 && e.Key.Instance != instance {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// PurgeDevice removes every entry for a device and returns copies of what
// was removed so the caller can clear the far ends.
func (d *Directory) PurgeDevice(device string) []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Entry
	for ek, e := range d.entries {
		if ek.key.Device == device {
			out = append(out, *e)
			delete(d.entries, ek)
		}
	}
	return out
}

// Count returns the number of live entries.
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// locate runs under d.mu.
func (d *Directory) locate(key Key, callID uint32) *Entry {
	if callID != 0 {
		return d.entries[entryKey{key, callID}]
	}
	var newest *Entry
	for ek, e := range d.entries {
		if ek.key != key {
			continue
		}
		if newest == nil || e.CreatedAt.After(newest.CreatedAt) {
			newest = e
		}
	}
	return newest
}
