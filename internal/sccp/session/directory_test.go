package session

import (
	"sync"
	"testing"
	"time"

	"github.com/rbeving/sccpd/internal/sccp/wire"
)

func TestPutGetRemove(t *testing.T) {
	d := NewDirectory()
	key := Key{Device: "SEP001122334455", Instance: 1}

	d.Put(Entry{Key: key, CallID: 10, State: wire.StateOffHook})
	if st, ok := d.State(key, 10); !ok || st != wire.StateOffHook {
		t.Fatalf("state = %v, %v", st, ok)
	}
	if !d.Remove(key, 10) {
		t.Fatal("remove failed")
	}
	if _, ok := d.Get(key, 10); ok {
		t.Fatal("entry survived removal")
	}
	if d.Remove(key, 10) {
		t.Fatal("second remove reported success")
	}
}

func TestCallIDZeroMatchesNewest(t *testing.T) {
	d := NewDirectory()
	key := Key{Device: "SEP001122334455", Instance: 1}

	d.Put(Entry{Key: key, CallID: 1, State: wire.StateHold, CreatedAt: time.Now().Add(-time.Minute)})
	d.Put(Entry{Key: key, CallID: 2, State: wire.StateConnected, CreatedAt: time.Now()})

	e, ok := d.Get(key, 0)
	if !ok || e.CallID != 2 {
		t.Fatalf("wildcard get = %+v, %v", e, ok)
	}
	// Exact lookups still find the older call.
	if st, _ := d.State(key, 1); st != wire.StateHold {
		t.Fatalf("call 1 state = %v", st)
	}
}

func TestUpdateKeepsIdentity(t *testing.T) {
	d := NewDirectory()
	key := Key{Device: "SEP0011AABBCCDD", Instance: 2}
	d.Put(Entry{Key: key, CallID: 7, State: wire.StateOffHook})

	ok := d.Update(key, 7, func(e *Entry) {
		e.State = wire.StateProceed
		e.Digits = "42"
		e.CallID = 999 // must be discarded
	})
	if !ok {
		t.Fatal("update failed")
	}
	e, _ := d.Get(key, 7)
	if e.State != wire.StateProceed || e.Digits != "42" {
		t.Fatalf("entry = %+v", e)
	}
	if e.CallID != 7 {
		t.Fatalf("callID mutated to %d", e.CallID)
	}
}

func TestFindByCallIDHandleAndDevice(t *testing.T) {
	d := NewDirectory()
	a := Key{Device: "SEP-A", Instance: 1}
	b := Key{Device: "SEP-B", Instance: 1}
	d.Put(Entry{Key: a, CallID: 1, Handle: "chan-a"})
	d.Put(Entry{Key: a, CallID: 2, Handle: "chan-a2"})
	d.Put(Entry{Key: b, CallID: 3, Handle: "chan-b"})

	if e, ok := d.FindByCallID(3); !ok || e.Key.Device != "SEP-B" {
		t.Fatalf("by call id = %+v, %v", e, ok)
	}
	if e, ok := d.FindByHandle("chan-a2"); !ok || e.CallID != 2 {
		t.Fatalf("by handle = %+v, %v", e, ok)
	}
	if got := len(d.FindByDevice("SEP-A", 0)); got != 2 {
		t.Fatalf("device entries = %d, want 2", got)
	}
	if got := len(d.FindByDevice("SEP-A", 2)); got != 0 {
		t.Fatalf("instance filter = %d, want 0", got)
	}
}

func TestPurgeDevice(t *testing.T) {
	d := NewDirectory()
	a := Key{Device: "SEP-A", Instance: 1}
	b := Key{Device: "SEP-B", Instance: 1}
	d.Put(Entry{Key: a, CallID: 1})
	d.Put(Entry{Key: a, CallID: 2})
	d.Put(Entry{Key: b, CallID: 3})

	purged := d.PurgeDevice("SEP-A")
	if len(purged) != 2 {
		t.Fatalf("purged = %d, want 2", len(purged))
	}
	if d.Count() != 1 {
		t.Fatalf("count = %d, want 1", d.Count())
	}
	if _, ok := d.FindByCallID(3); !ok {
		t.Fatal("other device lost its entry")
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	d := NewDirectory()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			key := Key{Device: "SEP", Instance: uint32(w + 1)}
			for i := 0; i < 200; i++ {
				id := uint32(w*200 + i + 1)
				d.Put(Entry{Key: key, CallID: id, State: wire.StateOffHook})
				d.Update(key, id, func(e *Entry) { e.State = wire.StateConnected })
				if st, ok := d.State(key, id); !ok || st != wire.StateConnected {
					t.Errorf("state = %v, %v", st, ok)
					return
				}
				d.FindByDevice("SEP", 0)
			}
		}(w)
	}
	wg.Wait()
	if got := d.Count(); got != 800 {
		t.Fatalf("count = %d, want 800", got)
	}
}
