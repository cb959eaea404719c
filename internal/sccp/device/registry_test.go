package device

import (
	"testing"
	"time"
)

func TestRegistryAddIsExclusive(t *testing.T) {
	r := NewRegistry(time.Minute, time.Second, nil)
	defer r.Close()

	a := &Listener{}
	b := &Listener{}
	if !r.Add("phone-a", a) {
		t.Fatal("first add refused")
	}
	if r.Add("phone-a", b) {
		t.Fatal("second add accepted")
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}
}

func TestRegistryRemoveOnlyByOwner(t *testing.T) {
	r := NewRegistry(time.Minute, time.Second, nil)
	defer r.Close()

	a := &Listener{}
	b := &Listener{}
	r.Add("phone-a", a)

	r.Remove("phone-a", b)
	if _, ok := r.Get("phone-a"); !ok {
		t.Fatal("non-owner removed the entry")
	}
	r.Remove("phone-a", a)
	if _, ok := r.Get("phone-a"); ok {
		t.Fatal("owner could not remove the entry")
	}
}

func TestRegistryExpiryRunsCallback(t *testing.T) {
	expired := make(chan string, 1)
	r := NewRegistry(30*time.Millisecond, 10*time.Millisecond, func(name string, _ *Listener) {
		expired <- name
	})
	defer r.Close()

	r.Add("phone-a", &Listener{})
	select {
	case name := <-expired:
		if name != "phone-a" {
			t.Fatalf("expired %q", name)
		}
	case <-time.After(time.Second):
		t.Fatal("no expiry callback")
	}
}

func TestRegistryRefreshExtendsLease(t *testing.T) {
	expired := make(chan string, 1)
	r := NewRegistry(50*time.Millisecond, 10*time.Millisecond, func(name string, _ *Listener) {
		expired <- name
	})
	defer r.Close()

	r.Add("phone-a", &Listener{})
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		r.Refresh("phone-a")
	}
	select {
	case <-expired:
		t.Fatal("refreshed entry expired")
	default:
	}

	names := r.Names()
	if len(names) != 1 || names[0] != "phone-a" {
		t.Fatalf("names = %v", names)
	}
}
