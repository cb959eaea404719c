package telco

import (
	"context"
	"strings"
	"sync"
	"testing"
)

type recordedEvent struct {
	kind   string
	handle string
	detail string
	ep     Endpoint
}

type recordingHandler struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingHandler) record(e recordedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingHandler) InboundOffer(handle, destination, callerName, callerNumber string) {
	r.record(recordedEvent{kind: "offer", handle: handle, detail: destination + "<" + callerNumber})
}
func (r *recordingHandler) RemoteRinging(handle string) {
	r.record(recordedEvent{kind: "ringing", handle: handle})
}
func (r *recordingHandler) RemoteAnswered(handle string) {
	r.record(recordedEvent{kind: "answered", handle: handle})
}
func (r *recordingHandler) RemoteCleared(handle, cause string) {
	r.record(recordedEvent{kind: "cleared", handle: handle, detail: cause})
}
func (r *recordingHandler) PeerMediaReady(handle string, peer Endpoint) {
	r.record(recordedEvent{kind: "media", handle: handle, ep: peer})
}
func (r *recordingHandler) PeerMediaStopped(handle string) {
	r.record(recordedEvent{kind: "media-stopped", handle: handle})
}

func (r *recordingHandler) find(kind string) (recordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.kind == kind {
			return e, true
		}
	}
	return recordedEvent{}, false
}

func (r *recordingHandler) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func attachPair(t *testing.T) (*LocalCore, *recordingHandler, *recordingHandler) {
	t.Helper()
	core := NewLocalCore(nil)
	alice := &recordingHandler{}
	bob := &recordingHandler{}
	core.Attach("SEP-ALICE", []string{"1001"}, alice)
	core.Attach("SEP-BOB", []string{"1002"}, bob)
	return core, alice, bob
}

func TestOriginateRingAnswer(t *testing.T) {
	core, alice, bob := attachPair(t)

	callerHandle, err := core.Originate(context.Background(),
		Party{Device: "SEP-ALICE", LineName: "1001", DisplayName: "Alice"}, "1002", nil)
	if err != nil {
		t.Fatalf("originate: %v", err)
	}

	offer, ok := bob.find("offer")
	if !ok {
		t.Fatal("bob received no offer")
	}
	if !strings.HasPrefix(offer.detail, "1002<") {
		t.Errorf("offer detail = %q", offer.detail)
	}

	core.Ring(offer.handle)
	if ring, ok := alice.find("ringing"); !ok || ring.handle != callerHandle {
		t.Fatalf("alice ringing = %+v, %v", ring, ok)
	}

	if err := core.Answer(offer.handle); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if ans, ok := alice.find("answered"); !ok || ans.handle != callerHandle {
		t.Fatalf("alice answered = %+v, %v", ans, ok)
	}
}

// ringOnOffer alerts immediately from inside the offer callback, the
// way a device machine does during Originate.
type ringOnOffer struct {
	recordingHandler
	core *LocalCore
}

func (r *ringOnOffer) InboundOffer(handle, destination, callerName, callerNumber string) {
	r.recordingHandler.InboundOffer(handle, destination, callerName, callerNumber)
	r.core.Ring(handle)
}

func TestOriginateBindsHandleBeforeOffers(t *testing.T) {
	core := NewLocalCore(nil)
	var bound string
	alice := &recordingHandler{}
	bob := &ringOnOffer{core: core}
	core.Attach("SEP-ALICE", []string{"1001"}, alice)
	core.Attach("SEP-BOB", []string{"1002"}, bob)

	handle, err := core.Originate(context.Background(),
		Party{Device: "SEP-ALICE", LineName: "1001"}, "1002",
		func(h string) {
			bound = h
			if _, ok := bob.find("offer"); ok {
				t.Error("offer delivered before bind")
			}
		})
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	if bound != handle {
		t.Fatalf("bound = %q, handle = %q", bound, handle)
	}
	// Bob rang from inside the offer; the ring reached the caller while
	// Originate was still running, with the handle already bound.
	if ring, ok := alice.find("ringing"); !ok || ring.handle != handle {
		t.Fatalf("alice ringing = %+v, %v", ring, ok)
	}
}

func TestOriginateNoRoute(t *testing.T) {
	core, _, _ := attachPair(t)
	if _, err := core.Originate(context.Background(), Party{Device: "SEP-ALICE"}, "9999", nil); err == nil {
		t.Fatal("want no-route error")
	}
}

func TestMediaExchangeAfterBothAck(t *testing.T) {
	core, alice, bob := attachPair(t)

	callerHandle, _ := core.Originate(context.Background(),
		Party{Device: "SEP-ALICE", LineName: "1001"}, "1002", nil)
	offer, _ := bob.find("offer")
	if err := core.Answer(offer.handle); err != nil {
		t.Fatal(err)
	}

	aliceEP := Endpoint{IP: [4]byte{10, 0, 0, 1}, Port: 16384, Codec: 4}
	bobEP := Endpoint{IP: [4]byte{10, 0, 0, 2}, Port: 16390, Codec: 4}

	core.MediaReady(callerHandle, aliceEP)
	if alice.count("media") != 0 {
		t.Fatal("media exchanged before both endpoints known")
	}
	core.MediaReady(offer.handle, bobEP)

	am, ok := alice.find("media")
	if !ok || am.ep != bobEP {
		t.Fatalf("alice media = %+v, %v", am, ok)
	}
	bm, ok := bob.find("media")
	if !ok || bm.ep != aliceEP {
		t.Fatalf("bob media = %+v, %v", bm, ok)
	}
}

func TestHoldStopsPeerMedia(t *testing.T) {
	core, alice, bob := attachPair(t)

	callerHandle, _ := core.Originate(context.Background(),
		Party{Device: "SEP-ALICE", LineName: "1001"}, "1002", nil)
	offer, _ := bob.find("offer")
	core.Answer(offer.handle)
	core.MediaReady(callerHandle, Endpoint{Port: 1})
	core.MediaReady(offer.handle, Endpoint{Port: 2})

	if err := core.Hold(callerHandle); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if _, ok := bob.find("media-stopped"); !ok {
		t.Fatal("bob never told to stop media")
	}

	// Resume: holder re-advertises a fresh endpoint, both sides get
	// exactly one more media exchange.
	aliceMedia, bobMedia := alice.count("media"), bob.count("media")
	core.Unhold(callerHandle)
	core.MediaReady(callerHandle, Endpoint{Port: 3})
	if got := alice.count("media") - aliceMedia; got != 1 {
		t.Errorf("alice extra media = %d, want 1", got)
	}
	if got := bob.count("media") - bobMedia; got != 1 {
		t.Errorf("bob extra media = %d, want 1", got)
	}
}

func TestHangupClearsPeer(t *testing.T) {
	core, _, bob := attachPair(t)

	callerHandle, _ := core.Originate(context.Background(),
		Party{Device: "SEP-ALICE", LineName: "1001"}, "1002", nil)
	offer, _ := bob.find("offer")
	core.Answer(offer.handle)

	if err := core.Hangup(callerHandle, ClearNormal); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	cleared, ok := bob.find("cleared")
	if !ok || cleared.handle != offer.handle || cleared.detail != ClearNormal {
		t.Fatalf("bob cleared = %+v, %v", cleared, ok)
	}
	if core.ActiveLegs() != 0 {
		t.Fatalf("legs = %d, want 0", core.ActiveLegs())
	}
}

func TestRejectBusiesCaller(t *testing.T) {
	core, alice, bob := attachPair(t)

	_, _ = core.Originate(context.Background(),
		Party{Device: "SEP-ALICE", LineName: "1001"}, "1002", nil)
	offer, _ := bob.find("offer")

	if err := core.Hangup(offer.handle, ClearRejected); err != nil {
		t.Fatal(err)
	}
	cleared, ok := alice.find("cleared")
	if !ok || cleared.detail != ClearBusy {
		t.Fatalf("alice cleared = %+v, %v", cleared, ok)
	}
}

func TestSharedLineFirstAnswerWins(t *testing.T) {
	core := NewLocalCore(nil)
	alice := &recordingHandler{}
	bob1 := &recordingHandler{}
	bob2 := &recordingHandler{}
	core.Attach("SEP-ALICE", []string{"1001"}, alice)
	core.Attach("SEP-BOB1", []string{"1002"}, bob1)
	core.Attach("SEP-BOB2", []string{"1002"}, bob2)

	_, err := core.Originate(context.Background(),
		Party{Device: "SEP-ALICE", LineName: "1001"}, "1002", nil)
	if err != nil {
		t.Fatal(err)
	}
	offer1, ok1 := bob1.find("offer")
	offer2, ok2 := bob2.find("offer")
	if !ok1 || !ok2 {
		t.Fatal("both shared-line devices should ring")
	}

	if err := core.Answer(offer1.handle); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if err := core.Answer(offer2.handle); err == nil {
		t.Fatal("second answer should fail")
	}
	cleared, ok := bob2.find("cleared")
	if !ok || cleared.detail != ClearPickedUp {
		t.Fatalf("loser cleared = %+v, %v", cleared, ok)
	}
}

func TestBridgeRelinksRemoteLegs(t *testing.T) {
	core := NewLocalCore(nil)
	alice := &recordingHandler{}
	bob := &recordingHandler{}
	carol := &recordingHandler{}
	core.Attach("SEP-ALICE", []string{"1001"}, alice)
	core.Attach("SEP-BOB", []string{"1002"}, bob)
	core.Attach("SEP-CAROL", []string{"1003"}, carol)

	// Alice talks to Bob, then consults Carol.
	toBob, _ := core.Originate(context.Background(), Party{Device: "SEP-ALICE", LineName: "1001"}, "1002", nil)
	bobOffer, _ := bob.find("offer")
	core.Answer(bobOffer.handle)
	core.MediaReady(toBob, Endpoint{Port: 1})
	core.MediaReady(bobOffer.handle, Endpoint{Port: 2})

	core.Hold(toBob)
	toCarol, _ := core.Originate(context.Background(), Party{Device: "SEP-ALICE", LineName: "1001"}, "1003", nil)
	carolOffer, _ := carol.find("offer")
	core.Answer(carolOffer.handle)
	core.MediaReady(toCarol, Endpoint{Port: 3})
	core.MediaReady(carolOffer.handle, Endpoint{Port: 4})

	if err := core.Bridge(toBob, toCarol); err != nil {
		t.Fatalf("bridge: %v", err)
	}

	// Bob and Carol now exchange media directly.
	bm := bob.events[len(bob.events)-1]
	cm := carol.events[len(carol.events)-1]
	if bm.kind != "media" || bm.ep.Port != 4 {
		t.Errorf("bob last event = %+v", bm)
	}
	if cm.kind != "media" || cm.ep.Port != 2 {
		t.Errorf("carol last event = %+v", cm)
	}
	// Alice's local legs are gone; only the bridged pair remains.
	if core.ActiveLegs() != 2 {
		t.Fatalf("legs = %d, want 2", core.ActiveLegs())
	}
}
