package telco

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ClearPickedUp is reported to shared-line candidates that lost the race
// to answer.
const ClearPickedUp = "answered-elsewhere"

type attachment struct {
	handler Handler
	lines   map[string]bool
}

type leg struct {
	handle   string
	device   string
	party    Party
	peer     string   // set once the call has a single far end
	ringing  []string // callee candidates, caller side only
	answered bool
	held     bool
	ep       *Endpoint
}

// LocalCore switches calls between attached devices in-process. One
// mutex guards both tables; handler callbacks run after the lock is
// released to keep the no-external-calls-under-lock rule.
type LocalCore struct {
	mu      sync.Mutex
	logger  *slog.Logger
	devices map[string]*attachment
	legs    map[string]*leg
}

func NewLocalCore(logger *slog.Logger) *LocalCore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalCore{
		logger:  logger,
		devices: make(map[string]*attachment),
		legs:    make(map[string]*leg),
	}
}

func (c *LocalCore) Attach(device string, lineNames []string, h Handler) {
	set := make(map[string]bool, len(lineNames))
	for _, n := range lineNames {
		set[n] = true
	}
	c.mu.Lock()
	c.devices[device] = &attachment{handler: h, lines: set}
	c.mu.Unlock()
	c.logger.Info("[Telco] device attached", "device", device, "lines", len(lineNames))
}

func (c *LocalCore) Detach(device string) {
	c.mu.Lock()
	delete(c.devices, device)
	var orphaned []string
	for handle, l := range c.legs {
		if l.device == device {
			orphaned = append(orphaned, handle)
		}
	}
	c.mu.Unlock()

	for _, handle := range orphaned {
		if err := c.Hangup(handle, ClearNormal); err != nil {
			c.logger.Warn("[Telco] hangup on detach failed", "handle", handle, "error", err)
		}
	}
	c.logger.Info("[Telco] device detached", "device", device)
}

// Originate rings every attached device that answers for destination,
// except the caller itself. The first Answer wins. bind runs after the
// caller leg exists and before any callee is offered the call.
func (c *LocalCore) Originate(_ context.Context, from Party, destination string, bind func(handle string)) (string, error) {
	c.mu.Lock()
	var targets []string
	for name, att := range c.devices {
		if name != from.Device && att.lines[destination] {
			targets = append(targets, name)
		}
	}
	if len(targets) == 0 {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrNoRoute, destination)
	}

	caller := &leg{handle: uuid.NewString(), device: from.Device, party: from}
	c.legs[caller.handle] = caller

	type offer struct {
		h      Handler
		handle string
	}
	var offers []offer
	for _, target := range targets {
		callee := &leg{handle: uuid.NewString(), device: target, peer: caller.handle}
		c.legs[callee.handle] = callee
		caller.ringing = append(caller.ringing, callee.handle)
		offers = append(offers, offer{c.devices[target].handler, callee.handle})
	}
	c.mu.Unlock()

	if bind != nil {
		bind(caller.handle)
	}
	for _, o := range offers {
		o.h.InboundOffer(o.handle, destination, from.DisplayName, from.LineName)
	}
	c.logger.Info("[Telco] originate", "from", from.Device, "destination", destination, "targets", len(targets))
	return caller.handle, nil
}

func (c *LocalCore) Ring(handle string) {
	c.mu.Lock()
	l, ok := c.legs[handle]
	if !ok || l.peer == "" {
		c.mu.Unlock()
		return
	}
	caller, ok := c.legs[l.peer]
	if !ok || caller.answered {
		c.mu.Unlock()
		return
	}
	h := c.handlerLocked(caller.device)
	callerHandle := caller.handle
	c.mu.Unlock()

	if h != nil {
		h.RemoteRinging(callerHandle)
	}
}

func (c *LocalCore) Answer(handle string) error {
	c.mu.Lock()
	callee, ok := c.legs[handle]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("answer: unknown handle %s", handle)
	}
	caller, ok := c.legs[callee.peer]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("answer: leg %s has no caller", handle)
	}
	if caller.answered {
		c.mu.Unlock()
		return fmt.Errorf("answer: call already answered elsewhere")
	}

	caller.answered = true
	caller.peer = callee.handle
	callee.answered = true

	// Losing candidates are cleared.
	type clearTarget struct {
		h      Handler
		handle string
	}
	var losers []clearTarget
	for _, cand := range caller.ringing {
		if cand == callee.handle {
			continue
		}
		if l, ok := c.legs[cand]; ok {
			delete(c.legs, cand)
			if h := c.handlerLocked(l.device); h != nil {
				losers = append(losers, clearTarget{h, cand})
			}
		}
	}
	caller.ringing = nil
	callerHandler := c.handlerLocked(caller.device)
	callerHandle := caller.handle
	c.mu.Unlock()

	for _, loser := range losers {
		loser.h.RemoteCleared(loser.handle, ClearPickedUp)
	}
	if callerHandler != nil {
		callerHandler.RemoteAnswered(callerHandle)
	}
	c.exchangeMedia(handle)
	return nil
}

func (c *LocalCore) Hangup(handle, cause string) error {
	c.mu.Lock()
	l, ok := c.legs[handle]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("hangup: unknown handle %s", handle)
	}
	delete(c.legs, handle)

	type clearTarget struct {
		h      Handler
		handle string
		cause  string
	}
	var notify []clearTarget
	if peer, ok := c.legs[l.peer]; ok {
		// A caller abandoning a ring group clears every candidate; a
		// lone candidate hanging up busies the caller.
		if len(peer.ringing) > 1 {
			remaining := peer.ringing[:0]
			for _, cand := range peer.ringing {
				if cand != handle {
					remaining = append(remaining, cand)
				}
			}
			peer.ringing = remaining
		} else {
			delete(c.legs, peer.handle)
			peerCause := cause
			if !peer.answered && peer.ringing != nil {
				peerCause = ClearBusy
			}
			if h := c.handlerLocked(peer.device); h != nil {
				notify = append(notify, clearTarget{h, peer.handle, peerCause})
			}
		}
	}
	for _, cand := range l.ringing {
		if cl, ok := c.legs[cand]; ok {
			delete(c.legs, cand)
			if h := c.handlerLocked(cl.device); h != nil {
				notify = append(notify, clearTarget{h, cand, ClearNormal})
			}
		}
	}
	c.mu.Unlock()

	for _, n := range notify {
		n.h.RemoteCleared(n.handle, n.cause)
	}
	return nil
}

func (c *LocalCore) Hold(handle string) error {
	c.mu.Lock()
	l, ok := c.legs[handle]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("hold: unknown handle %s", handle)
	}
	l.held = true
	l.ep = nil
	var h Handler
	var peerHandle string
	if peer, ok := c.legs[l.peer]; ok {
		h = c.handlerLocked(peer.device)
		peerHandle = peer.handle
	}
	c.mu.Unlock()

	if h != nil {
		h.PeerMediaStopped(peerHandle)
	}
	return nil
}

func (c *LocalCore) Unhold(handle string) error {
	c.mu.Lock()
	l, ok := c.legs[handle]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unhold: unknown handle %s", handle)
	}
	l.held = false
	c.mu.Unlock()

	// Media restarts when the device re-advertises its endpoint.
	c.exchangeMedia(handle)
	return nil
}

func (c *LocalCore) Bridge(handleA, handleB string) error {
	c.mu.Lock()
	a, okA := c.legs[handleA]
	b, okB := c.legs[handleB]
	if !okA || !okB {
		c.mu.Unlock()
		return fmt.Errorf("bridge: unknown handle")
	}
	remoteA, okA := c.legs[a.peer]
	remoteB, okB := c.legs[b.peer]
	if !okA || !okB {
		c.mu.Unlock()
		return fmt.Errorf("bridge: leg has no far end")
	}

	remoteA.peer = remoteB.handle
	remoteB.peer = remoteA.handle
	remoteA.answered = true
	remoteB.answered = true
	delete(c.legs, handleA)
	delete(c.legs, handleB)
	bridged := remoteA.handle
	c.mu.Unlock()

	c.exchangeMedia(bridged)
	c.logger.Info("[Telco] bridged", "a", remoteA.device, "b", remoteB.device)
	return nil
}

func (c *LocalCore) MediaReady(handle string, ep Endpoint) {
	c.mu.Lock()
	l, ok := c.legs[handle]
	if !ok {
		c.mu.Unlock()
		return
	}
	copied := ep
	l.ep = &copied
	c.mu.Unlock()

	c.exchangeMedia(handle)
}

// exchangeMedia tells both sides of an answered call where to send RTP,
// once both endpoints are known and neither side is holding.
func (c *LocalCore) exchangeMedia(handle string) {
	c.mu.Lock()
	l, ok := c.legs[handle]
	if !ok || !l.answered || l.held {
		c.mu.Unlock()
		return
	}
	peer, ok := c.legs[l.peer]
	if !ok || !peer.answered || peer.held || l.ep == nil || peer.ep == nil {
		c.mu.Unlock()
		return
	}
	type mediaTarget struct {
		h      Handler
		handle string
		ep     Endpoint
	}
	var targets []mediaTarget
	if h := c.handlerLocked(l.device); h != nil {
		targets = append(targets, mediaTarget{h, l.handle, *peer.ep})
	}
	if h := c.handlerLocked(peer.device); h != nil {
		targets = append(targets, mediaTarget{h, peer.handle, *l.ep})
	}
	c.mu.Unlock()

	for _, t := range targets {
		t.h.PeerMediaReady(t.handle, t.ep)
	}
}

// handlerLocked runs under c.mu.
func (c *LocalCore) handlerLocked(device string) Handler {
	if att, ok := c.devices[device]; ok {
		return att.handler
	}
	return nil
}

// ActiveLegs reports the number of live legs, for the admin API.
func (c *LocalCore) ActiveLegs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.legs)
}
