// Package telco defines the telephony core boundary: the engine hands
// call attempts to a Core and receives remote-party events back through
// per-device Handlers. The bundled LocalCore connects registered devices
// to each other so the daemon runs without an external switch.
package telco

import (
	"context"
	"errors"
)

// Endpoint is an RTP receive address a device advertised in its
// open-receive-channel ack.
type Endpoint struct {
	IP    [4]byte
	Port  uint32
	Codec uint32
}

// Party identifies the local side of a call attempt.
type Party struct {
	Device      string
	LineName    string
	DisplayName string
}

// Clear causes reported through RemoteCleared.
const (
	ClearNormal      = "normal"
	ClearBusy        = "busy"
	ClearRejected    = "rejected"
	ClearUnreachable = "unreachable"
)

// ErrNoRoute means the destination resolves to no attached device.
var ErrNoRoute = errors.New("no route to destination")

// Handler receives core events for one attached device. Implementations
// must not block; the core invokes them outside its lock but from
// arbitrary goroutines.
type Handler interface {
	// InboundOffer announces a new call toward the device. The handler
	// owns the handle from this point on.
	InboundOffer(handle, destination, callerName, callerNumber string)

	// RemoteRinging reports the far end alerting an outbound attempt.
	RemoteRinging(handle string)

	// RemoteAnswered reports the far end accepting an outbound attempt.
	RemoteAnswered(handle string)

	// RemoteCleared reports the far end leaving the call.
	RemoteCleared(handle, cause string)

	// PeerMediaReady delivers the far end's RTP endpoint once known.
	PeerMediaReady(handle string, peer Endpoint)

	// PeerMediaStopped reports the far end pausing its media path.
	PeerMediaStopped(handle string)
}

// Core is the switching fabric. Handles are opaque strings minted by the
// core; the engine stores them in the session directory.
type Core interface {
	// Attach registers a device and the line names it answers for.
	Attach(device string, lines []string, h Handler)

	// Detach removes a device. Live calls involving it are cleared.
	Detach(device string)

	// Originate starts an outbound attempt and returns the caller-side
	// handle. The callee side sees InboundOffer. A non-nil bind receives
	// the caller handle before any offer is delivered, so core events
	// racing the return can already resolve it.
	Originate(ctx context.Context, from Party, destination string, bind func(handle string)) (string, error)

	// Ring reports that the device behind handle started alerting.
	Ring(handle string)

	// Answer accepts the call behind handle.
	Answer(handle string) error

	// Hangup clears the leg behind handle.
	Hangup(handle, cause string) error

	// Hold pauses media on the leg; Unhold resumes it.
	Hold(handle string) error
	Unhold(handle string) error

	// Bridge links two legs of the same device into one call, used when
	// completing a transfer. Both local legs are released by the caller.
	Bridge(handleA, handleB string) error

	// MediaReady records the local RTP endpoint for a leg.
	MediaReady(handle string, ep Endpoint)
}
