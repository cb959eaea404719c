// Package call implements the per-device call state machine: digit
// collection, dialing, hold/resume, transfer and the media command
// sequences each transition emits.
package call

import (
	"fmt"

	"github.com/rbeving/sccpd/internal/sccp/wire"
)

// Event is a call state machine input, from the device or from the
// telephony core.
type Event int

const (
	EvOffHook Event = iota
	EvDigit
	EvDialComplete
	EvDialInvalid
	EvOnHook
	EvHold
	EvResume
	EvAnswer
	EvTransfer
	EvMediaAck
	EvRemoteRinging
	EvRemoteAnswered
	EvRemoteCleared
	EvRemoteBusy
	EvRemotePickedUp
	EvPeerMediaReady
	EvPeerMediaStopped
)

func (e Event) String() string {
	switch e {
	case EvOffHook:
		return "off-hook"
	case EvDigit:
		return "digit"
	case EvDialComplete:
		return "dial-complete"
	case EvDialInvalid:
		return "dial-invalid"
	case EvOnHook:
		return "on-hook"
	case EvHold:
		return "hold"
	case EvResume:
		return "resume"
	case EvAnswer:
		return "answer"
	case EvTransfer:
		return "transfer"
	case EvMediaAck:
		return "media-ack"
	case EvRemoteRinging:
		return "remote-ringing"
	case EvRemoteAnswered:
		return "remote-answered"
	case EvRemoteCleared:
		return "remote-cleared"
	case EvRemoteBusy:
		return "remote-busy"
	case EvRemotePickedUp:
		return "remote-picked-up"
	case EvPeerMediaReady:
		return "peer-media-ready"
	case EvPeerMediaStopped:
		return "peer-media-stopped"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

type trKey struct {
	state wire.CallState
	event Event
}

// transitionTable is the single table deciding which (state, event)
// pairs are legal and what state they lead to. Pairs absent here are
// protocol errors: logged and ignored.
var transitionTable = []struct {
	state wire.CallState
	event Event
	next  wire.CallState
}{
	// Digit collection on a fresh outbound call.
	{wire.StateOffHook, EvDigit, wire.StateOffHook},
	{wire.StateOffHook, EvDialComplete, wire.StateProceed},
	{wire.StateOffHook, EvDialInvalid, wire.StateInvalidNumber},
	{wire.StateOffHook, EvOnHook, wire.StateOnHook},

	// Outbound progress.
	{wire.StateProceed, EvRemoteRinging, wire.StateRingOut},
	{wire.StateProceed, EvRemoteAnswered, wire.StateConnected},
	{wire.StateProceed, EvRemoteBusy, wire.StateBusy},
	{wire.StateProceed, EvRemoteCleared, wire.StateOnHook},
	{wire.StateProceed, EvOnHook, wire.StateOnHook},

	{wire.StateRingOut, EvRemoteAnswered, wire.StateConnected},
	{wire.StateRingOut, EvRemoteBusy, wire.StateBusy},
	{wire.StateRingOut, EvRemoteCleared, wire.StateOnHook},
	{wire.StateRingOut, EvOnHook, wire.StateOnHook},

	// Inbound alerting.
	{wire.StateRingIn, EvAnswer, wire.StateConnected},
	{wire.StateRingIn, EvOffHook, wire.StateConnected},
	{wire.StateRingIn, EvOnHook, wire.StateOnHook},
	{wire.StateRingIn, EvRemoteCleared, wire.StateOnHook},
	{wire.StateRingIn, EvRemotePickedUp, wire.StateInUseRemotely},

	{wire.StateCallWaiting, EvAnswer, wire.StateConnected},
	{wire.StateCallWaiting, EvOffHook, wire.StateConnected},
	{wire.StateCallWaiting, EvOnHook, wire.StateOnHook},
	{wire.StateCallWaiting, EvRemoteCleared, wire.StateOnHook},
	{wire.StateCallWaiting, EvRemotePickedUp, wire.StateInUseRemotely},

	// Live call.
	{wire.StateConnected, EvMediaAck, wire.StateConnected},
	{wire.StateConnected, EvPeerMediaReady, wire.StateConnected},
	{wire.StateConnected, EvPeerMediaStopped, wire.StateConnected},
	{wire.StateConnected, EvHold, wire.StateHold},
	{wire.StateConnected, EvTransfer, wire.StateHold},
	{wire.StateConnected, EvOnHook, wire.StateOnHook},
	{wire.StateConnected, EvRemoteCleared, wire.StateOnHook},

	{wire.StateHold, EvResume, wire.StateConnected},
	{wire.StateHold, EvTransfer, wire.StateHold},
	{wire.StateHold, EvMediaAck, wire.StateHold},
	{wire.StateHold, EvOnHook, wire.StateOnHook},
	{wire.StateHold, EvRemoteCleared, wire.StateOnHook},

	// Display states; only on-hook or the far end leaves them.
	{wire.StateBusy, EvOnHook, wire.StateOnHook},
	{wire.StateBusy, EvRemoteCleared, wire.StateOnHook},
	{wire.StateCongestion, EvOnHook, wire.StateOnHook},
	{wire.StateInvalidNumber, EvOnHook, wire.StateOnHook},
	{wire.StateInvalidNumber, EvDigit, wire.StateInvalidNumber},
	{wire.StateInUseRemotely, EvOnHook, wire.StateOnHook},
	{wire.StateInUseRemotely, EvRemoteCleared, wire.StateOnHook},
}

var transitions = make(map[trKey]wire.CallState, len(transitionTable))

func init() {
	for _, t := range transitionTable {
		transitions[trKey{t.state, t.event}] = t.next
	}
}

// transition returns the next state for (state, event), or false when the
// pair is not legal.
func transition(state wire.CallState, event Event) (wire.CallState, bool) {
	next, ok := transitions[trKey{state, event}]
	return next, ok
}
