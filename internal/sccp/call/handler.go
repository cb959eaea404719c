package call

import (
	"github.com/rbeving/sccpd/internal/sccp/lines"
	"github.com/rbeving/sccpd/internal/sccp/session"
	"github.com/rbeving/sccpd/internal/sccp/wire"
	"github.com/rbeving/sccpd/internal/telco"
)

// The machine is the device's telephony handler: core events arrive here
// and are turned into device command sequences.
var _ telco.Handler = (*Machine)(nil)

// InboundOffer rings the device for a new call toward one of its lines.
// Redelivery with a known handle is a no-op.
func (m *Machine) InboundOffer(handle, destination, callerName, callerNumber string) {
	if _, ok := m.sessions.FindByHandle(handle); ok {
		return
	}
	line, ok := m.lines.LineByName(destination)
	if !ok {
		line, ok = m.lines.Line(0)
		if !ok {
			m.logger.Warn("[Call] offer for device without lines", "device", m.device)
			return
		}
	}

	state := wire.StateRingIn
	var active uint32
	for _, e := range m.sessions.FindByDevice(m.device, 0) {
		if e.State == wire.StateConnected || e.State == wire.StateOffHook || e.State == wire.StateHold {
			state = wire.StateCallWaiting
			active++
		}
	}
	if line.BusyTrigger > 0 && active >= line.BusyTrigger {
		m.logger.Info("[Call] busy trigger reached, refusing offer",
			"device", m.device, "line", line.Name, "active", active)
		if err := m.core.Hangup(handle, telco.ClearBusy); err != nil {
			m.logger.Warn("[Call] busy refusal failed", "device", m.device, "error", err)
		}
		return
	}

	key := session.Key{Device: m.device, Instance: line.Instance}
	callID := m.newID()
	m.sessions.Put(session.Entry{
		Key:          key,
		CallID:       callID,
		Handle:       handle,
		State:        state,
		CallType:     wire.CallTypeInbound,
		RemoteName:   callerName,
		RemoteNumber: callerNumber,
	})

	if state == wire.StateRingIn {
		if line.RingOnIdle != lines.RingSilent {
			m.send(&wire.SetRingerBody{RingType: wire.RingInside, RingMode: wire.RingForever, LineInstance: line.Instance, CallID: callID})
		}
	} else {
		if line.RingOnActive != lines.RingSilent {
			m.send(&wire.StartToneBody{Tone: wire.ToneCallWait, LineInstance: line.Instance, CallID: callID})
		}
	}
	m.send(&wire.SetLampBody{Stimulus: wire.ButtonLine, StimulusInstance: line.Instance, Mode: wire.LampBlink})
	m.sendCallState(state, line.Instance, callID)
	m.send(&wire.SelectSoftKeysBody{LineInstance: line.Instance, CallID: callID,
		SetIndex: wire.KeySetRingIn, ValidKeyMask: wire.SoftKeyMaskAll})
	m.sendPrompt("From "+callerNumber, line.Instance, callID)
	m.sendCallInfo(line.Instance, callID, wire.CallTypeInbound, callerName, callerNumber, line.DisplayName, line.Name)
	m.publishState(key, callID, state, callerNumber)
	m.core.Ring(handle)
}

// RemoteRinging moves an outbound call to ring-out and plays ringback.
func (m *Machine) RemoteRinging(handle string) {
	e, ok := m.sessions.FindByHandle(handle)
	if !ok {
		return
	}
	next, ok := m.advance(e.Key, e.CallID, e.State, EvRemoteRinging)
	if !ok {
		return
	}
	m.sendCallState(next, e.Key.Instance, e.CallID)
	m.send(&wire.SelectSoftKeysBody{LineInstance: e.Key.Instance, CallID: e.CallID,
		SetIndex: wire.KeySetRingOut, ValidKeyMask: wire.SoftKeyMaskAll})
	m.send(&wire.StartToneBody{Tone: wire.ToneAlert, LineInstance: e.Key.Instance, CallID: e.CallID})
	m.sendPrompt("Ring out "+e.RemoteNumber, e.Key.Instance, e.CallID)
	m.publishState(e.Key, e.CallID, next, e.RemoteNumber)
}

// RemoteAnswered connects an outbound call.
func (m *Machine) RemoteAnswered(handle string) {
	e, ok := m.sessions.FindByHandle(handle)
	if !ok {
		return
	}
	next, ok := m.advance(e.Key, e.CallID, e.State, EvRemoteAnswered)
	if !ok {
		return
	}
	m.send(&wire.StopToneBody{LineInstance: e.Key.Instance, CallID: e.CallID})
	m.connectCall(e.Key, e.CallID, next, e.RemoteNumber)
}

// RemoteCleared tears down or repaints the call depending on the cause.
func (m *Machine) RemoteCleared(handle, cause string) {
	e, ok := m.sessions.FindByHandle(handle)
	if !ok {
		return
	}
	switch cause {
	case telco.ClearBusy, telco.ClearRejected:
		m.remoteBusy(e.Key, e.CallID, e.State)
	case telco.ClearPickedUp:
		m.remotePickedUp(e)
	default:
		if _, ok := m.advance(e.Key, e.CallID, e.State, EvRemoteCleared); !ok {
			return
		}
		m.clearLocal(e, cause)
	}
}

// remotePickedUp repaints a shared-line alert that another device won.
func (m *Machine) remotePickedUp(e session.Entry) {
	next, ok := m.advance(e.Key, e.CallID, e.State, EvRemotePickedUp)
	if !ok {
		return
	}
	m.send(&wire.SetRingerBody{RingType: wire.RingOff, RingMode: wire.RingForever, LineInstance: e.Key.Instance, CallID: e.CallID})
	m.send(&wire.StopToneBody{LineInstance: e.Key.Instance, CallID: e.CallID})
	m.send(&wire.SetLampBody{Stimulus: wire.ButtonLine, StimulusInstance: e.Key.Instance, Mode: wire.LampOn})
	m.sendCallState(next, e.Key.Instance, e.CallID)
	m.sendPrompt("In use remote", e.Key.Instance, e.CallID)
	m.publishState(e.Key, e.CallID, next, e.RemoteNumber)
}

// PeerMediaReady points the device's transmit path at the far end.
func (m *Machine) PeerMediaReady(handle string, peer telco.Endpoint) {
	e, ok := m.sessions.FindByHandle(handle)
	if !ok {
		return
	}
	if _, ok := m.advance(e.Key, e.CallID, e.State, EvPeerMediaReady); !ok {
		return
	}
	m.send(&wire.StartMediaTransmissionBody{
		ConferenceID:    e.CallID,
		PassThruPartyID: e.CallID,
		RemoteIP:        peer.IP,
		RemotePort:      peer.Port,
		MSPerPacket:     20,
		PayloadCapacity: peer.Codec,
	})
}

// PeerMediaStopped halts the device's transmit path.
func (m *Machine) PeerMediaStopped(handle string) {
	e, ok := m.sessions.FindByHandle(handle)
	if !ok {
		return
	}
	if _, ok := m.advance(e.Key, e.CallID, e.State, EvPeerMediaStopped); !ok {
		return
	}
	m.send(&wire.StopMediaTransmissionBody{ConferenceID: e.CallID, PassThruPartyID: e.CallID, ConferenceID2: e.CallID})
}
