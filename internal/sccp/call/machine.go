package call

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/rbeving/sccpd/internal/dialplan"
	"github.com/rbeving/sccpd/internal/events"
	"github.com/rbeving/sccpd/internal/sccp/lines"
	"github.com/rbeving/sccpd/internal/sccp/session"
	"github.com/rbeving/sccpd/internal/sccp/wire"
	"github.com/rbeving/sccpd/internal/telco"
)

// Sender delivers messages to the device. The listener serializes writes.
type Sender interface {
	Send(b wire.Body) error
}

// Config wires one machine to its collaborators.
type Config struct {
	Device    string
	Lines     *lines.Directory
	Sessions  *session.Directory
	Core      telco.Core
	Plan      *dialplan.Plan
	Publisher events.Publisher
	Sender    Sender
	Logger    *slog.Logger
	NewCallID func() uint32
}

// Machine drives all calls of one registered device. Per-call state lives
// in the shared session directory; the machine itself holds only
// immutable wiring and the redial memory, so device events and core
// events may run concurrently.
type Machine struct {
	device   string
	lines    *lines.Directory
	sessions *session.Directory
	core     telco.Core
	plan     *dialplan.Plan
	pub      events.Publisher
	sender   Sender
	logger   *slog.Logger
	newID    func() uint32

	lastDialed atomic.Value // string
}

func NewMachine(cfg Config) *Machine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = events.NewNoopPublisher()
	}
	return &Machine{
		device:   cfg.Device,
		lines:    cfg.Lines,
		sessions: cfg.Sessions,
		core:     cfg.Core,
		plan:     cfg.Plan,
		pub:      pub,
		sender:   cfg.Sender,
		logger:   logger,
		newID:    cfg.NewCallID,
	}
}

func (m *Machine) send(b wire.Body) {
	if err := m.sender.Send(b); err != nil {
		m.logger.Warn("[Call] send failed", "device", m.device,
			"message", wire.TypeName(b.MessageType()), "error", err)
	}
}

// advance validates (state, event) against the transition table and
// applies the new state to the session entry. Illegal pairs are logged
// and reported false.
func (m *Machine) advance(key session.Key, callID uint32, current wire.CallState, ev Event) (wire.CallState, bool) {
	next, ok := transition(current, ev)
	if !ok {
		m.logger.Warn("[Call] illegal transition ignored", "device", m.device,
			"call", callID, "state", current.String(), "event", ev.String())
		return current, false
	}
	if next != current {
		m.sessions.Update(key, callID, func(e *session.Entry) { e.State = next })
	}
	return next, true
}

func (m *Machine) publishState(key session.Key, callID uint32, state wire.CallState, remote string) {
	m.pub.PublishAsync(events.NewCallStateChanged(m.device, key.Instance, callID, state.String(), remote))
}

// OffHook handles the handset lifting: answer an alerting call if one
// exists, otherwise open a fresh outbound call.
func (m *Machine) OffHook(instance, callID uint32) {
	for _, e := range m.sessions.FindByDevice(m.device, 0) {
		if e.State == wire.StateRingIn || e.State == wire.StateCallWaiting {
			m.answer(e, EvOffHook)
			return
		}
	}
	m.holdActiveCalls(0)
	m.newCall(instance, 0)
}

// newCall opens an outbound call leg and starts digit collection.
// transferFrom links the consultation call of a transfer.
func (m *Machine) newCall(instance, transferFrom uint32) uint32 {
	line, ok := m.lines.Line(instance)
	if !ok {
		m.logger.Warn("[Call] off-hook on unknown line", "device", m.device, "instance", instance)
		return 0
	}
	key := session.Key{Device: m.device, Instance: line.Instance}
	callID := m.newID()
	m.sessions.Put(session.Entry{
		Key:          key,
		CallID:       callID,
		State:        wire.StateOffHook,
		CallType:     wire.CallTypeOutbound,
		TransferFrom: transferFrom,
	})

	m.send(&wire.SetRingerBody{RingType: wire.RingOff, RingMode: wire.RingForever, LineInstance: line.Instance, CallID: callID})
	m.send(&wire.SetSpeakerModeBody{Mode: wire.SpeakerOn})
	m.send(&wire.SetLampBody{Stimulus: wire.ButtonLine, StimulusInstance: line.Instance, Mode: wire.LampOn})
	m.send(&wire.ActivateCallPlaneBody{LineInstance: line.Instance})
	m.sendCallState(wire.StateOffHook, line.Instance, callID)
	m.send(&wire.SelectSoftKeysBody{LineInstance: line.Instance, CallID: callID,
		SetIndex: wire.KeySetOffHook, ValidKeyMask: wire.SoftKeyMaskAll})
	m.sendPrompt("Enter number", line.Instance, callID)
	m.send(&wire.StartToneBody{Tone: wire.ToneDial, LineInstance: line.Instance, CallID: callID})

	m.publishState(key, callID, wire.StateOffHook, "")
	return callID
}

// NewCall opens a fresh outbound call from a soft key or line button.
func (m *Machine) NewCall(instance uint32) {
	m.holdActiveCalls(0)
	m.newCall(instance, 0)
}

// Redial dials the last routed number again. With no redial memory it
// behaves like NewCall.
func (m *Machine) Redial(instance uint32) {
	last, _ := m.lastDialed.Load().(string)
	if last == "" {
		m.NewCall(instance)
		return
	}
	m.holdActiveCalls(0)
	m.Enbloc(last, instance)
}

// LineButton answers an alerting call on the line, resumes a held one,
// or opens a new call.
func (m *Machine) LineButton(instance uint32) {
	for _, e := range m.sessions.FindByDevice(m.device, instance) {
		switch e.State {
		case wire.StateRingIn, wire.StateCallWaiting:
			m.answer(e, EvAnswer)
			return
		case wire.StateHold:
			m.Resume(e.Key.Instance, e.CallID)
			return
		}
	}
	m.NewCall(instance)
}

// Digit handles one keypad press during collection.
func (m *Machine) Digit(digit rune, instance, callID uint32) {
	key := session.Key{Device: m.device, Instance: instance}
	if instance == 0 {
		if line, ok := m.lines.Line(0); ok {
			key.Instance = line.Instance
		}
	}
	e, ok := m.sessions.Get(key, callID)
	if !ok {
		m.logger.Warn("[Call] digit with no call", "device", m.device, "instance", instance)
		return
	}
	if _, ok := m.advance(e.Key, e.CallID, e.State, EvDigit); !ok || e.State != wire.StateOffHook {
		return
	}

	digits := e.Digits + string(digit)
	m.sessions.Update(e.Key, e.CallID, func(en *session.Entry) { en.Digits = digits })
	if len(digits) == 1 {
		m.send(&wire.StopToneBody{LineInstance: e.Key.Instance, CallID: e.CallID})
		m.send(&wire.SelectSoftKeysBody{LineInstance: e.Key.Instance, CallID: e.CallID,
			SetIndex: wire.KeySetDigitsAfterFirst, ValidKeyMask: wire.SoftKeyMaskAll})
	}
	m.evaluateDigits(e.Key, e.CallID, digits)
}

// Backspace removes the last collected digit.
func (m *Machine) Backspace(instance, callID uint32) {
	key := session.Key{Device: m.device, Instance: instance}
	if instance == 0 {
		if line, ok := m.lines.Line(0); ok {
			key.Instance = line.Instance
		}
	}
	e, ok := m.sessions.Get(key, callID)
	if !ok || e.State != wire.StateOffHook || e.Digits == "" {
		return
	}
	digits := e.Digits[:len(e.Digits)-1]
	m.sessions.Update(e.Key, e.CallID, func(en *session.Entry) { en.Digits = digits })
	m.send(&wire.BackSpaceReqBody{LineInstance: e.Key.Instance, CallID: e.CallID})
	if digits == "" {
		m.send(&wire.StartToneBody{Tone: wire.ToneDial, LineInstance: e.Key.Instance, CallID: e.CallID})
		m.send(&wire.SelectSoftKeysBody{LineInstance: e.Key.Instance, CallID: e.CallID,
			SetIndex: wire.KeySetOffHook, ValidKeyMask: wire.SoftKeyMaskAll})
	}
}

// Enbloc handles a complete number sent in one message.
func (m *Machine) Enbloc(called string, instance uint32) {
	callID := m.newCall(instance, 0)
	if callID == 0 {
		return
	}
	key := session.Key{Device: m.device, Instance: instance}
	if line, ok := m.lines.Line(instance); ok {
		key.Instance = line.Instance
	}
	m.sessions.Update(key, callID, func(en *session.Entry) { en.Digits = called })
	m.send(&wire.StopToneBody{LineInstance: key.Instance, CallID: callID})
	m.evaluateDigits(key, callID, called)
}

// SpeedDial dials the number stored at a speed dial position.
func (m *Machine) SpeedDial(position uint32) {
	sd, ok := m.lines.SpeedDial(position)
	if !ok {
		m.logger.Warn("[Call] unknown speed dial", "device", m.device, "position", position)
		return
	}
	m.Enbloc(sd.Number, 0)
}

// evaluateDigits routes or rejects the collected digit string.
func (m *Machine) evaluateDigits(key session.Key, callID uint32, digits string) {
	if _, ok := m.plan.Match(digits); ok {
		m.dial(key, callID, digits)
		return
	}
	if m.plan.CouldMatch(digits) {
		return // keep collecting
	}
	if _, ok := m.advance(key, callID, wire.StateOffHook, EvDialInvalid); !ok {
		return
	}
	m.send(&wire.StopToneBody{LineInstance: key.Instance, CallID: callID})
	m.sendCallState(wire.StateInvalidNumber, key.Instance, callID)
	m.sendPrompt("Invalid number", key.Instance, callID)
	m.send(&wire.StartToneBody{Tone: wire.ToneReorder, LineInstance: key.Instance, CallID: callID})
	m.publishState(key, callID, wire.StateInvalidNumber, digits)
}

func (m *Machine) dial(key session.Key, callID uint32, digits string) {
	next, ok := m.advance(key, callID, wire.StateOffHook, EvDialComplete)
	if !ok {
		return
	}
	line, _ := m.lines.Line(key.Instance)

	m.send(&wire.StopToneBody{LineInstance: key.Instance, CallID: callID})
	m.sendCallState(next, key.Instance, callID)
	dialed := &wire.DialedNumberBody{LineInstance: key.Instance, CallID: callID}
	wire.PutCString(dialed.DialedNumber[:], digits)
	m.send(dialed)
	m.sendCallInfo(key.Instance, callID, wire.CallTypeOutbound, line.DisplayName, line.Name, "", digits)
	m.sessions.Update(key, callID, func(en *session.Entry) { en.RemoteNumber = digits })
	m.lastDialed.Store(digits)
	m.publishState(key, callID, next, digits)

	// The handle is stored through the bind callback, before the core
	// delivers offers; a callee ringing during Originate must already
	// find this entry by handle.
	_, err := m.core.Originate(context.Background(),
		telco.Party{Device: m.device, LineName: line.Name, DisplayName: line.DisplayName}, digits,
		func(handle string) {
			m.sessions.Update(key, callID, func(en *session.Entry) { en.Handle = handle })
		})
	if err != nil {
		if errors.Is(err, telco.ErrNoRoute) {
			m.remoteBusy(key, callID, next)
			return
		}
		m.logger.Error("[Call] originate failed", "device", m.device, "error", err)
		m.unwind(key, callID)
		return
	}
}

func (m *Machine) remoteBusy(key session.Key, callID uint32, current wire.CallState) {
	next, ok := m.advance(key, callID, current, EvRemoteBusy)
	if !ok {
		return
	}
	m.sendCallState(next, key.Instance, callID)
	m.sendPrompt("Busy", key.Instance, callID)
	m.send(&wire.StartToneBody{Tone: wire.ToneBusy, LineInstance: key.Instance, CallID: callID})
	m.publishState(key, callID, next, "")
}

// Answer accepts the alerting call selected by the soft key.
func (m *Machine) Answer(instance, callID uint32) {
	key := session.Key{Device: m.device, Instance: instance}
	e, ok := m.sessions.Get(key, callID)
	if !ok {
		m.logger.Warn("[Call] answer with no call", "device", m.device, "call", callID)
		return
	}
	m.answer(e, EvAnswer)
}

func (m *Machine) answer(e session.Entry, ev Event) {
	next, ok := m.advance(e.Key, e.CallID, e.State, ev)
	if !ok {
		return
	}
	m.holdActiveCalls(e.CallID)

	m.send(&wire.SetRingerBody{RingType: wire.RingOff, RingMode: wire.RingForever, LineInstance: e.Key.Instance, CallID: e.CallID})
	m.send(&wire.StopToneBody{LineInstance: e.Key.Instance, CallID: e.CallID})
	m.send(&wire.SetSpeakerModeBody{Mode: wire.SpeakerOn})
	m.send(&wire.SetLampBody{Stimulus: wire.ButtonLine, StimulusInstance: e.Key.Instance, Mode: wire.LampOn})
	m.send(&wire.ActivateCallPlaneBody{LineInstance: e.Key.Instance})
	m.connectCall(e.Key, e.CallID, next, e.RemoteNumber)

	if err := m.core.Answer(e.Handle); err != nil {
		m.logger.Warn("[Call] core answer failed", "device", m.device, "error", err)
		m.unwind(e.Key, e.CallID)
	}
}

// connectCall emits the connected-state sequence and asks the device to
// open its receive channel.
func (m *Machine) connectCall(key session.Key, callID uint32, state wire.CallState, remote string) {
	m.sendCallState(state, key.Instance, callID)
	m.send(&wire.SelectSoftKeysBody{LineInstance: key.Instance, CallID: callID,
		SetIndex: wire.KeySetConnected, ValidKeyMask: wire.SoftKeyMaskAll})
	prompt := "Connected"
	if remote != "" {
		prompt = "Connected " + remote
	}
	m.sendPrompt(prompt, key.Instance, callID)
	m.send(&wire.OpenReceiveChannelBody{
		ConferenceID:    callID,
		PassThruPartyID: callID,
		MSPerPacket:     20,
		PayloadCapacity: wire.CodecUlaw64k,
	})
	m.publishState(key, callID, state, remote)
}

// MediaAck handles the device's open-receive-channel ack.
func (m *Machine) MediaAck(status uint32, ip [4]byte, port, passThru uint32) {
	e, ok := m.sessions.FindByCallID(passThru)
	if !ok || e.Key.Device != m.device {
		m.logger.Warn("[Call] media ack for unknown call", "device", m.device, "call", passThru)
		return
	}
	if status != 0 {
		m.logger.Warn("[Call] device rejected receive channel", "device", m.device, "status", status)
		m.unwind(e.Key, e.CallID)
		return
	}
	if _, ok := m.advance(e.Key, e.CallID, e.State, EvMediaAck); !ok {
		return
	}
	m.core.MediaReady(e.Handle, telco.Endpoint{IP: ip, Port: port, Codec: wire.CodecUlaw64k})
}

// Hold pauses the call; Resume brings it back as the single active
// audio path.
func (m *Machine) Hold(instance, callID uint32) {
	key := session.Key{Device: m.device, Instance: instance}
	e, ok := m.sessions.Get(key, callID)
	if !ok {
		return
	}
	m.hold(e)
}

func (m *Machine) hold(e session.Entry) {
	next, ok := m.advance(e.Key, e.CallID, e.State, EvHold)
	if !ok {
		return
	}
	m.send(&wire.StopMediaTransmissionBody{ConferenceID: e.CallID, PassThruPartyID: e.CallID, ConferenceID2: e.CallID})
	m.send(&wire.CloseReceiveChannelBody{ConferenceID: e.CallID, PassThruPartyID: e.CallID, ConferenceID2: e.CallID})
	m.sendCallState(next, e.Key.Instance, e.CallID)
	m.send(&wire.SelectSoftKeysBody{LineInstance: e.Key.Instance, CallID: e.CallID,
		SetIndex: wire.KeySetOnHold, ValidKeyMask: wire.SoftKeyMaskAll})
	m.sendPrompt("Hold", e.Key.Instance, e.CallID)
	m.send(&wire.SetLampBody{Stimulus: wire.ButtonLine, StimulusInstance: e.Key.Instance, Mode: wire.LampWink})
	m.publishState(e.Key, e.CallID, next, e.RemoteNumber)

	if err := m.core.Hold(e.Handle); err != nil {
		m.logger.Warn("[Call] core hold failed", "device", m.device, "error", err)
	}
}

func (m *Machine) Resume(instance, callID uint32) {
	key := session.Key{Device: m.device, Instance: instance}
	e, ok := m.sessions.Get(key, callID)
	if !ok {
		return
	}
	m.holdActiveCalls(e.CallID)
	next, ok := m.advance(e.Key, e.CallID, e.State, EvResume)
	if !ok {
		return
	}
	m.send(&wire.SetSpeakerModeBody{Mode: wire.SpeakerOn})
	m.send(&wire.SetLampBody{Stimulus: wire.ButtonLine, StimulusInstance: e.Key.Instance, Mode: wire.LampOn})
	m.connectCall(e.Key, e.CallID, next, e.RemoteNumber)
	if err := m.core.Unhold(e.Handle); err != nil {
		m.logger.Warn("[Call] core unhold failed", "device", m.device, "error", err)
	}
}

// holdActiveCalls puts every connected call on hold so at most one audio
// path is live.
func (m *Machine) holdActiveCalls(exceptCallID uint32) {
	for _, e := range m.sessions.FindByDevice(m.device, 0) {
		if e.CallID == exceptCallID {
			continue
		}
		if e.State == wire.StateConnected {
			m.hold(e)
		}
	}
}

// Transfer starts a consultation call on the first press and bridges the
// two far ends on the second.
func (m *Machine) Transfer(instance, callID uint32) {
	key := session.Key{Device: m.device, Instance: instance}
	e, ok := m.sessions.Get(key, callID)
	if !ok {
		return
	}

	if e.TransferFrom != 0 {
		m.completeTransfer(e)
		return
	}
	if e.TransferTo != 0 {
		// Second press on the held call while its consultation leg is
		// elsewhere; complete using the linkage.
		if consult, ok := m.sessions.FindByCallID(e.TransferTo); ok {
			m.completeTransfer(consult)
		}
		return
	}
	if _, ok := transition(e.State, EvTransfer); !ok {
		m.logger.Warn("[Call] transfer in illegal state", "device", m.device,
			"call", e.CallID, "state", e.State.String())
		return
	}
	if e.State == wire.StateConnected {
		m.hold(e)
	}
	consultID := m.newCall(e.Key.Instance, e.CallID)
	if consultID == 0 {
		return
	}
	m.sessions.Update(e.Key, e.CallID, func(en *session.Entry) { en.TransferTo = consultID })
}

// completeTransfer bridges the held call's far end with the consultation
// call's far end, then releases both local calls.
func (m *Machine) completeTransfer(consult session.Entry) {
	if consult.State != wire.StateConnected {
		m.logger.Warn("[Call] transfer before consultation answered", "device", m.device,
			"call", consult.CallID, "state", consult.State.String())
		return
	}
	held, ok := m.sessions.FindByCallID(consult.TransferFrom)
	if !ok {
		m.logger.Warn("[Call] transfer lost its held call", "device", m.device, "call", consult.CallID)
		return
	}
	if err := m.core.Bridge(held.Handle, consult.Handle); err != nil {
		m.logger.Error("[Call] bridge failed", "device", m.device, "error", err)
		return
	}
	// Both local legs were consumed by the bridge.
	m.clearLocal(held, "transfer")
	m.clearLocal(consult, "transfer")
}

// OnHook handles hangup from the device.
func (m *Machine) OnHook(instance, callID uint32) {
	key := session.Key{Device: m.device, Instance: instance}
	if instance == 0 {
		if line, ok := m.lines.Line(0); ok {
			key.Instance = line.Instance
		}
	}
	e, ok := m.sessions.Get(key, callID)
	if !ok {
		// Hanging up with no call is normal after remote clears.
		m.send(&wire.SetSpeakerModeBody{Mode: wire.SpeakerOff})
		return
	}
	// Held calls survive the handset going down.
	if callID == 0 && e.State == wire.StateHold {
		m.send(&wire.SetSpeakerModeBody{Mode: wire.SpeakerOff})
		return
	}
	if _, ok := m.advance(e.Key, e.CallID, e.State, EvOnHook); !ok {
		return
	}
	if e.Handle != "" {
		if err := m.core.Hangup(e.Handle, telco.ClearNormal); err != nil {
			m.logger.Warn("[Call] core hangup failed", "device", m.device, "error", err)
		}
	}
	m.clearLocal(e, "on-hook")
}

// EndCall is the soft key equivalent of OnHook for a specific call.
func (m *Machine) EndCall(instance, callID uint32) {
	m.OnHook(instance, callID)
}

// clearLocal tears the call down on the device and removes the entry.
// The core leg, if any, must already be released.
func (m *Machine) clearLocal(e session.Entry, reason string) {
	wasLive := e.State == wire.StateConnected || e.State == wire.StateHold
	m.sessions.Remove(e.Key, e.CallID)

	m.send(&wire.SetRingerBody{RingType: wire.RingOff, RingMode: wire.RingForever, LineInstance: e.Key.Instance, CallID: e.CallID})
	m.send(&wire.StopToneBody{LineInstance: e.Key.Instance, CallID: e.CallID})
	if wasLive {
		m.send(&wire.StopMediaTransmissionBody{ConferenceID: e.CallID, PassThruPartyID: e.CallID, ConferenceID2: e.CallID})
		m.send(&wire.CloseReceiveChannelBody{ConferenceID: e.CallID, PassThruPartyID: e.CallID, ConferenceID2: e.CallID})
	}
	m.sendCallState(wire.StateOnHook, e.Key.Instance, e.CallID)
	m.send(&wire.ClearPromptStatusBody{LineInstance: e.Key.Instance, CallID: e.CallID})
	m.send(&wire.SelectSoftKeysBody{LineInstance: e.Key.Instance, CallID: e.CallID,
		SetIndex: wire.KeySetOnHook, ValidKeyMask: wire.SoftKeyMaskAll})
	if len(m.sessions.FindByDevice(m.device, e.Key.Instance)) == 0 {
		m.send(&wire.SetLampBody{Stimulus: wire.ButtonLine, StimulusInstance: e.Key.Instance, Mode: wire.LampOff})
	}
	if len(m.sessions.FindByDevice(m.device, 0)) == 0 {
		m.send(&wire.SetSpeakerModeBody{Mode: wire.SpeakerOff})
	}
	m.publishState(e.Key, e.CallID, wire.StateOnHook, reason)
}

// unwind aborts a call after a resource failure: core leg released,
// device reset to on-hook.
func (m *Machine) unwind(key session.Key, callID uint32) {
	e, ok := m.sessions.Get(key, callID)
	if !ok {
		return
	}
	if e.Handle != "" {
		if err := m.core.Hangup(e.Handle, telco.ClearNormal); err != nil {
			m.logger.Warn("[Call] hangup during unwind failed", "device", m.device, "error", err)
		}
	}
	m.clearLocal(e, "error")
}

// HangupAll releases every call of the device, used at unregistration.
func (m *Machine) HangupAll() {
	for _, e := range m.sessions.PurgeDevice(m.device) {
		if e.Handle != "" {
			if err := m.core.Hangup(e.Handle, telco.ClearNormal); err != nil {
				m.logger.Warn("[Call] hangup failed", "device", m.device, "error", err)
			}
		}
	}
}

func (m *Machine) sendCallState(state wire.CallState, instance, callID uint32) {
	m.send(&wire.CallStateBody{State: uint32(state), LineInstance: instance, CallID: callID})
}

func (m *Machine) sendPrompt(text string, instance, callID uint32) {
	prompt := &wire.DisplayPromptStatusBody{Timeout: 0, LineInstance: instance, CallID: callID}
	wire.PutCString(prompt.Display[:], text)
	m.send(prompt)
}

func (m *Machine) sendCallInfo(instance, callID, callType uint32, callingName, calling, calledName, called string) {
	info := &wire.CallInfoBody{LineInstance: instance, CallID: callID, CallType: callType}
	wire.PutCString(info.CallingPartyName[:], callingName)
	wire.PutCString(info.CallingParty[:], calling)
	wire.PutCString(info.CalledPartyName[:], calledName)
	wire.PutCString(info.CalledParty[:], called)
	m.send(info)
}
