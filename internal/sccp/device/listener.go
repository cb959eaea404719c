package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rbeving/sccpd/internal/dialplan"
	"github.com/rbeving/sccpd/internal/directory"
	"github.com/rbeving/sccpd/internal/events"
	"github.com/rbeving/sccpd/internal/sccp/call"
	"github.com/rbeving/sccpd/internal/sccp/lines"
	"github.com/rbeving/sccpd/internal/sccp/session"
	"github.com/rbeving/sccpd/internal/sccp/wire"
	"github.com/rbeving/sccpd/internal/telco"
)

// readTick bounds each blocking read so the loop notices Close promptly.
const readTick = 200 * time.Millisecond

const serverVersion = "sccpd-1.0"

// Config wires one listener to its collaborators. KeepAlive is the
// interval advertised to the device; the registry lease must exceed it.
type Config struct {
	Conn       net.Conn
	Directory  directory.Service
	Sessions   *session.Directory
	Core       telco.Core
	Plan       *dialplan.Plan
	Registry   *Registry
	Publisher  events.Publisher
	Logger     *slog.Logger
	KeepAlive  time.Duration
	DateFormat string
	Domain     string
	NewCallID  func() uint32
}

// Listener serves one device connection: a read loop feeding the call
// machine, and serialized writes shared with it.
type Listener struct {
	cfg    Config
	conn   net.Conn
	dec    *wire.Decoder
	logger *slog.Logger
	pub    events.Publisher

	writeMu sync.Mutex
	enc     *wire.Encoder

	mu           sync.Mutex
	name         string
	registered   bool
	device       *directory.Device
	lines        *lines.Directory
	machine      *call.Machine
	deviceType   uint32
	protoVersion uint32
	remotePort   uint32
	codecs       []uint32
	registeredAt time.Time
	lastSeen     time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func NewListener(cfg Config) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = events.NewNoopPublisher()
	}
	return &Listener{
		cfg:    cfg,
		conn:   cfg.Conn,
		dec:    wire.NewDecoder(cfg.Conn),
		enc:    wire.NewEncoder(cfg.Conn),
		logger: logger,
		pub:    pub,
		done:   make(chan struct{}),
	}
}

// Send delivers one message to the device. Safe for concurrent use; this
// is the call machine's sender.
func (l *Listener) Send(b wire.Body) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.enc.Send(b)
}

// Run reads until the connection dies, the device unregisters, or the
// listener is closed. It always releases the device's resources on the
// way out.
func (l *Listener) Run() {
	defer l.Close("connection closed")
	for {
		select {
		case <-l.done:
			return
		default:
		}
		if err := l.conn.SetReadDeadline(time.Now().Add(readTick)); err != nil {
			return
		}
		msg, err := l.dec.Read()
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				continue
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				return
			case errors.Is(err, wire.ErrFraming):
				l.logger.Error("[Device] framing error, closing", "device", l.deviceName(), "error", err)
				return
			default:
				l.logger.Warn("[Device] dropping undecodable message", "device", l.deviceName(), "error", err)
				continue
			}
		}
		l.touch()
		l.dispatch(msg)
	}
}

// touch refreshes the keepalive lease. Any parsed message counts.
func (l *Listener) touch() {
	l.mu.Lock()
	l.lastSeen = time.Now()
	name := l.name
	registered := l.registered
	l.mu.Unlock()
	if registered {
		l.cfg.Registry.Refresh(name)
	}
}

func (l *Listener) dispatch(msg *wire.Message) {
	if !l.isRegistered() {
		switch b := msg.Body.(type) {
		case *wire.RegisterBody:
			l.register(b)
		case *wire.AlarmBody:
			l.handleAlarm(b)
		case *wire.HeadsetStatusBody:
			l.logger.Debug("[Device] headset status before registration", "mode", b.Mode)
		default:
			l.logger.Warn("[Device] message before registration dropped",
				"remote", l.conn.RemoteAddr().String(), "message", wire.TypeName(msg.Type))
		}
		return
	}

	m := l.machineRef()
	switch b := msg.Body.(type) {
	case *wire.RegisterBody:
		l.logger.Warn("[Device] second registration on one connection", "device", l.deviceName())
		l.reject("already registered")
	case *wire.KeepAliveBody:
		if err := l.Send(&wire.KeepAliveAckBody{}); err != nil {
			l.logger.Warn("[Device] keepalive ack failed", "device", l.deviceName(), "error", err)
		}
	case *wire.PortBody:
		l.mu.Lock()
		l.remotePort = b.Port
		l.mu.Unlock()
	case *wire.CapabilitiesResBody:
		l.storeCapabilities(b)
	case *wire.AlarmBody:
		l.handleAlarm(b)
	case *wire.HeadsetStatusBody:
		l.logger.Debug("[Device] headset status", "device", l.deviceName(), "mode", b.Mode)
	case *wire.RegisterAvailableLinesBody:
		l.logger.Debug("[Device] available lines", "device", l.deviceName(), "count", b.Count)

	case *wire.TimeDateReqBody:
		l.sendTimeDate()
	case *wire.ConfigStatReqBody:
		l.sendConfigStat()
	case *wire.ButtonTemplateReqBody:
		l.sendButtonTemplate()
	case *wire.VersionReqBody:
		v := &wire.VersionBody{}
		wire.PutCString(v.Version[:], serverVersion)
		l.respond(v)
	case *wire.LineStatReqBody:
		l.sendLineStat(b.Number)
	case *wire.SpeedDialStatReqBody:
		l.sendSpeedDialStat(b.Number)
	case *wire.ServiceURLStatReqBody:
		l.sendServiceURLStat(b.Number)
	case *wire.FeatureStatReqBody:
		l.sendFeatureStat(b.Number)
	case *wire.ForwardStatReqBody:
		l.sendForwardStat(b.LineInstance)
	case *wire.SoftKeyTemplateReqBody:
		l.respond(softKeyTemplateRes())
	case *wire.SoftKeySetReqBody:
		l.respond(softKeySetRes())

	case *wire.OffHookBody:
		m.OffHook(b.LineInstance, b.CallID)
	case *wire.OnHookBody:
		m.OnHook(b.LineInstance, b.CallID)
	case *wire.KeypadButtonBody:
		if digit, ok := keypadDigit(b.Button); ok {
			m.Digit(digit, b.LineInstance, b.CallID)
		} else {
			l.logger.Warn("[Device] keypad button out of range", "device", l.deviceName(), "button", b.Button)
		}
	case *wire.EnblocCallBody:
		m.Enbloc(wire.CString(b.CalledParty[:]), 0)
	case *wire.StimulusBody:
		l.handleStimulus(m, b)
	case *wire.SoftKeyEventBody:
		l.handleSoftKey(m, b)
	case *wire.OpenReceiveChannelAckBody:
		m.MediaAck(b.Status, b.IP, b.Port, b.PassThruPartyID)

	case *wire.DeviceToUserDataBody:
		l.publishDeviceData(b.Header, b.Payload)
	case *wire.DeviceToUserDataResponseBody:
		l.publishDeviceData(b.Header, b.Payload)
	case *wire.DeviceToUserDataV1Body:
		l.publishDeviceData(b.Header.DataHeader, b.Payload)
	case *wire.DeviceToUserDataResponseV1Body:
		l.publishDeviceData(b.Header.DataHeader, b.Payload)

	case *wire.UnregisterBody:
		if err := l.Send(&wire.UnregisterAckBody{Status: 0}); err != nil {
			l.logger.Warn("[Device] unregister ack failed", "device", l.deviceName(), "error", err)
		}
		l.Close("unregistered")
	case *wire.Unhandled:
		l.logger.Debug("[Device] unhandled message", "device", l.deviceName(),
			"type", wire.TypeName(b.Type), "bytes", len(b.Raw))
	default:
		l.logger.Debug("[Device] ignoring message", "device", l.deviceName(),
			"message", wire.TypeName(msg.Type))
	}
}

// register runs the registration exchange. Failures send RegisterReject
// and close the connection.
func (l *Listener) register(b *wire.RegisterBody) {
	name := wire.CString(b.DeviceName[:])
	if name == "" {
		l.reject("empty device name")
		return
	}
	if !l.cfg.Registry.Add(name, l) {
		l.logger.Warn("[Device] duplicate registration refused", "device", name,
			"remote", l.conn.RemoteAddr().String())
		l.reject("device already registered")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	dev, err := l.cfg.Directory.LookupDevice(ctx, name)
	cancel()
	if err != nil {
		l.cfg.Registry.Remove(name, l)
		if errors.Is(err, directory.ErrNotFound) {
			l.reject("device not provisioned")
		} else {
			l.logger.Error("[Device] directory lookup failed", "device", name, "error", err)
			l.reject("directory unavailable")
		}
		return
	}

	snapshot := dev.Snapshot()
	machine := call.NewMachine(call.Config{
		Device:    name,
		Lines:     snapshot,
		Sessions:  l.cfg.Sessions,
		Core:      l.cfg.Core,
		Plan:      l.cfg.Plan,
		Publisher: l.pub,
		Sender:    l,
		Logger:    l.logger,
		NewCallID: l.cfg.NewCallID,
	})
	lineNames := make([]string, 0, len(dev.Lines))
	for _, ln := range dev.Lines {
		lineNames = append(lineNames, ln.Name)
	}
	l.cfg.Core.Attach(name, lineNames, machine)

	l.mu.Lock()
	l.name = name
	l.registered = true
	l.device = dev
	l.lines = snapshot
	l.machine = machine
	l.deviceType = b.DeviceType
	l.protoVersion = b.ProtoVersion
	l.registeredAt = time.Now()
	l.mu.Unlock()

	keepalive := uint32(l.cfg.KeepAlive / time.Second)
	ack := &wire.RegisterAckBody{KeepAlive: keepalive, SecondaryKeepAlive: keepalive}
	wire.PutCString(ack.DateFormat[:], l.cfg.DateFormat)
	l.respond(ack)
	l.respond(&wire.CapabilitiesReqBody{})

	l.logger.Info("[Device] registered", "device", name,
		"remote", l.conn.RemoteAddr().String(), "lines", len(dev.Lines))
	l.pub.PublishAsync(events.NewDeviceRegistered(name, b.UserID, b.DeviceType,
		l.conn.RemoteAddr().String(), len(dev.Lines)))
}

func (l *Listener) reject(reason string) {
	rej := &wire.RegisterRejectBody{}
	wire.PutCString(rej.Error[:], reason)
	if err := l.Send(rej); err != nil {
		l.logger.Warn("[Device] reject send failed", "error", err)
	}
	l.Close("rejected: " + reason)
}

// Close releases the device: socket, registry entry, sessions, telephony
// attachment. Idempotent.
func (l *Listener) Close(reason string) {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.conn.Close()

		l.mu.Lock()
		name := l.name
		registered := l.registered
		machine := l.machine
		l.mu.Unlock()
		if !registered {
			return
		}
		machine.HangupAll()
		l.cfg.Core.Detach(name)
		l.cfg.Registry.Remove(name, l)
		l.logger.Info("[Device] unregistered", "device", name, "reason", reason)
		l.pub.PublishAsync(events.NewDeviceUnregistered(name, reason))
	})
}

func (l *Listener) handleAlarm(b *wire.AlarmBody) {
	message := wire.CString(b.DisplayMessage[:])
	l.logger.Warn("[Device] alarm", "device", l.deviceName(), "severity", b.Severity,
		"message", message)
	l.pub.PublishAsync(events.NewDeviceAlarm(l.deviceName(), b.Severity, message))
}

func (l *Listener) publishDeviceData(h wire.DataHeader, payload []byte) {
	l.pub.PublishAsync(events.NewDeviceData(l.deviceName(), h.AppID, h.LineInstance,
		h.CallID, h.TransactionID, payload))
}

func (l *Listener) handleStimulus(m *call.Machine, b *wire.StimulusBody) {
	switch b.Stimulus {
	case wire.ButtonLine:
		m.LineButton(b.StimulusInstance)
	case wire.ButtonSpeedDial:
		m.SpeedDial(b.StimulusInstance)
	case wire.ButtonRedial:
		m.Redial(0)
	case wire.ButtonHold:
		m.Hold(b.StimulusInstance, b.CallID)
	case wire.ButtonTransfer:
		m.Transfer(b.StimulusInstance, b.CallID)
	default:
		l.logger.Debug("[Device] unhandled stimulus", "device", l.deviceName(),
			"stimulus", b.Stimulus, "instance", b.StimulusInstance)
	}
}

func (l *Listener) handleSoftKey(m *call.Machine, b *wire.SoftKeyEventBody) {
	switch b.Event {
	case wire.SoftKeyRedial:
		m.Redial(b.LineInstance)
	case wire.SoftKeyNewCall:
		m.NewCall(b.LineInstance)
	case wire.SoftKeyHold:
		m.Hold(b.LineInstance, b.CallID)
	case wire.SoftKeyResume:
		m.Resume(b.LineInstance, b.CallID)
	case wire.SoftKeyAnswer:
		m.Answer(b.LineInstance, b.CallID)
	case wire.SoftKeyEndCall:
		m.EndCall(b.LineInstance, b.CallID)
	case wire.SoftKeyTransfer:
		m.Transfer(b.LineInstance, b.CallID)
	case wire.SoftKeyBackspace:
		m.Backspace(b.LineInstance, b.CallID)
	default:
		l.logger.Debug("[Device] unhandled soft key", "device", l.deviceName(),
			"event", b.Event)
	}
}

func (l *Listener) sendTimeDate() {
	now := time.Now()
	l.respond(&wire.DefineTimeDateBody{
		Year:         uint32(now.Year()),
		Month:        uint32(now.Month()),
		DayOfWeek:    uint32(now.Weekday()),
		Day:          uint32(now.Day()),
		Hour:         uint32(now.Hour()),
		Minute:       uint32(now.Minute()),
		Seconds:      uint32(now.Second()),
		Milliseconds: uint32(now.Nanosecond() / 1e6),
		Timestamp:    uint32(now.Unix()),
	})
}

// sendForwardStat reports the line's provisioned forwarding targets.
func (l *Listener) sendForwardStat(instance uint32) {
	l.mu.Lock()
	dir := l.lines
	l.mu.Unlock()

	res := &wire.ForwardStatBody{LineInstance: instance}
	if line, ok := dir.Line(instance); ok {
		if line.ForwardAll != "" {
			res.ActiveForward = 1
			res.ForwardAllActive = 1
			wire.PutCString(res.ForwardAllNumber[:], line.ForwardAll)
		}
		if line.ForwardBusy != "" {
			res.ForwardBusyActive = 1
			wire.PutCString(res.ForwardBusyNumber[:], line.ForwardBusy)
		}
		if line.ForwardNoAnswer != "" {
			res.ForwardNoAnswerActive = 1
			wire.PutCString(res.ForwardNoAnswerNumber[:], line.ForwardNoAnswer)
		}
	}
	l.respond(res)
}

func (l *Listener) sendConfigStat() {
	l.mu.Lock()
	dev := l.device
	dir := l.lines
	l.mu.Unlock()
	res := &wire.ConfigStatResBody{UserID: dev.UserID, Instance: 1}
	wire.PutCString(res.DeviceName[:], dev.Name)
	wire.PutCString(res.UserName[:], dev.UserName)
	wire.PutCString(res.ServerName[:], l.cfg.Domain)
	nlines, nspeeds := dir.Counts()
	res.NumberLines = uint32(nlines)
	res.NumberSpeedDial = uint32(nspeeds)
	l.respond(res)
}

func (l *Listener) sendButtonTemplate() {
	template := l.linesRef().ButtonTemplate()
	res := &wire.ButtonTemplateResBody{
		ButtonCount:      uint32(len(template)),
		TotalButtonCount: uint32(len(template)),
	}
	for i := range res.Definitions {
		if i < len(template) {
			res.Definitions[i] = template[i]
		} else {
			res.Definitions[i] = wire.ButtonDefinition{Definition: uint8(wire.ButtonUndefined)}
		}
	}
	l.respond(res)
}

func (l *Listener) sendLineStat(number uint32) {
	res := &wire.LineStatResBody{Number: number}
	if line, ok := l.linesRef().Line(number); ok {
		wire.PutCString(res.Name[:], line.Name)
		wire.PutCString(res.DisplayName[:], line.DisplayName)
		wire.PutCString(res.Label[:], line.Label)
	}
	l.respond(res)
}

func (l *Listener) sendSpeedDialStat(number uint32) {
	res := &wire.SpeedDialStatResBody{Number: number}
	if sd, ok := l.linesRef().SpeedDial(number); ok {
		wire.PutCString(res.Line[:], sd.Number)
		wire.PutCString(res.Label[:], sd.Label)
	}
	l.respond(res)
}

func (l *Listener) sendServiceURLStat(number uint32) {
	res := &wire.ServiceURLStatResBody{Index: number}
	if u, ok := l.linesRef().ServiceURL(number); ok {
		wire.PutCString(res.URL[:], u.URL)
		wire.PutCString(res.DisplayName[:], u.Label)
	}
	l.respond(res)
}

func (l *Listener) sendFeatureStat(number uint32) {
	res := &wire.FeatureStatResBody{Index: number, ID: wire.ButtonFeature}
	if f, ok := l.linesRef().Feature(number); ok {
		wire.PutCString(res.Label[:], f.Label)
	}
	l.respond(res)
}

func (l *Listener) storeCapabilities(b *wire.CapabilitiesResBody) {
	codecs := make([]uint32, 0, len(b.Capabilities))
	for _, c := range b.Capabilities {
		codecs = append(codecs, c.Codec)
	}
	l.mu.Lock()
	l.codecs = codecs
	l.mu.Unlock()
	l.logger.Debug("[Device] capabilities", "device", l.deviceName(), "codecs", len(codecs))
}

func (l *Listener) respond(b wire.Body) {
	if err := l.Send(b); err != nil {
		l.logger.Warn("[Device] response failed", "device", l.deviceName(),
			"message", wire.TypeName(b.MessageType()), "error", err)
	}
}

func (l *Listener) isRegistered() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registered
}

func (l *Listener) deviceName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.name != "" {
		return l.name
	}
	return l.conn.RemoteAddr().String()
}

func (l *Listener) machineRef() *call.Machine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.machine
}

func (l *Listener) linesRef() *lines.Directory {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lines
}

// keypadDigit maps a keypad button code to its dial character. 14 and 15
// are star and pound.
func keypadDigit(button uint32) (rune, bool) {
	switch {
	case button <= 9:
		return rune('0' + button), true
	case button == 14:
		return '*', true
	case button == 15:
		return '#', true
	default:
		return 0, false
	}
}

// Info is a point-in-time snapshot for the admin surface.
type Info struct {
	Name         string    `json:"name"`
	RemoteAddr   string    `json:"remote_addr"`
	DeviceType   uint32    `json:"device_type"`
	ProtoVersion uint32    `json:"proto_version"`
	RemotePort   uint32    `json:"remote_port"`
	Codecs       []uint32  `json:"codecs"`
	Lines        int       `json:"lines"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// Snapshot reports the listener's registration details.
func (l *Listener) Snapshot() Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	nlines := 0
	if l.lines != nil {
		nlines, _ = l.lines.Counts()
	}
	return Info{
		Name:         l.name,
		RemoteAddr:   l.conn.RemoteAddr().String(),
		DeviceType:   l.deviceType,
		ProtoVersion: l.protoVersion,
		RemotePort:   l.remotePort,
		Codecs:       append([]uint32(nil), l.codecs...),
		Lines:        nlines,
		RegisteredAt: l.registeredAt,
		LastSeen:     l.lastSeen,
	}
}
