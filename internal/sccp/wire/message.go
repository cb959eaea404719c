package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Body is implemented by every message payload.
type Body interface {
	MessageType() uint32
}

// bodyUnmarshaler is implemented by variable-layout bodies that cannot be
// decoded with encoding/binary alone.
type bodyUnmarshaler interface {
	UnmarshalBody(data []byte) error
}

// bodyMarshaler is the encode-side counterpart of bodyUnmarshaler.
type bodyMarshaler interface {
	MarshalBody() ([]byte, error)
}

// Message is one decoded SCCP frame. Type always matches Body.MessageType()
// for known types; for unknown types Body is an *Unhandled.
type Message struct {
	Type uint32
	Body Body
}

// NewMessage wraps a body in a Message.
func NewMessage(b Body) *Message {
	return &Message{Type: b.MessageType(), Body: b}
}

// Unhandled is the decoded form of a message type the engine does not
// implement. The raw body is kept only for diagnostics.
type Unhandled struct {
	Type uint32
	Raw  []byte
}

func (u *Unhandled) MessageType() uint32 { return u.Type }

// schema describes how to decode one message type: a fresh body value and
// the minimum body length (bytes after the type field) the type requires.
// Fixed-layout bodies shorter than their struct size but at least minLen
// long are zero-filled on the tail.
type schema struct {
	newBody func() Body
	minLen  int
}

var schemas = map[uint32]schema{
	TypeKeepAlive:                  {func() Body { return &KeepAliveBody{} }, 0},
	TypeRegister:                   {func() Body { return &RegisterBody{} }, 24},
	TypePort:                       {func() Body { return &PortBody{} }, 2},
	TypeKeypadButton:               {func() Body { return &KeypadButtonBody{} }, 4},
	TypeEnblocCall:                 {func() Body { return &EnblocCallBody{} }, 24},
	TypeStimulus:                   {func() Body { return &StimulusBody{} }, 8},
	TypeOffHook:                    {func() Body { return &OffHookBody{} }, 0},
	TypeOnHook:                     {func() Body { return &OnHookBody{} }, 0},
	TypeForwardStatReq:             {func() Body { return &ForwardStatReqBody{} }, 4},
	TypeSpeedDialStatReq:           {func() Body { return &SpeedDialStatReqBody{} }, 4},
	TypeLineStatReq:                {func() Body { return &LineStatReqBody{} }, 4},
	TypeConfigStatReq:              {func() Body { return &ConfigStatReqBody{} }, 0},
	TypeTimeDateReq:                {func() Body { return &TimeDateReqBody{} }, 0},
	TypeButtonTemplateReq:          {func() Body { return &ButtonTemplateReqBody{} }, 0},
	TypeVersionReq:                 {func() Body { return &VersionReqBody{} }, 0},
	TypeCapabilitiesRes:            {func() Body { return &CapabilitiesResBody{} }, 4},
	TypeAlarm:                      {func() Body { return &AlarmBody{} }, 4},
	TypeOpenReceiveChannelAck:      {func() Body { return &OpenReceiveChannelAckBody{} }, 16},
	TypeSoftKeySetReq:              {func() Body { return &SoftKeySetReqBody{} }, 0},
	TypeSoftKeyEvent:               {func() Body { return &SoftKeyEventBody{} }, 4},
	TypeUnregister:                 {func() Body { return &UnregisterBody{} }, 0},
	TypeSoftKeyTemplateReq:         {func() Body { return &SoftKeyTemplateReqBody{} }, 0},
	TypeHeadsetStatus:              {func() Body { return &HeadsetStatusBody{} }, 4},
	TypeRegisterAvailableLines:     {func() Body { return &RegisterAvailableLinesBody{} }, 4},
	TypeDeviceToUserData:           {func() Body { return &DeviceToUserDataBody{} }, 20},
	TypeDeviceToUserDataResponse:   {func() Body { return &DeviceToUserDataResponseBody{} }, 20},
	TypeServiceURLStatReq:          {func() Body { return &ServiceURLStatReqBody{} }, 4},
	TypeFeatureStatReq:             {func() Body { return &FeatureStatReqBody{} }, 4},
	TypeDeviceToUserDataV1:         {func() Body { return &DeviceToUserDataV1Body{} }, 40},
	TypeDeviceToUserDataResponseV1: {func() Body { return &DeviceToUserDataResponseV1Body{} }, 40},

	TypeRegisterAck:            {func() Body { return &RegisterAckBody{} }, 16},
	TypeStartTone:              {func() Body { return &StartToneBody{} }, 4},
	TypeStopTone:               {func() Body { return &StopToneBody{} }, 0},
	TypeSetRinger:              {func() Body { return &SetRingerBody{} }, 8},
	TypeSetLamp:                {func() Body { return &SetLampBody{} }, 12},
	TypeSetSpeakerMode:         {func() Body { return &SetSpeakerModeBody{} }, 4},
	TypeStartMediaTransmission: {func() Body { return &StartMediaTransmissionBody{} }, 32},
	TypeStopMediaTransmission:  {func() Body { return &StopMediaTransmissionBody{} }, 8},
	TypeCallInfo:               {func() Body { return &CallInfoBody{} }, 140},
	TypeForwardStat:            {func() Body { return &ForwardStatBody{} }, 8},
	TypeSpeedDialStatRes:       {func() Body { return &SpeedDialStatResBody{} }, 68},
	TypeLineStatRes:            {func() Body { return &LineStatResBody{} }, 68},
	TypeConfigStatRes:          {func() Body { return &ConfigStatResBody{} }, 104},
	TypeDefineTimeDate:         {func() Body { return &DefineTimeDateBody{} }, 36},
	TypeButtonTemplateRes:      {func() Body { return &ButtonTemplateResBody{} }, 12},
	TypeVersion:                {func() Body { return &VersionBody{} }, 16},
	TypeCapabilitiesReq:        {func() Body { return &CapabilitiesReqBody{} }, 0},
	TypeRegisterReject:         {func() Body { return &RegisterRejectBody{} }, 0},
	TypeReset:                  {func() Body { return &ResetBody{} }, 4},
	TypeKeepAliveAck:           {func() Body { return &KeepAliveAckBody{} }, 0},
	TypeOpenReceiveChannel:     {func() Body { return &OpenReceiveChannelBody{} }, 24},
	TypeCloseReceiveChannel:    {func() Body { return &CloseReceiveChannelBody{} }, 8},
	TypeSoftKeyTemplateRes:     {func() Body { return &SoftKeyTemplateResBody{} }, 12},
	TypeSoftKeySetRes:          {func() Body { return &SoftKeySetResBody{} }, 12},
	TypeSelectSoftKeys:         {func() Body { return &SelectSoftKeysBody{} }, 16},
	TypeCallState:              {func() Body { return &CallStateBody{} }, 12},
	TypeDisplayPromptStatus:    {func() Body { return &DisplayPromptStatusBody{} }, 44},
	TypeClearPromptStatus:      {func() Body { return &ClearPromptStatusBody{} }, 8},
	TypeActivateCallPlane:      {func() Body { return &ActivateCallPlaneBody{} }, 4},
	TypeUnregisterAck:          {func() Body { return &UnregisterAckBody{} }, 4},
	TypeBackSpaceReq:           {func() Body { return &BackSpaceReqBody{} }, 8},
	TypeDialedNumber:           {func() Body { return &DialedNumberBody{} }, 32},
	TypeUserToDeviceData:       {func() Body { return &UserToDeviceDataBody{} }, 20},
	TypeFeatureStatRes:         {func() Body { return &FeatureStatResBody{} }, 52},
	TypeServiceURLStatRes:      {func() Body { return &ServiceURLStatResBody{} }, 300},
	TypeUserToDeviceDataV1:     {func() Body { return &UserToDeviceDataV1Body{} }, 40},
}

// decodeBody builds the Body for a type code from raw body bytes (the bytes
// after the type field). Unknown types yield *Unhandled, never an error.
func decodeBody(msgType uint32, data []byte) (Body, error) {
	sc, ok := schemas[msgType]
	if !ok {
		return &Unhandled{Type: msgType, Raw: append([]byte(nil), data...)}, nil
	}
	if len(data) < sc.minLen {
		return nil, fmt.Errorf("%s: body too short: %d < %d bytes", TypeName(msgType), len(data), sc.minLen)
	}
	body := sc.newBody()
	if u, ok := body.(bodyUnmarshaler); ok {
		if err := u.UnmarshalBody(data); err != nil {
			return nil, fmt.Errorf("%s: %w", TypeName(msgType), err)
		}
		return body, nil
	}
	size := binary.Size(body)
	if size < 0 {
		return nil, fmt.Errorf("%s: body layout is not fixed", TypeName(msgType))
	}
	// Trailing fields absent on the wire read as zero. Extra bytes beyond
	// the known layout are ignored.
	buf := data
	if len(buf) < size {
		buf = make([]byte, size)
		copy(buf, data)
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, body); err != nil {
		return nil, fmt.Errorf("%s: %w", TypeName(msgType), err)
	}
	return body, nil
}

// encodeBody serializes a body to raw wire bytes (after the type field).
func encodeBody(b Body) ([]byte, error) {
	if m, ok := b.(bodyMarshaler); ok {
		return m.MarshalBody()
	}
	if u, ok := b.(*Unhandled); ok {
		return u.Raw, nil
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, b); err != nil {
		return nil, fmt.Errorf("%s: %w", TypeName(b.MessageType()), err)
	}
	return buf.Bytes(), nil
}

// CString reads a NUL-terminated string from a fixed-size field.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// PutCString writes s into a fixed-size field, truncating if needed and
// always leaving at least one NUL when s overflows.
func PutCString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(s)
	if n >= len(dst) {
		n = len(dst) - 1
	}
	if n < 0 {
		return
	}
	copy(dst, s[:n])
}

// Device to server bodies.

type KeepAliveBody struct{}

func (*KeepAliveBody) MessageType() uint32 { return TypeKeepAlive }

// RegisterBody announces a device identity and opens the registration
// exchange.
type RegisterBody struct {
	DeviceName    [16]byte
	UserID        uint32
	Instance      uint32
	IP            [4]byte
	DeviceType    uint32
	MaxStreams    uint32
	ActiveStreams uint32
	ProtoVersion  uint32
}

func (*RegisterBody) MessageType() uint32 { return TypeRegister }

type PortBody struct {
	Port uint32
}

func (*PortBody) MessageType() uint32 { return TypePort }

type KeypadButtonBody struct {
	Button       uint32
	LineInstance uint32
	CallID       uint32
}

func (*KeypadButtonBody) MessageType() uint32 { return TypeKeypadButton }

type EnblocCallBody struct {
	CalledParty [24]byte
}

func (*EnblocCallBody) MessageType() uint32 { return TypeEnblocCall }

type StimulusBody struct {
	Stimulus         uint32
	StimulusInstance uint32
	CallID           uint32
}

func (*StimulusBody) MessageType() uint32 { return TypeStimulus }

type OffHookBody struct {
	LineInstance uint32
	CallID       uint32
}

func (*OffHookBody) MessageType() uint32 { return TypeOffHook }

type OnHookBody struct {
	LineInstance uint32
	CallID       uint32
}

func (*OnHookBody) MessageType() uint32 { return TypeOnHook }

type ForwardStatReqBody struct {
	LineInstance uint32
}

func (*ForwardStatReqBody) MessageType() uint32 { return TypeForwardStatReq }

type SpeedDialStatReqBody struct {
	Number uint32
}

func (*SpeedDialStatReqBody) MessageType() uint32 { return TypeSpeedDialStatReq }

type LineStatReqBody struct {
	Number uint32
}

func (*LineStatReqBody) MessageType() uint32 { return TypeLineStatReq }

type ConfigStatReqBody struct{}

func (*ConfigStatReqBody) MessageType() uint32 { return TypeConfigStatReq }

type TimeDateReqBody struct{}

func (*TimeDateReqBody) MessageType() uint32 { return TypeTimeDateReq }

type ButtonTemplateReqBody struct{}

func (*ButtonTemplateReqBody) MessageType() uint32 { return TypeButtonTemplateReq }

type VersionReqBody struct{}

func (*VersionReqBody) MessageType() uint32 { return TypeVersionReq }

// StationCapability is one codec entry in CapabilitiesResBody.
type StationCapability struct {
	Codec           uint32
	FramesPerPacket uint16
	Reserved        [10]byte
}

// CapabilitiesResBody lists the codecs the device supports. The entry
// count is validated against the bytes actually present.
type CapabilitiesResBody struct {
	Capabilities []StationCapability
}

func (*CapabilitiesResBody) MessageType() uint32 { return TypeCapabilitiesRes }

const capabilityEntrySize = 16

func (b *CapabilitiesResBody) UnmarshalBody(data []byte) error {
	count := binary.LittleEndian.Uint32(data[0:4])
	rest := data[4:]
	if int(count)*capabilityEntrySize > len(rest) {
		return fmt.Errorf("capability count %d exceeds %d body bytes", count, len(rest))
	}
	b.Capabilities = make([]StationCapability, count)
	for i := range b.Capabilities {
		entry := rest[i*capabilityEntrySize:]
		b.Capabilities[i].Codec = binary.LittleEndian.Uint32(entry[0:4])
		b.Capabilities[i].FramesPerPacket = binary.LittleEndian.Uint16(entry[4:6])
		copy(b.Capabilities[i].Reserved[:], entry[6:capabilityEntrySize])
	}
	return nil
}

func (b *CapabilitiesResBody) MarshalBody() ([]byte, error) {
	out := make([]byte, 4+len(b.Capabilities)*capabilityEntrySize)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(b.Capabilities)))
	for i, c := range b.Capabilities {
		entry := out[4+i*capabilityEntrySize:]
		binary.LittleEndian.PutUint32(entry[0:4], c.Codec)
		binary.LittleEndian.PutUint16(entry[4:6], c.FramesPerPacket)
		copy(entry[6:capabilityEntrySize], c.Reserved[:])
	}
	return out, nil
}

type AlarmBody struct {
	Severity       uint32
	DisplayMessage [80]byte
	Param1         uint32
	Param2         uint32
}

func (*AlarmBody) MessageType() uint32 { return TypeAlarm }

type OpenReceiveChannelAckBody struct {
	Status          uint32
	IP              [4]byte
	Port            uint32
	PassThruPartyID uint32
}

func (*OpenReceiveChannelAckBody) MessageType() uint32 { return TypeOpenReceiveChannelAck }

type SoftKeySetReqBody struct{}

func (*SoftKeySetReqBody) MessageType() uint32 { return TypeSoftKeySetReq }

type SoftKeyEventBody struct {
	Event        uint32
	LineInstance uint32
	CallID       uint32
}

func (*SoftKeyEventBody) MessageType() uint32 { return TypeSoftKeyEvent }

type UnregisterBody struct{}

func (*UnregisterBody) MessageType() uint32 { return TypeUnregister }

type SoftKeyTemplateReqBody struct{}

func (*SoftKeyTemplateReqBody) MessageType() uint32 { return TypeSoftKeyTemplateReq }

type HeadsetStatusBody struct {
	Mode uint32
}

func (*HeadsetStatusBody) MessageType() uint32 { return TypeHeadsetStatus }

type RegisterAvailableLinesBody struct {
	Count uint32
}

func (*RegisterAvailableLinesBody) MessageType() uint32 { return TypeRegisterAvailableLines }

type ServiceURLStatReqBody struct {
	Number uint32
}

func (*ServiceURLStatReqBody) MessageType() uint32 { return TypeServiceURLStatReq }

type FeatureStatReqBody struct {
	Number uint32
}

func (*FeatureStatReqBody) MessageType() uint32 { return TypeFeatureStatReq }

// Server to device bodies.

type RegisterAckBody struct {
	KeepAlive          uint32
	DateFormat         [6]byte
	Reserved           [2]byte
	SecondaryKeepAlive uint32
	Reserved2          [4]byte
}

func (*RegisterAckBody) MessageType() uint32 { return TypeRegisterAck }

type StartToneBody struct {
	Tone         uint32
	Reserved     uint32
	LineInstance uint32
	CallID       uint32
}

func (*StartToneBody) MessageType() uint32 { return TypeStartTone }

type StopToneBody struct {
	LineInstance uint32
	CallID       uint32
}

func (*StopToneBody) MessageType() uint32 { return TypeStopTone }

type SetRingerBody struct {
	RingType     uint32
	RingMode     uint32
	LineInstance uint32
	CallID       uint32
}

func (*SetRingerBody) MessageType() uint32 { return TypeSetRinger }

type SetLampBody struct {
	Stimulus         uint32
	StimulusInstance uint32
	Mode             uint32
}

func (*SetLampBody) MessageType() uint32 { return TypeSetLamp }

type SetSpeakerModeBody struct {
	Mode uint32
}

func (*SetSpeakerModeBody) MessageType() uint32 { return TypeSetSpeakerMode }

type StartMediaTransmissionBody struct {
	ConferenceID       uint32
	PassThruPartyID    uint32
	RemoteIP           [4]byte
	RemotePort         uint32
	MSPerPacket        uint32
	PayloadCapacity    uint32
	Precedence         uint32
	SilenceSuppression uint32
	MaxFramesPerPacket uint16
	Reserved           uint16
	G723Bitrate        uint32
}

func (*StartMediaTransmissionBody) MessageType() uint32 { return TypeStartMediaTransmission }

type StopMediaTransmissionBody struct {
	ConferenceID    uint32
	PassThruPartyID uint32
	ConferenceID2   uint32
}

func (*StopMediaTransmissionBody) MessageType() uint32 { return TypeStopMediaTransmission }

// Call types for CallInfoBody.
const (
	CallTypeInbound  uint32 = 1
	CallTypeOutbound uint32 = 2
	CallTypeForward  uint32 = 3
)

type CallInfoBody struct {
	CallingPartyName        [40]byte
	CallingParty            [24]byte
	CalledPartyName         [40]byte
	CalledParty             [24]byte
	LineInstance            uint32
	CallID                  uint32
	CallType                uint32
	OriginalCalledPartyName [40]byte
	OriginalCalledParty     [24]byte
}

func (*CallInfoBody) MessageType() uint32 { return TypeCallInfo }

type ForwardStatBody struct {
	ActiveForward         uint32
	LineInstance          uint32
	ForwardAllActive      uint32
	ForwardAllNumber      [24]byte
	ForwardBusyActive     uint32
	ForwardBusyNumber     [24]byte
	ForwardNoAnswerActive uint32
	ForwardNoAnswerNumber [24]byte
}

func (*ForwardStatBody) MessageType() uint32 { return TypeForwardStat }

type SpeedDialStatResBody struct {
	Number uint32
	Line   [24]byte
	Label  [40]byte
}

func (*SpeedDialStatResBody) MessageType() uint32 { return TypeSpeedDialStatRes }

type LineStatResBody struct {
	Number      uint32
	Name        [24]byte
	DisplayName [40]byte
	Label       [44]byte
}

func (*LineStatResBody) MessageType() uint32 { return TypeLineStatRes }

type ConfigStatResBody struct {
	DeviceName      [16]byte
	UserID          uint32
	Instance        uint32
	UserName        [40]byte
	ServerName      [40]byte
	NumberLines     uint32
	NumberSpeedDial uint32
}

func (*ConfigStatResBody) MessageType() uint32 { return TypeConfigStatRes }

type DefineTimeDateBody struct {
	Year         uint32
	Month        uint32
	DayOfWeek    uint32
	Day          uint32
	Hour         uint32
	Minute       uint32
	Seconds      uint32
	Milliseconds uint32
	Timestamp    uint32
}

func (*DefineTimeDateBody) MessageType() uint32 { return TypeDefineTimeDate }

// ButtonDefinition is one slot in the button template.
type ButtonDefinition struct {
	InstanceNumber uint8
	Definition     uint8
}

type ButtonTemplateResBody struct {
	ButtonOffset     uint32
	ButtonCount      uint32
	TotalButtonCount uint32
	Definitions      [42]ButtonDefinition
}

func (*ButtonTemplateResBody) MessageType() uint32 { return TypeButtonTemplateRes }

type VersionBody struct {
	Version [16]byte
}

func (*VersionBody) MessageType() uint32 { return TypeVersion }

type CapabilitiesReqBody struct{}

func (*CapabilitiesReqBody) MessageType() uint32 { return TypeCapabilitiesReq }

type RegisterRejectBody struct {
	Error [33]byte
}

func (*RegisterRejectBody) MessageType() uint32 { return TypeRegisterReject }

type ResetBody struct {
	ResetType uint32
}

func (*ResetBody) MessageType() uint32 { return TypeReset }

type KeepAliveAckBody struct{}

func (*KeepAliveAckBody) MessageType() uint32 { return TypeKeepAliveAck }

type OpenReceiveChannelBody struct {
	ConferenceID    uint32
	PassThruPartyID uint32
	MSPerPacket     uint32
	PayloadCapacity uint32
	EchoCancelType  uint32
	G723Bitrate     uint32
	ConferenceID2   uint32
	Reserved        [10]uint32
}

func (*OpenReceiveChannelBody) MessageType() uint32 { return TypeOpenReceiveChannel }

type CloseReceiveChannelBody struct {
	ConferenceID    uint32
	PassThruPartyID uint32
	ConferenceID2   uint32
}

func (*CloseReceiveChannelBody) MessageType() uint32 { return TypeCloseReceiveChannel }

// SoftKeyTemplateDefinition is one key label/event pair in the template.
type SoftKeyTemplateDefinition struct {
	Label [16]byte
	Event uint32
}

type SoftKeyTemplateResBody struct {
	SoftKeyOffset     uint32
	SoftKeyCount      uint32
	TotalSoftKeyCount uint32
	Definitions       [32]SoftKeyTemplateDefinition
}

func (*SoftKeyTemplateResBody) MessageType() uint32 { return TypeSoftKeyTemplateRes }

// SoftKeySetDefinition maps set positions to template indexes.
type SoftKeySetDefinition struct {
	KeyTemplateIndex [16]uint8
	KeyInfoIndex     [16]uint16
}

type SoftKeySetResBody struct {
	SetOffset     uint32
	SetCount      uint32
	TotalSetCount uint32
	Sets          [16]SoftKeySetDefinition
}

func (*SoftKeySetResBody) MessageType() uint32 { return TypeSoftKeySetRes }

type SelectSoftKeysBody struct {
	LineInstance uint32
	CallID       uint32
	SetIndex     uint32
	ValidKeyMask uint32
}

func (*SelectSoftKeysBody) MessageType() uint32 { return TypeSelectSoftKeys }

type CallStateBody struct {
	State        uint32
	LineInstance uint32
	CallID       uint32
}

func (*CallStateBody) MessageType() uint32 { return TypeCallState }

type DisplayPromptStatusBody struct {
	Timeout      uint32
	Display      [32]byte
	LineInstance uint32
	CallID       uint32
}

func (*DisplayPromptStatusBody) MessageType() uint32 { return TypeDisplayPromptStatus }

type ClearPromptStatusBody struct {
	LineInstance uint32
	CallID       uint32
}

func (*ClearPromptStatusBody) MessageType() uint32 { return TypeClearPromptStatus }

type ActivateCallPlaneBody struct {
	LineInstance uint32
}

func (*ActivateCallPlaneBody) MessageType() uint32 { return TypeActivateCallPlane }

type UnregisterAckBody struct {
	Status uint32
}

func (*UnregisterAckBody) MessageType() uint32 { return TypeUnregisterAck }

type BackSpaceReqBody struct {
	LineInstance uint32
	CallID       uint32
}

func (*BackSpaceReqBody) MessageType() uint32 { return TypeBackSpaceReq }

type DialedNumberBody struct {
	DialedNumber [24]byte
	LineInstance uint32
	CallID       uint32
}

func (*DialedNumberBody) MessageType() uint32 { return TypeDialedNumber }

type FeatureStatResBody struct {
	Index  uint32
	ID     uint32
	Label  [40]byte
	Status uint32
}

func (*FeatureStatResBody) MessageType() uint32 { return TypeFeatureStatRes }

type ServiceURLStatResBody struct {
	Index       uint32
	URL         [256]byte
	DisplayName [40]byte
}

func (*ServiceURLStatResBody) MessageType() uint32 { return TypeServiceURLStatRes }
