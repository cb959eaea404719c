// Package wire implements the SCCP ("Skinny") binary wire protocol:
// length-prefixed framing, the message type registry, and the fixed and
// variable body layouts exchanged between phone and server.
package wire

import "fmt"

// Message type codes. Values below 0x0080 originate from the device,
// values from 0x0080 from the server. The numeric values are part of the
// wire contract and must not change.
const (
	TypeKeepAlive                  uint32 = 0x0000
	TypeRegister                   uint32 = 0x0001
	TypePort                       uint32 = 0x0002
	TypeKeypadButton               uint32 = 0x0003
	TypeEnblocCall                 uint32 = 0x0004
	TypeStimulus                   uint32 = 0x0005
	TypeOffHook                    uint32 = 0x0006
	TypeOnHook                     uint32 = 0x0007
	TypeForwardStatReq             uint32 = 0x0009
	TypeSpeedDialStatReq           uint32 = 0x000A
	TypeLineStatReq                uint32 = 0x000B
	TypeConfigStatReq              uint32 = 0x000C
	TypeTimeDateReq                uint32 = 0x000D
	TypeButtonTemplateReq          uint32 = 0x000E
	TypeVersionReq                 uint32 = 0x000F
	TypeCapabilitiesRes            uint32 = 0x0010
	TypeAlarm                      uint32 = 0x0020
	TypeOpenReceiveChannelAck      uint32 = 0x0022
	TypeSoftKeySetReq              uint32 = 0x0025
	TypeSoftKeyEvent               uint32 = 0x0026
	TypeUnregister                 uint32 = 0x0027
	TypeSoftKeyTemplateReq         uint32 = 0x0028
	TypeHeadsetStatus              uint32 = 0x002B
	TypeRegisterAvailableLines     uint32 = 0x002D
	TypeDeviceToUserData           uint32 = 0x002E
	TypeDeviceToUserDataResponse   uint32 = 0x002F
	TypeServiceURLStatReq          uint32 = 0x0033
	TypeFeatureStatReq             uint32 = 0x0034
	TypeDeviceToUserDataV1         uint32 = 0x0041
	TypeDeviceToUserDataResponseV1 uint32 = 0x0042

	TypeRegisterAck            uint32 = 0x0081
	TypeStartTone              uint32 = 0x0082
	TypeStopTone               uint32 = 0x0083
	TypeSetRinger              uint32 = 0x0085
	TypeSetLamp                uint32 = 0x0086
	TypeSetSpeakerMode         uint32 = 0x0088
	TypeStartMediaTransmission uint32 = 0x008A
	TypeStopMediaTransmission  uint32 = 0x008B
	TypeCallInfo               uint32 = 0x008F
	TypeForwardStat            uint32 = 0x0090
	TypeSpeedDialStatRes       uint32 = 0x0091
	TypeLineStatRes            uint32 = 0x0092
	TypeConfigStatRes          uint32 = 0x0093
	TypeDefineTimeDate         uint32 = 0x0094
	TypeButtonTemplateRes      uint32 = 0x0097
	TypeVersion                uint32 = 0x0098
	TypeCapabilitiesReq        uint32 = 0x009B
	TypeRegisterReject         uint32 = 0x009D
	TypeReset                  uint32 = 0x009F
	TypeKeepAliveAck           uint32 = 0x0100
	TypeOpenReceiveChannel     uint32 = 0x0105
	TypeCloseReceiveChannel    uint32 = 0x0106
	TypeSoftKeyTemplateRes     uint32 = 0x0108
	TypeSoftKeySetRes          uint32 = 0x0109
	TypeSelectSoftKeys         uint32 = 0x0110
	TypeCallState              uint32 = 0x0111
	TypeDisplayPromptStatus    uint32 = 0x0112
	TypeClearPromptStatus      uint32 = 0x0113
	TypeActivateCallPlane      uint32 = 0x0116
	TypeUnregisterAck          uint32 = 0x0118
	TypeBackSpaceReq           uint32 = 0x0119
	TypeDialedNumber           uint32 = 0x011D
	TypeUserToDeviceData       uint32 = 0x011E
	TypeFeatureStatRes         uint32 = 0x011F
	TypeServiceURLStatRes      uint32 = 0x012F
	TypeUserToDeviceDataV1     uint32 = 0x013F
)

// CallState is the line state as carried in CallStateBody. The values are
// wire values and double as the states of the call state machine.
type CallState uint32

const (
	StateOffHook       CallState = 1
	StateOnHook        CallState = 2
	StateRingOut       CallState = 3
	StateRingIn        CallState = 4
	StateConnected     CallState = 5
	StateBusy          CallState = 6
	StateCongestion    CallState = 7
	StateHold          CallState = 8
	StateCallWaiting   CallState = 9
	StateCallTransfer  CallState = 10
	StateCallPark      CallState = 11
	StateProceed       CallState = 12
	StateInUseRemotely CallState = 13
	StateInvalidNumber CallState = 14
)

// String returns the state name used in logs and the admin API.
func (s CallState) String() string {
	switch s {
	case StateOffHook:
		return "OffHook"
	case StateOnHook:
		return "OnHook"
	case StateRingOut:
		return "RingOut"
	case StateRingIn:
		return "RingIn"
	case StateConnected:
		return "Connected"
	case StateBusy:
		return "Busy"
	case StateCongestion:
		return "Congestion"
	case StateHold:
		return "Hold"
	case StateCallWaiting:
		return "CallWaiting"
	case StateCallTransfer:
		return "CallTransfer"
	case StateCallPark:
		return "CallPark"
	case StateProceed:
		return "Proceed"
	case StateInUseRemotely:
		return "InUseRemotely"
	case StateInvalidNumber:
		return "InvalidNumber"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(s))
	}
}

// Tones for StartToneBody.
const (
	ToneSilence  uint32 = 0x00
	ToneDial     uint32 = 0x21
	ToneBusy     uint32 = 0x23
	ToneAlert    uint32 = 0x24
	ToneReorder  uint32 = 0x25
	ToneCallWait uint32 = 0x2D
)

// Ringer types and modes for SetRingerBody.
const (
	RingOff     uint32 = 1
	RingInside  uint32 = 2
	RingOutside uint32 = 3
	RingFeature uint32 = 4

	RingForever uint32 = 1
	RingOnce    uint32 = 2
)

// Lamp modes for SetLampBody.
const (
	LampOff   uint32 = 1
	LampOn    uint32 = 2
	LampWink  uint32 = 3
	LampFlash uint32 = 4
	LampBlink uint32 = 5
)

// Speaker modes for SetSpeakerModeBody.
const (
	SpeakerOn  uint32 = 1
	SpeakerOff uint32 = 2
)

// Button / stimulus types. Buttons and stimuli share the same namespace.
const (
	ButtonRedial     uint32 = 0x01
	ButtonSpeedDial  uint32 = 0x02
	ButtonHold       uint32 = 0x03
	ButtonTransfer   uint32 = 0x04
	ButtonVoicemail  uint32 = 0x0F
	ButtonLine       uint32 = 0x09
	ButtonServiceURL uint32 = 0x14
	ButtonFeature    uint32 = 0x15
	ButtonUndefined  uint32 = 0xFF
)

// Soft key events, as carried in SoftKeyEventBody and the soft key
// template. Values follow the stock phone firmware.
const (
	SoftKeyRedial       uint32 = 0x01
	SoftKeyNewCall      uint32 = 0x02
	SoftKeyHold         uint32 = 0x03
	SoftKeyTransfer     uint32 = 0x04
	SoftKeyCFwdAll      uint32 = 0x05
	SoftKeyCFwdBusy     uint32 = 0x06
	SoftKeyCFwdNoAnswer uint32 = 0x07
	SoftKeyBackspace    uint32 = 0x08
	SoftKeyEndCall      uint32 = 0x09
	SoftKeyResume       uint32 = 0x0A
	SoftKeyAnswer       uint32 = 0x0B
	SoftKeyInfo         uint32 = 0x0C
	SoftKeyConference   uint32 = 0x0D
	SoftKeyPark         uint32 = 0x0E
	SoftKeyJoin         uint32 = 0x0F
	SoftKeyMeetMe       uint32 = 0x10
	SoftKeyPickup       uint32 = 0x11
	SoftKeyGroupPickup  uint32 = 0x12
	SoftKeyDND          uint32 = 0x3F
)

// Soft key set indexes for SelectSoftKeysBody.
const (
	KeySetOnHook                uint32 = 0
	KeySetConnected             uint32 = 1
	KeySetOnHold                uint32 = 2
	KeySetRingIn                uint32 = 3
	KeySetOffHook               uint32 = 4
	KeySetConnectedWithTransfer uint32 = 5
	KeySetDigitsAfterFirst      uint32 = 6
	KeySetConnectedWithConf     uint32 = 7
	KeySetRingOut               uint32 = 8
	KeySetOffHookWithFeatures   uint32 = 9
	KeySetInUseHint             uint32 = 10
)

// SoftKeyMaskAll enables every key in the selected set.
const SoftKeyMaskAll uint32 = 0xFFFF

// Media payload capacities (codec identifiers) used during capability
// negotiation and in open/start media commands.
const (
	CodecNonStandard uint32 = 1
	CodecAlaw64k     uint32 = 2
	CodecAlaw56k     uint32 = 3
	CodecUlaw64k     uint32 = 4
	CodecUlaw56k     uint32 = 5
	CodecG722_64k    uint32 = 6
	CodecG722_56k    uint32 = 7
	CodecG722_48k    uint32 = 8
	CodecG723_1      uint32 = 9
	CodecG728        uint32 = 10
	CodecG729        uint32 = 11
	CodecG729AnnexA  uint32 = 12
)

// CodecName maps a payload capacity to a short codec name.
func CodecName(codec uint32) string {
	switch codec {
	case CodecAlaw64k, CodecAlaw56k:
		return "ALAW"
	case CodecUlaw64k, CodecUlaw56k:
		return "ULAW"
	case CodecG722_64k, CodecG722_56k, CodecG722_48k:
		return "G722"
	case CodecG723_1:
		return "G723"
	case CodecG728:
		return "G728"
	case CodecG729, CodecG729AnnexA:
		return "G729"
	default:
		return ""
	}
}

// Device reset types for ResetBody.
const (
	DeviceReset   uint32 = 1
	DeviceRestart uint32 = 2
)

// Alarm severities.
const (
	AlarmCritical      uint32 = 0
	AlarmWarning       uint32 = 1
	AlarmInformational uint32 = 2
)

// TypeName returns a readable name for a message type code.
func TypeName(t uint32) string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(0x%04X)", t)
}

var typeNames = map[uint32]string{
	TypeKeepAlive:                  "KeepAlive",
	TypeRegister:                   "Register",
	TypePort:                       "Port",
	TypeKeypadButton:               "KeypadButton",
	TypeEnblocCall:                 "EnblocCall",
	TypeStimulus:                   "Stimulus",
	TypeOffHook:                    "OffHook",
	TypeOnHook:                     "OnHook",
	TypeForwardStatReq:             "ForwardStatReq",
	TypeSpeedDialStatReq:           "SpeedDialStatReq",
	TypeLineStatReq:                "LineStatReq",
	TypeConfigStatReq:              "ConfigStatReq",
	TypeTimeDateReq:                "TimeDateReq",
	TypeButtonTemplateReq:          "ButtonTemplateReq",
	TypeVersionReq:                 "VersionReq",
	TypeCapabilitiesRes:            "CapabilitiesRes",
	TypeAlarm:                      "Alarm",
	TypeOpenReceiveChannelAck:      "OpenReceiveChannelAck",
	TypeSoftKeySetReq:              "SoftKeySetReq",
	TypeSoftKeyEvent:               "SoftKeyEvent",
	TypeUnregister:                 "Unregister",
	TypeSoftKeyTemplateReq:         "SoftKeyTemplateReq",
	TypeHeadsetStatus:              "HeadsetStatus",
	TypeRegisterAvailableLines:     "RegisterAvailableLines",
	TypeDeviceToUserData:           "DeviceToUserData",
	TypeDeviceToUserDataResponse:   "DeviceToUserDataResponse",
	TypeServiceURLStatReq:          "ServiceURLStatReq",
	TypeFeatureStatReq:             "FeatureStatReq",
	TypeDeviceToUserDataV1:         "DeviceToUserDataV1",
	TypeDeviceToUserDataResponseV1: "DeviceToUserDataResponseV1",
	TypeRegisterAck:                "RegisterAck",
	TypeStartTone:                  "StartTone",
	TypeStopTone:                   "StopTone",
	TypeSetRinger:                  "SetRinger",
	TypeSetLamp:                    "SetLamp",
	TypeSetSpeakerMode:             "SetSpeakerMode",
	TypeStartMediaTransmission:     "StartMediaTransmission",
	TypeStopMediaTransmission:      "StopMediaTransmission",
	TypeCallInfo:                   "CallInfo",
	TypeForwardStat:                "ForwardStat",
	TypeSpeedDialStatRes:           "SpeedDialStatRes",
	TypeLineStatRes:                "LineStatRes",
	TypeConfigStatRes:              "ConfigStatRes",
	TypeDefineTimeDate:             "DefineTimeDate",
	TypeButtonTemplateRes:          "ButtonTemplateRes",
	TypeVersion:                    "Version",
	TypeCapabilitiesReq:            "CapabilitiesReq",
	TypeRegisterReject:             "RegisterReject",
	TypeReset:                      "Reset",
	TypeKeepAliveAck:               "KeepAliveAck",
	TypeOpenReceiveChannel:         "OpenReceiveChannel",
	TypeCloseReceiveChannel:        "CloseReceiveChannel",
	TypeSoftKeyTemplateRes:         "SoftKeyTemplateRes",
	TypeSoftKeySetRes:              "SoftKeySetRes",
	TypeSelectSoftKeys:             "SelectSoftKeys",
	TypeCallState:                  "CallState",
	TypeDisplayPromptStatus:        "DisplayPromptStatus",
	TypeClearPromptStatus:          "ClearPromptStatus",
	TypeActivateCallPlane:          "ActivateCallPlane",
	TypeUnregisterAck:              "UnregisterAck",
	TypeBackSpaceReq:               "BackSpaceReq",
	TypeDialedNumber:               "DialedNumber",
	TypeUserToDeviceData:           "UserToDeviceData",
	TypeFeatureStatRes:             "FeatureStatRes",
	TypeServiceURLStatRes:          "ServiceURLStatRes",
	TypeUserToDeviceDataV1:         "UserToDeviceDataV1",
}
