// Package events defines the device and call lifecycle events the engine
// publishes toward external consumers, plus the publishing infrastructure
// (in-memory, logging and NATS JetStream).
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies an event for routing and filtering.
type EventType string

const (
	DeviceRegistered   EventType = "device.registered"
	DeviceUnregistered EventType = "device.unregistered"
	DeviceExpired      EventType = "device.expired"
	DeviceAlarm        EventType = "device.alarm"
	DeviceData         EventType = "device.data"
	CallStateChanged   EventType = "call.state"
)

// SubjectPrefix roots every published subject.
const SubjectPrefix = "sccpd"

// Event is the base interface for all published events.
type Event interface {
	Type() EventType
	Subject() string
	Timestamp() time.Time
	Device() string
}

// BaseEvent carries the fields common to every event.
type BaseEvent struct {
	EventID    string    `json:"event_id"`
	EventType  EventType `json:"event_type"`
	EventTime  time.Time `json:"event_time"`
	DeviceName string    `json:"device_name"`
	NodeID     string    `json:"node_id,omitempty"`
}

func (e *BaseEvent) Type() EventType      { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTime }
func (e *BaseEvent) Device() string       { return e.DeviceName }

// Subject routes device events by device name:
// sccpd.devices.<device>.<event_type_suffix>
func (e *BaseEvent) Subject() string {
	suffix := string(e.EventType)
	if i := len("device."); len(suffix) > i && suffix[:i] == "device." {
		suffix = suffix[i:]
	}
	return SubjectPrefix + ".devices." + e.DeviceName + "." + suffix
}

func newBase(t EventType, device string) BaseEvent {
	return BaseEvent{
		EventID:    uuid.NewString(),
		EventType:  t,
		EventTime:  time.Now().UTC(),
		DeviceName: device,
	}
}

// DeviceRegisteredEvent fires after a successful registration exchange.
type DeviceRegisteredEvent struct {
	BaseEvent
	UserID     uint32 `json:"user_id"`
	RemoteAddr string `json:"remote_addr"`
	DeviceType uint32 `json:"device_type"`
	LineCount  int    `json:"line_count"`
}

func NewDeviceRegistered(device string, userID, deviceType uint32, remoteAddr string, lineCount int) *DeviceRegisteredEvent {
	return &DeviceRegisteredEvent{
		BaseEvent:  newBase(DeviceRegistered, device),
		UserID:     userID,
		RemoteAddr: remoteAddr,
		DeviceType: deviceType,
		LineCount:  lineCount,
	}
}

// DeviceUnregisteredEvent fires when a device leaves, for any reason.
type DeviceUnregisteredEvent struct {
	BaseEvent
	Reason string `json:"reason"` // "unregister", "disconnect", "killed"
}

func NewDeviceUnregistered(device, reason string) *DeviceUnregisteredEvent {
	return &DeviceUnregisteredEvent{BaseEvent: newBase(DeviceUnregistered, device), Reason: reason}
}

// DeviceExpiredEvent fires when the keepalive sweep evicts a device.
type DeviceExpiredEvent struct {
	BaseEvent
	LastSeen time.Time `json:"last_seen"`
}

func NewDeviceExpired(device string, lastSeen time.Time) *DeviceExpiredEvent {
	return &DeviceExpiredEvent{BaseEvent: newBase(DeviceExpired, device), LastSeen: lastSeen}
}

// DeviceAlarmEvent relays an alarm raised by the device.
type DeviceAlarmEvent struct {
	BaseEvent
	Severity uint32 `json:"severity"`
	Message  string `json:"message"`
}

func NewDeviceAlarm(device string, severity uint32, message string) *DeviceAlarmEvent {
	return &DeviceAlarmEvent{BaseEvent: newBase(DeviceAlarm, device), Severity: severity, Message: message}
}

// DeviceDataEvent relays application data pushed by the device.
type DeviceDataEvent struct {
	BaseEvent
	AppID         uint32 `json:"app_id"`
	LineInstance  uint32 `json:"line_instance"`
	CallID        uint32 `json:"call_id"`
	TransactionID uint32 `json:"transaction_id"`
	Payload       string `json:"payload"`
}

func NewDeviceData(device string, appID, lineInstance, callID, transactionID uint32, payload []byte) *DeviceDataEvent {
	return &DeviceDataEvent{
		BaseEvent:     newBase(DeviceData, device),
		AppID:         appID,
		LineInstance:  lineInstance,
		CallID:        callID,
		TransactionID: transactionID,
		Payload:       string(payload),
	}
}

// CallStateChangedEvent fires on every call state machine transition.
type CallStateChangedEvent struct {
	BaseEvent
	LineInstance uint32 `json:"line_instance"`
	CallID       uint32 `json:"call_id"`
	State        string `json:"state"`
	RemoteNumber string `json:"remote_number,omitempty"`
}

func NewCallStateChanged(device string, lineInstance, callID uint32, state, remoteNumber string) *CallStateChangedEvent {
	return &CallStateChangedEvent{
		BaseEvent:    newBase(CallStateChanged, device),
		LineInstance: lineInstance,
		CallID:       callID,
		State:        state,
		RemoteNumber: remoteNumber,
	}
}

// Subject routes call events by device:
// sccpd.calls.<device>.state
func (e *CallStateChangedEvent) Subject() string {
	return SubjectPrefix + ".calls." + e.DeviceName + ".state"
}

// Marshal serializes an event for transport.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(e)
}
