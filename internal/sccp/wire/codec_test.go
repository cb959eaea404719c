package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
)

func encodeFrame(t *testing.T, b Body) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Send(b); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func decodeFrame(t *testing.T, raw []byte) *Message {
	t.Helper()
	msg, err := NewDecoder(bytes.NewReader(raw)).Read()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func TestRoundTripFixedBodies(t *testing.T) {
	reg := &RegisterBody{UserID: 1001, Instance: 1, DeviceType: 7, MaxStreams: 1}
	PutCString(reg.DeviceName[:], "SEP001122334455")
	reg.IP = [4]byte{10, 0, 0, 42}

	cs := &CallStateBody{State: uint32(StateRingOut), LineInstance: 1, CallID: 77}

	tone := &StartToneBody{Tone: ToneDial, LineInstance: 1, CallID: 77}

	prompt := &DisplayPromptStatusBody{Timeout: 10, LineInstance: 2, CallID: 5}
	PutCString(prompt.Display[:], "Enter number")

	for _, body := range []Body{reg, cs, tone, prompt} {
		raw := encodeFrame(t, body)
		msg := decodeFrame(t, raw)
		if msg.Type != body.MessageType() {
			t.Fatalf("type = 0x%04X, want 0x%04X", msg.Type, body.MessageType())
		}
	}

	msg := decodeFrame(t, encodeFrame(t, reg))
	got, ok := msg.Body.(*RegisterBody)
	if !ok {
		t.Fatalf("body type = %T, want *RegisterBody", msg.Body)
	}
	if CString(got.DeviceName[:]) != "SEP001122334455" {
		t.Errorf("device name = %q", CString(got.DeviceName[:]))
	}
	if got.UserID != 1001 || got.DeviceType != 7 {
		t.Errorf("got userID=%d deviceType=%d", got.UserID, got.DeviceType)
	}
	if got.IP != [4]byte{10, 0, 0, 42} {
		t.Errorf("ip = %v", got.IP)
	}
}

func TestRoundTripCapabilities(t *testing.T) {
	in := &CapabilitiesResBody{Capabilities: []StationCapability{
		{Codec: CodecUlaw64k, FramesPerPacket: 20},
		{Codec: CodecAlaw64k, FramesPerPacket: 20},
	}}
	msg := decodeFrame(t, encodeFrame(t, in))
	got, ok := msg.Body.(*CapabilitiesResBody)
	if !ok {
		t.Fatalf("body type = %T", msg.Body)
	}
	if len(got.Capabilities) != 2 {
		t.Fatalf("capabilities = %d, want 2", len(got.Capabilities))
	}
	if got.Capabilities[0].Codec != CodecUlaw64k || got.Capabilities[1].Codec != CodecAlaw64k {
		t.Errorf("codecs = %d,%d", got.Capabilities[0].Codec, got.Capabilities[1].Codec)
	}
}

func TestRoundTripDataMessages(t *testing.T) {
	in := &DeviceToUserDataV1Body{
		Header: DataHeaderV1{
			DataHeader:   DataHeader{AppID: 3, LineInstance: 1, CallID: 9, TransactionID: 12},
			SequenceFlag: 1,
			RoutingID:    2,
		},
		Payload: []byte("<CiscoIPPhoneExecute/>"),
	}
	raw := encodeFrame(t, in)
	// Length field covers type plus header plus padded payload.
	wantLen := uint32(4 + 40 + (len(in.Payload)+3)&^3)
	if gotLen := binary.LittleEndian.Uint32(raw[0:4]); gotLen != wantLen {
		t.Errorf("frame length = %d, want %d", gotLen, wantLen)
	}
	msg := decodeFrame(t, raw)
	got, ok := msg.Body.(*DeviceToUserDataV1Body)
	if !ok {
		t.Fatalf("body type = %T", msg.Body)
	}
	if string(got.Payload) != string(in.Payload) {
		t.Errorf("payload = %q, want %q", got.Payload, in.Payload)
	}
	if got.Header.RoutingID != 2 || got.Header.SequenceFlag != 1 {
		t.Errorf("header = %+v", got.Header)
	}
}

func TestDataLengthOverrunRejected(t *testing.T) {
	body := make([]byte, dataHeaderSize+4)
	binary.LittleEndian.PutUint32(body[16:20], 500) // claims more payload than present
	frame := rawFrame(TypeDeviceToUserData, body)
	if _, err := NewDecoder(bytes.NewReader(frame)).Read(); err == nil {
		t.Fatal("want error for overrun data length")
	}
}

func TestCapabilityCountOverrunRejected(t *testing.T) {
	body := make([]byte, 4+capabilityEntrySize)
	binary.LittleEndian.PutUint32(body[0:4], 10)
	frame := rawFrame(TypeCapabilitiesRes, body)
	if _, err := NewDecoder(bytes.NewReader(frame)).Read(); err == nil {
		t.Fatal("want error for overrun capability count")
	}
}

func TestFramingRejection(t *testing.T) {
	tests := []struct {
		name   string
		length uint32
	}{
		{"below minimum", 3},
		{"zero", 0},
		{"over frame limit", MaxFrameSize},
		{"wrapping length", 0xFFFFFFF8},
		{"maximum length", 0xFFFFFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := make([]byte, 12)
			binary.LittleEndian.PutUint32(raw[0:4], tt.length)
			_, err := NewDecoder(bytes.NewReader(raw)).Read()
			if !errors.Is(err, ErrFraming) {
				t.Fatalf("err = %v, want framing error", err)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// stutterReader delivers the stream in segments with a timeout error
// between them, like a connection read under a short deadline.
type stutterReader struct {
	segments [][]byte
	stalled  bool
}

func (r *stutterReader) Read(p []byte) (int, error) {
	if r.stalled {
		r.stalled = false
		return 0, timeoutError{}
	}
	if len(r.segments) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.segments[0])
	r.segments[0] = r.segments[0][n:]
	if len(r.segments[0]) == 0 {
		r.segments = r.segments[1:]
		r.stalled = len(r.segments) > 0
	}
	return n, nil
}

func TestPartialFrameResumesAfterTimeout(t *testing.T) {
	raw := encodeFrame(t, &KeepAliveBody{})
	for _, split := range []int{3, 5, 8, 10} {
		dec := NewDecoder(&stutterReader{segments: [][]byte{raw[:split], raw[split:]}})

		_, err := dec.Read()
		var ne net.Error
		if !errors.As(err, &ne) || !ne.Timeout() {
			t.Fatalf("split %d: first read err = %v, want timeout", split, err)
		}
		if errors.Is(err, ErrFraming) {
			t.Fatalf("split %d: timeout classified as framing error", split)
		}

		msg, err := dec.Read()
		if err != nil {
			t.Fatalf("split %d: resume read: %v", split, err)
		}
		if msg.Type != TypeKeepAlive {
			t.Fatalf("split %d: type = 0x%04X, want keepalive", split, msg.Type)
		}
	}
}

func TestUnknownTypeDecodesAsUnhandled(t *testing.T) {
	frame := rawFrame(0x4004, []byte{1, 2, 3, 4})
	msg := decodeFrame(t, frame)
	u, ok := msg.Body.(*Unhandled)
	if !ok {
		t.Fatalf("body type = %T, want *Unhandled", msg.Body)
	}
	if u.Type != 0x4004 || len(u.Raw) != 4 {
		t.Errorf("got type=0x%04X raw=%d bytes", u.Type, len(u.Raw))
	}
}

func TestTruncatedTrailingFieldsZeroFilled(t *testing.T) {
	// A Register body carrying only the 16-byte name and two u32 fields.
	body := make([]byte, 24)
	copy(body, "SEP0011AABBCCDD")
	binary.LittleEndian.PutUint32(body[16:20], 55)
	frame := rawFrame(TypeRegister, body)
	msg := decodeFrame(t, frame)
	got := msg.Body.(*RegisterBody)
	if got.UserID != 55 {
		t.Errorf("userID = %d, want 55", got.UserID)
	}
	if got.DeviceType != 0 || got.ProtoVersion != 0 {
		t.Errorf("trailing fields not zero: %+v", got)
	}
}

func TestBodyBelowMinimumRejected(t *testing.T) {
	frame := rawFrame(TypeRegister, make([]byte, 8))
	if _, err := NewDecoder(bytes.NewReader(frame)).Read(); err == nil {
		t.Fatal("want error for body below type minimum")
	}
}

func TestDecodeSequence(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.Send(&KeepAliveBody{}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Send(&OffHookBody{LineInstance: 1}); err != nil {
		t.Fatal(err)
	}
	dec := NewDecoder(&buf)
	first, err := dec.Read()
	if err != nil || first.Type != TypeKeepAlive {
		t.Fatalf("first = %v, %v", first, err)
	}
	second, err := dec.Read()
	if err != nil || second.Type != TypeOffHook {
		t.Fatalf("second = %v, %v", second, err)
	}
}

func TestCStringHelpers(t *testing.T) {
	var field [8]byte
	PutCString(field[:], "too long for field")
	if got := CString(field[:]); got != "too lon" {
		t.Errorf("truncated = %q", got)
	}
	PutCString(field[:], "ok")
	if got := CString(field[:]); got != "ok" {
		t.Errorf("short = %q", got)
	}
}

func rawFrame(msgType uint32, body []byte) []byte {
	out := make([]byte, 12+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(4+len(body)))
	binary.LittleEndian.PutUint32(out[8:12], msgType)
	copy(out[12:], body)
	return out
}
