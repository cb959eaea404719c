package wire

import (
	"encoding/binary"
	"fmt"
)

// DataHeader is the shared prefix of the four application-data message
// forms. DataLength counts payload bytes; on the wire the payload is
// padded with NULs to a 4-byte boundary.
type DataHeader struct {
	AppID         uint32
	LineInstance  uint32
	CallID        uint32
	TransactionID uint32
	DataLength    uint32
}

// DataHeaderV1 extends DataHeader with the fields the V1 message forms
// insert between the length and the payload.
type DataHeaderV1 struct {
	DataHeader
	SequenceFlag    uint32
	DisplayPriority uint32
	ConferenceID    uint32
	AppInstanceID   uint32
	RoutingID       uint32
}

const (
	dataHeaderSize   = 20
	dataHeaderV1Size = 40
)

func pad4(n int) int {
	return (n + 3) &^ 3
}

func unmarshalData(data []byte, v1 bool) (hdr DataHeaderV1, payload []byte, err error) {
	hdr.AppID = binary.LittleEndian.Uint32(data[0:4])
	hdr.LineInstance = binary.LittleEndian.Uint32(data[4:8])
	hdr.CallID = binary.LittleEndian.Uint32(data[8:12])
	hdr.TransactionID = binary.LittleEndian.Uint32(data[12:16])
	hdr.DataLength = binary.LittleEndian.Uint32(data[16:20])
	rest := data[dataHeaderSize:]
	if v1 {
		hdr.SequenceFlag = binary.LittleEndian.Uint32(data[20:24])
		hdr.DisplayPriority = binary.LittleEndian.Uint32(data[24:28])
		hdr.ConferenceID = binary.LittleEndian.Uint32(data[28:32])
		hdr.AppInstanceID = binary.LittleEndian.Uint32(data[32:36])
		hdr.RoutingID = binary.LittleEndian.Uint32(data[36:40])
		rest = data[dataHeaderV1Size:]
	}
	if int(hdr.DataLength) > len(rest) {
		return hdr, nil, fmt.Errorf("data length %d exceeds %d remaining bytes", hdr.DataLength, len(rest))
	}
	payload = append([]byte(nil), rest[:hdr.DataLength]...)
	return hdr, payload, nil
}

func marshalData(hdr DataHeaderV1, payload []byte, v1 bool) []byte {
	hdrSize := dataHeaderSize
	if v1 {
		hdrSize = dataHeaderV1Size
	}
	out := make([]byte, hdrSize+pad4(len(payload)))
	binary.LittleEndian.PutUint32(out[0:4], hdr.AppID)
	binary.LittleEndian.PutUint32(out[4:8], hdr.LineInstance)
	binary.LittleEndian.PutUint32(out[8:12], hdr.CallID)
	binary.LittleEndian.PutUint32(out[12:16], hdr.TransactionID)
	binary.LittleEndian.PutUint32(out[16:20], uint32(len(payload)))
	if v1 {
		binary.LittleEndian.PutUint32(out[20:24], hdr.SequenceFlag)
		binary.LittleEndian.PutUint32(out[24:28], hdr.DisplayPriority)
		binary.LittleEndian.PutUint32(out[28:32], hdr.ConferenceID)
		binary.LittleEndian.PutUint32(out[32:36], hdr.AppInstanceID)
		binary.LittleEndian.PutUint32(out[36:40], hdr.RoutingID)
	}
	copy(out[hdrSize:], payload)
	return out
}

// DeviceToUserDataBody carries XML service data from the device.
type DeviceToUserDataBody struct {
	Header  DataHeader
	Payload []byte
}

func (*DeviceToUserDataBody) MessageType() uint32 { return TypeDeviceToUserData }

func (b *DeviceToUserDataBody) UnmarshalBody(data []byte) error {
	hdr, payload, err := unmarshalData(data, false)
	if err != nil {
		return err
	}
	b.Header, b.Payload = hdr.DataHeader, payload
	return nil
}

func (b *DeviceToUserDataBody) MarshalBody() ([]byte, error) {
	return marshalData(DataHeaderV1{DataHeader: b.Header}, b.Payload, false), nil
}

type DeviceToUserDataResponseBody struct {
	Header  DataHeader
	Payload []byte
}

func (*DeviceToUserDataResponseBody) MessageType() uint32 { return TypeDeviceToUserDataResponse }

func (b *DeviceToUserDataResponseBody) UnmarshalBody(data []byte) error {
	hdr, payload, err := unmarshalData(data, false)
	if err != nil {
		return err
	}
	b.Header, b.Payload = hdr.DataHeader, payload
	return nil
}

func (b *DeviceToUserDataResponseBody) MarshalBody() ([]byte, error) {
	return marshalData(DataHeaderV1{DataHeader: b.Header}, b.Payload, false), nil
}

// UserToDeviceDataBody pushes service data to the device.
type UserToDeviceDataBody struct {
	Header  DataHeader
	Payload []byte
}

func (*UserToDeviceDataBody) MessageType() uint32 { return TypeUserToDeviceData }

func (b *UserToDeviceDataBody) UnmarshalBody(data []byte) error {
	hdr, payload, err := unmarshalData(data, false)
	if err != nil {
		return err
	}
	b.Header, b.Payload = hdr.DataHeader, payload
	return nil
}

func (b *UserToDeviceDataBody) MarshalBody() ([]byte, error) {
	return marshalData(DataHeaderV1{DataHeader: b.Header}, b.Payload, false), nil
}

type DeviceToUserDataV1Body struct {
	Header  DataHeaderV1
	Payload []byte
}

func (*DeviceToUserDataV1Body) MessageType() uint32 { return TypeDeviceToUserDataV1 }

func (b *DeviceToUserDataV1Body) UnmarshalBody(data []byte) error {
	hdr, payload, err := unmarshalData(data, true)
	if err != nil {
		return err
	}
	b.Header, b.Payload = hdr, payload
	return nil
}

func (b *DeviceToUserDataV1Body) MarshalBody() ([]byte, error) {
	return marshalData(b.Header, b.Payload, true), nil
}

type DeviceToUserDataResponseV1Body struct {
	Header  DataHeaderV1
	Payload []byte
}

func (*DeviceToUserDataResponseV1Body) MessageType() uint32 { return TypeDeviceToUserDataResponseV1 }

func (b *DeviceToUserDataResponseV1Body) UnmarshalBody(data []byte) error {
	hdr, payload, err := unmarshalData(data, true)
	if err != nil {
		return err
	}
	b.Header, b.Payload = hdr, payload
	return nil
}

func (b *DeviceToUserDataResponseV1Body) MarshalBody() ([]byte, error) {
	return marshalData(b.Header, b.Payload, true), nil
}

type UserToDeviceDataV1Body struct {
	Header  DataHeaderV1
	Payload []byte
}

func (*UserToDeviceDataV1Body) MessageType() uint32 { return TypeUserToDeviceDataV1 }

func (b *UserToDeviceDataV1Body) UnmarshalBody(data []byte) error {
	hdr, payload, err := unmarshalData(data, true)
	if err != nil {
		return err
	}
	b.Header, b.Payload = hdr, payload
	return nil
}

func (b *UserToDeviceDataV1Body) MarshalBody() ([]byte, error) {
	return marshalData(b.Header, b.Payload, true), nil
}
