package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a whole frame including the 8-byte preamble.
const MaxFrameSize = 2048

// minBodyLength is the length field floor; the body always contains at
// least the 4-byte type field.
const minBodyLength = 4

// ErrFraming marks unrecoverable stream corruption. A decoder that
// returned a framing error must not be read again.
var ErrFraming = errors.New("framing error")

// Decoder reads SCCP frames from a byte stream. A partially received
// frame is retained across calls, so a deadline can interrupt Read
// mid-frame and the next call resumes where the stream stopped.
type Decoder struct {
	r         *bufio.Reader
	preamble  [8]byte
	preambleN int
	frame     []byte
	frameN    int
}

// NewDecoder wraps r. Callers set read deadlines on the underlying
// connection; timeouts surface unchanged so the caller can tell them from
// corruption.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, MaxFrameSize)}
}

// Read decodes the next frame. It returns ErrFraming-wrapped errors for
// unrecoverable stream corruption, io.EOF when the peer closed cleanly
// between frames, and per-type decode errors otherwise. Timeouts from
// the underlying connection are returned as-is and leave the decoder
// resumable.
func (d *Decoder) Read() (*Message, error) {
	for d.frame == nil {
		n, err := d.r.Read(d.preamble[d.preambleN:])
		d.preambleN += n
		if d.preambleN == len(d.preamble) {
			length := binary.LittleEndian.Uint32(d.preamble[0:4])
			if length < minBodyLength {
				return nil, fmt.Errorf("%w: length %d below minimum %d", ErrFraming, length, minBodyLength)
			}
			// Checked before allocating; length is untrusted input.
			if length > MaxFrameSize-8 {
				return nil, fmt.Errorf("%w: length %d exceeds frame limit %d", ErrFraming, length, MaxFrameSize)
			}
			d.frame = make([]byte, length)
			d.frameN = 0
			break
		}
		if err != nil {
			if err == io.EOF && d.preambleN > 0 {
				return nil, fmt.Errorf("%w: truncated preamble", ErrFraming)
			}
			return nil, err
		}
	}
	for d.frameN < len(d.frame) {
		n, err := d.r.Read(d.frame[d.frameN:])
		d.frameN += n
		if d.frameN == len(d.frame) {
			break
		}
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("%w: short frame", ErrFraming)
			}
			return nil, err
		}
	}
	frame := d.frame
	d.frame = nil
	d.preambleN = 0
	msgType := binary.LittleEndian.Uint32(frame[0:4])
	body, err := decodeBody(msgType, frame[4:])
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgType, Body: body}, nil
}

// Encoder writes SCCP frames to a byte stream.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write frames and sends one message in a single Write call on the
// underlying stream.
func (e *Encoder) Write(m *Message) error {
	body, err := encodeBody(m.Body)
	if err != nil {
		return err
	}
	length := uint32(minBodyLength + len(body))
	if length+8 > MaxFrameSize {
		return fmt.Errorf("%s: encoded frame %d exceeds limit %d", TypeName(m.Type), length+8, MaxFrameSize)
	}
	out := make([]byte, 12+len(body))
	binary.LittleEndian.PutUint32(out[0:4], length)
	binary.LittleEndian.PutUint32(out[8:12], m.Type)
	copy(out[12:], body)
	if _, err := e.w.Write(out); err != nil {
		return fmt.Errorf("write %s: %w", TypeName(m.Type), err)
	}
	return nil
}

// Send is a convenience wrapper for writing a bare body.
func (e *Encoder) Send(b Body) error {
	return e.Write(NewMessage(b))
}
