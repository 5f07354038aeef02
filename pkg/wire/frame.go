// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"strings"
)

// Bit assignments of the first two header bytes.
const (
	finBit     = 0x80
	rsv1Bit    = 0x40
	rsv2Bit    = 0x20
	rsv3Bit    = 0x10
	opcodeBits = 0x0F

	maskBit    = 0x80
	lengthBits = 0x7F
)

// Markers in the 7-bit length field selecting an extended length form.
const (
	len16Marker = 126
	len64Marker = 127
)

// maxHeaderLength is the largest possible frame header: two fixed bytes,
// an 8-byte extended length, and a 4-byte masking key.
const maxHeaderLength = 2 + 8 + 4

// DefaultMaxPayloadLength is the payload cap applied by a zero-value
// Decoder. The length word on the wire is attacker-controlled up to
// 2^64-1; the cap keeps a hostile peer from driving transport buffers to
// arbitrary size.
const DefaultMaxPayloadLength = 32 << 20

// Frame is a read-only view over one frame's bytes. It does not copy:
// accessors index into the buffer handed to NewFrame, and a masked
// payload is unmasked in place at construction, so the caller must give
// the frame exclusive ownership of the buffer.
//
// Accessors tolerate buffers of any length, including empty. A field
// whose bytes are missing reads as a conservative default: flags are
// false, the opcode is Close, lengths are zero. That makes a truncated
// frame inspectable without panics, at the price of callers having to
// check Complete before trusting the payload. Transports should prefer
// Decoder.Decode, which turns truncation into typed errors.
type Frame struct {
	data []byte
}

// NewFrame wraps buf as a frame view. If buf covers the whole payload
// range and the mask bit is set, the payload is unmasked in place.
func NewFrame(buf []byte) *Frame {
	f := &Frame{data: buf}
	f.unmask()
	return f
}

func (f *Frame) headerByte(i int) (byte, bool) {
	if i < len(f.data) {
		return f.data[i], true
	}
	return 0, false
}

// IsFin reports whether the frame is the final fragment of its message.
func (f *Frame) IsFin() bool {
	b, ok := f.headerByte(0)
	return ok && b&finBit != 0
}

// IsRSV1 reports the RSV1 bit, claimed by extensions such as
// permessage-deflate.
func (f *Frame) IsRSV1() bool {
	b, ok := f.headerByte(0)
	return ok && b&rsv1Bit != 0
}

// IsRSV2 reports the RSV2 bit.
func (f *Frame) IsRSV2() bool {
	b, ok := f.headerByte(0)
	return ok && b&rsv2Bit != 0
}

// IsRSV3 reports the RSV3 bit.
func (f *Frame) IsRSV3() bool {
	b, ok := f.headerByte(0)
	return ok && b&rsv3Bit != 0
}

// Opcode returns the frame's opcode. An empty buffer reads as Close: a
// frame we know nothing about must never pass for a data frame, and
// treating it as a close request fails safe.
func (f *Frame) Opcode() Opcode {
	b, ok := f.headerByte(0)
	if !ok {
		return OpClose
	}
	return OpcodeFromByte(b & opcodeBits)
}

// IsClose reports whether the frame carries the Close opcode. Buffers too
// short to hold an opcode also report true, see Opcode.
func (f *Frame) IsClose() bool {
	return f.Opcode() == OpClose
}

// IsMasked reports whether the payload is masked. Client-to-server
// frames must be masked per RFC 6455 section 5.3.
func (f *Frame) IsMasked() bool {
	b, ok := f.headerByte(1)
	return ok && b&maskBit != 0
}

func (f *Frame) lengthClass() byte {
	b, _ := f.headerByte(1)
	return b & lengthBits
}

// extLen is the size in bytes of the extended payload length field.
func (f *Frame) extLen() int {
	switch f.lengthClass() {
	case len16Marker:
		return 2
	case len64Marker:
		return 8
	default:
		return 0
	}
}

// PayloadLength resolves the declared payload length, reading the
// big-endian extended field when the 7-bit field is 126 or 127. It
// returns 0 while the extended length bytes have not fully arrived.
func (f *Frame) PayloadLength() uint64 {
	switch f.lengthClass() {
	case len16Marker:
		if len(f.data) < 4 {
			return 0
		}
		return uint64(binary.BigEndian.Uint16(f.data[2:4]))
	case len64Marker:
		if len(f.data) < 10 {
			return 0
		}
		return binary.BigEndian.Uint64(f.data[2:10])
	default:
		return uint64(f.lengthClass())
	}
}

func (f *Frame) maskStart() int {
	return 2 + f.extLen()
}

// MaskingKey returns the 4-byte masking key. When the mask bit is unset
// or the key bytes have not arrived it returns all zeros, which is safe
// to apply: XOR with zero is the identity.
func (f *Frame) MaskingKey() [4]byte {
	var key [4]byte
	if start := f.maskStart(); f.IsMasked() && len(f.data) >= start+4 {
		copy(key[:], f.data[start:start+4])
	}
	return key
}

// payloadStart is the offset of the first payload byte: the two fixed
// header bytes, the extended length field, and the masking key when the
// mask bit is set.
func (f *Frame) payloadStart() int {
	start := f.maskStart()
	if f.IsMasked() {
		start += 4
	}
	return start
}

// HeaderLength returns the frame header size in bytes.
func (f *Frame) HeaderLength() int {
	return f.payloadStart()
}

// FullLength returns the total wire size of the frame, header plus
// declared payload. Transports use it to cut exactly one frame out of a
// stream buffer.
func (f *Frame) FullLength() uint64 {
	return uint64(f.payloadStart()) + f.PayloadLength()
}

// payloadBounds locates the payload range, reporting ok only when the
// buffer covers it entirely. The comparison stays in uint64 so declared
// lengths near 2^64 cannot overflow into a bogus slice.
func (f *Frame) payloadBounds() (start, end int, ok bool) {
	start = f.payloadStart()
	if start > len(f.data) {
		return 0, 0, false
	}
	length := f.PayloadLength()
	if length > uint64(len(f.data)-start) {
		return 0, 0, false
	}
	return start, start + int(length), true
}

// Complete reports whether the buffer holds the entire frame.
func (f *Frame) Complete() bool {
	_, _, ok := f.payloadBounds()
	return ok
}

// Missing returns how many more bytes the buffer needs before the frame
// is complete, or 0 when it already is. Until the extended length field
// has arrived the figure is a lower bound.
func (f *Frame) Missing() uint64 {
	if len(f.data) < 2 {
		return uint64(2 - len(f.data))
	}
	if need := 2 + f.extLen(); len(f.data) < need {
		return uint64(need - len(f.data))
	}
	if full, have := f.FullLength(), uint64(len(f.data)); full > have {
		return full - have
	}
	return 0
}

// Payload returns the payload bytes, already unmasked when the frame was
// built through NewFrame or Decoder.Decode. It returns nil for close
// frames, for frames whose payload has not fully arrived, and for empty
// payloads. Close payloads (status code and reason) are deliberately not
// surfaced at this layer.
func (f *Frame) Payload() []byte {
	if f.IsClose() {
		return nil
	}
	start, end, ok := f.payloadBounds()
	if !ok || start == end {
		return nil
	}
	return f.data[start:end]
}

// Bytes returns the entire underlying buffer, header included.
func (f *Frame) Bytes() []byte {
	return f.data
}

// Text returns the payload interpreted as text. Byte sequences that are
// not valid UTF-8 are replaced with U+FFFD rather than rejected. ok is
// false whenever Payload returns nil.
func (f *Frame) Text() (string, bool) {
	p := f.Payload()
	if p == nil {
		return "", false
	}
	return strings.ToValidUTF8(string(p), "�"), true
}

// Message converts the frame into its logical message. ok is false for
// close frames, continuation fragments, reserved opcodes, and frames
// without an available payload: fragment reassembly is a session concern
// and close frames are handled by the transport directly.
func (f *Frame) Message() (Message, bool) {
	var typ MessageType
	switch f.Opcode() {
	case OpText:
		typ = TextMessage
	case OpBinary:
		typ = BinaryMessage
	case OpPing:
		typ = PingMessage
	case OpPong:
		typ = PongMessage
	default:
		return Message{}, false
	}
	if typ == TextMessage {
		s, ok := f.Text()
		if !ok {
			return Message{}, false
		}
		return Message{Type: TextMessage, Payload: []byte(s)}, true
	}
	p := f.Payload()
	if p == nil {
		return Message{}, false
	}
	return Message{Type: typ, Payload: p}, true
}

// unmask reverses client masking in place. It runs only when the whole
// payload is present, and XORing with the all-zero key of an unmasked
// frame is a no-op, so calling it on any buffer is safe.
func (f *Frame) unmask() {
	start, end, ok := f.payloadBounds()
	if !ok || !f.IsMasked() {
		return
	}
	key := f.MaskingKey()
	Mask(f.data[start:end], key[:])
}

// Decoder decodes frames under a payload length bound. The zero value is
// ready to use and applies DefaultMaxPayloadLength.
type Decoder struct {
	// MaxPayloadLength caps the payload length a frame may declare
	// before Decode rejects it as malformed. Zero selects
	// DefaultMaxPayloadLength.
	MaxPayloadLength uint64
}

// Decode interprets buf as a single frame. It returns an
// IncompleteFrameError while buf holds only a prefix of the frame and a
// MalformedFrameError wrapping ErrFrameTooLarge when the declared
// payload length exceeds the cap. On success the frame is complete and
// its payload unmasked in place.
//
// The length check runs as soon as the length field is readable, before
// waiting for the payload: an oversized frame is rejected without
// buffering a single payload byte.
func (d *Decoder) Decode(buf []byte) (*Frame, error) {
	max := d.MaxPayloadLength
	if max == 0 {
		max = DefaultMaxPayloadLength
	}

	f := &Frame{data: buf}
	if len(buf) < 2 {
		return nil, &IncompleteFrameError{Need: uint64(2 - len(buf))}
	}
	if need := 2 + f.extLen(); len(buf) < need {
		return nil, &IncompleteFrameError{Need: uint64(need - len(buf))}
	}
	if length := f.PayloadLength(); length > max {
		return nil, &MalformedFrameError{Reason: ErrFrameTooLarge, PayloadLength: length}
	}
	if missing := f.Missing(); missing > 0 {
		return nil, &IncompleteFrameError{Need: missing}
	}
	f.unmask()
	return f, nil
}

// Decode decodes buf with the default payload bound.
func Decode(buf []byte) (*Frame, error) {
	var d Decoder
	return d.Decode(buf)
}
