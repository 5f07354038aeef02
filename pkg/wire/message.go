// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"math"
)

// MessageType identifies the kind of logical message a frame carries.
type MessageType byte

const (
	TextMessage MessageType = iota + 1
	BinaryMessage
	PingMessage
	PongMessage
	CloseMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	case PingMessage:
		return "ping"
	case PongMessage:
		return "pong"
	case CloseMessage:
		return "close"
	default:
		return "unknown"
	}
}

// opcode returns the opcode a message of this type is framed with.
func (t MessageType) opcode() Opcode {
	switch t {
	case BinaryMessage:
		return OpBinary
	case PingMessage:
		return OpPing
	case PongMessage:
		return OpPong
	case CloseMessage:
		return OpClose
	default:
		return OpText
	}
}

// Message is one logical message, either decoded from a frame or about
// to be encoded into one.
type Message struct {
	Type    MessageType
	Payload []byte
}

// NewText builds a text message.
func NewText(s string) Message {
	return Message{Type: TextMessage, Payload: []byte(s)}
}

// NewBinary builds a binary message. The payload is not copied.
func NewBinary(p []byte) Message {
	return Message{Type: BinaryMessage, Payload: p}
}

// NewPing builds a ping message carrying p, which the peer echoes back
// in its pong.
func NewPing(p []byte) Message {
	return Message{Type: PingMessage, Payload: p}
}

// NewPong builds a pong message answering a ping with payload p.
func NewPong(p []byte) Message {
	return Message{Type: PongMessage, Payload: p}
}

// NewClose builds the close message. It encodes to the fixed close frame
// regardless of payload, see Encode.
func NewClose() Message {
	return Message{Type: CloseMessage}
}

// IsClose reports whether the message closes the connection.
func (m Message) IsClose() bool {
	return m.Type == CloseMessage
}

// closeFrame is the complete close frame sent on shutdown: FIN+Close,
// 3-byte payload "bye". Sent verbatim, never masked.
var closeFrame = []byte{finBit | byte(OpClose), 0x03, 'b', 'y', 'e'}

// Encode serializes the message as one final, unmasked frame, ready to
// write to a client. Server-to-client frames must not be masked per
// RFC 6455 section 5.1, so no masking key is emitted. The payload length
// uses the shortest encoding: 7-bit up to 125, 16-bit up to 65535,
// 64-bit beyond. Close messages encode to the fixed close frame and
// ignore any payload.
func (m Message) Encode() []byte {
	if m.Type == CloseMessage {
		out := make([]byte, len(closeFrame))
		copy(out, closeFrame)
		return out
	}

	buf := make([]byte, 0, maxHeaderLength+len(m.Payload))
	buf = append(buf, finBit|byte(m.Type.opcode()))
	switch size := uint64(len(m.Payload)); {
	case size <= 125:
		buf = append(buf, byte(size))
	case size <= math.MaxUint16:
		buf = append(buf, len16Marker)
		buf = binary.BigEndian.AppendUint16(buf, uint16(size))
	default:
		buf = append(buf, len64Marker)
		buf = binary.BigEndian.AppendUint64(buf, size)
	}
	return append(buf, m.Payload...)
}
