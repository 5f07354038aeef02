// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package wire

// Opcode identifies the interpretation of a frame payload, per RFC 6455
// section 5.2.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA

	// OpUnknown stands in for the reserved opcode values 0x3-0x7 and
	// 0xB-0xF. Reserved opcodes are reported, not rejected: whether to
	// fail the connection is transport policy, not codec policy.
	OpUnknown Opcode = 0xFF
)

// OpcodeFromByte maps a wire opcode value to an Opcode. Values outside
// the assigned set come back as OpUnknown.
func OpcodeFromByte(b byte) Opcode {
	switch op := Opcode(b); op {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return op
	default:
		return OpUnknown
	}
}

// IsControl reports whether the opcode denotes a control frame.
func (o Opcode) IsControl() bool {
	return o == OpClose || o == OpPing || o == OpPong
}

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return "unknown"
	}
}
