// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package wire

import "testing"

func TestOpcodeFromByte(t *testing.T) {
	assigned := map[byte]Opcode{
		0x0: OpContinuation,
		0x1: OpText,
		0x2: OpBinary,
		0x8: OpClose,
		0x9: OpPing,
		0xA: OpPong,
	}

	for b := byte(0); b <= 0x0F; b++ {
		want, ok := assigned[b]
		if !ok {
			want = OpUnknown
		}
		if got := OpcodeFromByte(b); got != want {
			t.Errorf("OpcodeFromByte(%#x): expected %s, got %s", b, want, got)
		}
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpContinuation, "continuation"},
		{OpText, "text"},
		{OpBinary, "binary"},
		{OpClose, "close"},
		{OpPing, "ping"},
		{OpPong, "pong"},
		{OpUnknown, "unknown"},
		{Opcode(0x7), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}

func TestOpcodeIsControl(t *testing.T) {
	control := []Opcode{OpClose, OpPing, OpPong}
	for _, op := range control {
		if !op.IsControl() {
			t.Errorf("Expected %s to be a control opcode", op)
		}
	}

	data := []Opcode{OpContinuation, OpText, OpBinary, OpUnknown}
	for _, op := range data {
		if op.IsControl() {
			t.Errorf("Expected %s not to be a control opcode", op)
		}
	}
}
