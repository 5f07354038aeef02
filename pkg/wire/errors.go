// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (possibly wrapped) by Decoder.Decode. Match
// them with errors.Is.
var (
	// ErrIncompleteFrame indicates the buffer holds only a prefix of a
	// frame. Read more bytes and decode again.
	ErrIncompleteFrame = errors.New("incomplete frame")

	// ErrFrameTooLarge indicates the frame declares a payload length
	// beyond the decoder's configured maximum.
	ErrFrameTooLarge = errors.New("frame exceeds maximum payload length")
)

// IncompleteFrameError reports that a buffer does not yet hold a complete
// frame. Need is the minimum number of additional bytes required before
// decoding can progress; the requirement may grow once those bytes arrive,
// since the extended length field is itself part of the missing data.
type IncompleteFrameError struct {
	Need uint64
}

func (e *IncompleteFrameError) Error() string {
	if e.Need == 1 {
		return "incomplete frame: need 1 more byte"
	}
	return fmt.Sprintf("incomplete frame: need %d more bytes", e.Need)
}

// Is makes errors.Is(err, ErrIncompleteFrame) match.
func (e *IncompleteFrameError) Is(target error) bool {
	return target == ErrIncompleteFrame
}

// MalformedFrameError reports a frame that no amount of further input can
// repair, such as a declared payload length beyond the decoder's cap.
type MalformedFrameError struct {
	Reason        error
	PayloadLength uint64
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame: %s (declared payload length %d)", e.Reason, e.PayloadLength)
}

func (e *MalformedFrameError) Unwrap() error {
	return e.Reason
}
