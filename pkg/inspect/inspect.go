// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"context"

	"github.com/edgebird/wsbridge/pkg/handler"
)

// Direction indicates the direction of message flow.
type Direction int

const (
	// Upstream represents messages flowing from client to backend server.
	Upstream Direction = iota

	// Downstream represents messages flowing from backend server to client.
	Downstream
)

// String returns a string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// Inspector examines one message payload at a time.
// Implementations are responsible for:
//  1. Decoding the protocol carried inside the payload
//  2. Extracting credentials and updating the handler context
//  3. Calling appropriate handler methods (AuthPublish, AuthSubscribe, etc.)
//  4. Returning the payload to forward, possibly modified
//
// Returning an error vetoes the message and closes the session.
// Returning a payload forwards those bytes in place of the input.
type Inspector interface {
	// Inspect processes one message payload. The direction indicates
	// message flow (Upstream or Downstream). The handler h is called for
	// authorization and notifications. The handler context hctx contains
	// session metadata and is updated with credentials the inspector
	// finds (username, password, clientID).
	Inspect(ctx context.Context, payload []byte, dir Direction, h handler.Handler, hctx *handler.Context) ([]byte, error)
}

// Noop is an Inspector that forwards every payload untouched.
type Noop struct{}

var _ Inspector = (*Noop)(nil)

// Inspect returns the payload as-is.
func (Noop) Inspect(ctx context.Context, payload []byte, dir Direction, h handler.Handler, hctx *handler.Context) ([]byte, error) {
	return payload, nil
}
