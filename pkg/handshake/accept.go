// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
)

// Errors returned while validating an upgrade request. Accept wraps each
// of them in ErrInvalidPayload, so transports can match coarsely with
// errors.Is(err, ErrInvalidPayload) or finely with the specific sentinel.
var (
	// ErrInvalidPayload indicates the bytes read from the socket are not
	// a well-formed WebSocket upgrade request.
	ErrInvalidPayload = errors.New("handshake: payload is not a websocket upgrade request")

	// ErrNotWebSocket indicates the Upgrade header is absent or names a
	// protocol other than websocket.
	ErrNotWebSocket = errors.New("handshake: Upgrade header does not request websocket")

	// ErrMissingKey indicates the Sec-WebSocket-Key header is absent or
	// has no value.
	ErrMissingKey = errors.New("handshake: missing Sec-WebSocket-Key header")

	// ErrBadKeyLength indicates the client key is not the 24 bytes of a
	// base64-encoded 16-byte nonce.
	ErrBadKeyLength = errors.New("handshake: client key must be 24 base64 characters")
)

// acceptGUID is the fixed GUID appended to the client key before
// hashing, per RFC 6455 section 4.2.2.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Wire sizes of the handshake values. The client key is base64 of a
// 16-byte nonce, the response key base64 of a 20-byte SHA-1 digest.
const (
	acceptKeyLength   = 24
	responseKeyLength = 28
)

// acceptPreamble is everything of the 101 response before the derived
// key. The "Sec-Websocket-Accept" spelling is part of the wire contract.
const acceptPreamble = "HTTP/1.1 101 Switching Protocols\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-Websocket-Accept: "

// AcceptKey is the client key from Sec-WebSocket-Key, exactly 24 bytes.
type AcceptKey [acceptKeyLength]byte

// ResponseKey is the derived key echoed in Sec-Websocket-Accept, exactly
// 28 bytes.
type ResponseKey [responseKeyLength]byte

// AcceptResponse is the complete rendered 101 response, a fixed 129-byte
// wire image.
type AcceptResponse [len(acceptPreamble) + responseKeyLength + 4]byte

// ParseAcceptKey validates the length of a client key. Base64 shape
// beyond the length is not checked: the key is hashed, never decoded.
func ParseAcceptKey(s string) (AcceptKey, error) {
	var key AcceptKey
	if len(s) != acceptKeyLength {
		return key, fmt.Errorf("%w, got %d", ErrBadKeyLength, len(s))
	}
	copy(key[:], s)
	return key, nil
}

func (k AcceptKey) String() string {
	return string(k[:])
}

// Derive computes the response key: SHA-1 over the client key followed
// by the protocol GUID, base64-encoded with standard padding.
func (k AcceptKey) Derive() ResponseKey {
	var material [acceptKeyLength + len(acceptGUID)]byte
	copy(material[:], k[:])
	copy(material[acceptKeyLength:], acceptGUID)

	digest := sha1.Sum(material[:])

	var key ResponseKey
	base64.StdEncoding.Encode(key[:], digest[:])
	return key
}

func (k ResponseKey) String() string {
	return string(k[:])
}

// Response renders the complete 101 Switching Protocols response around
// the key. The layout is byte-exact: preamble, key, terminating CRLF
// pair.
func (k ResponseKey) Response() AcceptResponse {
	var resp AcceptResponse
	n := copy(resp[:], acceptPreamble)
	n += copy(resp[n:], k[:])
	copy(resp[n:], "\r\n\r\n")
	return resp
}

// Bytes returns the response as a slice ready to write to a socket.
func (r AcceptResponse) Bytes() []byte {
	return r[:]
}

func (r AcceptResponse) String() string {
	return string(r[:])
}

// Accept runs the whole server handshake over raw request bytes: scan
// the headers, require a websocket upgrade with a valid client key, and
// render the 101 response. All failures wrap ErrInvalidPayload.
func Accept(request []byte) (AcceptResponse, error) {
	headers := ParseRequestHeaders(request)
	if !headers.IsWebSocket() {
		return AcceptResponse{}, fmt.Errorf("%w: %w", ErrInvalidPayload, ErrNotWebSocket)
	}
	key, err := headers.Key()
	if err != nil {
		return AcceptResponse{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return key.Derive().Response(), nil
}
