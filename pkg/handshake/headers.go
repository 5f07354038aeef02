// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"strings"
)

// Header names matched while scanning an upgrade request. Matching is
// exact, see the package documentation.
const (
	upgradeHeader = "Upgrade"
	keyHeader     = "Sec-WebSocket-Key"
)

const headerSeparator = ": "

// RequestHeaders holds the two fields of an HTTP request head that decide
// an upgrade: the Upgrade header and the client key. A field can be
// present without a value when its line carried no ": " separator.
type RequestHeaders struct {
	upgrade    string
	hasUpgrade bool
	key        string
	hasKey     bool
}

// ParseRequestHeaders scans raw request bytes line by line. Lines split
// on the first ": " into name and value; a line consisting of a bare
// header name marks the field present without a value. Anything else,
// the request line included, is skipped. When a header repeats, the last
// occurrence wins.
func ParseRequestHeaders(raw []byte) RequestHeaders {
	var h RequestHeaders
	for _, line := range strings.Split(string(raw), "\r\n") {
		name, value, valued := strings.Cut(line, headerSeparator)
		switch name {
		case upgradeHeader:
			h.hasUpgrade = true
			h.upgrade = ""
			if valued {
				h.upgrade = value
			}
		case keyHeader:
			h.hasKey = true
			h.key = ""
			if valued {
				h.key = value
			}
		}
	}
	return h
}

// Get returns the value of one of the scanned headers and whether its
// line was present. Names other than Upgrade and Sec-WebSocket-Key are
// never present.
func (h RequestHeaders) Get(name string) (string, bool) {
	switch name {
	case upgradeHeader:
		return h.upgrade, h.hasUpgrade
	case keyHeader:
		return h.key, h.hasKey
	}
	return "", false
}

// Upgrade returns the Upgrade header value.
func (h RequestHeaders) Upgrade() (string, bool) {
	return h.upgrade, h.hasUpgrade
}

// IsWebSocket reports whether the request asks for a WebSocket upgrade.
func (h RequestHeaders) IsWebSocket() bool {
	return h.hasUpgrade && h.upgrade == "websocket"
}

// Key returns the client key, failing when the header is absent,
// valueless, or not the 24 bytes a base64-encoded 16-byte nonce takes.
func (h RequestHeaders) Key() (AcceptKey, error) {
	if !h.hasKey || h.key == "" {
		return AcceptKey{}, ErrMissingKey
	}
	return ParseAcceptKey(h.key)
}
