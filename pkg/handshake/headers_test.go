// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package handshake

import (
	"errors"
	"testing"
)

const sampleRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: server.example.com\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"\r\n"

func TestParseRequestHeaders(t *testing.T) {
	h := ParseRequestHeaders([]byte(sampleRequest))

	if upgrade, ok := h.Upgrade(); !ok || upgrade != "websocket" {
		t.Errorf("Expected Upgrade websocket, got %q (ok=%v)", upgrade, ok)
	}
	if !h.IsWebSocket() {
		t.Error("Expected IsWebSocket to be true")
	}

	key, err := h.Key()
	if err != nil {
		t.Fatalf("Key() returned error: %v", err)
	}
	if key.String() != "dGhlIHNhbXBsZSBub25jZQ==" {
		t.Errorf("Expected sample nonce key, got %q", key)
	}
}

func TestParseRequestHeadersGet(t *testing.T) {
	h := ParseRequestHeaders([]byte(sampleRequest))

	if v, ok := h.Get("Upgrade"); !ok || v != "websocket" {
		t.Errorf("Expected websocket, got %q (ok=%v)", v, ok)
	}
	if v, ok := h.Get("Sec-WebSocket-Key"); !ok || v != "dGhlIHNhbXBsZSBub25jZQ==" {
		t.Errorf("Expected sample nonce, got %q (ok=%v)", v, ok)
	}
	// Only the two upgrade-relevant headers are scanned.
	if _, ok := h.Get("Host"); ok {
		t.Error("Expected Host not to be recorded")
	}
	if _, ok := h.Get("Connection"); ok {
		t.Error("Expected Connection not to be recorded")
	}
}

func TestParseRequestHeadersEdgeCases(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		isWebSocket bool
		wantKey     string
		keyPresent  bool
	}{
		{
			name:        "empty request",
			raw:         "",
			isWebSocket: false,
			keyPresent:  false,
		},
		{
			name:        "request line only",
			raw:         "GET / HTTP/1.1\r\n\r\n",
			isWebSocket: false,
			keyPresent:  false,
		},
		{
			name:        "duplicate headers keep the last value",
			raw:         "Upgrade: h2c\r\nUpgrade: websocket\r\nSec-WebSocket-Key: first00000000000000000==\r\nSec-WebSocket-Key: last000000000000000000==\r\n",
			isWebSocket: true,
			wantKey:     "last000000000000000000==",
			keyPresent:  true,
		},
		{
			name:        "valueless upgrade line",
			raw:         "Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n",
			isWebSocket: false,
			wantKey:     "dGhlIHNhbXBsZSBub25jZQ==",
			keyPresent:  true,
		},
		{
			name:        "value containing the separator",
			raw:         "Upgrade: websocket: draft\r\n",
			isWebSocket: false,
			keyPresent:  false,
		},
		{
			name:        "lowercase header names are not matched",
			raw:         "upgrade: websocket\r\nsec-websocket-key: dGhlIHNhbXBsZSBub25jZQ==\r\n",
			isWebSocket: false,
			keyPresent:  false,
		},
		{
			name:        "missing colon space separator",
			raw:         "Upgrade:websocket\r\n",
			isWebSocket: false,
			keyPresent:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := ParseRequestHeaders([]byte(tt.raw))
			if h.IsWebSocket() != tt.isWebSocket {
				t.Errorf("Expected IsWebSocket %v, got %v", tt.isWebSocket, h.IsWebSocket())
			}
			key, ok := h.Get("Sec-WebSocket-Key")
			if ok != tt.keyPresent {
				t.Fatalf("Expected key presence %v, got %v", tt.keyPresent, ok)
			}
			if ok && key != tt.wantKey {
				t.Errorf("Expected key %q, got %q", tt.wantKey, key)
			}
		})
	}
}

func TestParseRequestHeadersValuelessUpgrade(t *testing.T) {
	// A bare "Upgrade" line marks the header present without a value.
	h := ParseRequestHeaders([]byte("Upgrade\r\n"))
	v, ok := h.Upgrade()
	if !ok {
		t.Fatal("Expected Upgrade to be present")
	}
	if v != "" {
		t.Errorf("Expected empty value, got %q", v)
	}
	if h.IsWebSocket() {
		t.Error("Expected IsWebSocket to be false")
	}
}

func TestKeyErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{
			name: "missing header",
			raw:  "Upgrade: websocket\r\n",
			want: ErrMissingKey,
		},
		{
			name: "valueless header",
			raw:  "Sec-WebSocket-Key\r\n",
			want: ErrMissingKey,
		},
		{
			name: "key too short",
			raw:  "Sec-WebSocket-Key: c2hvcnQ=\r\n",
			want: ErrBadKeyLength,
		},
		{
			name: "key too long",
			raw:  "Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==extra\r\n",
			want: ErrBadKeyLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := ParseRequestHeaders([]byte(tt.raw))
			if _, err := h.Key(); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}
