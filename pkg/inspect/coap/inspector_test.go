// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/edgebird/wsbridge/pkg/handler"
	"github.com/edgebird/wsbridge/pkg/inspect"
)

// postMessage is a confirmable POST to /sensors with ?auth=key1 and
// payload "20.5", in datagram framing:
//
//	ver 1, type CON, no token | code 0.02 | message ID 1
//	Uri-Path(11) "sensors" | Uri-Query(15) "auth=key1" | 0xFF | body
var postMessage = []byte{
	0x40, 0x02, 0x00, 0x01,
	0xB7, 's', 'e', 'n', 's', 'o', 'r', 's',
	0x49, 'a', 'u', 't', 'h', '=', 'k', 'e', 'y', '1',
	0xFF, '2', '0', '.', '5',
}

// observeMessage is a GET on /sensors with Observe 0 (register).
//
//	ver 1, type CON, no token | code 0.01 | message ID 2
//	Observe(6) register | Uri-Path(11) "sensors"
var observeMessage = []byte{
	0x40, 0x01, 0x00, 0x02,
	0x60,
	0x57, 's', 'e', 'n', 's', 'o', 'r', 's',
}

type captureHandler struct {
	handler.NoopHandler

	upgradeErr   error
	publishErr   error
	subscribeErr error

	upgradeCalled bool
	lastPassword  []byte
	lastTopic     string
	lastPayload   []byte
	lastTopics    []string
}

func (m *captureHandler) AuthUpgrade(ctx context.Context, hctx *handler.Context) error {
	m.upgradeCalled = true
	m.lastPassword = hctx.Password
	return m.upgradeErr
}

func (m *captureHandler) AuthPublish(ctx context.Context, hctx *handler.Context, topic *string, payload *[]byte) error {
	m.lastTopic = *topic
	m.lastPayload = append([]byte(nil), *payload...)
	return m.publishErr
}

func (m *captureHandler) AuthSubscribe(ctx context.Context, hctx *handler.Context, topics *[]string) error {
	m.lastTopics = append([]string(nil), *topics...)
	return m.subscribeErr
}

func TestInspectPost(t *testing.T) {
	mock := &captureHandler{}
	hctx := &handler.Context{SessionID: "s1"}

	insp := &Inspector{}
	out, err := insp.Inspect(context.Background(), postMessage, inspect.Upstream, mock, hctx)
	if err != nil {
		t.Fatalf("Inspect() returned error: %v", err)
	}

	if !mock.upgradeCalled {
		t.Error("Expected session authorization")
	}
	if string(mock.lastPassword) != "key1" {
		t.Errorf("Expected auth key from query, got %q", mock.lastPassword)
	}
	if mock.lastTopic != "/sensors" {
		t.Errorf("Expected topic /sensors, got %q", mock.lastTopic)
	}
	if string(mock.lastPayload) != "20.5" {
		t.Errorf("Expected payload 20.5, got %q", mock.lastPayload)
	}
	if hctx.Transport != "coap" {
		t.Errorf("Expected transport coap, got %q", hctx.Transport)
	}
	// CoAP payloads are forwarded unmodified.
	if !bytes.Equal(out, postMessage) {
		t.Error("Expected payload forwarded as-is")
	}
}

func TestInspectObserve(t *testing.T) {
	mock := &captureHandler{}

	insp := &Inspector{}
	if _, err := insp.Inspect(context.Background(), observeMessage, inspect.Upstream, mock, &handler.Context{}); err != nil {
		t.Fatalf("Inspect() returned error: %v", err)
	}
	if len(mock.lastTopics) != 1 || mock.lastTopics[0] != "/sensors" {
		t.Errorf("Expected subscribe on /sensors, got %v", mock.lastTopics)
	}
}

func TestInspectVeto(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		mock    *captureHandler
	}{
		{
			name:    "session refused",
			payload: postMessage,
			mock:    &captureHandler{upgradeErr: errors.New("no key")},
		},
		{
			name:    "publish refused",
			payload: postMessage,
			mock:    &captureHandler{publishErr: errors.New("read only")},
		},
		{
			name:    "subscribe refused",
			payload: observeMessage,
			mock:    &captureHandler{subscribeErr: errors.New("not yours")},
		},
	}

	insp := &Inspector{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := insp.Inspect(context.Background(), tt.payload, inspect.Upstream, tt.mock, &handler.Context{}); err == nil {
				t.Fatal("Expected an error")
			}
		})
	}
}

func TestInspectDownstreamPassthrough(t *testing.T) {
	mock := &captureHandler{}

	insp := &Inspector{}
	out, err := insp.Inspect(context.Background(), postMessage, inspect.Downstream, mock, &handler.Context{})
	if err != nil {
		t.Fatalf("Inspect() returned error: %v", err)
	}
	if !bytes.Equal(out, postMessage) {
		t.Error("Expected downstream payload forwarded as-is")
	}
	if mock.upgradeCalled {
		t.Error("Expected no authorization on downstream messages")
	}
}

func TestInspectMalformed(t *testing.T) {
	insp := &Inspector{}
	if _, err := insp.Inspect(context.Background(), []byte{0x00}, inspect.Upstream, &captureHandler{}, &handler.Context{}); err == nil {
		t.Fatal("Expected malformed message to fail")
	}
}
