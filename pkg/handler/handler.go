// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"crypto/x509"

	"github.com/edgebird/wsbridge/pkg/wire"
)

// Context contains connection metadata and credentials extracted during
// the handshake and by payload inspectors. It is passed to Handler
// methods to provide auth context.
type Context struct {
	// SessionID is a unique identifier for this connection/session
	SessionID string

	// Username extracted from upgrade request auth (basic auth or query)
	Username string

	// Password extracted from upgrade request auth (raw bytes, not hashed)
	Password []byte

	// ClientID extracted by a payload inspector (e.g., MQTT client ID)
	ClientID string

	// RemoteAddr is the client's network address
	RemoteAddr string

	// Transport classifies the traffic inside the socket (ws, mqtt, coap)
	Transport string

	// Subprotocol is the negotiated Sec-WebSocket-Protocol value, if any
	Subprotocol string

	// Cert is the client's TLS certificate (if using mTLS)
	Cert *x509.Certificate
}

// Handler defines authorization and notification callbacks for session
// events. The transport calls these methods at the upgrade boundary and
// per message; inspectors call the publish/subscribe pairs.
//
// Authorization methods (AuthUpgrade, AuthMessage, AuthPublish,
// AuthSubscribe) are called BEFORE the action takes effect. They can:
// - Return an error to reject the action
// - Modify mutable parameters (payload, topic, topics) via pointers
// - Update the handler context
//
// Notification methods (OnUpgrade, OnMessage, etc.) are called AFTER
// successful actions for audit logging, metrics, or post-processing.
// Errors from these methods are logged but don't undo the action.
type Handler interface {
	// AuthUpgrade authorizes a WebSocket upgrade attempt. Called after
	// the request headers are parsed and before the 101 response is
	// written. Return an error to refuse the connection.
	AuthUpgrade(ctx context.Context, hctx *Context) error

	// AuthMessage authorizes one client message before it is forwarded.
	// The payload can be modified via its pointer. Return an error to
	// close the session.
	AuthMessage(ctx context.Context, hctx *Context, msgType wire.MessageType, payload *[]byte) error

	// AuthPublish authorizes a publish operation an inspector found
	// inside a message payload (e.g., an MQTT PUBLISH or CoAP POST).
	// The topic and payload can be modified via their pointers.
	// Return an error to reject the publish.
	AuthPublish(ctx context.Context, hctx *Context, topic *string, payload *[]byte) error

	// AuthSubscribe authorizes a subscription operation an inspector
	// found inside a message payload. The topics list can be modified
	// via the pointer to filter subscriptions. Return an error to
	// reject the subscription.
	AuthSubscribe(ctx context.Context, hctx *Context, topics *[]string) error

	// OnUpgrade is called after the 101 response has been written.
	OnUpgrade(ctx context.Context, hctx *Context) error

	// OnMessage is called after a message has been forwarded. size is
	// the payload size in bytes.
	OnMessage(ctx context.Context, hctx *Context, msgType wire.MessageType, size int) error

	// OnPublish is called after a successful publish operation.
	// Note: topic and payload are immutable copies (not pointers).
	OnPublish(ctx context.Context, hctx *Context, topic string, payload []byte) error

	// OnSubscribe is called after a successful subscription.
	OnSubscribe(ctx context.Context, hctx *Context, topics []string) error

	// OnUnsubscribe is called after a successful unsubscription.
	OnUnsubscribe(ctx context.Context, hctx *Context, topics []string) error

	// OnDisconnect is called when a client disconnects (gracefully or
	// due to error).
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler is a Handler implementation that allows all operations.
// Useful for testing or when no authorization is needed.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) AuthUpgrade(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) AuthMessage(ctx context.Context, hctx *Context, msgType wire.MessageType, payload *[]byte) error {
	return nil
}

func (h *NoopHandler) AuthPublish(ctx context.Context, hctx *Context, topic *string, payload *[]byte) error {
	return nil
}

func (h *NoopHandler) AuthSubscribe(ctx context.Context, hctx *Context, topics *[]string) error {
	return nil
}

func (h *NoopHandler) OnUpgrade(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnMessage(ctx context.Context, hctx *Context, msgType wire.MessageType, size int) error {
	return nil
}

func (h *NoopHandler) OnPublish(ctx context.Context, hctx *Context, topic string, payload []byte) error {
	return nil
}

func (h *NoopHandler) OnSubscribe(ctx context.Context, hctx *Context, topics []string) error {
	return nil
}

func (h *NoopHandler) OnUnsubscribe(ctx context.Context, hctx *Context, topics []string) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}
