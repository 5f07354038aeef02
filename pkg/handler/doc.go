// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the core interface that links the WebSocket
// transport to business logic.
//
// # Architecture Overview
//
// The Handler interface sits between the frame transport and
// application-level authorization and event handling. The server calls
// it at the upgrade boundary and once per decoded message; payload
// inspectors (MQTT, CoAP) call it when they recognize publish or
// subscribe operations inside message payloads.
//
// # Data Flow
//
//	Client → Server (handshake, frames) → Handler (authorizes) → Bridge → Backend
//	Backend → Bridge → Server (frames) → Handler (notifies) → Client
//
// # Handler Methods
//
// Authorization methods (Auth*) are called before an action takes effect:
//   - AuthUpgrade: Verifies client credentials before the 101 response
//   - AuthMessage: Authorizes each client message before forwarding
//   - AuthPublish: Authorizes publish operations found by inspectors
//   - AuthSubscribe: Authorizes subscribe operations found by inspectors
//
// Notification methods (On*) are called after successful operations:
//   - OnUpgrade: Notifies a completed handshake
//   - OnMessage: Notifies a forwarded message
//   - OnPublish: Notifies a publish operation
//   - OnSubscribe: Notifies a subscription
//   - OnUnsubscribe: Notifies an unsubscription
//   - OnDisconnect: Notifies disconnection
//
// # Context
//
// The Context struct carries session metadata across all handler calls:
//   - SessionID: Unique identifier for this connection/session
//   - Username, Password: Credentials from the upgrade request
//   - ClientID: Client identifier extracted by an inspector
//   - RemoteAddr: Client's network address
//   - Transport: Traffic classification (ws, mqtt, coap)
//   - Subprotocol: Negotiated Sec-WebSocket-Protocol value
//   - Cert: Client certificate for TLS connections
//
// # Implementation
//
// Applications implement the Handler interface to integrate wsbridge
// with their authorization systems. The NoopHandler provides a
// pass-through implementation for testing or when no authorization is
// needed.
//
// # Example
//
//	type MyHandler struct {
//		authService AuthService
//	}
//
//	func (h *MyHandler) AuthUpgrade(ctx context.Context, hctx *handler.Context) error {
//		return h.authService.Authenticate(hctx.Username, hctx.Password)
//	}
//
//	func (h *MyHandler) AuthPublish(ctx context.Context, hctx *handler.Context, topic *string, payload *[]byte) error {
//		return h.authService.AuthorizePublish(hctx.Username, *topic)
//	}
package handler
