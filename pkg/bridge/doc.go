// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

// Package bridge composes the WebSocket server with backend transports.
//
// # Overview
//
// Two gateway shapes are provided:
//
//	TCP  — websockify style: the client speaks WebSocket, the backend
//	       speaks its raw byte protocol (an MQTT broker on 1883, a CoAP
//	       gateway, any stream server). Backend dials can be pooled
//	       (pkg/pool) and guarded by a circuit breaker (pkg/breaker).
//
//	WS   — WebSocket on both sides: the backend is dialed with
//	       gorilla/websocket and adapted to net.Conn by Conn, so the same
//	       server loop drives it.
//
// # Topology
//
//	┌─────────┐        ┌──────────────┐        ┌─────────┐
//	│ Client  │ ←─WS─→ │  bridge.TCP  │ ←─TCP─→│ Broker  │
//	└─────────┘        └──────────────┘        └─────────┘
//
//	┌─────────┐        ┌──────────────┐        ┌─────────┐
//	│ Client  │ ←─WS─→ │  bridge.WS   │ ←─WS─→ │ Backend │
//	└─────────┘        └──────────────┘        └─────────┘
//
// Both run the full handshake, authorization, and inspection pipeline of
// pkg/server/ws and shut down gracefully when their context is cancelled.
//
// # Pooling Caveat
//
// Pooled backend connections are returned to the pool when a session ends
// and may be reused by later sessions. That suits request/response
// backends; backends that push unsolicited data should run with pooling
// disabled so every session gets a fresh connection.
package bridge
