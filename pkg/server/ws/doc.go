// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

// Package ws implements the WebSocket-terminating server for wsbridge.
//
// # Overview
//
// The server accepts TCP connections, performs the WebSocket opening
// handshake on its own codec (pkg/handshake), and then runs a frame loop on
// pkg/wire. Decoded data payloads are authorized through the handler chain,
// optionally rewritten by a payload inspector, and either bridged to a
// backend stream or echoed back to the client.
//
// # Architecture
//
//	┌─────────┐          ┌─────────┐          ┌─────────┐
//	│ Client  │ ←──WS──→ │  Server │ ←─bytes─→│ Backend │
//	└─────────┘          └─────────┘          └─────────┘
//	                          ↓
//	                ┌───────────────────┐
//	                │ handshake / wire  │
//	                └───────────────────┘
//	                          ↓
//	                ┌───────────────────┐
//	                │ Inspector         │
//	                └───────────────────┘
//	                          ↓
//	                ┌───────────────────┐
//	                │ Handler           │
//	                └───────────────────┘
//
// # Connection Flow
//
//  1. Client connects, server accepts (optionally TLS)
//  2. Server reads the upgrade request head (bounded at 8 KiB)
//  3. handshake.Accept validates it and derives the accept response
//  4. Credentials are extracted (Basic auth, "authorization" query
//     parameter, or raw Authorization header) into the handler context
//  5. handler.AuthUpgrade authorizes the session (refusal → 401)
//  6. The fixed 129-byte accept response is written
//  7. The frame loop runs until close, error, or shutdown
//  8. handler.OnDisconnect is called and both connections are closed
//
// # Frame Loop
//
// Inbound bytes accumulate in a session buffer. Complete frames are cut off
// the front with Decoder.Decode and Frame.FullLength:
//
//   - Ping → Pong reply with the same payload
//   - Pong → ignored
//   - Close → Close reply, then teardown
//   - Continuation and reserved opcodes → dropped with a warning
//   - Text/Binary → AuthMessage → Inspector → backend write (bridge mode)
//     or re-encoded echo (echo mode), then OnMessage
//
// A malformed frame (bad length encoding or a payload above
// MaxPayloadLength) closes the session after a Close frame is sent.
//
// In bridge mode a second goroutine pumps backend bytes into Binary frames
// toward the client, running the inspector in the Downstream direction.
//
// # Echo Mode
//
// With no TargetAddress configured the server echoes authorized data
// messages back to the client. This exists for protocol testing and for
// exercising handler chains without a backend.
//
// # Graceful Shutdown
//
// When the context is cancelled:
//
//  1. Server stops accepting new connections
//  2. Server waits for existing sessions (with timeout)
//  3. After ShutdownTimeout, forcefully closes remaining sessions
//  4. Returns ErrShutdownTimeout if the timeout was exceeded
//
// # Example
//
//	cfg := ws.Config{
//		Address:         ":8080",
//		TargetAddress:   "broker:1883",
//		ShutdownTimeout: 30 * time.Second,
//	}
//
//	server := ws.New(cfg, &mqtt.Inspector{}, handler)
//	if err := server.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package ws
