// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

// Package inspect defines payload inspection for protocols tunneled
// inside WebSocket messages.
//
// # Overview
//
// Clients often carry a second protocol inside WebSocket message
// payloads: MQTT over WebSocket is the common case, CoAP another. An
// Inspector decodes each message payload, extracts credentials and
// operations, runs them through the session Handler, and hands back the
// payload to forward. The payload can come back modified, e.g. with a
// rewritten topic.
//
// # Data Flow
//
//	Client frame → Server decodes → Inspector (decode payload, authorize) → Bridge
//	Backend bytes → Bridge frames  → Inspector (downstream pass)          → Client
//
// # Contract
//
// Inspect is called once per data message with the whole payload. A
// returned error vetoes the message and tears the session down; a nil
// error forwards the returned bytes in place of the input. Inspectors
// update the handler Context as they learn identity (client ID,
// credentials, transport classification).
//
// Implementations live in the subpackages:
//   - mqtt: MQTT 3.1.1 control packets via eclipse/paho
//   - coap: CoAP messages via plgd-dev/go-coap
//
// The zero-cost Noop inspector forwards everything untouched.
package inspect
