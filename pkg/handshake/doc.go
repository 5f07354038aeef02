// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

// Package handshake implements the server side of the WebSocket opening
// handshake from RFC 6455 section 4.
//
// # Overview
//
// The handshake upgrades an HTTP/1.1 connection to the WebSocket
// protocol. The client proves liveness with a random 24-byte base64 key
// in Sec-WebSocket-Key; the server proves it understood the request by
// echoing a derived key in Sec-Websocket-Accept:
//
//	accept = base64( SHA-1( client-key + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11" ) )
//
// SHA-1 is a protocol constant here, not a security choice: the derived
// key only disambiguates WebSocket servers from HTTP servers that echo
// blindly.
//
// # Pipeline
//
//	request bytes -> ParseRequestHeaders -> AcceptKey -> ResponseKey -> AcceptResponse
//	                  (header scan)         (24 bytes)   (Derive)       (Response)
//
// Accept runs the whole pipeline and is what transports call:
//
//	resp, err := handshake.Accept(head)
//	if err != nil {
//		// not an upgrade request, refuse the connection
//	}
//	conn.Write(resp.Bytes())
//
// Every stage works in fixed-size values (AcceptKey, ResponseKey,
// AcceptResponse are byte arrays), so a handshake allocates nothing on
// the hot path.
//
// # Strictness
//
// Header names are matched exactly: "Sec-WebSocket-Key" and "Upgrade" in
// their RFC 6455 spelling, no case folding. Mainstream clients send the
// canonical spelling, so the trade buys a simpler scanner at the cost of
// rejecting exotic casings. The response preamble spells the accept
// header "Sec-Websocket-Accept"; clients canonicalize received header
// names, so the lowercase s is interoperable, and the rendered response
// is a fixed 129-byte wire image that must not be reformatted.
package handshake
