// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the WebSocket frame codec from RFC 6455 section 5.
//
// # Overview
//
// The codec is the pure core of wsbridge: it turns raw byte buffers into
// decoded frames and logical messages into encoded frames. It performs no
// I/O and keeps no state across calls — the transport layer owns sockets,
// buffering, and session lifecycle, and hands the codec one buffer at a
// time.
//
// # Frame Layout
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-------+-+-------------+-------------------------------+
//	|F|R|R|R| op    |M| Payload len |    Extended payload length    |
//	|I|S|S|S| code  |A|     (7)     |  (16 when len==126,           |
//	|N|V|V|V|  (4)  |S|             |   64 when len==127)           |
//	| |1|2|3|       |K|             |                               |
//	+-+-+-+-+-------+-+-------------+ - - - - - - - - - - - - - - - +
//	|   Extended payload length     | Masking key (when MASK set)   |
//	+-------------------------------+-------------------------------+
//	|    Masking key (continued)    |          Payload Data         |
//	+-------------------------------+-------------------------------+
//
// # Decoding
//
// Two entry points with different contracts:
//
//   - NewFrame(buf) never fails. Every accessor degrades to a safe default
//     when the buffer is too short for the field it reads, so a frame that
//     has only partially arrived can still be examined. Use Complete and
//     Missing to drive stream buffering.
//   - Decoder.Decode(buf) is the hardened entry for transports. It returns
//     a typed IncompleteFrameError ("need N more bytes") for truncated
//     buffers and a MalformedFrameError when the declared payload length
//     exceeds the configured cap. Length words are attacker-controlled up
//     to 2^64-1, so transports must always decode through a Decoder.
//
// Masked payloads are unmasked in place exactly once, at construction.
// The caller must give the frame exclusive ownership of the buffer.
//
// # Encoding
//
// Message.Encode produces one unmasked frame (server-to-client frames must
// not be masked). The opcode follows the message type; payload lengths
// select the 7-bit, 16-bit, or 64-bit length form with cutovers at 125 and
// 65535. Close messages encode to the fixed 5-byte close frame.
//
// # Stream Cutting
//
// Transports accumulate reads into a session buffer and repeatedly call
// Decode. On success, FullLength says how many bytes the frame consumed:
//
//	frame, err := dec.Decode(buf)
//	var incomplete *wire.IncompleteFrameError
//	switch {
//	case errors.As(err, &incomplete):
//		// read at least incomplete.Need more bytes, try again
//	case err != nil:
//		// malformed: tear the session down
//	default:
//		buf = buf[frame.FullLength():]
//	}
package wire
