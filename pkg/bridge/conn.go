// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn adapts a websocket connection to the net.Conn interface so the server
// loop can treat a WebSocket backend like any other byte stream. Writes
// become binary messages; reads drain messages in order, ignoring their
// boundaries.
type Conn struct {
	*websocket.Conn
	r   io.Reader
	rio sync.Mutex
	wio sync.Mutex
}

var _ net.Conn = (*Conn)(nil)

// NewConn wraps a websocket.Conn as a net.Conn.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{Conn: ws}
}

// Write sends p as a single binary message.
func (c *Conn) Write(p []byte) (int, error) {
	c.wio.Lock()
	defer c.wio.Unlock()

	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read copies bytes out of the current message, advancing to the next
// message whenever the current one is exhausted. Empty messages are skipped.
func (c *Conn) Read(p []byte) (int, error) {
	c.rio.Lock()
	defer c.rio.Unlock()

	for {
		if c.r == nil {
			var err error
			if _, c.r, err = c.NextReader(); err != nil {
				return 0, err
			}
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

// SetDeadline sets both the read and write deadlines.
func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

// Close closes the underlying websocket connection.
func (c *Conn) Close() error {
	return c.Conn.Close()
}
