// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/edgebird/wsbridge/pkg/handler"
	"github.com/edgebird/wsbridge/pkg/pool"
	"github.com/edgebird/wsbridge/pkg/server/ws"
	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Server at %s did not start", addr)
}

func TestConn_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		nc := NewConn(c)
		io.Copy(nc, nc)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientWs, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	nc := NewConn(clientWs)
	defer nc.Close()
	nc.SetDeadline(time.Now().Add(5 * time.Second))

	n, err := nc.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 bytes written, got %d", n)
	}

	buf := make([]byte, 5)
	if _, err := io.ReadFull(nc, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("Expected %q, got %q", "hello", buf)
	}
}

func TestConn_ReadAcrossMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		// Empty message in the middle must be skipped by the reader
		for _, m := range [][]byte{[]byte("ab"), {}, []byte("cd")} {
			if err := c.WriteMessage(websocket.BinaryMessage, m); err != nil {
				return
			}
		}
		// Hold the connection open until the client is done
		c.ReadMessage()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientWs, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	nc := NewConn(clientWs)
	defer nc.Close()
	nc.SetDeadline(time.Now().Add(5 * time.Second))

	buf := make([]byte, 4)
	if _, err := io.ReadFull(nc, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf) != "abcd" {
		t.Errorf("Expected reads to span message boundaries, got %q", buf)
	}
}

func TestTCP_Bridge(t *testing.T) {
	// Backend that echoes raw bytes
	backendListener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to create backend listener: %v", err)
	}
	defer backendListener.Close()

	go func() {
		for {
			conn, err := backendListener.Accept()
			if err != nil {
				return
			}
			go io.Copy(conn, conn)
		}
	}()

	cfg := TCPConfig{
		Server: ws.Config{
			Address:         freeAddr(t),
			TargetAddress:   backendListener.Addr().String(),
			ShutdownTimeout: 1 * time.Second,
			Logger:          testLogger(),
		},
		PoolEnabled:    true,
		Pool:           pool.Config{MaxIdle: 2},
		BreakerEnabled: true,
	}
	b := NewTCP(cfg, nil, &handler.NoopHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridgeErr := make(chan error, 1)
	go func() {
		bridgeErr <- b.Listen(ctx)
	}()
	waitForServer(t, cfg.Server.Address)

	client, _, err := websocket.DefaultDialer.Dial("ws://"+cfg.Server.Address+"/", nil)
	if err != nil {
		t.Fatalf("Failed to dial bridge: %v", err)
	}
	defer client.Close()

	if err := client.WriteMessage(websocket.BinaryMessage, []byte("hello")); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}
	mt, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read bridged reply: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Errorf("Expected binary message, got type %d", mt)
	}
	if !bytes.Equal(payload, []byte("hello")) {
		t.Errorf("Expected %q, got %q", "hello", payload)
	}

	client.Close()
	cancel()
	select {
	case <-bridgeErr:
	case <-time.After(5 * time.Second):
		t.Error("Bridge did not shut down")
	}
}

func TestWS_Bridge(t *testing.T) {
	// Backend is an echo server speaking WebSocket
	echoAddr := freeAddr(t)
	echoServer := ws.New(ws.Config{
		Address:         echoAddr,
		ShutdownTimeout: 1 * time.Second,
		Logger:          testLogger(),
	}, nil, &handler.NoopHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go echoServer.Listen(ctx)
	waitForServer(t, echoAddr)

	cfg := WSConfig{
		Server: ws.Config{
			Address:         freeAddr(t),
			ShutdownTimeout: 1 * time.Second,
			Logger:          testLogger(),
		},
		TargetURL: "ws://" + echoAddr + "/",
	}
	b := NewWS(cfg, nil, &handler.NoopHandler{})

	go b.Listen(ctx)
	waitForServer(t, cfg.Server.Address)

	client, _, err := websocket.DefaultDialer.Dial("ws://"+cfg.Server.Address+"/", nil)
	if err != nil {
		t.Fatalf("Failed to dial bridge: %v", err)
	}
	defer client.Close()

	if err := client.WriteMessage(websocket.BinaryMessage, []byte("data")); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}
	mt, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read relayed reply: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Errorf("Expected binary message, got type %d", mt)
	}
	if !bytes.Equal(payload, []byte("data")) {
		t.Errorf("Expected %q, got %q", "data", payload)
	}
}

func TestNewTCP_Wiring(t *testing.T) {
	cfg := TCPConfig{
		Server: ws.Config{
			Address:       "localhost:0",
			TargetAddress: "localhost:9",
			Logger:        testLogger(),
		},
		PoolEnabled:    true,
		BreakerEnabled: true,
	}
	b := NewTCP(cfg, nil, &handler.NoopHandler{})

	if b.Breaker() == nil {
		t.Error("Expected breaker to be created")
	}
	idle, active := b.PoolStats()
	if idle != 0 || active != 0 {
		t.Errorf("Expected empty pool, got idle=%d active=%d", idle, active)
	}
}

func TestNewTCP_Defaults(t *testing.T) {
	b := NewTCP(TCPConfig{
		Server: ws.Config{
			Address:       "localhost:0",
			TargetAddress: "localhost:9",
			Logger:        testLogger(),
		},
	}, nil, &handler.NoopHandler{})

	if b.Breaker() != nil {
		t.Error("Expected no breaker by default")
	}
	idle, active := b.PoolStats()
	if idle != 0 || active != 0 {
		t.Errorf("Expected no pool stats, got idle=%d active=%d", idle, active)
	}
}
