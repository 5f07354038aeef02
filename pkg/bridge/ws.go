// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/edgebird/wsbridge/pkg/handler"
	"github.com/edgebird/wsbridge/pkg/inspect"
	"github.com/edgebird/wsbridge/pkg/server/ws"
	"github.com/gorilla/websocket"
)

// WSConfig holds the WS→WS bridge configuration.
type WSConfig struct {
	// Server configures the client-facing WebSocket listener. Its
	// TargetAddress is ignored; TargetURL names the backend.
	Server ws.Config

	// TargetURL is the backend WebSocket URL (ws:// or wss://).
	TargetURL string

	// HandshakeTimeout bounds the backend opening handshake (default: 10s).
	HandshakeTimeout time.Duration

	// TLSConfig is optional TLS configuration for wss:// backends.
	TLSConfig *tls.Config

	// RequestHeader is sent with the backend upgrade request, for
	// forwarding authentication.
	RequestHeader http.Header
}

// WS terminates WebSocket clients on the wsbridge codec and relays payloads
// to another WebSocket server dialed with gorilla/websocket. Message
// boundaries and types are not preserved across the bridge; payload bytes
// are.
type WS struct {
	server *ws.Server
	dialer *websocket.Dialer
}

// NewWS creates a WS→WS bridge with the given configuration, payload
// inspector, and handler.
func NewWS(cfg WSConfig, insp inspect.Inspector, h handler.Handler) *WS {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	b := &WS{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig:  cfg.TLSConfig,
		},
	}

	// TargetURL doubles as the server's target so it runs in bridge mode.
	cfg.Server.TargetAddress = cfg.TargetURL
	cfg.Server.DialBackend = func(ctx context.Context, target string) (net.Conn, error) {
		wsConn, resp, err := b.dialer.DialContext(ctx, target, cfg.RequestHeader)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("backend handshake rejected with status %d: %w", resp.StatusCode, err)
			}
			return nil, fmt.Errorf("backend dial failed: %w", err)
		}
		return NewConn(wsConn), nil
	}

	b.server = ws.New(cfg.Server, insp, h)
	return b
}

// Listen runs the bridge until the context is cancelled.
func (b *WS) Listen(ctx context.Context) error {
	return b.server.Listen(ctx)
}
