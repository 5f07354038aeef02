// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"net"
	"time"

	"github.com/edgebird/wsbridge/pkg/breaker"
	"github.com/edgebird/wsbridge/pkg/handler"
	"github.com/edgebird/wsbridge/pkg/inspect"
	"github.com/edgebird/wsbridge/pkg/pool"
	"github.com/edgebird/wsbridge/pkg/server/ws"
)

// TCPConfig holds the WS→TCP bridge configuration.
type TCPConfig struct {
	// Server configures the client-facing WebSocket listener. Its
	// TargetAddress names the TCP backend.
	Server ws.Config

	// DialTimeout bounds direct backend dials when pooling is disabled
	// (default: 10s).
	DialTimeout time.Duration

	// PoolEnabled turns on backend connection pooling.
	PoolEnabled bool
	// Pool configures the pool when enabled.
	Pool pool.Config

	// BreakerEnabled guards backend dials with a circuit breaker.
	BreakerEnabled bool
	// Breaker configures the breaker when enabled.
	Breaker breaker.Config
}

// TCP terminates WebSocket clients and bridges decoded payloads to a raw TCP
// backend. Backend dials can be pooled and guarded by a circuit breaker.
type TCP struct {
	server  *ws.Server
	pool    *pool.Pool
	breaker *breaker.CircuitBreaker
}

// NewTCP creates a WS→TCP bridge with the given configuration, payload
// inspector, and handler.
func NewTCP(cfg TCPConfig, insp inspect.Inspector, h handler.Handler) *TCP {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	b := &TCP{}
	target := cfg.Server.TargetAddress

	dial := func(ctx context.Context, target string) (net.Conn, error) {
		d := net.Dialer{Timeout: cfg.DialTimeout}
		return d.DialContext(ctx, "tcp", target)
	}

	if cfg.PoolEnabled {
		b.pool = pool.New(func(ctx context.Context) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", target)
		}, cfg.Pool)
		dial = func(ctx context.Context, _ string) (net.Conn, error) {
			return b.pool.Get(ctx)
		}
	}

	if cfg.BreakerEnabled {
		b.breaker = breaker.New(cfg.Breaker)
		base := dial
		dial = func(ctx context.Context, target string) (net.Conn, error) {
			var conn net.Conn
			err := b.breaker.Do(ctx, func(ctx context.Context) error {
				var derr error
				conn, derr = base(ctx, target)
				return derr
			})
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}

	cfg.Server.DialBackend = dial
	b.server = ws.New(cfg.Server, insp, h)
	return b
}

// Listen runs the bridge until the context is cancelled, then releases
// pooled backend connections.
func (b *TCP) Listen(ctx context.Context) error {
	err := b.server.Listen(ctx)
	if b.pool != nil {
		b.pool.Close()
	}
	return err
}

// Breaker exposes the dial circuit breaker, or nil when disabled. Callers
// use it to wire state-change instrumentation.
func (b *TCP) Breaker() *breaker.CircuitBreaker {
	return b.breaker
}

// PoolStats reports idle and active pooled backend connections.
func (b *TCP) PoolStats() (idle, active int) {
	if b.pool == nil {
		return 0, 0
	}
	return b.pool.Stats()
}
