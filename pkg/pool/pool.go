// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

// Package pool provides connection pooling for backend connections.
package pool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPoolClosed is returned when the pool is closed.
	ErrPoolClosed = errors.New("connection pool is closed")
	// ErrPoolExhausted is returned when no connections are available.
	ErrPoolExhausted = errors.New("connection pool exhausted")
)

// Config holds connection pool configuration.
type Config struct {
	// MaxIdle is the maximum number of idle connections in the pool.
	MaxIdle int
	// MaxActive is the maximum number of active connections.
	// If 0, there is no limit.
	MaxActive int
	// IdleTimeout is the maximum time a connection can sit idle before being closed.
	IdleTimeout time.Duration
	// MaxConnLifetime is the maximum time a connection can be alive.
	MaxConnLifetime time.Duration
	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration
	// WaitTimeout is the maximum time to wait for a connection when pool is exhausted.
	// If 0, returns error immediately.
	WaitTimeout time.Duration
	// HealthCheck, when set, validates an idle connection at borrow time.
	// A non-nil error discards the connection and the pool moves on to
	// the next idle one or dials fresh. It runs outside the pool lock,
	// so it may do I/O.
	HealthCheck func(conn net.Conn) error
}

// Conn wraps a net.Conn with pooling metadata.
type Conn struct {
	net.Conn
	createdAt  time.Time
	returnedAt time.Time
	returned   atomic.Bool
	pool       *Pool
}

// Close returns the connection to the pool. Closing an already returned
// connection is a no-op.
func (c *Conn) Close() error {
	if c.returned.Swap(true) {
		return nil
	}
	return c.pool.put(c)
}

// DialFunc is a function that creates a new connection.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Pool is a connection pool.
type Pool struct {
	mu       sync.Mutex
	idle     []*Conn
	active   int
	dialFunc DialFunc
	config   Config
	closed   bool
	waitChan chan struct{}
}

// New creates a new connection pool.
func New(dialFunc DialFunc, config Config) *Pool {
	if config.MaxIdle <= 0 {
		config.MaxIdle = 10
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 5 * time.Minute
	}
	if config.MaxConnLifetime == 0 {
		config.MaxConnLifetime = 30 * time.Minute
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	p := &Pool{
		dialFunc: dialFunc,
		config:   config,
		waitChan: make(chan struct{}, 1),
	}

	// Start idle connection cleaner
	go p.cleanIdleConnections()

	return p
}

// Get retrieves a connection from the pool or creates a new one.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	for {
		p.mu.Lock()

		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		// Prefer an idle connection, newest first.
		if n := len(p.idle); n > 0 {
			conn := p.idle[n-1]
			p.idle = p.idle[:n-1]

			if !p.withinLifetime(conn) {
				conn.Conn.Close()
				p.mu.Unlock()
				continue
			}

			p.active++
			p.mu.Unlock()
			conn.returned.Store(false)

			if hc := p.config.HealthCheck; hc != nil {
				if err := hc(conn.Conn); err != nil {
					conn.Conn.Close()
					p.mu.Lock()
					p.active--
					p.mu.Unlock()
					continue
				}
			}
			return conn, nil
		}

		// No idle connection; dial unless the active cap is reached.
		if p.config.MaxActive > 0 && p.active >= p.config.MaxActive {
			p.mu.Unlock()

			if p.config.WaitTimeout > 0 {
				timer := time.NewTimer(p.config.WaitTimeout)
				select {
				case <-p.waitChan:
					timer.Stop()
					continue
				case <-timer.C:
					return nil, ErrPoolExhausted
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				}
			}

			return nil, ErrPoolExhausted
		}

		p.active++
		p.mu.Unlock()

		dialCtx, cancel := context.WithTimeout(ctx, p.config.DialTimeout)
		rawConn, err := p.dialFunc(dialCtx)
		cancel()
		if err != nil {
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
			p.signalWaiter()
			return nil, fmt.Errorf("failed to dial: %w", err)
		}

		return &Conn{
			Conn:      rawConn,
			createdAt: time.Now(),
			pool:      p,
		}, nil
	}
}

// put returns a connection to the pool.
func (p *Pool) put(conn *Conn) error {
	p.mu.Lock()

	p.active--

	if p.closed || !p.withinLifetime(conn) || len(p.idle) >= p.config.MaxIdle {
		p.mu.Unlock()
		p.signalWaiter()
		return conn.Conn.Close()
	}

	conn.returnedAt = time.Now()
	p.idle = append(p.idle, conn)
	p.mu.Unlock()

	p.signalWaiter()
	return nil
}

// signalWaiter wakes one goroutine blocked on an exhausted pool.
func (p *Pool) signalWaiter() {
	select {
	case p.waitChan <- struct{}{}:
	default:
	}
}

// withinLifetime checks the connection against MaxConnLifetime.
func (p *Pool) withinLifetime(conn *Conn) bool {
	if p.config.MaxConnLifetime > 0 && time.Since(conn.createdAt) > p.config.MaxConnLifetime {
		return false
	}
	return true
}

// cleanIdleConnections periodically closes idle connections that have
// exceeded IdleTimeout, counted from when they were returned to the
// pool rather than from when they were created.
func (p *Pool) cleanIdleConnections() {
	ticker := time.NewTicker(p.config.IdleTimeout / 2)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}

		var kept []*Conn
		now := time.Now()

		for _, conn := range p.idle {
			if p.config.IdleTimeout > 0 && now.Sub(conn.returnedAt) > p.config.IdleTimeout {
				conn.Conn.Close()
			} else {
				kept = append(kept, conn)
			}
		}

		p.idle = kept
		p.mu.Unlock()
	}
}

// Close closes the pool and all idle connections.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	for _, conn := range p.idle {
		conn.Conn.Close()
	}
	p.idle = nil

	return nil
}

// Stats returns pool statistics.
func (p *Pool) Stats() (idle, active int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), p.active
}
