// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	berrors "github.com/edgebird/wsbridge/pkg/errors"
	"github.com/edgebird/wsbridge/pkg/handler"
	"github.com/edgebird/wsbridge/pkg/handshake"
	"github.com/edgebird/wsbridge/pkg/inspect"
	"github.com/edgebird/wsbridge/pkg/metrics"
	"github.com/edgebird/wsbridge/pkg/wire"
	"github.com/google/uuid"
)

var (
	// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

	// ErrRequestHeadTooLarge is returned when the upgrade request head exceeds
	// maxRequestHeadBytes before the blank line is seen.
	ErrRequestHeadTooLarge = errors.New("request head too large")
)

const (
	// maxRequestHeadBytes bounds how much of an upgrade request the server
	// buffers while looking for the end of the header block.
	maxRequestHeadBytes = 8192

	badRequestResponse   = "HTTP/1.1 400 Bad Request\r\nConnection: close\r\n\r\n"
	unauthorizedResponse = "HTTP/1.1 401 Unauthorized\r\nConnection: close\r\n\r\n"
)

var headTerminator = []byte("\r\n\r\n")

// Config holds the WebSocket server configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// TargetAddress is the backend server address to bridge to (host:port).
	// When empty the server runs in echo mode: data messages are handed to
	// the handler chain and written back to the client.
	TargetAddress string

	// DialBackend overrides how the backend connection is established.
	// When nil the server dials TargetAddress over plain TCP.
	DialBackend func(ctx context.Context, target string) (net.Conn, error)

	// TLSConfig is optional TLS configuration for the listener
	TLSConfig *tls.Config

	// MaxConnections limits concurrently served connections.
	// Zero means unlimited. Excess connections are closed at accept time.
	MaxConnections int

	// BufferSize is the size of pooled read buffers (default: 4096)
	BufferSize int

	// MaxPayloadLength caps the declared payload length of inbound frames.
	// Zero applies the codec default.
	MaxPayloadLength uint64

	// HandshakeTimeout bounds reading the upgrade request and writing the
	// accept response (default: 10s).
	HandshakeTimeout time.Duration

	// ReadTimeout is the maximum silence tolerated on the client socket
	// before the session is torn down. Zero disables the deadline.
	ReadTimeout time.Duration

	// WriteTimeout bounds each write to either peer. Zero disables the deadline.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum silence tolerated on the backend socket
	// in bridge mode. Zero disables the deadline.
	IdleTimeout time.Duration

	// TCPKeepAlive enables TCP keep-alive probes on accepted connections
	// with the given period. Zero leaves the OS default.
	TCPKeepAlive time.Duration

	// DisableNoDelay turns Nagle's algorithm back on for accepted
	// connections. By default TCP_NODELAY is set.
	DisableNoDelay bool

	// ShutdownTimeout is the maximum time to wait for active connections to drain
	// during graceful shutdown. After this timeout, remaining connections are
	// forcefully closed.
	ShutdownTimeout time.Duration

	// Logger for server events
	Logger *slog.Logger

	// Metrics is optional instrumentation for handshakes, frames and sessions.
	Metrics *metrics.Metrics
}

// Server terminates WebSocket connections on its own codec and bridges
// decoded message payloads to a backend stream, or echoes them back when no
// backend is configured.
type Server struct {
	config     Config
	inspector  inspect.Inspector
	handler    handler.Handler
	wg         sync.WaitGroup
	connSem    chan struct{}
	bufferPool *sync.Pool
}

// New creates a new WebSocket server with the given configuration, payload
// inspector, and handler. A nil inspector forwards payloads untouched.
func New(cfg Config, insp inspect.Inspector, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 4096
	}
	if insp == nil {
		insp = inspect.Noop{}
	}

	s := &Server{
		config:    cfg,
		inspector: insp,
		handler:   h,
	}

	if cfg.MaxConnections > 0 {
		s.connSem = make(chan struct{}, cfg.MaxConnections)
	}

	bufSize := cfg.BufferSize
	s.bufferPool = &sync.Pool{
		New: func() any {
			b := make([]byte, bufSize)
			return &b
		},
	}

	return s
}

// Listen starts the WebSocket server and blocks until the context is cancelled.
// It implements graceful shutdown with connection draining.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	// Wrap with TLS if configured
	if s.config.TLSConfig != nil {
		listener = tls.NewListener(listener, s.config.TLSConfig)
		s.config.Logger.Info("TLS enabled", slog.String("address", s.config.Address))
	}

	mode := "bridge"
	if s.config.TargetAddress == "" {
		mode = "echo"
	}
	s.config.Logger.Info("WebSocket server started",
		slog.String("address", s.config.Address),
		slog.String("mode", mode))

	// Create a separate context for active connections
	// This allows us to control when to forcefully close connections
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	// Accept loop
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					// Expected error during shutdown
					return
				default:
					s.config.Logger.Error("failed to accept connection", slog.String("error", err.Error()))
					continue
				}
			}

			if s.connSem != nil {
				select {
				case s.connSem <- struct{}{}:
				default:
					s.config.Logger.Warn("connection limit reached, rejecting",
						slog.String("remote", conn.RemoteAddr().String()))
					conn.Close()
					continue
				}
			}

			s.setTCPOptions(conn)

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				if s.connSem != nil {
					defer func() { <-s.connSem }()
				}
				if err := s.handleConn(connCtx, conn); err != nil && !errors.Is(err, io.EOF) {
					s.config.Logger.Debug("connection handler error",
						slog.String("remote", conn.RemoteAddr().String()),
						slog.String("error", err.Error()))
				}
			}()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	s.config.Logger.Info("shutdown signal received, closing listener")

	// Close the listener to stop accepting new connections
	if err := listener.Close(); err != nil {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}

	// Wait for accept loop to finish
	<-acceptDone

	// Wait for active connections to drain with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.config.Logger.Info("all connections closed gracefully")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, forcing connection closure")
		// Cancel context to force close remaining connections
		connCancel()
		// Give a little more time for forced closure
		select {
		case <-done:
			return ErrShutdownTimeout
		case <-time.After(1 * time.Second):
			return ErrShutdownTimeout
		}
	}
}

// setTCPOptions applies keep-alive and Nagle settings to an accepted
// connection. Connections that are not TCP underneath are left untouched.
func (s *Server) setTCPOptions(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		tlsConn, isTLS := conn.(*tls.Conn)
		if !isTLS {
			return
		}
		tcpConn, ok = tlsConn.NetConn().(*net.TCPConn)
		if !ok {
			return
		}
	}

	if s.config.TCPKeepAlive > 0 {
		if err := tcpConn.SetKeepAlive(true); err == nil {
			tcpConn.SetKeepAlivePeriod(s.config.TCPKeepAlive)
		}
	}
	tcpConn.SetNoDelay(!s.config.DisableNoDelay)
}

// handleConn processes a single client connection by:
// 1. Creating a handler context with connection metadata
// 2. Performing the WebSocket opening handshake and upgrade authorization
// 3. Dialing the backend server, or staying in echo mode
// 4. Running the frame loop until the session ends
func (s *Server) handleConn(ctx context.Context, inbound net.Conn) error {
	defer inbound.Close()

	sessionID := uuid.New().String()

	// Create handler context
	hctx := &handler.Context{
		SessionID:  sessionID,
		RemoteAddr: inbound.RemoteAddr().String(),
		Transport:  "ws",
	}

	// Extract client certificate if using TLS
	if tlsConn, ok := inbound.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			return fmt.Errorf("TLS handshake failed: %w", err)
		}
		state := tlsConn.ConnectionState()
		if len(state.PeerCertificates) > 0 {
			hctx.Cert = state.PeerCertificates[0]
		}
	}

	// Opening handshake. Any bytes the client sent after the request head
	// are the start of the frame stream.
	var pending []byte
	doUpgrade := func() error {
		var err error
		pending, err = s.upgrade(ctx, inbound, hctx)
		return err
	}

	var err error
	if m := s.config.Metrics; m != nil {
		err = m.ObserveHandshake(doUpgrade)
	} else {
		err = doUpgrade()
	}
	if err != nil {
		return berrors.New("upgrade", "ws", sessionID, hctx.RemoteAddr, err)
	}

	if err := s.handler.OnUpgrade(ctx, hctx); err != nil {
		s.config.Logger.Error("upgrade notification error",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
	}

	// Dial backend server, unless running in echo mode
	var outbound net.Conn
	connType := "echo"
	if s.config.TargetAddress != "" {
		connType = "bridge"
		outbound, err = s.dialBackend(ctx)
		if err != nil {
			return berrors.New("dial", "ws", sessionID, hctx.RemoteAddr, err)
		}
		defer outbound.Close()
	}

	s.config.Logger.Debug("session established",
		slog.String("session", sessionID),
		slog.String("client", hctx.RemoteAddr),
		slog.String("mode", connType))

	run := func() error {
		return s.session(ctx, inbound, outbound, pending, hctx)
	}

	var sessionErr error
	if m := s.config.Metrics; m != nil {
		sessionErr = m.ObserveSession("ws", connType, run)
	} else {
		sessionErr = run()
	}

	// Notify disconnect
	if err := s.handler.OnDisconnect(context.Background(), hctx); err != nil {
		s.config.Logger.Error("disconnect handler error",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
	}

	s.config.Logger.Debug("session closed",
		slog.String("session", sessionID))

	if sessionErr != nil {
		return berrors.New("session", "ws", sessionID, hctx.RemoteAddr, sessionErr)
	}
	return nil
}

// dialBackend establishes the backend connection for a bridged session.
func (s *Server) dialBackend(ctx context.Context) (net.Conn, error) {
	if s.config.DialBackend != nil {
		return s.config.DialBackend(ctx, s.config.TargetAddress)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", s.config.TargetAddress)
}

// upgrade reads the client's upgrade request, authorizes it, and writes the
// accept response. It returns any bytes read past the request head.
func (s *Server) upgrade(ctx context.Context, conn net.Conn, hctx *handler.Context) ([]byte, error) {
	if err := conn.SetDeadline(time.Now().Add(s.config.HandshakeTimeout)); err != nil {
		return nil, err
	}

	head, rest, err := readRequestHead(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read upgrade request: %w", err)
	}

	resp, err := handshake.Accept(head)
	if err != nil {
		conn.Write([]byte(badRequestResponse))
		return nil, err
	}

	username, password := extractAuth(head)
	hctx.Username = username
	hctx.Password = []byte(password)
	hctx.Subprotocol = requestedSubprotocol(head)

	if err := s.handler.AuthUpgrade(ctx, hctx); err != nil {
		conn.Write([]byte(unauthorizedResponse))
		return nil, fmt.Errorf("%w: %w", berrors.ErrUnauthorized, err)
	}

	if _, err := conn.Write(resp.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write accept response: %w", err)
	}

	// Handshake deadline no longer applies; the frame loop manages its own.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}

	return rest, nil
}

// readRequestHead consumes the upgrade request up to and including the blank
// line. Bytes past the blank line are returned separately.
func readRequestHead(conn net.Conn) (head, rest []byte, err error) {
	var buf []byte
	chunk := make([]byte, 1024)
	for {
		n, rerr := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)

		if i := bytes.Index(buf, headTerminator); i >= 0 {
			cut := i + len(headTerminator)
			return buf[:cut], buf[cut:], nil
		}
		if rerr != nil {
			return nil, nil, rerr
		}
		if len(buf) >= maxRequestHeadBytes {
			return nil, nil, ErrRequestHeadTooLarge
		}
	}
}

// session runs the frame loop, and in bridge mode the backend pump alongside it.
func (s *Server) session(ctx context.Context, client, backend net.Conn, pending []byte, hctx *handler.Context) error {
	if backend == nil {
		return s.readFrames(ctx, client, nil, pending, hctx)
	}

	errCh := make(chan error, 2)

	// Upstream: client frames → backend stream
	go func() {
		errCh <- s.readFrames(ctx, client, backend, pending, hctx)
	}()

	// Downstream: backend stream → client frames
	go func() {
		errCh <- s.pumpBackend(ctx, backend, client, hctx)
	}()

	var streamErr error
	for i := 0; i < 2; i++ {
		err := <-errCh
		if streamErr == nil && !isTeardownErr(err) {
			streamErr = err
		}
		if i == 0 {
			// Unblock the other direction. The client socket is closed for
			// real; the backend only gets its read interrupted, so pooled
			// backend connections can still be returned cleanly.
			client.Close()
			backend.SetReadDeadline(time.Now())
		}
	}
	backend.SetReadDeadline(time.Time{})

	return streamErr
}

// isTeardownErr reports whether an error is part of normal session teardown
// rather than a failure worth surfacing.
func isTeardownErr(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

// readFrames decodes client frames from the stream and dispatches them until
// the peer closes, a protocol error occurs, or the context is cancelled.
func (s *Server) readFrames(ctx context.Context, client, backend net.Conn, pending []byte, hctx *handler.Context) error {
	bufPtr := s.bufferPool.Get().(*[]byte)
	defer s.bufferPool.Put(bufPtr)
	scratch := *bufPtr

	dec := wire.Decoder{MaxPayloadLength: s.config.MaxPayloadLength}
	stream := pending

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Cut and dispatch every complete frame in the buffer
		for len(stream) > 0 {
			frame, err := dec.Decode(stream)
			if err != nil {
				var incomplete *wire.IncompleteFrameError
				if errors.As(err, &incomplete) {
					break
				}
				s.countMalformed(err)
				s.writeFrame(client, wire.NewClose())
				return err
			}

			done, err := s.dispatchFrame(ctx, frame, client, backend, hctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			stream = stream[frame.FullLength():]
		}
		if len(stream) == 0 {
			// Drop the backing array once drained so long sessions do not
			// pin consumed frames.
			stream = nil
		}

		if s.config.ReadTimeout > 0 {
			if err := client.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
				return err
			}
		}
		n, err := client.Read(scratch)
		if n > 0 {
			stream = append(stream, scratch[:n]...)
		}
		if err != nil {
			return err
		}
	}
}

// dispatchFrame handles a single decoded frame. It reports done=true when the
// session should end cleanly (close handshake completed).
func (s *Server) dispatchFrame(ctx context.Context, frame *wire.Frame, client, backend net.Conn, hctx *handler.Context) (done bool, err error) {
	op := frame.Opcode()
	s.countFrame(op, "in", len(frame.Payload()))

	switch {
	case frame.IsClose():
		// Reply in kind, then tear down
		s.writeFrame(client, wire.NewClose())
		return true, nil
	case op == wire.OpPing:
		return false, s.writeFrame(client, wire.NewPong(frame.Payload()))
	case op == wire.OpPong:
		return false, nil
	case op == wire.OpContinuation || op == wire.OpUnknown:
		s.config.Logger.Warn("dropping unsupported frame",
			slog.String("session", hctx.SessionID),
			slog.String("opcode", op.String()))
		return false, nil
	}

	msg, ok := frame.Message()
	if !ok {
		// Data frame with an empty payload carries nothing to forward
		return false, nil
	}

	payload := msg.Payload
	if err := s.handler.AuthMessage(ctx, hctx, msg.Type, &payload); err != nil {
		s.writeFrame(client, wire.NewClose())
		return false, fmt.Errorf("%w: %w", berrors.ErrUnauthorized, err)
	}

	payload, err = s.inspector.Inspect(ctx, payload, inspect.Upstream, s.handler, hctx)
	if err != nil {
		s.writeFrame(client, wire.NewClose())
		return false, err
	}

	if backend != nil {
		if err := s.writeBytes(backend, payload); err != nil {
			return false, err
		}
	} else {
		echo := wire.Message{Type: msg.Type, Payload: payload}
		if err := s.writeFrame(client, echo); err != nil {
			return false, err
		}
		s.countFrame(op, "out", len(payload))
	}

	if err := s.handler.OnMessage(ctx, hctx, msg.Type, len(payload)); err != nil {
		s.config.Logger.Error("message notification error",
			slog.String("session", hctx.SessionID),
			slog.String("error", err.Error()))
	}

	return false, nil
}

// pumpBackend reads raw backend bytes and forwards them to the client as
// binary frames.
func (s *Server) pumpBackend(ctx context.Context, backend, client net.Conn, hctx *handler.Context) error {
	bufPtr := s.bufferPool.Get().(*[]byte)
	defer s.bufferPool.Put(bufPtr)
	buf := *bufPtr

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if s.config.IdleTimeout > 0 {
			if err := backend.SetReadDeadline(time.Now().Add(s.config.IdleTimeout)); err != nil {
				return err
			}
		}
		n, err := backend.Read(buf)
		if n > 0 {
			payload, ierr := s.inspector.Inspect(ctx, buf[:n], inspect.Downstream, s.handler, hctx)
			if ierr != nil {
				s.writeFrame(client, wire.NewClose())
				return ierr
			}
			if werr := s.writeFrame(client, wire.NewBinary(payload)); werr != nil {
				return werr
			}
			s.countFrame(wire.OpBinary, "out", len(payload))
		}
		if err != nil {
			return err
		}
	}
}

// writeFrame encodes a message and writes it to the connection, honoring the
// configured write deadline.
func (s *Server) writeFrame(conn net.Conn, msg wire.Message) error {
	return s.writeBytes(conn, msg.Encode())
}

func (s *Server) writeBytes(conn net.Conn, b []byte) error {
	if s.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err := conn.Write(b)
	return err
}

func (s *Server) countFrame(op wire.Opcode, direction string, payloadSize int) {
	if s.config.Metrics == nil {
		return
	}
	s.config.Metrics.CountFrame(op.String(), direction, payloadSize)
}

func (s *Server) countMalformed(err error) {
	if s.config.Metrics == nil {
		return
	}
	reason := "malformed"
	if errors.Is(err, wire.ErrFrameTooLarge) {
		reason = "too_large"
	}
	s.config.Metrics.MalformedFrames.WithLabelValues(reason).Inc()
}
