// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/edgebird/wsbridge/pkg/handler"
	"github.com/edgebird/wsbridge/pkg/metrics"
	"github.com/edgebird/wsbridge/pkg/ratelimit"
	"github.com/edgebird/wsbridge/pkg/wire"
)

var (
	_ handler.Handler = (*RateLimitedHandler)(nil)
	_ handler.Handler = (*InstrumentedHandler)(nil)
)

// RateLimitedHandler wraps a handler with rate limiting. Upgrades are
// limited globally and per remote host, messages per session.
type RateLimitedHandler struct {
	handler          handler.Handler
	perClientLimiter *ratelimit.Limiter
	globalLimiter    *ratelimit.TokenBucket
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

// AuthUpgrade implements handler.Handler with rate limiting.
func (h *RateLimitedHandler) AuthUpgrade(ctx context.Context, hctx *handler.Context) error {
	// Check global rate limit
	if !h.globalLimiter.Allow() {
		h.metrics.RateLimitedRequests.WithLabelValues(hctx.Transport, "global").Inc()
		h.logger.Warn("Global rate limit exceeded",
			slog.String("remote", hctx.RemoteAddr),
			slog.String("transport", hctx.Transport))
		return ratelimit.ErrRateLimitExceeded
	}

	// Check per-client rate limit, keyed by remote host so a client
	// cannot dodge the limit by reconnecting from new ports. A client
	// identifier extracted by an inspector takes precedence.
	clientKey := hctx.RemoteAddr
	if host, _, err := net.SplitHostPort(clientKey); err == nil {
		clientKey = host
	}
	if hctx.ClientID != "" {
		clientKey = hctx.ClientID
	}

	if !h.perClientLimiter.Allow(clientKey) {
		h.metrics.RateLimitedRequests.WithLabelValues(hctx.Transport, "per_client").Inc()
		h.logger.Warn("Per-client rate limit exceeded",
			slog.String("client", clientKey),
			slog.String("transport", hctx.Transport))
		return ratelimit.ErrRateLimitExceeded
	}

	return h.handler.AuthUpgrade(ctx, hctx)
}

// AuthMessage implements handler.Handler with per-session rate limiting.
func (h *RateLimitedHandler) AuthMessage(ctx context.Context, hctx *handler.Context, msgType wire.MessageType, payload *[]byte) error {
	if !h.perClientLimiter.Allow(hctx.SessionID) {
		h.metrics.RateLimitedRequests.WithLabelValues(hctx.Transport, "per_session").Inc()
		h.logger.Warn("Per-session rate limit exceeded",
			slog.String("session", hctx.SessionID),
			slog.String("transport", hctx.Transport))
		return ratelimit.ErrRateLimitExceeded
	}

	return h.handler.AuthMessage(ctx, hctx, msgType, payload)
}

// AuthPublish implements handler.Handler.
func (h *RateLimitedHandler) AuthPublish(ctx context.Context, hctx *handler.Context, topic *string, payload *[]byte) error {
	// Could add payload size rate limiting here
	return h.handler.AuthPublish(ctx, hctx, topic, payload)
}

// AuthSubscribe implements handler.Handler.
func (h *RateLimitedHandler) AuthSubscribe(ctx context.Context, hctx *handler.Context, topics *[]string) error {
	return h.handler.AuthSubscribe(ctx, hctx, topics)
}

// OnUpgrade implements handler.Handler.
func (h *RateLimitedHandler) OnUpgrade(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnUpgrade(ctx, hctx)
}

// OnMessage implements handler.Handler.
func (h *RateLimitedHandler) OnMessage(ctx context.Context, hctx *handler.Context, msgType wire.MessageType, size int) error {
	return h.handler.OnMessage(ctx, hctx, msgType, size)
}

// OnPublish implements handler.Handler.
func (h *RateLimitedHandler) OnPublish(ctx context.Context, hctx *handler.Context, topic string, payload []byte) error {
	return h.handler.OnPublish(ctx, hctx, topic, payload)
}

// OnSubscribe implements handler.Handler.
func (h *RateLimitedHandler) OnSubscribe(ctx context.Context, hctx *handler.Context, topics []string) error {
	return h.handler.OnSubscribe(ctx, hctx, topics)
}

// OnUnsubscribe implements handler.Handler.
func (h *RateLimitedHandler) OnUnsubscribe(ctx context.Context, hctx *handler.Context, topics []string) error {
	return h.handler.OnUnsubscribe(ctx, hctx, topics)
}

// OnDisconnect implements handler.Handler. On disconnect the session's
// message limiter state is dropped.
func (h *RateLimitedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	h.perClientLimiter.Remove(hctx.SessionID)
	return h.handler.OnDisconnect(ctx, hctx)
}

// InstrumentedHandler wraps a handler with metrics instrumentation.
// Session and handshake gauges are maintained by the server itself, so
// only authorization outcomes and inspector events are recorded here.
type InstrumentedHandler struct {
	handler handler.Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// failureReason maps an authorization error to the metric reason label.
func failureReason(err error) string {
	if errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		return "rate_limited"
	}
	return "unauthorized"
}

// AuthUpgrade implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthUpgrade(ctx context.Context, hctx *handler.Context) error {
	h.metrics.AuthAttempts.WithLabelValues(hctx.Transport, "upgrade").Inc()

	err := h.handler.AuthUpgrade(ctx, hctx)
	if err != nil {
		h.metrics.AuthFailures.WithLabelValues(hctx.Transport, "upgrade", failureReason(err)).Inc()
	}

	return err
}

// AuthMessage implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthMessage(ctx context.Context, hctx *handler.Context, msgType wire.MessageType, payload *[]byte) error {
	h.metrics.AuthAttempts.WithLabelValues(hctx.Transport, "message").Inc()

	err := h.handler.AuthMessage(ctx, hctx, msgType, payload)
	if err != nil {
		h.metrics.AuthFailures.WithLabelValues(hctx.Transport, "message", failureReason(err)).Inc()
	}

	return err
}

// AuthPublish implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthPublish(ctx context.Context, hctx *handler.Context, topic *string, payload *[]byte) error {
	h.metrics.AuthAttempts.WithLabelValues(hctx.Transport, "publish").Inc()

	err := h.handler.AuthPublish(ctx, hctx, topic, payload)
	if err != nil {
		h.metrics.AuthFailures.WithLabelValues(hctx.Transport, "publish", failureReason(err)).Inc()
	}

	return err
}

// AuthSubscribe implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthSubscribe(ctx context.Context, hctx *handler.Context, topics *[]string) error {
	h.metrics.AuthAttempts.WithLabelValues(hctx.Transport, "subscribe").Inc()

	err := h.handler.AuthSubscribe(ctx, hctx, topics)
	if err != nil {
		h.metrics.AuthFailures.WithLabelValues(hctx.Transport, "subscribe", failureReason(err)).Inc()
	}

	return err
}

// OnUpgrade implements handler.Handler.
func (h *InstrumentedHandler) OnUpgrade(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnUpgrade(ctx, hctx)
}

// OnMessage implements handler.Handler.
func (h *InstrumentedHandler) OnMessage(ctx context.Context, hctx *handler.Context, msgType wire.MessageType, size int) error {
	return h.handler.OnMessage(ctx, hctx, msgType, size)
}

// OnPublish implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnPublish(ctx context.Context, hctx *handler.Context, topic string, payload []byte) error {
	if hctx.Transport == "mqtt" {
		h.metrics.MQTTPackets.WithLabelValues("publish", "upstream").Inc()
	}

	return h.handler.OnPublish(ctx, hctx, topic, payload)
}

// OnSubscribe implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnSubscribe(ctx context.Context, hctx *handler.Context, topics []string) error {
	if hctx.Transport == "mqtt" {
		h.metrics.MQTTPackets.WithLabelValues("subscribe", "upstream").Inc()
	}

	return h.handler.OnSubscribe(ctx, hctx, topics)
}

// OnUnsubscribe implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnUnsubscribe(ctx context.Context, hctx *handler.Context, topics []string) error {
	if hctx.Transport == "mqtt" {
		h.metrics.MQTTPackets.WithLabelValues("unsubscribe", "upstream").Inc()
	}

	return h.handler.OnUnsubscribe(ctx, hctx, topics)
}

// OnDisconnect implements handler.Handler.
func (h *InstrumentedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}
