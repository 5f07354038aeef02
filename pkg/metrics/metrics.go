// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for wsbridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for wsbridge.
type Metrics struct {
	// Session metrics
	ActiveSessions  *prometheus.GaugeVec
	TotalSessions   *prometheus.CounterVec
	SessionErrors   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec

	// Handshake metrics
	HandshakesTotal   *prometheus.CounterVec
	HandshakeDuration *prometheus.HistogramVec

	// Frame metrics
	FramesTotal       *prometheus.CounterVec
	FramePayloadBytes *prometheus.HistogramVec
	MalformedFrames   *prometheus.CounterVec

	// Backend metrics
	BackendRequestsTotal     *prometheus.CounterVec
	BackendErrors            *prometheus.CounterVec
	BackendDuration          *prometheus.HistogramVec
	BackendActiveConnections *prometheus.GaugeVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Rate limiter metrics
	RateLimitedRequests *prometheus.CounterVec

	// Resource metrics
	GoroutinesActive *prometheus.GaugeVec
	MemoryAllocated  *prometheus.GaugeVec

	// Auth metrics
	AuthAttempts *prometheus.CounterVec
	AuthFailures *prometheus.CounterVec

	// Inspector metrics
	MQTTPackets  *prometheus.CounterVec
	CoAPMessages *prometheus.CounterVec
}

// New creates a new Metrics instance with all counters, gauges, and histograms.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wsbridge"
	}

	m := &Metrics{
		ActiveSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of currently active WebSocket sessions",
			},
			[]string{"transport", "type"},
		),
		TotalSessions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of WebSocket sessions",
			},
			[]string{"transport", "type", "status"},
		),
		SessionErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_errors_total",
				Help:      "Total number of session errors",
			},
			[]string{"transport", "type", "error_type"},
		),
		SessionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Session duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"transport", "type"},
		),
		HandshakesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handshakes_total",
				Help:      "Total number of WebSocket opening handshakes",
			},
			[]string{"status"},
		),
		HandshakeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handshake_duration_seconds",
				Help:      "Opening handshake duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		FramesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Total number of WebSocket frames",
			},
			[]string{"opcode", "direction"},
		),
		FramePayloadBytes: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "frame_payload_bytes",
				Help:      "Frame payload size in bytes",
				Buckets:   []float64{0, 125, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"direction"},
		),
		MalformedFrames: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_frames_total",
				Help:      "Total number of frames rejected by the decoder",
			},
			[]string{"reason"},
		),
		BackendRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Total number of backend requests",
			},
			[]string{"backend", "status"},
		),
		BackendErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Total number of backend errors",
			},
			[]string{"backend", "error_type"},
		),
		BackendDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_duration_seconds",
				Help:      "Backend request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		BackendActiveConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_active_connections",
				Help:      "Number of active backend connections",
			},
			[]string{"backend"},
		),
		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"backend"},
		),
		CircuitBreakerTrips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"backend"},
		),
		RateLimitedRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "Total number of rate limited requests",
			},
			[]string{"transport", "limiter_type"},
		),
		GoroutinesActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_active",
				Help:      "Number of active goroutines by component",
			},
			[]string{"component"},
		),
		MemoryAllocated: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_allocated_bytes",
				Help:      "Memory allocated in bytes",
			},
			[]string{"type"},
		),
		AuthAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Total number of authentication attempts",
			},
			[]string{"transport", "type"},
		),
		AuthFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"transport", "type", "reason"},
		),
		MQTTPackets: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mqtt_packets_total",
				Help:      "Total number of MQTT packets seen by the inspector",
			},
			[]string{"packet_type", "direction"},
		),
		CoAPMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "coap_messages_total",
				Help:      "Total number of CoAP messages seen by the inspector",
			},
			[]string{"method", "code"},
		),
	}

	return m
}

// ObserveSession tracks a session lifecycle.
func (m *Metrics) ObserveSession(transport, connType string, f func() error) error {
	m.ActiveSessions.WithLabelValues(transport, connType).Inc()
	defer m.ActiveSessions.WithLabelValues(transport, connType).Dec()

	start := time.Now()
	defer func() {
		duration := time.Since(start).Seconds()
		m.SessionDuration.WithLabelValues(transport, connType).Observe(duration)
	}()

	err := f()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.TotalSessions.WithLabelValues(transport, connType, status).Inc()

	return err
}

// ObserveHandshake tracks an opening handshake.
func (m *Metrics) ObserveHandshake(f func() error) error {
	start := time.Now()

	err := f()
	duration := time.Since(start).Seconds()

	status := "accepted"
	if err != nil {
		status = "refused"
	}
	m.HandshakesTotal.WithLabelValues(status).Inc()
	m.HandshakeDuration.WithLabelValues(status).Observe(duration)

	return err
}

// CountFrame records one frame and its payload size.
func (m *Metrics) CountFrame(opcode, direction string, payloadSize int) {
	m.FramesTotal.WithLabelValues(opcode, direction).Inc()
	m.FramePayloadBytes.WithLabelValues(direction).Observe(float64(payloadSize))
}
