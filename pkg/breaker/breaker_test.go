// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func TestBreakerOpensAfterFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("Expected backend error, got %v", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected state open, got %s", cb.State())
	}

	// Calls are refused without running fn while open.
	ran := false
	err := cb.Call(func() error { ran = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if ran {
		t.Error("Expected fn not to run while the circuit is open")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 2, ResetTimeout: time.Minute})

	cb.Call(func() error { return errBackend })
	cb.Call(func() error { return nil })
	cb.Call(func() error { return errBackend })

	if cb.State() != StateClosed {
		t.Errorf("Expected interleaved successes to keep the circuit closed, got %s", cb.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cb := New(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, SuccessThreshold: 2})

	cb.Call(func() error { return errBackend })
	if cb.State() != StateOpen {
		t.Fatalf("Expected state open, got %s", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	// First probe transitions to half-open; two successes close.
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("Expected probe to be allowed, got %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected state half_open, got %s", cb.State())
	}
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("Expected probe to be allowed, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state closed after success threshold, got %s", cb.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})

	cb.Call(func() error { return errBackend })
	time.Sleep(20 * time.Millisecond)

	cb.Call(func() error { return errBackend })
	if cb.State() != StateOpen {
		t.Errorf("Expected half-open failure to reopen, got %s", cb.State())
	}
}

func TestBreakerDoTimeout(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, ResetTimeout: time.Minute})

	err := cb.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("Expected timeout to count as failure, got %s", cb.State())
	}
}

func TestBreakerDoPropagatesContext(t *testing.T) {
	cb := New(Config{Timeout: time.Minute})

	parent, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Do(parent, func(ctx context.Context) error {
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected canceled parent to reach fn, got %v", err)
	}
}

func TestBreakerOnStateChange(t *testing.T) {
	cb := New(Config{MaxFailures: 1, ResetTimeout: time.Minute})

	changes := make(chan [2]State, 1)
	cb.OnStateChange(func(from, to State) {
		changes <- [2]State{from, to}
	})

	cb.Call(func() error { return errBackend })

	select {
	case change := <-changes:
		if change[0] != StateClosed || change[1] != StateOpen {
			t.Errorf("Expected closed->open, got %s->%s", change[0], change[1])
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a state change notification")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateHalfOpen, "half_open"},
		{StateOpen, "open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}
