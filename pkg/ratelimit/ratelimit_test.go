// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucketConsume(t *testing.T) {
	tb := NewTokenBucket(3, 1)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("Expected request %d to be allowed", i)
		}
	}
	if tb.Allow() {
		t.Error("Expected request to be refused once tokens are spent")
	}
	if got := tb.Available(); got != 0 {
		t.Errorf("Expected 0 available tokens, got %d", got)
	}
}

func TestTokenBucketAllowN(t *testing.T) {
	tb := NewTokenBucket(10, 1)

	if !tb.AllowN(10) {
		t.Error("Expected burst up to capacity to be allowed")
	}
	if tb.AllowN(1) {
		t.Error("Expected empty bucket to refuse")
	}

	tb = NewTokenBucket(5, 1)
	if tb.AllowN(6) {
		t.Error("Expected request above capacity to be refused")
	}
	if got := tb.Available(); got != 5 {
		t.Errorf("Expected refused request to leave tokens intact, got %d", got)
	}
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(1000, 1000)
	tb.AllowN(1000)

	time.Sleep(20 * time.Millisecond)
	if got := tb.Available(); got == 0 {
		t.Error("Expected tokens to refill over time")
	}
}

func TestTokenBucketRefillCapped(t *testing.T) {
	tb := NewTokenBucket(2, 1000)

	time.Sleep(20 * time.Millisecond)
	if got := tb.Available(); got != 2 {
		t.Errorf("Expected refill to cap at capacity 2, got %d", got)
	}
}

func TestLimiterPerClient(t *testing.T) {
	l := NewLimiter(1, 1, 100)
	defer l.Close()

	if !l.Allow("alpha") {
		t.Error("Expected first request from alpha to be allowed")
	}
	if l.Allow("alpha") {
		t.Error("Expected second request from alpha to be refused")
	}
	// beta has its own bucket.
	if !l.Allow("beta") {
		t.Error("Expected first request from beta to be allowed")
	}

	if got := l.Stats(); got != 2 {
		t.Errorf("Expected 2 tracked clients, got %d", got)
	}
}

func TestLimiterMaxClients(t *testing.T) {
	l := NewLimiter(10, 1, 2)
	defer l.Close()

	if !l.Allow("one") || !l.Allow("two") {
		t.Fatal("Expected requests below the client cap to be allowed")
	}
	if l.Allow("three") {
		t.Error("Expected request from a client beyond the cap to be refused")
	}
	// Known clients are unaffected by the cap.
	if !l.Allow("one") {
		t.Error("Expected tracked client to still be allowed")
	}
}

func TestLimiterRemove(t *testing.T) {
	l := NewLimiter(1, 1, 2)
	defer l.Close()

	l.Allow("one")
	l.Allow("two")
	if l.Allow("three") {
		t.Fatal("Expected client cap to refuse")
	}

	l.Remove("one")
	if got := l.Stats(); got != 1 {
		t.Errorf("Expected 1 tracked client after Remove, got %d", got)
	}
	if !l.Allow("three") {
		t.Error("Expected freed slot to admit a new client")
	}
}
