// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides rate limiting using token bucket algorithm.
package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrRateLimitExceeded is returned when rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Eviction policy for per-client limiter state.
const (
	cleanupInterval = 5 * time.Minute
	idleEvictAfter  = 10 * time.Minute
)

// TokenBucket implements the token bucket algorithm for rate limiting.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // tokens per second
	lastRefill time.Time
}

// NewTokenBucket creates a new token bucket rate limiter.
// capacity is the maximum number of tokens.
// refillRate is the number of tokens added per second.
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request should be allowed.
// Returns true if allowed, false if rate limited.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN checks if N requests should be allowed.
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}

	return false
}

// refill adds tokens based on elapsed time. lastRefill only advances
// when whole tokens are added, so fractional progress accumulates across
// calls instead of being rounded away.
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tokensToAdd := int64(elapsed * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

// Available returns the number of available tokens.
func (tb *TokenBucket) Available() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens
}

// clientLimiter pairs a bucket with its last use for idle eviction.
type clientLimiter struct {
	bucket  *TokenBucket
	lastUse atomic.Int64 // unix nanos
}

func (c *clientLimiter) touch() {
	c.lastUse.Store(time.Now().UnixNano())
}

// Limiter manages per-client rate limiters. Clients are usually keyed by
// remote host for upgrade limiting and by session ID for message
// limiting. State for clients idle longer than ten minutes is evicted on
// a background timer.
type Limiter struct {
	mu           sync.RWMutex
	limiters     map[string]*clientLimiter
	capacity     int64
	refillRate   int64
	maxClients   int
	cleanupTimer *time.Timer
	closed       atomic.Bool
}

// NewLimiter creates a new rate limiter with per-client tracking.
func NewLimiter(capacity, refillRate int64, maxClients int) *Limiter {
	if maxClients == 0 {
		maxClients = 10000
	}

	l := &Limiter{
		limiters:   make(map[string]*clientLimiter),
		capacity:   capacity,
		refillRate: refillRate,
		maxClients: maxClients,
	}

	// Periodic eviction of idle limiters
	l.cleanupTimer = time.AfterFunc(cleanupInterval, l.cleanup)

	return l
}

// Allow checks if a request from the given client should be allowed.
func (l *Limiter) Allow(clientID string) bool {
	return l.AllowN(clientID, 1)
}

// AllowN checks if N requests from the given client should be allowed.
// An unknown client gets a fresh bucket unless the tracked-client cap is
// reached, in which case the request is refused outright.
func (l *Limiter) AllowN(clientID string, n int64) bool {
	l.mu.RLock()
	cl, exists := l.limiters[clientID]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		// Double-check after acquiring write lock
		cl, exists = l.limiters[clientID]
		if !exists {
			if len(l.limiters) >= l.maxClients {
				l.mu.Unlock()
				return false
			}

			cl = &clientLimiter{bucket: NewTokenBucket(l.capacity, l.refillRate)}
			l.limiters[clientID] = cl
		}
		l.mu.Unlock()
	}

	cl.touch()
	return cl.bucket.AllowN(n)
}

// Remove removes a client's rate limiter.
func (l *Limiter) Remove(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, clientID)
}

// cleanup evicts limiters that have been idle past the threshold, then
// reschedules itself.
func (l *Limiter) cleanup() {
	if l.closed.Load() {
		return
	}

	threshold := time.Now().Add(-idleEvictAfter).UnixNano()

	l.mu.Lock()
	for id, cl := range l.limiters {
		if cl.lastUse.Load() < threshold {
			delete(l.limiters, id)
		}
	}
	l.mu.Unlock()

	l.cleanupTimer = time.AfterFunc(cleanupInterval, l.cleanup)
}

// Stats returns limiter statistics.
func (l *Limiter) Stats() (clients int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// Close stops the cleanup timer.
func (l *Limiter) Close() {
	l.closed.Store(true)
	if l.cleanupTimer != nil {
		l.cleanupTimer.Stop()
	}
}
