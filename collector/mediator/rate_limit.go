// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package mediator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMinuteWindowFull is returned when the shared per-minute call ceiling
// has been reached.
var ErrMinuteWindowFull = errors.New("per-minute call budget exhausted")

// RateLimiter implements a token bucket rate limiter.
type RateLimiter struct {
	rate       float64   // tokens per second
	burst      int       // maximum burst size
	tokens     float64   // current tokens available
	lastUpdate time.Time // last time tokens were updated
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter.
// rate: number of requests allowed per second
// burst: maximum number of requests allowed in a burst
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1 - r.tokens) / r.rate * 1000 * float64(time.Millisecond))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			// Try again.
		}
	}
}

// TryAcquire attempts to acquire a token without blocking.
// Returns true if a token was acquired, false otherwise.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill replenishes tokens based on elapsed time. Callers hold r.mu.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.tokens = min(float64(r.burst), r.tokens+elapsed*r.rate)
	r.lastUpdate = now
}

// Available returns the number of tokens currently available.
func (r *RateLimiter) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return int(r.tokens)
}

// Reset restores the limiter to full burst capacity.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = float64(r.burst)
	r.lastUpdate = time.Now()
}

// SetRate updates the rate limit dynamically.
func (r *RateLimiter) SetRate(rate float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = rate
	r.burst = burst
	if r.tokens > float64(burst) {
		r.tokens = float64(burst)
	}
}

// MinuteGuard enforces a shared calls-per-minute ceiling across all process
// replicas using a redis sorted set of call timestamps. When redis is not
// configured it degrades to an in-process sliding window; when redis errors
// mid-flight it fails open so a cache outage cannot halt collection.
type MinuteGuard struct {
	client   *redis.Client
	limit    int
	fallback *slidingWindow
}

// NewMinuteGuard connects to redis and returns a guard with the given
// per-minute limit. A limit of zero or less disables the guard. Connection
// failures are logged and the guard falls back to its in-process window.
func NewMinuteGuard(redisURL string, limit int) *MinuteGuard {
	g := &MinuteGuard{
		limit:    limit,
		fallback: newSlidingWindow(time.Minute, limit),
	}
	if limit <= 0 || redisURL == "" {
		return g
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("[Mediator] ⚠️  Invalid redis URL for minute guard: %v (using in-process window)", err)
		return g
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[Mediator] ⚠️  Redis unavailable for minute guard: %v (using in-process window)", err)
		client.Close()
		return g
	}

	g.client = client
	return g
}

// Allow records one call under name and reports whether the last minute is
// still under the limit. Rejected attempts count toward the window, which
// throttles retry storms as well.
func (g *MinuteGuard) Allow(ctx context.Context, name string) error {
	if g == nil || g.limit <= 0 {
		return nil
	}
	if g.client == nil {
		if !g.fallback.tryAcquire() {
			return fmt.Errorf("%w: limit %d/minute", ErrMinuteWindowFull, g.limit)
		}
		return nil
	}

	now := time.Now()
	key := "aicalls:" + name

	pipe := g.client.Pipeline()
	minScore := now.Add(-time.Minute).Unix()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[Mediator] ⚠️  Minute guard check failed for %s: %v (failing open)", name, err)
		return nil
	}

	// ZCARD ran before this call's ZADD, so it counts prior calls only.
	count := cmds[1].(*redis.IntCmd).Val()
	if count >= int64(g.limit) {
		return fmt.Errorf("%w: %d calls in the last minute (limit: %d)", ErrMinuteWindowFull, count, g.limit)
	}
	return nil
}

// Close releases the guard's redis connection.
func (g *MinuteGuard) Close() error {
	if g != nil && g.client != nil {
		return g.client.Close()
	}
	return nil
}

// slidingWindow is the single-process fallback for MinuteGuard.
type slidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
}

func newSlidingWindow(windowSize time.Duration, maxRequests int) *slidingWindow {
	return &slidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, max(maxRequests, 1)),
	}
}

func (s *slidingWindow) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.windowSize)
	i := 0
	for i < len(s.requests) && s.requests[i].Before(cutoff) {
		i++
	}
	s.requests = s.requests[i:]

	if len(s.requests) < s.maxRequests {
		s.requests = append(s.requests, time.Now())
		return true
	}
	return false
}
