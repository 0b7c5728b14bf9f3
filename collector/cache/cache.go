// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the two-tier response cache that fronts every
// upstream provider: a byte-budgeted in-memory LRU over a durable redis
// tier. Negative results (known-empty or known-failed queries) are cached
// distinctly so callers short-circuit without re-issuing provider calls.
// Concurrent misses on one key collapse into a single upstream call.
package cache

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// NegativeReason says why a query was negatively cached.
type NegativeReason string

const (
	ReasonInsufficientContent NegativeReason = "insufficient_content"
	ReasonRateLimited         NegativeReason = "rate_limited"
	ReasonAPIError            NegativeReason = "api_error"
	ReasonNetworkError        NegativeReason = "network_error"
	ReasonNoResults           NegativeReason = "no_results"
	ReasonValidationFailed    NegativeReason = "validation_failed"
)

// Entry is one cached value: either a positive payload or a negative marker.
type Entry struct {
	Payload  []byte
	Negative bool
	Reason   NegativeReason
	CachedAt time.Time
	Deadline time.Time
}

// Status classifies a lookup outcome.
type Status int

const (
	Miss Status = iota
	Hit
	NegativeHit
)

// Result is the outcome of Lookup.
type Result struct {
	Status  Status
	Payload []byte
	Reason  NegativeReason
}

// NegativeError is returned by Fetch when the key is negatively cached; the
// upstream is not consulted.
type NegativeError struct {
	Source string
	Reason NegativeReason
}

func (e *NegativeError) Error() string {
	return fmt.Sprintf("negative cache hit for %s: %s", e.Source, e.Reason)
}

// Stats are the cumulative cache counters.
type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	MemoryHits   int64 `json:"memory_hits"`
	DurableHits  int64 `json:"durable_hits"`
	Sets         int64 `json:"sets"`
	NegativeHits int64 `json:"negative_hits"`
	Evictions    int64 `json:"evictions"`
}

// Options configure the cache.
type Options struct {
	// RedisURL locates the durable tier. Empty runs memory-only (degraded).
	RedisURL string
	// MemoryBytes is the LRU byte budget.
	MemoryBytes int64
	// CompressAbove: payloads at or above this many bytes are compressed
	// before the durable write. Zero disables compression.
	CompressAbove int
	// PositiveTTL maps source name to its positive TTL.
	PositiveTTL map[string]time.Duration
	// Clock is injectable for tests; nil uses the system clock.
	Clock Clock
}

// TwoTierCache is the concrete cache. All methods are safe for concurrent
// use; the memory tier has its own lock and the single-flight table guards
// miss loading.
type TwoTierCache struct {
	memory  *lruStore
	durable *redisStore
	ttls    map[string]time.Duration
	clock   Clock
	flight  singleflight.Group

	hits         atomic.Int64
	misses       atomic.Int64
	memoryHits   atomic.Int64
	durableHits  atomic.Int64
	sets         atomic.Int64
	negativeHits atomic.Int64
}

// New connects both tiers. A durable-tier connection failure degrades to
// memory-only rather than refusing to start.
func New(opts Options) (*TwoTierCache, error) {
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}

	c := &TwoTierCache{
		memory: newLRUStore(opts.MemoryBytes, clock),
		ttls:   opts.PositiveTTL,
		clock:  clock,
	}

	if opts.RedisURL != "" {
		durable, err := newRedisStore(opts.RedisURL, opts.CompressAbove)
		if err != nil {
			log.Printf("[Cache] ⚠️ durable tier unavailable, running memory-only: %v", err)
		} else {
			c.durable = durable
		}
	}

	return c, nil
}

// Close releases the durable tier connection.
func (c *TwoTierCache) Close() error {
	if c.durable != nil {
		return c.durable.close()
	}
	return nil
}

// PositiveTTLFor returns the configured positive TTL for a source.
func (c *TwoTierCache) PositiveTTLFor(source string) time.Duration {
	if ttl, ok := c.ttls[source]; ok {
		return ttl
	}
	return time.Hour
}

// NegativeTTLFor maps a reason to its TTL. Rate-limit, API, network, and
// thin-content failures have fixed windows; the rest default to half the
// source's positive TTL.
func (c *TwoTierCache) NegativeTTLFor(source string, reason NegativeReason) time.Duration {
	switch reason {
	case ReasonRateLimited:
		return 30 * time.Minute
	case ReasonAPIError:
		return time.Hour
	case ReasonInsufficientContent:
		return 2 * time.Hour
	case ReasonNetworkError:
		return 30 * time.Minute
	default:
		return c.PositiveTTLFor(source) / 2
	}
}

// Lookup probes memory first, then the durable tier. Durable hits are
// promoted into memory with their remaining lifetime intact.
func (c *TwoTierCache) Lookup(ctx context.Context, source string, params map[string]any) Result {
	key := CanonicalKey(source, params)
	return c.lookupKey(ctx, key)
}

func (c *TwoTierCache) lookupKey(ctx context.Context, key string) Result {
	return c.checkKey(ctx, key, true)
}

// checkKey is lookupKey with control over miss accounting. The singleflight
// double-check re-reads a key whose miss was already counted; counting it
// again would report two misses for one logical lookup.
func (c *TwoTierCache) checkKey(ctx context.Context, key string, countMiss bool) Result {
	if entry, ok := c.memory.get(key); ok {
		c.memoryHits.Add(1)
		return c.resolve(entry)
	}

	if c.durable != nil {
		entry, ok, err := c.durable.get(ctx, key)
		if err != nil {
			log.Printf("[Cache] ⚠️ durable read failed for %s: %v", key, err)
		} else if ok {
			if entry.Deadline.IsZero() || c.clock.Now().Before(entry.Deadline) {
				c.durableHits.Add(1)
				c.memory.set(key, entry)
				return c.resolve(entry)
			}
		}
	}

	if countMiss {
		c.misses.Add(1)
	}
	return Result{Status: Miss}
}

func (c *TwoTierCache) resolve(entry Entry) Result {
	if entry.Negative {
		c.negativeHits.Add(1)
		return Result{Status: NegativeHit, Reason: entry.Reason}
	}
	c.hits.Add(1)
	return Result{Status: Hit, Payload: entry.Payload}
}

// Store writes a positive payload through both tiers using the source's
// configured TTL. The durable tier is written first so that a crash cannot
// leave memory claiming a result durable never saw.
func (c *TwoTierCache) Store(ctx context.Context, source string, params map[string]any, payload []byte) error {
	return c.StoreWithTTL(ctx, source, params, payload, c.PositiveTTLFor(source))
}

// StoreWithTTL is Store with an explicit TTL.
func (c *TwoTierCache) StoreWithTTL(ctx context.Context, source string, params map[string]any, payload []byte, ttl time.Duration) error {
	key := CanonicalKey(source, params)
	now := c.clock.Now()
	entry := Entry{
		Payload:  payload,
		CachedAt: now,
		Deadline: now.Add(ttl),
	}

	if c.durable != nil {
		if err := c.durable.set(ctx, key, entry, ttl); err != nil {
			return err
		}
	}
	c.memory.set(key, entry)
	c.sets.Add(1)
	return nil
}

// StoreNegative records a known-empty or known-failed query with the
// reason's TTL.
func (c *TwoTierCache) StoreNegative(ctx context.Context, source string, params map[string]any, reason NegativeReason) error {
	return c.StoreNegativeWithTTL(ctx, source, params, reason, c.NegativeTTLFor(source, reason))
}

// StoreNegativeWithTTL is StoreNegative with an explicit TTL.
func (c *TwoTierCache) StoreNegativeWithTTL(ctx context.Context, source string, params map[string]any, reason NegativeReason, ttl time.Duration) error {
	key := CanonicalKey(source, params)
	now := c.clock.Now()
	entry := Entry{
		Negative: true,
		Reason:   reason,
		CachedAt: now,
		Deadline: now.Add(ttl),
	}

	if c.durable != nil {
		if err := c.durable.set(ctx, key, entry, ttl); err != nil {
			return err
		}
	}
	c.memory.set(key, entry)
	c.sets.Add(1)
	return nil
}

// Fetch is the single-flight read path: a hit or negative hit returns
// immediately; concurrent misses on one key collapse into a single loader
// invocation whose result (or failure) is shared by every waiter. The
// loader owns cache writes, so only the winner decides negative caching.
func (c *TwoTierCache) Fetch(ctx context.Context, source string, params map[string]any, loader func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	key := CanonicalKey(source, params)

	if res := c.lookupKey(ctx, key); res.Status == Hit {
		return res.Payload, nil
	} else if res.Status == NegativeHit {
		return nil, &NegativeError{Source: source, Reason: res.Reason}
	}

	payload, err, _ := c.flight.Do(key, func() (any, error) {
		// A waiter that lost the race may arrive after the winner already
		// populated the cache. Its miss is already counted.
		if res := c.checkKey(ctx, key, false); res.Status == Hit {
			return res.Payload, nil
		} else if res.Status == NegativeHit {
			return nil, &NegativeError{Source: source, Reason: res.Reason}
		}
		return loader(ctx)
	})
	if err != nil {
		return nil, err
	}
	return payload.([]byte), nil
}

// Invalidate removes entries matching a key pattern (redis glob; a bare
// source name invalidates that source's whole keyspace) from both tiers and
// returns the durable-tier count, falling back to the memory count when no
// durable tier is attached.
func (c *TwoTierCache) Invalidate(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, fmt.Errorf("invalidate requires a pattern")
	}

	glob := pattern
	prefix := pattern
	if glob[len(glob)-1] != '*' {
		glob += ":*"
	} else {
		prefix = glob[:len(glob)-1]
	}

	memRemoved := c.memory.sweepPrefix(prefix)
	if c.durable == nil {
		return memRemoved, nil
	}
	return c.durable.deletePattern(ctx, glob)
}

// ClearNegative drops negative entries, optionally restricted to one source.
func (c *TwoTierCache) ClearNegative(ctx context.Context, source string) (int, error) {
	prefix := ""
	glob := "*"
	if source != "" {
		prefix = source + ":"
		glob = source + ":*"
	}

	memRemoved := c.memory.sweepNegative(prefix)
	if c.durable == nil {
		return memRemoved, nil
	}
	return c.durable.clearNegative(ctx, glob)
}

// Stats snapshots the counters.
func (c *TwoTierCache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		MemoryHits:   c.memoryHits.Load(),
		DurableHits:  c.durableHits.Load(),
		Sets:         c.sets.Load(),
		NegativeHits: c.negativeHits.Load(),
		Evictions:    c.memory.evictionCount(),
	}
}
