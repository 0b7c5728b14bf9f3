// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pierrec/lz4/v4"
)

const (
	flagNegative   = 1 << 0
	flagCompressed = 1 << 1

	frameHeaderLen = 1 + 8 + 8
)

// redisStore is the durable cache tier. Entries are framed with a one-byte
// flag set plus deadline and cached-at stamps, so a positive payload and a
// negative marker live under the same key. Redis TTL enforces expiry; the
// framed deadline is a second check against clock skew.
type redisStore struct {
	client        *redis.Client
	compressAbove int
}

func newRedisStore(redisURL string, compressAbove int) (*redisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &redisStore{client: client, compressAbove: compressAbove}, nil
}

// get returns the decoded entry, or ok=false on a miss.
func (r *redisStore) get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("durable cache get: %w", err)
	}

	entry, err := decodeFrame(raw)
	if err != nil {
		// A corrupt frame is treated as a miss; the key will be rewritten.
		_ = r.client.Del(ctx, key).Err()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (r *redisStore) set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	frame, err := encodeFrame(entry, r.compressAbove)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, frame, ttl).Err(); err != nil {
		return fmt.Errorf("durable cache set: %w", err)
	}
	return nil
}

// deletePattern removes keys matching a redis glob pattern, returning the
// count removed.
func (r *redisStore) deletePattern(ctx context.Context, pattern string) (int, error) {
	removed := 0
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return removed, fmt.Errorf("durable cache scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("durable cache del: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// clearNegative removes negative entries under the pattern. Each candidate
// is fetched and decoded; only negative frames are deleted.
func (r *redisStore) clearNegative(ctx context.Context, pattern string) (int, error) {
	removed := 0
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return removed, fmt.Errorf("durable cache scan: %w", err)
		}
		for _, key := range keys {
			raw, err := r.client.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("durable cache get: %w", err)
			}
			if len(raw) > 0 && raw[0]&flagNegative != 0 {
				if err := r.client.Del(ctx, key).Err(); err != nil {
					return removed, fmt.Errorf("durable cache del: %w", err)
				}
				removed++
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (r *redisStore) close() error {
	return r.client.Close()
}

// encodeFrame serializes an entry: flags byte, deadline and cached-at unix
// stamps, then the reason (negative) or payload (positive, lz4-framed above
// the compression threshold).
func encodeFrame(entry Entry, compressAbove int) ([]byte, error) {
	var body []byte
	flags := byte(0)

	if entry.Negative {
		flags |= flagNegative
		body = []byte(entry.Reason)
	} else {
		body = entry.Payload
		if compressAbove > 0 && len(body) >= compressAbove {
			compressed, err := lz4Compress(body)
			if err != nil {
				return nil, fmt.Errorf("cache compression: %w", err)
			}
			if len(compressed) < len(body) {
				flags |= flagCompressed
				body = compressed
			}
		}
	}

	frame := make([]byte, frameHeaderLen+len(body))
	frame[0] = flags
	binary.BigEndian.PutUint64(frame[1:9], uint64(entry.Deadline.Unix()))
	binary.BigEndian.PutUint64(frame[9:17], uint64(entry.CachedAt.Unix()))
	copy(frame[frameHeaderLen:], body)
	return frame, nil
}

func decodeFrame(frame []byte) (Entry, error) {
	if len(frame) < frameHeaderLen {
		return Entry{}, fmt.Errorf("cache frame too short: %d bytes", len(frame))
	}

	entry := Entry{
		Deadline: time.Unix(int64(binary.BigEndian.Uint64(frame[1:9])), 0),
		CachedAt: time.Unix(int64(binary.BigEndian.Uint64(frame[9:17])), 0),
	}
	body := frame[frameHeaderLen:]

	if frame[0]&flagNegative != 0 {
		entry.Negative = true
		entry.Reason = NegativeReason(body)
		return entry, nil
	}

	if frame[0]&flagCompressed != 0 {
		payload, err := lz4Decompress(body)
		if err != nil {
			return Entry{}, fmt.Errorf("cache decompression: %w", err)
		}
		entry.Payload = payload
		return entry, nil
	}

	entry.Payload = make([]byte, len(body))
	copy(entry.Payload, body)
	return entry, nil
}

func lz4Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4Decompress(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}
