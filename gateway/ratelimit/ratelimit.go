// Copyright 2025 SQLGate Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit caps request rates per caller with a sliding
// one-minute window. Redis-backed when a URL is configured, so limits
// hold across gateway replicas; otherwise an in-process window. Redis
// outages fail open: a broken limiter must not take down query
// serving.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrLimited is returned when a caller is over its per-minute limit.
var ErrLimited = errors.New("ratelimit: limit exceeded")

const window = time.Minute

// Limiter enforces one per-minute limit across all callers.
type Limiter struct {
	client *redis.Client
	limit  int
	logger *log.Logger
	mem    *memoryWindow
}

// New connects to Redis when redisURL is set; an empty URL selects the
// in-process window, which is fine for a single replica.
func New(redisURL string, limitPerMinute int) (*Limiter, error) {
	l := &Limiter{
		limit:  limitPerMinute,
		logger: log.New(os.Stdout, "[RATELIMIT] ", log.LstdFlags),
		mem:    newMemoryWindow(),
	}
	if redisURL == "" {
		return l, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: connect to redis: %w", err)
	}

	l.client = client
	return l, nil
}

// Allow admits or rejects one request for the caller. Returns
// ErrLimited (wrapped with counts) when over the limit. Redis errors
// admit the request.
func (l *Limiter) Allow(ctx context.Context, caller string) error {
	if l.limit <= 0 {
		return nil
	}
	if l.client == nil {
		return l.mem.allow(caller, l.limit)
	}

	now := time.Now()
	key := "ratelimit:" + caller

	pipe := l.client.Pipeline()
	minScore := now.Add(-window).UnixNano()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*window)

	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Printf("Redis check failed for %s, failing open: %v", caller, err)
		return nil
	}

	if count := countCmd.Val(); count >= int64(l.limit) {
		return fmt.Errorf("%w: %d requests in the last minute (limit %d)", ErrLimited, count, l.limit)
	}
	return nil
}

// Status reports the caller's current window count and when the
// window resets.
func (l *Limiter) Status(ctx context.Context, caller string) (int, time.Time, error) {
	now := time.Now()
	reset := now.Add(window)

	if l.client == nil {
		return l.mem.count(caller), reset, nil
	}

	key := "ratelimit:" + caller
	minScore := now.Add(-window).UnixNano()
	count, err := l.client.ZCount(ctx, key, fmt.Sprintf("%d", minScore), "+inf").Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: status for %s: %w", caller, err)
	}
	return int(count), reset, nil
}

// Flush clears a caller's window. Admin operation.
func (l *Limiter) Flush(ctx context.Context, caller string) error {
	if l.client == nil {
		l.mem.flush(caller)
		return nil
	}
	if err := l.client.Del(ctx, "ratelimit:"+caller).Err(); err != nil {
		return fmt.Errorf("ratelimit: flush %s: %w", caller, err)
	}
	return nil
}

// Close releases the Redis connection if one was made.
func (l *Limiter) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// memoryWindow is the single-replica fallback: per-caller timestamp
// lists pruned on every check.
type memoryWindow struct {
	mu    sync.Mutex
	calls map[string][]time.Time
}

func newMemoryWindow() *memoryWindow {
	return &memoryWindow{calls: make(map[string][]time.Time)}
}

func (m *memoryWindow) allow(caller string, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.prune(caller)
	if len(kept) >= limit {
		m.calls[caller] = kept
		return fmt.Errorf("%w: %d requests in the last minute (limit %d)", ErrLimited, len(kept), limit)
	}
	m.calls[caller] = append(kept, time.Now())
	return nil
}

func (m *memoryWindow) count(caller string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.prune(caller)
	m.calls[caller] = kept
	return len(kept)
}

func (m *memoryWindow) flush(caller string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.calls, caller)
}

// prune drops timestamps outside the window. Caller holds the lock.
func (m *memoryWindow) prune(caller string) []time.Time {
	cutoff := time.Now().Add(-window)
	kept := m.calls[caller][:0]
	for _, ts := range m.calls[caller] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
