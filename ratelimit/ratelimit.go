// Package ratelimit provides a fixed-window request limiter backed by
// Redis, with a per-process in-memory fallback when Redis is absent or
// unreachable. The limiter fails open: callers are never blocked by
// limiter infrastructure trouble, only by exceeding the window.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key within a fixed window.
type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	local map[string]*window
}

// New builds a limiter allowing limit requests per window for each key.
// A nil Redis client means in-memory counting only.
func New(rdb *redis.Client, limit int, windowSize time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		rdb:    rdb,
		limit:  limit,
		window: windowSize,
		logger: logger,
		local:  make(map[string]*window),
	}
}

// Allow reports whether one more request under key fits in the current
// window. A non-positive limit disables limiting entirely.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l.limit <= 0 {
		return true
	}
	if l.rdb != nil {
		allowed, err := l.allowRedis(ctx, key)
		if err == nil {
			return allowed
		}
		l.logger.Warn("rate limiter falling back to memory", "key", key, "error", err)
	}
	return l.allowLocal(key)
}

func (l *Limiter) allowRedis(ctx context.Context, key string) (bool, error) {
	redisKey := keyPrefix + key
	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(l.limit), nil
}

func (l *Limiter) allowLocal(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.local[key]
	if w == nil || now.After(w.resetAt) {
		l.local[key] = &window{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	w.count++
	return w.count <= l.limit
}
