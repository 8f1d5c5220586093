// Package ratelimit provides a Redis-backed fixed-window rate limiter for
// chat traffic.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/codelyst/projmart/internal/cache"
	"github.com/codelyst/projmart/internal/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Limiter counts requests per user in fixed windows. A nil Redis client
// disables the limiter rather than blocking traffic.
type Limiter struct {
	cache  *cache.Redis
	limit  int
	window time.Duration
}

// NewLimiter creates a rate limiter from configuration
func NewLimiter(rdb *cache.Redis, cfg *config.RateLimitConfig) *Limiter {
	window := time.Duration(cfg.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		cache:  rdb,
		limit:  cfg.ChatPerWindow,
		window: window,
	}
}

// Allow reports whether the user may make another request in the current
// window. Redis failures fail open.
func (l *Limiter) Allow(ctx context.Context, userID uuid.UUID) bool {
	if l.cache == nil || l.limit <= 0 {
		return true
	}

	key := fmt.Sprintf("ratelimit:chat:%s:%d", userID, time.Now().Unix()/int64(l.window.Seconds()))
	count, err := l.cache.Client.Incr(ctx, key).Result()
	if err != nil {
		log.Warn().
			Str("component", "ratelimit").
			Err(err).
			Msg("Rate limit check failed, allowing request")
		return true
	}
	if count == 1 {
		l.cache.Client.Expire(ctx, key, l.window)
	}
	return count <= int64(l.limit)
}
