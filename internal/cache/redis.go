package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ErrBalanceNotCached is returned when no balance is cached for the user
var ErrBalanceNotCached = errors.New("balance not found in cache")

// Redis wraps the go-redis client
type Redis struct {
	Client *redis.Client
}

// New creates a Redis connection from a redis:// URL
func New(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Msg("Redis connection established")

	return &Redis{Client: client}, nil
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	return r.Client.Close()
}

// Health checks if Redis is reachable
func (r *Redis) Health(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func balanceKey(userID uuid.UUID) string {
	return fmt.Sprintf("credits:%s", userID.String())
}

// SetBalance caches a user's spendable credit balance. The cache is a read
// accelerator only; the Postgres row stays authoritative.
func (r *Redis) SetBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal, ttl time.Duration) {
	if err := r.Client.Set(ctx, balanceKey(userID), balance.String(), ttl).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to cache credit balance")
	}
}

// GetBalance reads a cached credit balance
func (r *Redis) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	val, err := r.Client.Get(ctx, balanceKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return decimal.Zero, ErrBalanceNotCached
		}
		return decimal.Zero, fmt.Errorf("failed to get balance from cache: %w", err)
	}

	balance, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt cached balance: %w", err)
	}
	return balance, nil
}

// InvalidateBalance drops a user's cached balance
func (r *Redis) InvalidateBalance(ctx context.Context, userID uuid.UUID) {
	if err := r.Client.Del(ctx, balanceKey(userID)).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to invalidate cached balance")
	}
}
