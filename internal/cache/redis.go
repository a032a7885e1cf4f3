package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when a key is absent. Callers treat it as a
// normal cache miss, never as a failure.
var ErrMiss = errors.New("cache miss")

// Commands is the narrow Redis surface the state cache needs. The concrete
// client is injected once at bootstrap; tests use an in-memory fake.
type Commands interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

type redisCommands struct {
	rdb *redis.Client
}

// NewCommands wraps a go-redis client. This client is for regular commands
// only; pub/sub runs on its own connection (see Broadcaster).
func NewCommands(rdb *redis.Client) Commands {
	return &redisCommands{rdb: rdb}
}

func (c *redisCommands) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *redisCommands) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

func (c *redisCommands) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *redisCommands) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}
