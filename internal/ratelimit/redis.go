package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 2 * time.Second

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisLimiter keeps failure counters in Redis so that every server instance
// shares the same lockout state.
type RedisLimiter struct {
	client      *redis.Client
	prefix      string
	maxAttempts int
	window      time.Duration
}

// NewRedisLimiter creates a limiter allowing maxAttempts failures per window.
func NewRedisLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RedisLimiter{
		client:      client,
		prefix:      "login_failures:",
		maxAttempts: maxAttempts,
		window:      window,
	}
}

func (r *RedisLimiter) key(k string) string {
	return r.prefix + k
}

func (r *RedisLimiter) Allowed(ctx context.Context, key string) (bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return false, err
	}
	return count < r.maxAttempts, nil
}

func (r *RedisLimiter) RecordFailure(ctx context.Context, key string) error {
	count, err := r.client.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return r.client.Expire(ctx, r.key(key), r.window).Err()
	}
	return nil
}

func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
