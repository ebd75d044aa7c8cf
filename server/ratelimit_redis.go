package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "copilot:rl:admin:"

// redisRateLimiter shares the admin request budget across replicas using
// INCR with an expiry set on the first hit of each window. Redis errors fail open.
type redisRateLimiter struct {
	client *redis.Client
	cfg    limitConfig
}

func newRedisRateLimiter(client *redis.Client, cfg limitConfig) *redisRateLimiter {
	return &redisRateLimiter{client: client, cfg: cfg}
}

func (rl *redisRateLimiter) window() time.Duration { return rl.cfg.window }

func (rl *redisRateLimiter) allow(ctx context.Context, ip string) bool {
	if !rl.cfg.enabled {
		return true
	}
	key := redisKeyPrefix + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("rate limit incr failed, allowing", slog.String("key", key), slog.Any("error", err), slog.String("component", "http"))
		return true
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.cfg.window).Err(); err != nil {
			slog.Warn("rate limit expire failed, allowing", slog.String("key", key), slog.Any("error", err), slog.String("component", "http"))
			rl.client.Del(ctx, key)
			return true
		}
	}
	return count <= int64(rl.cfg.perWindow)
}

// newLimiter picks the Redis limiter when REDIS_URL is set and falls back
// to the in-memory one when it is unset or malformed.
func newLimiter(ctx context.Context, cfg limitConfig) limiter {
	raw := os.Getenv("REDIS_URL")
	if raw == "" {
		return newMemoryLimiter(ctx, cfg)
	}
	client, err := redisClient(raw)
	if err != nil {
		slog.Error("redis rate limiter disabled", slog.Any("error", err), slog.String("component", "http"))
		return newMemoryLimiter(ctx, cfg)
	}
	context.AfterFunc(ctx, func() { _ = client.Close() })
	slog.Info("admin rate limiting backed by redis", slog.String("addr", client.Options().Addr), slog.String("component", "http"))
	return newRedisRateLimiter(client, cfg)
}

func redisClient(raw string) (*redis.Client, error) {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
