package server

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	rl := newRedisRateLimiter(client, limitConfig{enabled: true, perWindow: 1, window: time.Minute})
	for i := 0; i < 3; i++ {
		if !rl.allow(context.Background(), "1.2.3.4") {
			t.Fatalf("request %d limited while redis is unreachable", i)
		}
	}
}

func TestRedisRateLimiter(t *testing.T) {
	raw := os.Getenv("TEST_REDIS_URL")
	if raw == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	client, err := redisClient(raw)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	ctx := context.Background()
	ip := "test-" + time.Now().Format("150405.000000")
	defer client.Del(ctx, redisKeyPrefix+ip)

	rl := newRedisRateLimiter(client, limitConfig{enabled: true, perWindow: 2, window: time.Minute})
	if !rl.allow(ctx, ip) || !rl.allow(ctx, ip) {
		t.Fatal("first two requests should pass")
	}
	if rl.allow(ctx, ip) {
		t.Error("third request should be limited")
	}
	if ttl := client.TTL(ctx, redisKeyPrefix+ip).Val(); ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v", ttl)
	}
}

func TestNewLimiterFallsBackWithoutRedis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t.Setenv("REDIS_URL", "")
	if _, ok := newLimiter(ctx, loadLimitConfig()).(*memoryLimiter); !ok {
		t.Error("expected in-memory limiter")
	}
	t.Setenv("REDIS_URL", "not a url")
	if _, ok := newLimiter(ctx, loadLimitConfig()).(*memoryLimiter); !ok {
		t.Error("expected in-memory limiter for malformed url")
	}
	t.Setenv("REDIS_URL", "redis://127.0.0.1:1/0")
	if _, ok := newLimiter(ctx, loadLimitConfig()).(*redisRateLimiter); !ok {
		t.Error("expected redis limiter")
	}
}
