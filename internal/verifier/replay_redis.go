package verifier

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aman-churiwal/x402-gateway/internal/storage"
)

// RedisReplayCache is the shared seen-set for multi-process deployments.
// SETNX gives the atomic check-and-claim; the TTL tracks the proof's own
// validity window so the set stays bounded.
type RedisReplayCache struct {
	redis *storage.RedisClient
}

func NewRedisReplayCache(redis *storage.RedisClient) *RedisReplayCache {
	return &RedisReplayCache{redis: redis}
}

func replayKey(token string) string {
	return "proof:seen:" + token
}

func (c *RedisReplayCache) Seen(ctx context.Context, token string) (bool, error) {
	_, err := c.redis.Get(ctx, replayKey(token))
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisReplayCache) Claim(ctx context.Context, token string, expiry time.Time) (bool, error) {
	ttl := time.Until(expiry)
	if ttl < time.Minute {
		// Keep the claim around briefly even for proofs at the edge of
		// their window, so a concurrent duplicate still loses the race.
		ttl = time.Minute
	}
	return c.redis.SetNX(ctx, replayKey(token), 1, ttl)
}
