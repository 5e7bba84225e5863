package verifier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/x402-gateway/internal/storage"
)

func newRedisReplayCache(t *testing.T) (*RedisReplayCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisReplayCache(storage.NewRedisFromClient(client)), mr
}

func TestRedisReplayCacheClaimOnce(t *testing.T) {
	c, _ := newRedisReplayCache(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	seen, err := c.Seen(ctx, "proof-1")
	require.NoError(t, err)
	assert.False(t, seen)

	ok, err := c.Claim(ctx, "proof-1", expiry)
	require.NoError(t, err)
	assert.True(t, ok)

	seen, err = c.Seen(ctx, "proof-1")
	require.NoError(t, err)
	assert.True(t, seen)

	ok, err = c.Claim(ctx, "proof-1", expiry)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisReplayCacheEntriesExpireWithProof(t *testing.T) {
	c, mr := newRedisReplayCache(t)
	ctx := context.Background()

	ok, err := c.Claim(ctx, "proof-1", time.Now().Add(10*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Minute)

	seen, err := c.Seen(ctx, "proof-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisReplayCacheMinimumTTL(t *testing.T) {
	c, mr := newRedisReplayCache(t)
	ctx := context.Background()

	// Proof at the very edge of its window still holds the claim for a
	// minute, so a straggling duplicate loses.
	ok, err := c.Claim(ctx, "proof-1", time.Now().Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(30 * time.Second)

	ok, err = c.Claim(ctx, "proof-1", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
}
