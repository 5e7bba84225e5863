package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/aman-churiwal/x402-gateway/internal/storage"
)

// consumeScript is the atomic read-check-increment. It snapshots the
// limit into the counter hash on first touch, admits when the tier is
// unbounded (negative limit) or capacity remains, and leaves the count
// untouched on denial. Running as a single Lua script makes the whole
// decision atomic server-side.
var consumeScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], 'limit') == 0 then
  redis.call('HSET', KEYS[1], 'limit', ARGV[1], 'count', 0)
end
local limit = tonumber(redis.call('HGET', KEYS[1], 'limit'))
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
local n = tonumber(ARGV[2])
if limit < 0 or count + n <= limit then
  redis.call('HINCRBY', KEYS[1], 'count', n)
  return {1, count + n, limit}
end
return {0, count, limit}
`)

// RedisStore backs the ledger for multi-process deployments. Counters
// carry no TTL: ended periods stay queryable for audit.
type RedisStore struct {
	redis *storage.RedisClient
}

func NewRedisStore(redis *storage.RedisClient) *RedisStore {
	return &RedisStore{redis: redis}
}

func (s *RedisStore) ConsumeIfAllowed(ctx context.Context, key string, limit, n int64) (bool, int64, int64, error) {
	res, err := s.redis.RunScript(ctx, consumeScript, []string{key}, limit, n)
	if err != nil {
		return false, 0, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected script result %v", res)
	}

	admitted := toInt64(vals[0]) == 1
	return admitted, toInt64(vals[1]), toInt64(vals[2]), nil
}

func (s *RedisStore) Peek(ctx context.Context, key string, limit int64) (int64, int64, error) {
	fields, err := s.redis.HGetAll(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	if len(fields) == 0 {
		return 0, limit, nil
	}

	count, _ := strconv.ParseInt(fields["count"], 10, 64)
	snapshot, err := strconv.ParseInt(fields["limit"], 10, 64)
	if err != nil {
		snapshot = limit
	}
	return count, snapshot, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}
