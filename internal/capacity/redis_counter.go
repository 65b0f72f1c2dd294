package capacity

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndIncrementScript performs the entire check-and-increment
// atomically server-side: INCR then, only if the new value exceeds
// the limit, DECR back and report disallowed. EXPIRE is set only on
// the first increment so the window resets at a fixed boundary
// rather than sliding. Grounded on the rolling-window shape of
// services/api_gateway/src/ratelimit/rate_limiter.go, generalized to
// a single Lua script per spec §9 Design Notes' atomicity
// requirement (the teacher's sliding in-memory window is exactly the
// anti-pattern the spec forbids for a shared, concurrent store).
var checkAndIncrementScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local count = redis.call("INCR", key)
if count == 1 then
  redis.call("EXPIRE", key, ttl)
end

if count > limit then
  redis.call("DECR", key)
  local remaining_ttl = redis.call("TTL", key)
  return {0, 0, remaining_ttl}
end

local remaining_ttl = redis.call("TTL", key)
return {1, limit - count, remaining_ttl}
`)

// RedisCounter is the production Counter backed by a single Redis
// instance, atomic via server-side Lua scripting (spec §4.6).
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps an existing redis.Client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) CheckAndIncrement(ctx context.Context, key string, window Window, limit int) (Result, error) {
	ttlSeconds := int(window.Duration().Seconds())
	res, err := checkAndIncrementScript.Run(ctx, c.client, []string{key}, limit, ttlSeconds).Result()
	if err != nil {
		return Result{}, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return Result{}, errUnexpectedScriptResult
	}
	allowed := toInt64(vals[0]) == 1
	remaining := int(toInt64(vals[1]))
	ttl := toInt64(vals[2])
	if ttl < 0 {
		ttl = int64(window.Duration().Seconds())
	}
	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetTime: time.Now().UTC().Add(time.Duration(ttl) * time.Second),
	}, nil
}

func (c *RedisCounter) Decrement(ctx context.Context, key string, window Window) error {
	return c.client.Decr(ctx, key).Err()
}

func (c *RedisCounter) Peek(ctx context.Context, key string, window Window) (int, error) {
	v, err := c.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}
