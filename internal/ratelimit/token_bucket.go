package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// takeScript refills the bucket from redis server time and takes one token.
// It replies {allowed, retry_after_ms}. Lua numbers are truncated to
// integers on the way out, so the fractional token count never leaves redis.
const takeScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) / 1000 * rate)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) / rate * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, wait}
`

var errBucketNotConfigured = errors.New("rate limiter not configured")

// tokenBucket is a redis-backed bucket shared by every replica. Each key
// refills at rate tokens per second up to burst.
type tokenBucket struct {
	client *redis.Client
	script *redis.Script
	rate   float64
	burst  int
	ttl    time.Duration
}

func newTokenBucket(client *redis.Client, rate float64, burst int) *tokenBucket {
	if client == nil {
		return nil
	}
	return &tokenBucket{
		client: client,
		script: redis.NewScript(takeScript),
		rate:   rate,
		burst:  burst,
		ttl:    bucketTTL(rate, burst),
	}
}

// take reports whether a token was available and, if not, how long until one is.
func (b *tokenBucket) take(ctx context.Context, key string) (bool, time.Duration, error) {
	if b == nil {
		return false, 0, errBucketNotConfigured
	}
	if key == "" {
		return false, 0, errors.New("rate limiter key is empty")
	}

	reply, err := b.script.Run(ctx, b.client, []string{key}, b.rate, b.burst, b.ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("take token: %w", err)
	}
	if len(reply) != 2 {
		return false, 0, fmt.Errorf("take token: unexpected reply %v", reply)
	}
	return reply[0] == 1, time.Duration(reply[1]) * time.Millisecond, nil
}

// bucketTTL keeps an idle bucket around for twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(2*float64(burst)/rate))
	return time.Duration(seconds) * time.Second
}
