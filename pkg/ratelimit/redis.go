package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisKey holds the start time (µs, Redis server clock) of the most
// recently granted request.
const DefaultRedisKey = "flowzz:rate_limit:last_start"

// acquireScript grants a start only when delay has passed since the stored
// one. A grant stores now and returns {0, now}; otherwise nothing is written
// and the script returns {remaining, now}. Using the Redis clock keeps hosts
// with skewed clocks in step.
var acquireScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000000 + tonumber(t[2])
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
local delay = tonumber(ARGV[1])
if last > 0 and now - last < delay then
  return {last + delay - now, now}
end
redis.call('SET', KEYS[1], now, 'PX', ARGV[2])
return {0, now}
`)

// RedisGate is a Gate whose last-start marker lives in Redis, so every
// fetcher pointing at the same key shares one request spacing.
type RedisGate struct {
	redis  *redis.Client
	key    string
	delay  time.Duration
	logger zerolog.Logger

	// onGrant, if set, receives the Redis time of every start this gate wins.
	onGrant func(time.Time)
}

// NewRedisGate creates a Redis-backed gate. An empty key uses DefaultRedisKey.
func NewRedisGate(redisClient *redis.Client, key string, delay time.Duration, logger zerolog.Logger) (*RedisGate, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if delay < 0 {
		return nil, fmt.Errorf("delay must be >= 0 (got %s)", delay)
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisGate{
		redis:  redisClient,
		key:    key,
		delay:  delay,
		logger: logger,
	}, nil
}

// Wait polls Redis until this caller wins a start. Every retry re-checks
// the marker, so a late wake-up never shortens the spacing.
func (g *RedisGate) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("wait for request slot: %w", err)
	}

	begin := time.Now()
	for {
		remaining, err := g.TryAcquire(ctx)
		if err != nil {
			gateErrorsTotal.WithLabelValues("redis").Inc()
			g.logger.Error().Err(err).Str("key", g.key).Msg("Slot acquisition failed")
			return err
		}
		if remaining <= 0 {
			break
		}

		g.logger.Debug().
			Dur("remaining", remaining).
			Str("key", g.key).
			Msg("Waiting for shared request slot")

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for request slot: %w", ctx.Err())
		case <-timer.C:
		}
	}

	waitSeconds.WithLabelValues("redis").Observe(time.Since(begin).Seconds())
	return nil
}

// TryAcquire claims a start if delay has passed since the last one. It
// returns 0 on success, or the time left before another attempt can win.
func (g *RedisGate) TryAcquire(ctx context.Context) (time.Duration, error) {
	ttl := 10 * g.delay
	if ttl < time.Minute {
		ttl = time.Minute
	}

	res, err := acquireScript.Run(ctx, g.redis, []string{g.key},
		g.delay.Microseconds(), ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("acquire request slot: %w", err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("acquire request slot: unexpected reply %v", res)
	}

	remaining := time.Duration(res[0]) * time.Microsecond
	if remaining <= 0 && g.onGrant != nil {
		g.onGrant(time.UnixMicro(res[1]))
	}
	return remaining, nil
}

// LastStart reads the most recently granted start from Redis.
func (g *RedisGate) LastStart(ctx context.Context) (time.Time, error) {
	micros, err := g.redis.Get(ctx, g.key).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last start: %w", err)
	}
	return time.UnixMicro(micros), nil
}
