package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

var ErrRateLimitTimeout = errors.New("rate limit wait timeout")

// 令牌桶状态保存在 Redis hash 中，多个爬虫进程共享同一上游预算。
const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 or burst <= 0 then
  return {1, 0, burst}
end

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = burst
end
if ts == nil then
  ts = now
end

local delta = math.max(0, now - ts)
tokens = math.min(burst, tokens + (delta * rate) / 1000.0)

local allowed = tokens >= requested
local wait_ms = 0
if allowed then
  tokens = tokens - requested
else
  wait_ms = math.ceil((requested - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 1000.0 * 2))

return {allowed and 1 or 0, wait_ms, tokens}
`

// TokenBucket 基于 Redis 的共享令牌桶。
//
// 同一上游的所有爬虫进程使用同一个 key，holder 只用于区分日志与指标来源。
type TokenBucket struct {
	rdb    *redis.Client
	key    string
	holder string
	rate   float64
	burst  float64
	logger *slog.Logger
	script *redis.Script
	now    func() time.Time
	sleep  SleepFunc
	jitter func() time.Duration
}

// NewTokenBucket 创建共享令牌桶。rate 或 burst <= 0 时 Acquire 直接放行。
func NewTokenBucket(rdb *redis.Client, logger *slog.Logger, key string, rate float64, burst float64) *TokenBucket {
	if key == "" {
		key = "mirapuri:ratelimit:upstream"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenBucket{
		rdb:    rdb,
		key:    key,
		holder: "default",
		rate:   rate,
		burst:  burst,
		logger: logger,
		script: redis.NewScript(tokenBucketLua),
		now:    time.Now,
		sleep:  Sleep,
		jitter: func() time.Duration { return time.Duration(rand.Int63n(int64(maxJitter))) },
	}
}

// WithHolder 设置使用该令牌桶的爬虫名。
func (b *TokenBucket) WithHolder(name string) *TokenBucket {
	if name != "" {
		b.holder = name
	}
	return b
}

// WithClock 替换时钟与等待函数（测试用）。
func (b *TokenBucket) WithClock(now func() time.Time, sleep SleepFunc) *TokenBucket {
	if now != nil {
		b.now = now
	}
	if sleep != nil {
		b.sleep = sleep
	}
	return b
}

// maxJitter 多个进程同时等待时错开重试。
const maxJitter = 10 * time.Millisecond

// Acquire 阻塞直到拿到一个令牌或 ctx 结束。
//
// ctx 结束时返回同时包装 ErrRateLimitTimeout 与 ctx.Err() 的错误。
func (b *TokenBucket) Acquire(ctx context.Context) error {
	if b == nil || b.rdb == nil || b.rate <= 0 || b.burst <= 0 {
		return nil
	}

	start := b.now()
	waits := 0
	for {
		allowed, waitMs, err := b.tryAcquire(ctx)
		if err != nil {
			return err
		}
		if allowed {
			metrics.RateLimitWaitDuration.Observe(b.now().Sub(start).Seconds())
			result := "granted"
			if waits > 0 {
				result = "waited"
			}
			metrics.SharedTokenAcquireTotal.WithLabelValues(b.holder, result).Inc()
			return nil
		}

		wait := time.Duration(waitMs) * time.Millisecond
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		wait += b.jitter()
		waits++
		b.logger.Debug("upstream budget exhausted, waiting for a shared token",
			slog.String("crawler", b.holder),
			slog.String("key", b.key),
			slog.Int("waits", waits),
			slog.Duration("wait", wait))

		if err := b.sleep(ctx, wait); err != nil {
			metrics.RateLimitWaitDuration.Observe(b.now().Sub(start).Seconds())
			metrics.SharedTokenAcquireTotal.WithLabelValues(b.holder, "timeout").Inc()
			return fmt.Errorf("%w: %w", ErrRateLimitTimeout, err)
		}
	}
}

// tryAcquire 脚本返回 {allowed, wait_ms, tokens}，tokens 被 Redis 截断为整数。
func (b *TokenBucket) tryAcquire(ctx context.Context) (bool, int64, error) {
	res, err := b.script.Run(ctx, b.rdb, []string{b.key}, b.rate, b.burst, b.now().UnixMilli(), 1).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit eval %s: %w", b.key, err)
	}
	if len(res) < 2 {
		return false, 0, fmt.Errorf("ratelimit eval %s: unexpected reply %v", b.key, res)
	}
	return res[0] == 1, res[1], nil
}
