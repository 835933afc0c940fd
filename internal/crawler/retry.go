package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/metrics"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/ratelimit"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 60 * time.Second
)

// DefaultRetryableStatus 默认可重试的状态：限流、维护以及网络层失败。
var DefaultRetryableStatus = []int{http.StatusTooManyRequests, http.StatusServiceUnavailable, StatusNetworkError}

// RetryClient 在可重试的失败上以固定间隔重试。
type RetryClient struct {
	next        Fetcher
	maxAttempts int
	delay       time.Duration
	retryable   map[int]struct{}
	sleep       ratelimit.SleepFunc
	logger      *slog.Logger
}

// RetryOption 配置 RetryClient。
type RetryOption func(*RetryClient)

// WithMaxAttempts 总尝试次数（含首次）。
func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryClient) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryDelay 两次尝试之间的固定等待。
func WithRetryDelay(d time.Duration) RetryOption {
	return func(c *RetryClient) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithRetryableStatus 替换可重试状态集合。
func WithRetryableStatus(codes ...int) RetryOption {
	return func(c *RetryClient) {
		c.retryable = make(map[int]struct{}, len(codes))
		for _, code := range codes {
			c.retryable[code] = struct{}{}
		}
	}
}

// WithSleep 替换等待函数（测试用）。
func WithSleep(fn ratelimit.SleepFunc) RetryOption {
	return func(c *RetryClient) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// NewRetryClient 包装 next，默认 3 次尝试、60s 固定间隔。
func NewRetryClient(next Fetcher, logger *slog.Logger, opts ...RetryOption) *RetryClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &RetryClient{
		next:        next,
		maxAttempts: defaultRetryAttempts,
		delay:       defaultRetryDelay,
		sleep:       ratelimit.Sleep,
		logger:      logger,
	}
	WithRetryableStatus(DefaultRetryableStatus...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get 发起请求；成功或不可重试的失败立即返回，重试耗尽后返回最后一次的错误。
func (c *RetryClient) Get(ctx context.Context, url string) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.next.Get(ctx, url)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !c.isRetryable(err) || attempt == c.maxAttempts {
			break
		}

		code := StatusCodeOf(err)
		metrics.UpstreamRetriesTotal.WithLabelValues(strconv.Itoa(code)).Inc()
		c.logger.Warn("upstream request failed, retrying",
			slog.String("url", url),
			slog.Int("status", code),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.maxAttempts),
			slog.Duration("delay", c.delay))

		if err := c.sleep(ctx, c.delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *RetryClient) isRetryable(err error) bool {
	code := StatusCodeOf(err)
	if code < 0 {
		return false
	}
	_, ok := c.retryable[code]
	return ok
}
