package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/metrics"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/ratelimit"
)

// maxBodyBytes 单个页面读取上限。
const maxBodyBytes = 8 << 20

// StatusNetworkError 网络层失败时使用的合成状态码。
const StatusNetworkError = 0

// Response 上游返回的页面。
type Response struct {
	StatusCode int
	Body       []byte
}

// Fetcher 对上游发起 GET 请求。
type Fetcher interface {
	Get(ctx context.Context, url string) (*Response, error)
}

// TokenAcquirer 跨进程共享的请求预算（可选）。
type TokenAcquirer interface {
	Acquire(ctx context.Context) error
}

// StatusError 上游请求失败。Code 为 HTTP 状态码，网络错误时为 0。
type StatusError struct {
	Code int
	URL  string
	Err  error
}

func (e *StatusError) Error() string {
	if e.Code == StatusNetworkError {
		return fmt.Sprintf("upstream request %s: network error: %v", e.URL, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream request %s: status %d: %v", e.URL, e.Code, e.Err)
	}
	return fmt.Sprintf("upstream request %s: status %d", e.URL, e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCodeOf 返回错误对应的状态码；不是 StatusError 时返回 -1。
func StatusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return -1
}

// RateLimitedClient 保证同一实例两次请求之间的最小间隔。
type RateLimitedClient struct {
	httpClient *http.Client
	spacer     *ratelimit.Spacer
	shared     TokenAcquirer
	userAgent  string
	logger     *slog.Logger
}

// NewRateLimitedClient 创建带请求间隔控制的上游客户端。
//
// 参数:
//
//	interval: 两次请求的最小间隔
//	timeout: 单次请求超时
//	userAgent: 请求 UA
//	shared: 可选的共享令牌桶（nil 表示不使用）
//	logger: 日志记录器
func NewRateLimitedClient(interval, timeout time.Duration, userAgent string, shared TokenAcquirer, logger *slog.Logger) *RateLimitedClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitedClient{
		httpClient: &http.Client{Timeout: timeout},
		spacer:     ratelimit.NewSpacer(interval),
		shared:     shared,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// WithSpacer 替换请求间隔控制器（测试用）。
func (c *RateLimitedClient) WithSpacer(s *ratelimit.Spacer) *RateLimitedClient {
	c.spacer = s
	return c
}

// Get 等待请求间隔后发起 GET。非 200 响应与被拦截页面都以 *StatusError 返回。
func (c *RateLimitedClient) Get(ctx context.Context, url string) (*Response, error) {
	waitStart := time.Now()
	waited, err := c.spacer.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if c.shared != nil {
		if err := c.shared.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("acquire shared token: %w", err)
		}
	}
	if waited > 0 || c.shared != nil {
		metrics.RateLimitWaitDuration.Observe(time.Since(waitStart).Seconds())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept-Language", "ja")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("0").Inc()
		return nil, &StatusError{Code: StatusNetworkError, URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("0").Inc()
		return nil, &StatusError{Code: StatusNetworkError, URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, URL: url}
	}
	if isBlockedPage(body) {
		c.logger.Warn("upstream returned a block or maintenance page", slog.String("url", url))
		return nil, &StatusError{Code: http.StatusServiceUnavailable, URL: url, Err: errBlockedPage}
	}

	c.logger.Debug("upstream page fetched",
		slog.String("url", url),
		slog.Int("bytes", len(body)),
		slog.Duration("spacing_wait", waited))
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
