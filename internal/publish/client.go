package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PhantomL4rd/mirapuri-stats/internal/config"
	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/metrics"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/ratelimit"
)

var (
	// ErrUnauthorized 凭证被拒绝（401/403），不重试。
	ErrUnauthorized = errors.New("publish api rejected credentials")
	// ErrBadRequest 请求体校验失败（400），不重试。
	ErrBadRequest = errors.New("publish api rejected payload")
)

const (
	headerGatewayID     = "CF-Access-Client-Id"
	headerGatewaySecret = "CF-Access-Client-Secret"
	maxErrorBody        = 4 << 10
)

// APIError 发布 API 返回的非 2xx 响应。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("publish api status %d: %s", e.Status, e.Message)
}

// Unwrap 将 401/403/400 映射为哨兵错误。
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusBadRequest:
		return ErrBadRequest
	}
	return nil
}

func (e *APIError) retryable() bool {
	return e.Status >= 500
}

// Totals 多个分块结果的合计。
type Totals struct {
	Inserted int64 `json:"inserted"`
	Upserted int64 `json:"upserted"`
	Skipped  int64 `json:"skipped"`
	Requests int   `json:"requests"`
}

func (t *Totals) add(r model.WriteResult) {
	t.Inserted += r.Inserted
	t.Upserted += r.Upserted
	t.Skipped += r.Skipped
	t.Requests++
}

// Rows 写入或跳过的总行数。
func (t Totals) Rows() int64 {
	return t.Inserted + t.Upserted + t.Skipped
}

// Client 发布 API 客户端：分块、5xx 指数退避、凭证错误立即失败。
type Client struct {
	baseURL       string
	token         string
	gatewayID     string
	gatewaySecret string
	httpClient    *http.Client
	itemsChunk    int
	usageChunk    int
	pairsChunk    int
	maxAttempts   int
	baseBackoff   time.Duration
	sleep         ratelimit.SleepFunc
	logger        *slog.Logger
}

// NewClient 根据发布配置创建客户端。
func NewClient(cfg config.PublishConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		gatewayID:     cfg.GatewayClientID,
		gatewaySecret: cfg.GatewayClientSecret,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		itemsChunk:    positiveOr(cfg.ItemsChunkSize, 1000),
		usageChunk:    positiveOr(cfg.UsageChunkSize, 1000),
		pairsChunk:    positiveOr(cfg.PairsChunkSize, 500),
		maxAttempts:   positiveOr(cfg.MaxAttempts, 4),
		baseBackoff:   cfg.BaseBackoff,
		sleep:         ratelimit.Sleep,
		logger:        logger,
	}
	if c.baseBackoff <= 0 {
		c.baseBackoff = time.Second
	}
	return c
}

// WithSleep 替换退避等待函数（测试用）。
func (c *Client) WithSleep(fn ratelimit.SleepFunc) *Client {
	c.sleep = fn
	return c
}

// WithHTTPClient 替换底层 HTTP 客户端。
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// PostItems 分块上传道具目录。
func (c *Client) PostItems(ctx context.Context, items []model.ItemRecord) (Totals, error) {
	payload := model.ToItemPayloads(items)
	return postChunks(ctx, c, "items", "/items", c.itemsChunk, payload, func(part []model.ItemPayload) any {
		return model.ItemsRequest{Items: part}
	})
}

// PostUsage 分块上传某版本的使用统计。
func (c *Client) PostUsage(ctx context.Context, version string, rows []model.UsageRecord) (Totals, error) {
	payload := model.ToUsagePayloads(rows)
	return postChunks(ctx, c, "usage", "/usage?version="+url.QueryEscape(version), c.usageChunk, payload, func(part []model.UsagePayload) any {
		return model.UsageRequest{Usage: part}
	})
}

// PostPairs 分块上传某版本的搭配统计。
func (c *Client) PostPairs(ctx context.Context, version string, rows []model.PairRecord) (Totals, error) {
	payload := model.ToPairPayloads(rows)
	return postChunks(ctx, c, "pairs", "/pairs?version="+url.QueryEscape(version), c.pairsChunk, payload, func(part []model.PairPayload) any {
		return model.PairsRequest{Pairs: part}
	})
}

// StartSync 申请新版本。
func (c *Client) StartSync(ctx context.Context) (string, error) {
	var resp model.SyncStartResponse
	if err := c.do(ctx, "sync_start", http.MethodPost, "/sync/start", struct{}{}, &resp); err != nil {
		return "", fmt.Errorf("start sync: %w", err)
	}
	if resp.Version == "" {
		return "", errors.New("start sync: empty version in response")
	}
	return resp.Version, nil
}

// CommitSync 提交版本。
func (c *Client) CommitSync(ctx context.Context, version string, dataFrom, dataTo *time.Time) (model.SyncCommitResponse, error) {
	var resp model.SyncCommitResponse
	req := model.SyncCommitRequest{Version: version, DataFrom: dataFrom, DataTo: dataTo}
	if err := c.do(ctx, "sync_commit", http.MethodPost, "/sync/commit", req, &resp); err != nil {
		return resp, fmt.Errorf("commit sync %s: %w", version, err)
	}
	return resp, nil
}

// AbortSync 中止版本。
func (c *Client) AbortSync(ctx context.Context, version string) error {
	if err := c.do(ctx, "sync_abort", http.MethodPost, "/sync/abort", model.SyncAbortRequest{Version: version}, nil); err != nil {
		return fmt.Errorf("abort sync %s: %w", version, err)
	}
	return nil
}

// postChunks 将 rows 切分为不超过 size 的分块逐个上传，合计各块结果。
func postChunks[T any](ctx context.Context, c *Client, entity, path string, size int, rows []T, wrap func([]T) any) (Totals, error) {
	var totals Totals
	n := chunkCount(len(rows), size)
	for i := 0; i < n; i++ {
		start := i * size
		end := min(start+size, len(rows))
		var res model.WriteResult
		if err := c.do(ctx, entity, http.MethodPost, path, wrap(rows[start:end]), &res); err != nil {
			return totals, fmt.Errorf("%s chunk %d/%d (rows %d-%d): %w", entity, i+1, n, start, end-1, err)
		}
		totals.add(res)
		c.logger.Debug("chunk published",
			slog.String("entity", entity),
			slog.Int("chunk", i+1),
			slog.Int("chunks", n),
			slog.Int64("inserted", res.Inserted))
	}
	return totals, nil
}

func chunkCount(total, size int) int {
	if total == 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// do 发送一次 JSON 请求；网络错误与 5xx 按 baseBackoff 翻倍退避重试。
func (c *Client) do(ctx context.Context, entity, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.baseBackoff * time.Duration(1<<uint(attempt-2))
			c.logger.Warn("publish request failed, backing off",
				slog.String("entity", entity),
				slog.Int("attempt", attempt-1),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()))
			if err := c.sleep(ctx, backoff); err != nil {
				return err
			}
		}

		err := c.once(ctx, method, path, body, out)
		if err == nil {
			metrics.PublishRequestsTotal.WithLabelValues(entity, "ok").Inc()
			return nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			metrics.PublishRequestsTotal.WithLabelValues(entity, strconv.Itoa(apiErr.Status)).Inc()
			if !apiErr.retryable() {
				return err
			}
		} else {
			metrics.PublishRequestsTotal.WithLabelValues(entity, "network").Inc()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.gatewayID != "" {
		req.Header.Set(headerGatewayID, c.gatewayID)
		req.Header.Set(headerGatewaySecret, c.gatewaySecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage 优先取 {"error": "..."} 中的信息。
func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
