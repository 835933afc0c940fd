package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequestsTotal 上游请求次数（按状态码分类，0 表示网络错误）。
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirapuri_upstream_requests_total",
		Help: "Outbound requests to the upstream site by status code.",
	}, []string{"status"})

	// UpstreamRequestDuration 上游请求耗时。
	UpstreamRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mirapuri_upstream_request_duration_seconds",
		Help:    "Latency of outbound upstream requests.",
		Buckets: prometheus.DefBuckets,
	})

	// UpstreamRetriesTotal 重试次数（按触发的状态码分类）。
	UpstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirapuri_upstream_retries_total",
		Help: "Retries issued against the upstream site.",
	}, []string{"status"})

	// RateLimitWaitDuration 请求间隔与共享令牌桶的等待时间。
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mirapuri_ratelimit_wait_seconds",
		Help:    "Time spent waiting for request spacing or shared tokens.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	// SharedTokenAcquireTotal 共享令牌获取结果（按爬虫名，granted / waited / timeout）。
	SharedTokenAcquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirapuri_ratelimit_shared_acquire_total",
		Help: "Shared upstream token acquisitions by crawler and result.",
	}, []string{"crawler", "result"})

	// CrawlKeysTotal 已完成的检索键数量。
	CrawlKeysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirapuri_crawl_keys_total",
		Help: "Search keys completed by the crawler.",
	})

	// CrawlCharactersTotal 角色处理结果（processed / skipped / errored / existing / opted_out）。
	CrawlCharactersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirapuri_crawl_characters_total",
		Help: "Characters handled by the crawler by outcome.",
	}, []string{"outcome"})

	// CrawlErrorsTotal 抓取错误（按错误类别分类）。
	CrawlErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirapuri_crawl_errors_total",
		Help: "Scrape errors by kind.",
	}, []string{"kind"})

	// PublishRequestsTotal 发布请求（按实体与结果分类）。
	PublishRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirapuri_publish_requests_total",
		Help: "Publish API chunk requests by entity and result.",
	}, []string{"entity", "result"})

	// SyncTotal 发布流程结果（committed / failed / locked / not_ready / dry_run）。
	SyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirapuri_sync_total",
		Help: "Publish runs by result.",
	}, []string{"result"})

	// APIRowsWritten API 端写入的行数。
	APIRowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirapuri_api_rows_written_total",
		Help: "Rows written by the publish API by entity.",
	}, []string{"entity"})
)
