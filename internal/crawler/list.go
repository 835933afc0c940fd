package crawler

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	defaultMinLevel = 100
	defaultMaxPages = 50
)

// ListFetcher 遍历一个检索键的分页结果，收集达到等级下限的角色 ID。
type ListFetcher struct {
	client   Fetcher
	urls     *URLBuilder
	minLevel int
	maxPages int
	logger   *slog.Logger
}

// NewListFetcher 创建列表抓取器。minLevel / maxPages 为 0 时使用默认值。
func NewListFetcher(client Fetcher, urls *URLBuilder, minLevel, maxPages int, logger *slog.Logger) *ListFetcher {
	if minLevel <= 0 {
		minLevel = defaultMinLevel
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ListFetcher{client: client, urls: urls, minLevel: minLevel, maxPages: maxPages, logger: logger}
}

// FetchCharacterIDs 按页抓取并返回达标角色 ID（页面顺序）。
//
// 上游按等级降序排列，遇到第一个低于下限的条目即结束整个抓取。
// 请求失败时返回已累积的 ID 和错误，调用方可继续使用已有结果。
func (f *ListFetcher) FetchCharacterIDs(ctx context.Context, key SearchKey) ([]string, error) {
	var ids []string
	for page := 1; page <= f.maxPages; page++ {
		resp, err := f.client.Get(ctx, f.urls.SearchURL(key, page))
		if err != nil {
			return ids, fmt.Errorf("search page %d of %s: %w", page, key, err)
		}
		parsed, err := ParseSearchPage(resp.Body)
		if err != nil {
			return ids, fmt.Errorf("search page %d of %s: %w", page, key, err)
		}

		for _, e := range parsed.Entries {
			if e.Level < f.minLevel {
				f.logger.Debug("level threshold reached",
					slog.String("key", key.String()),
					slog.Int("page", page),
					slog.Int("level", e.Level))
				return ids, nil
			}
			ids = append(ids, e.CharacterID)
		}

		if !parsed.HasNext {
			return ids, nil
		}
	}
	f.logger.Warn("max pages reached", slog.String("key", key.String()), slog.Int("max_pages", f.maxPages))
	return ids, nil
}
