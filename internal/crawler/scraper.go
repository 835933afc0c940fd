package crawler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

// ErrorKind 抓取错误的类别。
type ErrorKind string

const (
	ErrorKindHTTP  ErrorKind = "http"
	ErrorKindParse ErrorKind = "parse"
	ErrorKindDB    ErrorKind = "db"
)

// ScrapeError 单个角色抓取中的一个错误。
type ScrapeError struct {
	Kind ErrorKind
	Err  error
}

func (e ScrapeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// ScrapeResult 单个角色的抓取结果。
type ScrapeResult struct {
	CharacterID string
	Saved       int
	OptedOut    bool
	Errors      []ScrapeError
}

// GlamourWriter 原始数据的写入端。
type GlamourWriter interface {
	SaveGlamour(ctx context.Context, records []model.GlamourRecord) error
	UpsertItems(ctx context.Context, items []model.ItemRecord) error
}

// Scraper 抓取角色主页并保存幻影装备。
type Scraper struct {
	client Fetcher
	urls   *URLBuilder
	writer GlamourWriter
	logger *slog.Logger
}

// NewScraper 创建角色抓取器。
func NewScraper(client Fetcher, urls *URLBuilder, writer GlamourWriter, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{client: client, urls: urls, writer: writer, logger: logger}
}

// Scrape 抓取一名角色。所有失败都记录在结果的 Errors 中，不会向外抛出 panic。
func (s *Scraper) Scrape(ctx context.Context, characterID string) (res ScrapeResult) {
	res.CharacterID = characterID
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scrape panic recovered", slog.String("character_id", characterID), slog.Any("panic", r))
			res.Saved = 0
			res.Errors = append(res.Errors, ScrapeError{Kind: ErrorKindParse, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	resp, err := s.client.Get(ctx, s.urls.ProfileURL(characterID))
	if err != nil {
		res.Errors = append(res.Errors, ScrapeError{Kind: ErrorKindHTTP, Err: err})
		return res
	}

	profile, err := ParseProfile(resp.Body)
	if err != nil {
		res.Errors = append(res.Errors, ScrapeError{Kind: ErrorKindParse, Err: err})
		return res
	}
	if profile.OptedOut {
		res.OptedOut = true
		return res
	}
	if len(profile.Entries) == 0 {
		return res
	}

	records := make([]model.GlamourRecord, 0, len(profile.Entries))
	items := make([]model.ItemRecord, 0, len(profile.Entries))
	for _, e := range profile.Entries {
		records = append(records, model.GlamourRecord{CharacterID: characterID, SlotID: e.SlotID, ItemID: e.ItemID})
		if e.Name != "" {
			items = append(items, model.ItemRecord{ItemID: e.ItemID, Name: e.Name, SlotID: e.SlotID})
		}
	}

	if err := s.writer.SaveGlamour(ctx, records); err != nil {
		res.Errors = append(res.Errors, ScrapeError{Kind: ErrorKindDB, Err: fmt.Errorf("save glamour: %w", err)})
		return res
	}
	res.Saved = len(records)

	if len(items) > 0 {
		if err := s.writer.UpsertItems(ctx, items); err != nil {
			res.Errors = append(res.Errors, ScrapeError{Kind: ErrorKindDB, Err: fmt.Errorf("upsert items: %w", err)})
		}
	}
	return res
}
