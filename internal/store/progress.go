package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

// ErrUnknownProgressSchema 进度记录来自更新的程序版本，无法安全读取。
var ErrUnknownProgressSchema = errors.New("crawl progress has an unknown schema version")

// ProgressStore 按爬虫名保存进度。
type ProgressStore struct {
	db *gorm.DB
}

// NewProgressStore 创建进度存储。
func NewProgressStore(db *gorm.DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// Load 读取进度，首次运行时返回 nil。
func (s *ProgressStore) Load(ctx context.Context, crawlerName string) (*model.CrawlProgress, error) {
	var rec model.CrawlProgressRecord
	err := s.db.WithContext(ctx).Where("crawler_name = ?", crawlerName).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress %s: %w", crawlerName, err)
	}
	return decodeProgress(rec.Data)
}

// Save 写入（覆盖）进度。
func (s *ProgressStore) Save(ctx context.Context, crawlerName string, p *model.CrawlProgress) error {
	if p == nil {
		return errors.New("progress is nil")
	}
	out := *p
	out.SchemaVersion = model.CrawlProgressSchemaVersion
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	rec := model.CrawlProgressRecord{
		CrawlerName: crawlerName,
		Data:        datatypes.JSON(data),
		UpdatedAt:   time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "crawler_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec).Error
}

// Latest 返回最近更新的一条进度（聚合前的完整性检查使用）。
func (s *ProgressStore) Latest(ctx context.Context) (string, *model.CrawlProgress, error) {
	var rec model.CrawlProgressRecord
	err := s.db.WithContext(ctx).Order("updated_at DESC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("load latest progress: %w", err)
	}
	p, err := decodeProgress(rec.Data)
	if err != nil {
		return rec.CrawlerName, nil, err
	}
	return rec.CrawlerName, p, nil
}

// decodeProgress 解析进度 JSON。缺少版本号的旧记录按版本 1 处理。
func decodeProgress(data datatypes.JSON) (*model.CrawlProgress, error) {
	var p model.CrawlProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	switch p.SchemaVersion {
	case 0:
		p.SchemaVersion = model.CrawlProgressSchemaVersion
	case model.CrawlProgressSchemaVersion:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownProgressSchema, p.SchemaVersion)
	}
	return &p, nil
}
