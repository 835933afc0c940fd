package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

// PublishedStore 发布数据库的写入与只读查询。
type PublishedStore struct {
	db *gorm.DB
	*VersionManager
}

// NewPublishedStore 创建发布数据存储。
func NewPublishedStore(db *gorm.DB) *PublishedStore {
	return &PublishedStore{db: db, VersionManager: NewVersionManager(db)}
}

// UpsertItems 写入道具目录（不分版本），返回新增行数。
func (s *PublishedStore) UpsertItems(ctx context.Context, items []model.ItemRecord) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	var before, after int64
	if err := s.db.WithContext(ctx).Model(&model.ItemRecord{}).Count(&before).Error; err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	if err := insertItems(ctx, s.db, items); err != nil {
		return 0, fmt.Errorf("upsert items: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&model.ItemRecord{}).Count(&after).Error; err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return after - before, nil
}

// InsertUsage 写入某个待提交版本的使用统计，返回新增行数。
//
// 版本已提交或已激活时拒绝写入；重复的行被忽略，重发同一分块是幂等的。
func (s *PublishedStore) InsertUsage(ctx context.Context, version string, rows []model.UsageRecord) (int64, error) {
	if err := validVersion(version); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for i := range rows {
		rows[i].ID = 0
		rows[i].Version = version
	}
	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkWritable(tx, version); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, insertBatchSize)
		if res.Error != nil {
			return fmt.Errorf("insert usage: %w", res.Error)
		}
		inserted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// InsertPairs 写入某个待提交版本的搭配统计，规则同 InsertUsage。
func (s *PublishedStore) InsertPairs(ctx context.Context, version string, rows []model.PairRecord) (int64, error) {
	if err := validVersion(version); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for i := range rows {
		rows[i].ID = 0
		rows[i].Version = version
	}
	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkWritable(tx, version); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, insertBatchSize)
		if res.Error != nil {
			return fmt.Errorf("insert pairs: %w", res.Error)
		}
		inserted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// PairsFor 返回某版本中以 baseItem 为基准的搭配排名。
func (s *PublishedStore) PairsFor(ctx context.Context, version string, baseSlot int, baseItem string) ([]model.PairRecord, error) {
	var rows []model.PairRecord
	err := s.db.WithContext(ctx).
		Where("version = ? AND base_slot_id = ? AND base_item_id = ?", version, baseSlot, baseItem).
		Order("partner_slot_id ASC").
		Order("pair_rank ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query pairs: %w", err)
	}
	return rows, nil
}

// CountVersionRows 统计某版本的使用与搭配行数。
func (s *PublishedStore) CountVersionRows(ctx context.Context, version string) (usage, pairs int64, err error) {
	if err = s.db.WithContext(ctx).Model(&model.UsageRecord{}).Where("version = ?", version).Count(&usage).Error; err != nil {
		return 0, 0, fmt.Errorf("count usage: %w", err)
	}
	if err = s.db.WithContext(ctx).Model(&model.PairRecord{}).Where("version = ?", version).Count(&pairs).Error; err != nil {
		return 0, 0, fmt.Errorf("count pairs: %w", err)
	}
	return usage, pairs, nil
}
