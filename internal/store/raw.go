package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

// RawStore 原始角色数据的读写。
type RawStore struct {
	db *gorm.DB
}

// NewRawStore 创建原始数据存储。
func NewRawStore(db *gorm.DB) *RawStore {
	return &RawStore{db: db}
}

// DB 返回底层连接（聚合查询使用）。
func (s *RawStore) DB() *gorm.DB {
	return s.db
}

// CharacterExists 角色是否已有任意一行装备记录。
func (s *RawStore) CharacterExists(ctx context.Context, characterID string) (bool, error) {
	var rec model.GlamourRecord
	err := s.db.WithContext(ctx).
		Select("id").
		Where("character_id = ?", characterID).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check character %s: %w", characterID, err)
	}
	return true, nil
}

// SaveGlamour 写入一名角色的装备记录。
//
// (character_id, slot_id) 冲突时忽略，重复抓取同一角色是幂等的。
func (s *RawStore) SaveGlamour(ctx context.Context, records []model.GlamourRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&records).Error
}

// UpsertItems 写入道具目录，已存在的道具保留首次出现的名称。
func (s *RawStore) UpsertItems(ctx context.Context, items []model.ItemRecord) error {
	return insertItems(ctx, s.db, items)
}

func insertItems(ctx context.Context, db *gorm.DB, items []model.ItemRecord) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "item_id"}}, DoNothing: true}).
		Create(&items).Error
}
