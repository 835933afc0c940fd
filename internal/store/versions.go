package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

var (
	// ErrVersionCommitted 该版本已提交，不能再写入、提交或中止。
	ErrVersionCommitted = errors.New("version is already committed")
	// ErrVersionActive 该版本是当前对读者可见的版本。
	ErrVersionActive = errors.New("version is the active version")
	// ErrInvalidVersion 版本号为空或为保留值。
	ErrInvalidVersion = errors.New("invalid version")
)

// insertBatchSize 单条 INSERT 的行数上限。
const insertBatchSize = 500

// CommitResult commitSync 的结果。
type CommitResult struct {
	PreviousVersion string `json:"previous_version"`
	NewVersion      string `json:"new_version"`
}

// VersionManager 发布数据的三阶段版本管理：分配、提交或中止、清理旧版本。
type VersionManager struct {
	db  *gorm.DB
	now func() time.Time
}

// NewVersionManager 创建版本管理器。db 需已执行 MigratePublish。
func NewVersionManager(db *gorm.DB) *VersionManager {
	return &VersionManager{db: db, now: time.Now}
}

// WithClock 替换时钟（测试用）。
func (m *VersionManager) WithClock(now func() time.Time) *VersionManager {
	m.now = now
	return m
}

// StartSync 生成新的版本号。除此之外没有任何副作用。
func (m *VersionManager) StartSync(ctx context.Context) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("mint version: %w", err)
	}
	return id.String(), nil
}

// GetActiveVersion 返回当前可见版本，尚未发布时返回 model.NoVersion。
func (m *VersionManager) GetActiveVersion(ctx context.Context) (string, error) {
	return activeVersion(m.db.WithContext(ctx))
}

// CommitSync 在一个事务中切换版本指针并追加版本元数据。
//
// 参数:
//
//	ctx: 上下文
//	version: 待提交的版本
//	dataFrom, dataTo: 原始数据的采集时间范围（可为 nil）
//
// 返回值:
//
//	CommitResult: 切换前后的版本
//	error: 版本已提交或已激活时返回对应的哨兵错误
func (m *VersionManager) CommitSync(ctx context.Context, version string, dataFrom, dataTo *time.Time) (CommitResult, error) {
	if err := validVersion(version); err != nil {
		return CommitResult{}, err
	}
	var res CommitResult
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := activeVersion(tx)
		if err != nil {
			return err
		}
		if prev == version {
			return ErrVersionActive
		}
		committed, err := isCommitted(tx, version)
		if err != nil {
			return err
		}
		if committed {
			return ErrVersionCommitted
		}

		meta := model.VersionMetadata{Version: version, DataFrom: dataFrom, DataTo: dataTo, SyncedAt: m.now()}
		if err := tx.Create(&meta).Error; err != nil {
			return fmt.Errorf("append version metadata: %w", err)
		}
		if err := tx.Model(&model.VersionPointer{}).
			Where("id = ?", model.VersionPointerID).
			Updates(map[string]any{"version": version, "updated_at": m.now()}).Error; err != nil {
			return fmt.Errorf("swap version pointer: %w", err)
		}
		res = CommitResult{PreviousVersion: prev, NewVersion: version}
		return nil
	})
	if err != nil {
		return CommitResult{}, err
	}
	return res, nil
}

// AbortSync 删除该版本的所有数据行，版本指针保持不变。
func (m *VersionManager) AbortSync(ctx context.Context, version string) error {
	if err := validVersion(version); err != nil {
		return err
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkWritable(tx, version); err != nil {
			return err
		}
		return deleteVersionRows(tx, version)
	})
}

// CheckWritable 版本仍处于待提交状态时返回 nil。
func (m *VersionManager) CheckWritable(ctx context.Context, version string) error {
	if err := validVersion(version); err != nil {
		return err
	}
	return checkWritable(m.db.WithContext(ctx), version)
}

// CleanupOldVersions 只保留按 SyncedAt 最新的 keep 个已提交版本，返回被清理的版本。
//
// 当前激活的版本永远不会被清理。
func (m *VersionManager) CleanupOldVersions(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	var removed []string
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := activeVersion(tx)
		if err != nil {
			return err
		}
		var metas []model.VersionMetadata
		if err := tx.Order("synced_at DESC").Find(&metas).Error; err != nil {
			return fmt.Errorf("list versions: %w", err)
		}
		if len(metas) <= keep {
			return nil
		}
		for _, meta := range metas[keep:] {
			if meta.Version == active {
				continue
			}
			if err := deleteVersionRows(tx, meta.Version); err != nil {
				return err
			}
			if err := tx.Where("version = ?", meta.Version).Delete(&model.VersionMetadata{}).Error; err != nil {
				return fmt.Errorf("delete metadata %s: %w", meta.Version, err)
			}
			removed = append(removed, meta.Version)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// ListVersions 按 SyncedAt 降序返回已提交版本。
func (m *VersionManager) ListVersions(ctx context.Context) ([]model.VersionMetadata, error) {
	var metas []model.VersionMetadata
	if err := m.db.WithContext(ctx).Order("synced_at DESC").Find(&metas).Error; err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return metas, nil
}

func validVersion(version string) error {
	if version == "" || version == model.NoVersion {
		return ErrInvalidVersion
	}
	return nil
}

func activeVersion(db *gorm.DB) (string, error) {
	var pointer model.VersionPointer
	err := db.Where("id = ?", model.VersionPointerID).Take(&pointer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.NoVersion, nil
	}
	if err != nil {
		return "", fmt.Errorf("read version pointer: %w", err)
	}
	return pointer.Version, nil
}

func isCommitted(db *gorm.DB, version string) (bool, error) {
	var n int64
	if err := db.Model(&model.VersionMetadata{}).Where("version = ?", version).Count(&n).Error; err != nil {
		return false, fmt.Errorf("lookup version %s: %w", version, err)
	}
	return n > 0, nil
}

func checkWritable(db *gorm.DB, version string) error {
	active, err := activeVersion(db)
	if err != nil {
		return err
	}
	if active == version {
		return ErrVersionActive
	}
	committed, err := isCommitted(db, version)
	if err != nil {
		return err
	}
	if committed {
		return ErrVersionCommitted
	}
	return nil
}

func deleteVersionRows(tx *gorm.DB, version string) error {
	if err := tx.Where("version = ?", version).Delete(&model.UsageRecord{}).Error; err != nil {
		return fmt.Errorf("delete usage %s: %w", version, err)
	}
	if err := tx.Where("version = ?", version).Delete(&model.PairRecord{}).Error; err != nil {
		return fmt.Errorf("delete pairs %s: %w", version, err)
	}
	return nil
}
