package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

// sqlitePrefix 以该前缀开头的 DSN 使用 SQLite（本地运行与测试）。
const sqlitePrefix = "sqlite:"

// Open 打开数据库连接。
//
// 参数:
//
//	dsn: MySQL DSN，或 "sqlite:<path>" 形式的 SQLite 路径
//
// 返回值:
//
//	*gorm.DB: 数据库连接
//	error: 连接失败返回错误
func Open(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is empty")
	}
	var dialector gorm.Dialector
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		dialector = sqlite.Open(path)
	} else {
		dialector = mysql.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// MigrateRaw 迁移原始数据库（角色装备、道具目录、爬虫进度）。
func MigrateRaw(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.GlamourRecord{}, &model.ItemRecord{}, &model.CrawlProgressRecord{}); err != nil {
		return fmt.Errorf("migrate raw store: %w", err)
	}
	return nil
}

// MigratePublish 迁移发布数据库，并确保版本指针行存在。
func MigratePublish(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.ItemRecord{},
		&model.UsageRecord{},
		&model.PairRecord{},
		&model.VersionPointer{},
		&model.VersionMetadata{},
	); err != nil {
		return fmt.Errorf("migrate publish store: %w", err)
	}
	pointer := model.VersionPointer{ID: model.VersionPointerID, Version: model.NoVersion}
	if err := db.Where(model.VersionPointer{ID: model.VersionPointerID}).FirstOrCreate(&pointer).Error; err != nil {
		return fmt.Errorf("init version pointer: %w", err)
	}
	return nil
}

// Close 关闭底层连接。
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
