package model

import "time"

// NoVersion 尚未发布任何数据时版本指针的值。
const NoVersion = "0"

// VersionPointerID 版本指针表中唯一一行的主键。
const VersionPointerID = 1

// UsageRecord 某版本中单个部位单件道具的使用人数。
type UsageRecord struct {
	ID      uint   `gorm:"primaryKey"`
	Version string `gorm:"type:varchar(64);not null;uniqueIndex:idx_usage_key"`
	SlotID  int    `gorm:"not null;uniqueIndex:idx_usage_key"`
	ItemID  string `gorm:"type:varchar(32);not null;uniqueIndex:idx_usage_key"`
	Count   int64  `gorm:"not null"`
}

// PairRecord 某版本中相邻部位的搭配统计。
//
// 以 (BaseSlotID, PartnerSlotID, BaseItemID) 为分区独立排名，
// 两个方向各自成表，互不作为镜像。
type PairRecord struct {
	ID            uint   `gorm:"primaryKey"`
	Version       string `gorm:"type:varchar(64);not null;uniqueIndex:idx_pair_key;index:idx_pair_lookup"`
	BaseSlotID    int    `gorm:"not null;uniqueIndex:idx_pair_key;index:idx_pair_lookup"`
	PartnerSlotID int    `gorm:"not null;uniqueIndex:idx_pair_key"`
	BaseItemID    string `gorm:"type:varchar(32);not null;uniqueIndex:idx_pair_key;index:idx_pair_lookup"`
	PartnerItemID string `gorm:"type:varchar(32);not null;uniqueIndex:idx_pair_key"`
	Count         int64  `gorm:"not null"`
	Rank          int    `gorm:"column:pair_rank;not null"`
}

// VersionPointer 当前对读者可见的数据版本（单行）。
type VersionPointer struct {
	ID        uint   `gorm:"primaryKey"`
	Version   string `gorm:"type:varchar(64);not null;default:'0'"`
	UpdatedAt time.Time
}

// VersionMetadata 每个已提交版本一行，按 SyncedAt 排序。
type VersionMetadata struct {
	Version  string `gorm:"primaryKey;type:varchar(64)"`
	DataFrom *time.Time
	DataTo   *time.Time
	SyncedAt time.Time `gorm:"not null;index"`
}

// TableName 版本元数据表名。
func (VersionMetadata) TableName() string {
	return "version_metadata"
}
