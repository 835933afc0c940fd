package model

import (
	"time"

	"gorm.io/datatypes"
)

// 五个统计目标部位。武器与饰品不参与统计。
const (
	SlotHead  = 1
	SlotBody  = 2
	SlotHands = 3
	SlotLegs  = 4
	SlotFeet  = 5
)

// ValidSlot 判断部位 ID 是否在 [1,5] 内。
func ValidSlot(slot int) bool {
	return slot >= SlotHead && slot <= SlotFeet
}

// GlamourRecord 表示一名角色在某个部位上可见的幻影装备。
//
// 每个角色每个部位至多一行；没有行表示该部位无可见装备或未观测到。
// 由爬虫写入后不再更新，仅在发布成功后的清理中删除。
type GlamourRecord struct {
	ID          uint      `gorm:"primaryKey"`
	CharacterID string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_character_slot"` // 角色 ID
	SlotID      int       `gorm:"not null;uniqueIndex:idx_character_slot;index"`            // 部位 ID [1,5]
	ItemID      string    `gorm:"type:varchar(32);not null;index"`                          // 上游的道具 ID
	CreatedAt   time.Time `gorm:"index"`                                                    // 采集时间（用于数据新鲜度）
}

// ItemRecord 道具目录。首次出现的名称为准，冲突时不覆盖。
type ItemRecord struct {
	ItemID    string `gorm:"primaryKey;type:varchar(32)"`
	Name      string `gorm:"type:varchar(191);not null"`
	SlotID    int    `gorm:"not null"`
	CreatedAt time.Time
}

// TableName 道具目录表名（原始库与发布库共用）。
func (ItemRecord) TableName() string {
	return "items"
}

// CrawlProgressRecord 爬虫进度的持久化形式，Data 为带 schema 版本的 JSON。
type CrawlProgressRecord struct {
	CrawlerName string         `gorm:"primaryKey;type:varchar(64)"`
	Data        datatypes.JSON `gorm:"not null"`
	UpdatedAt   time.Time
}

// TableName 进度表名。
func (CrawlProgressRecord) TableName() string {
	return "crawl_progress"
}
