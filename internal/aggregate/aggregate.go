package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

// ErrCrawlIncomplete 最近一次爬虫运行尚未以终止状态结束，数据不可发布。
var ErrCrawlIncomplete = errors.New("latest crawl has not finished a pass")

const (
	// MinCount 低于该人数的组合不会被发布。
	MinCount = 3
	// MaxRank 每个基准道具最多保留的搭配数。
	MaxRank = 10
)

// SlotPairs 统计搭配的四组相邻部位。
var SlotPairs = [][2]int{
	{model.SlotHead, model.SlotBody},
	{model.SlotBody, model.SlotHands},
	{model.SlotBody, model.SlotLegs},
	{model.SlotLegs, model.SlotFeet},
}

// ProgressReader 读取最近一次爬虫进度。
type ProgressReader interface {
	Latest(ctx context.Context) (string, *model.CrawlProgress, error)
}

// Aggregator 从原始数据计算带隐私下限的统计。
type Aggregator struct {
	db       *gorm.DB
	progress ProgressReader
	excluded []string
	logger   *slog.Logger
}

// New 创建聚合器。
//
// 参数:
//
//	db: 原始数据库
//	progress: 爬虫进度（完整性检查用）
//	excluded: 排除的默认外观道具 ID
//	logger: 日志记录器
func New(db *gorm.DB, progress ProgressReader, excluded []string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	clean := make([]string, 0, len(excluded))
	for _, id := range excluded {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		logger.Warn("default appearance deny-list is empty, usage and pair stats include always-visible items; set publish.excluded_items")
	}
	return &Aggregator{db: db, progress: progress, excluded: clean, logger: logger}
}

// CheckComplete 最近一次爬虫进度带有 ExitReason 时返回 nil。
func (a *Aggregator) CheckComplete(ctx context.Context) error {
	name, p, err := a.progress.Latest(ctx)
	if err != nil {
		return err
	}
	if !p.Finished() {
		a.logger.Warn("crawl has not finished a pass, refusing to aggregate", slog.String("crawler", name))
		return ErrCrawlIncomplete
	}
	a.logger.Info("crawl completeness check passed",
		slog.String("crawler", name),
		slog.String("exit_reason", string(p.ExitReason)))
	return nil
}

// Items 返回去重后的道具目录。
func (a *Aggregator) Items(ctx context.Context) ([]model.ItemRecord, error) {
	var items []model.ItemRecord
	if err := a.db.WithContext(ctx).Order("item_id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return items, nil
}

// usageRow 与 pairRow 是聚合查询的结果行。
//
// 计数列在不同驱动下的类型不同（MySQL 文本协议为 []byte，SQLite 计算列没有声明类型），
// 统一扫描进 int64 字段，由 database/sql 在这一层完成转换。
type usageRow struct {
	SlotID int    `gorm:"column:slot_id"`
	ItemID string `gorm:"column:item_id"`
	Cnt    int64  `gorm:"column:cnt"`
}

type pairRow struct {
	BaseSlotID    int    `gorm:"column:base_slot_id"`
	PartnerSlotID int    `gorm:"column:partner_slot_id"`
	BaseItemID    string `gorm:"column:base_item_id"`
	PartnerItemID string `gorm:"column:partner_item_id"`
	Cnt           int64  `gorm:"column:cnt"`
}

// Usage 按 (部位, 道具) 统计使用人数，排除默认外观与低于 MinCount 的组合。
func (a *Aggregator) Usage(ctx context.Context) ([]model.UsageRecord, error) {
	var sb strings.Builder
	args := []any{}
	sb.WriteString(`SELECT slot_id, item_id, COUNT(DISTINCT character_id) AS cnt FROM glamour_records`)
	if len(a.excluded) > 0 {
		sb.WriteString(` WHERE item_id NOT IN ?`)
		args = append(args, a.excluded)
	}
	sb.WriteString(` GROUP BY slot_id, item_id HAVING COUNT(DISTINCT character_id) >= ?`)
	args = append(args, MinCount)

	var rows []usageRow
	if err := a.db.WithContext(ctx).Raw(sb.String(), args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}

	out := make([]model.UsageRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.UsageRecord{SlotID: r.SlotID, ItemID: r.ItemID, Count: r.Cnt})
	}
	sortUsage(out)
	return out, nil
}

// pairSQL 一组相邻部位的双向共现计数。
//
// 同一角色在两个部位上的记录自连接，两个方向各自成行，排名在 rankPairs 中完成。
const pairSQL = `
SELECT a.slot_id AS base_slot_id, b.slot_id AS partner_slot_id,
	a.item_id AS base_item_id, b.item_id AS partner_item_id,
	COUNT(DISTINCT a.character_id) AS cnt
FROM glamour_records a
JOIN glamour_records b ON a.character_id = b.character_id
WHERE ((a.slot_id = ? AND b.slot_id = ?) OR (a.slot_id = ? AND b.slot_id = ?))%s
GROUP BY a.slot_id, b.slot_id, a.item_id, b.item_id
HAVING COUNT(DISTINCT a.character_id) >= ?`

// Pairs 计算四组相邻部位的双向搭配排名。
func (a *Aggregator) Pairs(ctx context.Context) ([]model.PairRecord, error) {
	var out []model.PairRecord
	for _, sp := range SlotPairs {
		rows, err := a.pairsFor(ctx, sp[0], sp[1])
		if err != nil {
			return nil, err
		}
		out = append(out, rankPairs(rows, MaxRank)...)
	}
	return out, nil
}

func (a *Aggregator) pairsFor(ctx context.Context, s1, s2 int) ([]model.PairRecord, error) {
	filter := ""
	args := []any{s1, s2, s2, s1}
	if len(a.excluded) > 0 {
		filter = ` AND a.item_id NOT IN ? AND b.item_id NOT IN ?`
		args = append(args, a.excluded, a.excluded)
	}
	args = append(args, MinCount)

	var rows []pairRow
	if err := a.db.WithContext(ctx).Raw(fmt.Sprintf(pairSQL, filter), args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("aggregate pairs %d-%d: %w", s1, s2, err)
	}

	out := make([]model.PairRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.PairRecord{
			BaseSlotID:    r.BaseSlotID,
			PartnerSlotID: r.PartnerSlotID,
			BaseItemID:    r.BaseItemID,
			PartnerItemID: r.PartnerItemID,
			Count:         r.Cnt,
		})
	}
	return out, nil
}

// Freshness 返回原始数据采集时间的最早与最晚值，没有数据时均为 nil。
func (a *Aggregator) Freshness(ctx context.Context) (from, to *time.Time, err error) {
	var first, last model.GlamourRecord
	err = a.db.WithContext(ctx).Select("created_at").Order("created_at ASC").Take(&first).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("freshness: %w", err)
	}
	if err = a.db.WithContext(ctx).Select("created_at").Order("created_at DESC").Take(&last).Error; err != nil {
		return nil, nil, fmt.Errorf("freshness: %w", err)
	}
	return &first.CreatedAt, &last.CreatedAt, nil
}

// CleanupRaw 删除原始装备记录，只应在发布成功后显式调用。道具目录保留。
func (a *Aggregator) CleanupRaw(ctx context.Context) (int64, error) {
	res := a.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.GlamourRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup raw: %w", res.Error)
	}
	a.logger.Info("raw glamour rows deleted", slog.Int64("rows", res.RowsAffected))
	return res.RowsAffected, nil
}
