package model

import "time"

// 发布 API 的请求与响应结构。

// ItemPayload 道具目录条目。
type ItemPayload struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
	SlotID int    `json:"slot_id"`
}

// UsagePayload 使用统计条目。
type UsagePayload struct {
	SlotID int    `json:"slot_id"`
	ItemID string `json:"item_id"`
	Count  int64  `json:"count"`
}

// PairPayload 搭配统计条目。
type PairPayload struct {
	BaseSlotID    int    `json:"base_slot_id"`
	PartnerSlotID int    `json:"partner_slot_id"`
	BaseItemID    string `json:"base_item_id"`
	PartnerItemID string `json:"partner_item_id"`
	Count         int64  `json:"count"`
	Rank          int    `json:"rank"`
}

// ItemsRequest POST /items
type ItemsRequest struct {
	Items []ItemPayload `json:"items"`
}

// UsageRequest POST /usage?version=
type UsageRequest struct {
	Usage []UsagePayload `json:"usage"`
}

// PairsRequest POST /pairs?version=
type PairsRequest struct {
	Pairs []PairPayload `json:"pairs"`
}

// WriteResult 一次写入请求的结果。
type WriteResult struct {
	Inserted int64 `json:"inserted"`
	Upserted int64 `json:"upserted"`
	Skipped  int64 `json:"skipped"`
}

// SyncStartResponse POST /sync/start
type SyncStartResponse struct {
	Version string `json:"version"`
}

// SyncCommitRequest POST /sync/commit
type SyncCommitRequest struct {
	Version  string     `json:"version"`
	DataFrom *time.Time `json:"data_from,omitempty"`
	DataTo   *time.Time `json:"data_to,omitempty"`
}

// SyncCommitResponse POST /sync/commit
type SyncCommitResponse struct {
	PreviousVersion string   `json:"previous_version"`
	NewVersion      string   `json:"new_version"`
	RemovedVersions []string `json:"removed_versions,omitempty"`
}

// SyncAbortRequest POST /sync/abort
type SyncAbortRequest struct {
	Version string `json:"version"`
}

// ActiveVersionResponse GET /sync/active
type ActiveVersionResponse struct {
	Version  string     `json:"version"`
	DataFrom *time.Time `json:"data_from,omitempty"`
	DataTo   *time.Time `json:"data_to,omitempty"`
	SyncedAt *time.Time `json:"synced_at,omitempty"`
}

// ToItemPayloads 转换道具目录。
func ToItemPayloads(items []ItemRecord) []ItemPayload {
	out := make([]ItemPayload, 0, len(items))
	for _, it := range items {
		out = append(out, ItemPayload{ItemID: it.ItemID, Name: it.Name, SlotID: it.SlotID})
	}
	return out
}

// ToUsagePayloads 转换使用统计。
func ToUsagePayloads(rows []UsageRecord) []UsagePayload {
	out := make([]UsagePayload, 0, len(rows))
	for _, r := range rows {
		out = append(out, UsagePayload{SlotID: r.SlotID, ItemID: r.ItemID, Count: r.Count})
	}
	return out
}

// ToPairPayloads 转换搭配统计。
func ToPairPayloads(rows []PairRecord) []PairPayload {
	out := make([]PairPayload, 0, len(rows))
	for _, r := range rows {
		out = append(out, PairPayload{
			BaseSlotID:    r.BaseSlotID,
			PartnerSlotID: r.PartnerSlotID,
			BaseItemID:    r.BaseItemID,
			PartnerItemID: r.PartnerItemID,
			Count:         r.Count,
			Rank:          r.Rank,
		})
	}
	return out
}
