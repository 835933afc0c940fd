package aggregate

import (
	"cmp"
	"slices"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

// rankPairs 按 (base_slot_id, partner_slot_id, base_item_id) 分区排名。
//
// 分区内按计数降序，计数相同按搭配道具 ID 升序，只保留前 maxRank 名。
// 两个方向分属不同分区，排名互不影响。
func rankPairs(rows []model.PairRecord, maxRank int) []model.PairRecord {
	sorted := slices.Clone(rows)
	slices.SortFunc(sorted, func(a, b model.PairRecord) int {
		return cmp.Or(
			cmp.Compare(a.BaseSlotID, b.BaseSlotID),
			cmp.Compare(a.PartnerSlotID, b.PartnerSlotID),
			cmp.Compare(a.BaseItemID, b.BaseItemID),
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(a.PartnerItemID, b.PartnerItemID),
		)
	})

	out := make([]model.PairRecord, 0, len(sorted))
	rank := 0
	for i, r := range sorted {
		if i == 0 || !samePartition(sorted[i-1], r) {
			rank = 0
		}
		rank++
		if rank > maxRank {
			continue
		}
		r.Rank = rank
		out = append(out, r)
	}
	return out
}

func samePartition(a, b model.PairRecord) bool {
	return a.BaseSlotID == b.BaseSlotID && a.PartnerSlotID == b.PartnerSlotID && a.BaseItemID == b.BaseItemID
}

// sortUsage 部位升序，人数降序，道具 ID 升序。
func sortUsage(rows []model.UsageRecord) {
	slices.SortFunc(rows, func(a, b model.UsageRecord) int {
		return cmp.Or(
			cmp.Compare(a.SlotID, b.SlotID),
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(a.ItemID, b.ItemID),
		)
	})
}
