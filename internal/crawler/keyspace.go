package crawler

import (
	"fmt"
	"math/rand"
)

// SearchKey 检索参数空间中的一个点（服务器 × 职业 × 部族 × 军团）。
//
// Index 是规范枚举顺序中的位置，参数集不变时跨运行稳定。
type SearchKey struct {
	Index          int    `json:"index"`
	World          string `json:"world"`
	ClassJobID     int    `json:"class_job_id"`
	RaceTribeID    string `json:"race_tribe_id"`
	GrandCompanyID int    `json:"grand_company_id"`
}

// String 用于日志。
func (k SearchKey) String() string {
	return fmt.Sprintf("%s/job=%d/%s/gc=%d", k.World, k.ClassJobID, k.RaceTribeID, k.GrandCompanyID)
}

// EnumerateKeys 按 world → job → tribe → grand company 的嵌套顺序生成完整笛卡尔积。
func EnumerateKeys(worlds []string, jobs []int, tribes []string, grandCompanies []int) []SearchKey {
	keys := make([]SearchKey, 0, len(worlds)*len(jobs)*len(tribes)*len(grandCompanies))
	for _, w := range worlds {
		for _, j := range jobs {
			for _, t := range tribes {
				for _, gc := range grandCompanies {
					keys = append(keys, SearchKey{
						Index:          len(keys),
						World:          w,
						ClassJobID:     j,
						RaceTribeID:    t,
						GrandCompanyID: gc,
					})
				}
			}
		}
	}
	return keys
}

// ShuffleKeys 返回按 seed 确定性洗牌后的副本，保留每个键的规范 Index。
//
// 相同的 seed 与输入总是得到相同的顺序。
func ShuffleKeys(keys []SearchKey, seed int64) []SearchKey {
	out := make([]SearchKey, len(keys))
	copy(out, keys)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// NewSeed 生成一个非零种子。0 在配置中表示“未指定”。
func NewSeed() int64 {
	for {
		if s := rand.Int63(); s != 0 {
			return s
		}
	}
}
