package model

// ExitReason 爬虫运行的终止状态。为空表示上次运行中途被打断。
type ExitReason string

const (
	ExitCompleted    ExitReason = "COMPLETED"     // 检索空间遍历完毕
	ExitLimitReached ExitReason = "LIMIT_REACHED" // 达到处理角色上限
)

// CrawlProgressSchemaVersion 当前进度结构的版本号。
const CrawlProgressSchemaVersion = 1

// NoKeyCompleted 尚无检索键完成时 LastCompletedShuffledIndex 的值。
const NoKeyCompleted = -1

// CrawlProgress 可恢复的爬虫进度。
//
// LastCompletedShuffledIndex 是洗牌后序列中的位置，而不是规范枚举的 Index。
type CrawlProgress struct {
	SchemaVersion              int        `json:"schema_version"`
	LastCompletedShuffledIndex int        `json:"last_completed_shuffled_index"`
	TotalKeys                  int        `json:"total_keys"`
	ProcessedCharacters        int        `json:"processed_characters"`
	Seed                       int64      `json:"seed"`
	ExitReason                 ExitReason `json:"exit_reason,omitempty"`
}

// Finished 上次运行是否以终止状态结束。
func (p *CrawlProgress) Finished() bool {
	return p != nil && p.ExitReason != ""
}
