package notify

import (
	"context"
	"time"
)

// Report 一次发布运行的摘要。
type Report struct {
	Version         string
	PreviousVersion string
	DryRun          bool
	Items           int
	Usage           int
	Pairs           int
	RowsWritten     int64
	RemovedVersions []string
	RawRowsDeleted  int64
	DataFrom        *time.Time
	DataTo          *time.Time
	StartedAt       time.Time
	Duration        time.Duration
	Err             error
}

// Succeeded 运行是否成功提交（试运行视为成功）。
func (r *Report) Succeeded() bool {
	return r.Err == nil
}

// Notifier 定义通知接口。
type Notifier interface {
	// Send 发送发布报告。
	//
	// 参数:
	//   ctx: 上下文
	//   report: 发布运行摘要
	Send(ctx context.Context, report *Report) error
}

// Nop 不发送任何通知。
type Nop struct{}

// Send 实现 Notifier。
func (Nop) Send(context.Context, *Report) error { return nil }
