package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/PhantomL4rd/mirapuri-stats/internal/aggregate"
	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/metrics"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/notify"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/synclock"
)

const abortTimeout = 30 * time.Second

// Source 聚合后的待发布数据。
type Source interface {
	CheckComplete(ctx context.Context) error
	Items(ctx context.Context) ([]model.ItemRecord, error)
	Usage(ctx context.Context) ([]model.UsageRecord, error)
	Pairs(ctx context.Context) ([]model.PairRecord, error)
	Freshness(ctx context.Context) (from, to *time.Time, err error)
	CleanupRaw(ctx context.Context) (int64, error)
}

// Publisher 发布 API 的调用方。
type Publisher interface {
	PostItems(ctx context.Context, items []model.ItemRecord) (Totals, error)
	StartSync(ctx context.Context) (string, error)
	PostUsage(ctx context.Context, version string, rows []model.UsageRecord) (Totals, error)
	PostPairs(ctx context.Context, version string, rows []model.PairRecord) (Totals, error)
	CommitSync(ctx context.Context, version string, dataFrom, dataTo *time.Time) (model.SyncCommitResponse, error)
	AbortSync(ctx context.Context, version string) error
}

// Lock 发布互斥锁。
type Lock interface {
	Acquire(ctx context.Context) (*synclock.Lease, error)
}

// Options 单次发布运行的开关。
type Options struct {
	DryRun     bool
	CleanupRaw bool
	Out        io.Writer // 试运行报告输出
}

// Runner 串联 聚合 → 上传目录 → 开版本 → 上传统计 → 提交。
type Runner struct {
	source    Source
	publisher Publisher
	lock      Lock
	notifier  notify.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner 创建发布流程。lock 为 nil 时不加锁（仅限单机部署），notifier 为 nil 时不通知。
func NewRunner(source Source, publisher Publisher, lock Lock, notifier notify.Notifier, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Runner{
		source:    source,
		publisher: publisher,
		lock:      lock,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Run 执行一次发布。
//
// 提交前任一步失败都会中止已开启的版本，当前活跃版本不受影响。
// 报告在成功与失败时都会生成并发送；爬虫未完成时只返回 ErrCrawlIncomplete，不发送报告。
func (r *Runner) Run(ctx context.Context, opts Options) (*notify.Report, error) {
	report := &notify.Report{DryRun: opts.DryRun, StartedAt: r.now()}
	err := r.run(ctx, opts, report)
	report.Err = err
	report.Duration = r.now().Sub(report.StartedAt)

	switch {
	case errors.Is(err, aggregate.ErrCrawlIncomplete):
		// 爬虫尚未跑完一轮是预期状态，调度会重复触发，不发送报告
		metrics.SyncTotal.WithLabelValues("not_ready").Inc()
		return report, err
	case errors.Is(err, synclock.ErrLocked):
		metrics.SyncTotal.WithLabelValues("locked").Inc()
	case err != nil:
		metrics.SyncTotal.WithLabelValues("failed").Inc()
	case opts.DryRun:
		metrics.SyncTotal.WithLabelValues("dry_run").Inc()
	default:
		metrics.SyncTotal.WithLabelValues("committed").Inc()
	}

	if nerr := r.notifier.Send(context.WithoutCancel(ctx), report); nerr != nil {
		r.logger.Warn("publish report not sent", slog.String("error", nerr.Error()))
	}
	return report, err
}

func (r *Runner) run(ctx context.Context, opts Options, report *notify.Report) error {
	if !opts.DryRun {
		if err := r.source.CheckComplete(ctx); err != nil {
			return fmt.Errorf("completeness gate: %w", err)
		}
	}

	if r.lock != nil && !opts.DryRun {
		lease, err := r.lock.Acquire(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("publish lock release failed", slog.String("error", err.Error()))
			}
		}()
	}

	items, err := r.source.Items(ctx)
	if err != nil {
		return err
	}
	usage, err := r.source.Usage(ctx)
	if err != nil {
		return err
	}
	pairs, err := r.source.Pairs(ctx)
	if err != nil {
		return err
	}
	from, to, err := r.source.Freshness(ctx)
	if err != nil {
		return err
	}
	report.Items, report.Usage, report.Pairs = len(items), len(usage), len(pairs)
	report.DataFrom, report.DataTo = from, to

	r.logger.Info("aggregation finished",
		slog.Int("items", len(items)),
		slog.Int("usage", len(usage)),
		slog.Int("pairs", len(pairs)))

	if opts.DryRun {
		if opts.Out != nil {
			writeDryRun(opts.Out, report)
		}
		return nil
	}

	itemTotals, err := r.publisher.PostItems(ctx, items)
	if err != nil {
		return fmt.Errorf("publish items: %w", err)
	}
	report.RowsWritten += itemTotals.Rows()

	version, err := r.publisher.StartSync(ctx)
	if err != nil {
		return err
	}
	report.Version = version
	r.logger.Info("sync started", slog.String("version", version))

	commit, err := r.fill(ctx, version, usage, pairs, from, to, report)
	if err != nil {
		r.abort(ctx, version, err)
		return err
	}
	report.PreviousVersion = commit.PreviousVersion
	report.RemovedVersions = commit.RemovedVersions
	r.logger.Info("sync committed",
		slog.String("version", commit.NewVersion),
		slog.String("previous_version", commit.PreviousVersion))

	if opts.CleanupRaw {
		n, err := r.source.CleanupRaw(ctx)
		if err != nil {
			// 版本已经提交，清理失败只记录
			r.logger.Error("raw cleanup failed", slog.String("error", err.Error()))
		}
		report.RawRowsDeleted = n
	}
	return nil
}

func (r *Runner) fill(ctx context.Context, version string, usage []model.UsageRecord, pairs []model.PairRecord, from, to *time.Time, report *notify.Report) (model.SyncCommitResponse, error) {
	usageTotals, err := r.publisher.PostUsage(ctx, version, usage)
	if err != nil {
		return model.SyncCommitResponse{}, fmt.Errorf("publish usage: %w", err)
	}
	report.RowsWritten += usageTotals.Rows()

	pairTotals, err := r.publisher.PostPairs(ctx, version, pairs)
	if err != nil {
		return model.SyncCommitResponse{}, fmt.Errorf("publish pairs: %w", err)
	}
	report.RowsWritten += pairTotals.Rows()

	return r.publisher.CommitSync(ctx, version, from, to)
}

// abort 中止版本。使用独立的超时 ctx，原 ctx 取消后仍能发出。
func (r *Runner) abort(ctx context.Context, version string, cause error) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := r.publisher.AbortSync(actx, version); err != nil {
		r.logger.Error("abort sync failed",
			slog.String("version", version),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()))
		return
	}
	r.logger.Warn("sync aborted", slog.String("version", version), slog.String("cause", cause.Error()))
}

func writeDryRun(w io.Writer, r *notify.Report) {
	fmt.Fprintf(w, "items\t%d\n", r.Items)
	fmt.Fprintf(w, "usage\t%d\n", r.Usage)
	fmt.Fprintf(w, "pairs\t%d\n", r.Pairs)
	if r.DataFrom != nil && r.DataTo != nil {
		fmt.Fprintf(w, "data_from\t%s\n", r.DataFrom.UTC().Format(time.RFC3339))
		fmt.Fprintf(w, "data_to\t%s\n", r.DataTo.UTC().Format(time.RFC3339))
	}
}
