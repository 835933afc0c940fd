package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/PhantomL4rd/mirapuri-stats/internal/config"
	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/metrics"
)

const defaultLimit = 5000

// CharacterLister 返回一个检索键下的角色 ID。
type CharacterLister interface {
	FetchCharacterIDs(ctx context.Context, key SearchKey) ([]string, error)
}

// CharacterScraper 抓取单个角色。
type CharacterScraper interface {
	Scrape(ctx context.Context, characterID string) ScrapeResult
}

// CharacterIndex 原始库中的角色存在性检查。
type CharacterIndex interface {
	CharacterExists(ctx context.Context, characterID string) (bool, error)
}

// ProgressStore 爬虫进度的读写。
type ProgressStore interface {
	Load(ctx context.Context, crawlerName string) (*model.CrawlProgress, error)
	Save(ctx context.Context, crawlerName string, p *model.CrawlProgress) error
}

// Deps Orchestrator 的协作者。
type Deps struct {
	Lister   CharacterLister
	Scraper  CharacterScraper
	Index    CharacterIndex
	Progress ProgressStore
}

// RunOptions 单次运行的选项。
type RunOptions struct {
	DryRun bool
	Out    io.Writer // dry-run 输出，默认丢弃
}

// RunResult 单次运行的统计。
type RunResult struct {
	Seed                int64
	TotalKeys           int
	StartIndex          int
	ProcessedKeys       int
	ProcessedCharacters int // 含上次被打断运行的累计值
	SkippedCharacters   int
	ExistingCharacters  int
	ErroredCharacters   int
	OptedOutCharacters  int
	ExitReason          model.ExitReason
	Duration            time.Duration
}

// Orchestrator 驱动一次爬虫运行：恢复、遍历、跳过已有角色、上限、检查点。
type Orchestrator struct {
	cfg     config.CrawlerConfig
	deps    Deps
	logger  *slog.Logger
	newSeed func() int64
}

// NewOrchestrator 创建爬虫编排器。
func NewOrchestrator(cfg config.CrawlerConfig, deps Deps, logger *slog.Logger) *Orchestrator {
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger, newSeed: NewSeed}
}

// Keys 返回规范枚举顺序的完整检索空间。
func (o *Orchestrator) Keys() []SearchKey {
	return EnumerateKeys(o.cfg.Worlds, o.cfg.Jobs, o.cfg.Tribes, o.cfg.GrandCompanies)
}

// plan 根据上次进度决定本次的种子、起始位置与累计计数。
//
//   - 无进度，或上次 COMPLETED：新一轮，从 0 开始。
//   - 上次 LIMIT_REACHED：沿用种子从 last+1 继续，计数重置。
//   - 上次被打断：沿用种子从 last+1 继续，计数累加。
func (o *Orchestrator) plan(prior *model.CrawlProgress) (seed int64, start, processed int) {
	if prior == nil || prior.ExitReason == model.ExitCompleted {
		seed = o.cfg.Seed
		if seed == 0 {
			seed = o.newSeed()
		}
		return seed, 0, 0
	}

	seed = prior.Seed
	if o.cfg.Seed != 0 && o.cfg.Seed != prior.Seed {
		o.logger.Warn("configured seed differs from resumed progress, shuffled order is no longer comparable",
			slog.Int64("configured_seed", o.cfg.Seed),
			slog.Int64("resumed_seed", prior.Seed))
		seed = o.cfg.Seed
	}
	start = prior.LastCompletedShuffledIndex + 1
	if start < 0 {
		start = 0
	}
	if prior.ExitReason == "" {
		processed = prior.ProcessedCharacters
	}
	return seed, start, processed
}

// Run 执行一次爬虫运行。
//
// 每完成一个检索键写一次检查点，运行结束时写入带 ExitReason 的最终检查点。
// 检查点写入失败视为致命错误。
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	started := time.Now()
	keys := o.Keys()

	if opts.DryRun {
		return o.dryRun(keys, opts.Out), nil
	}

	prior, err := o.deps.Progress.Load(ctx, o.cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	seed, start, processed := o.plan(prior)
	if prior != nil && prior.TotalKeys != 0 && prior.TotalKeys != len(keys) && start > 0 {
		o.logger.Warn("key space size changed since last run",
			slog.Int("previous_total", prior.TotalKeys),
			slog.Int("current_total", len(keys)))
	}

	shuffled := ShuffleKeys(keys, seed)
	res := &RunResult{
		Seed:                seed,
		TotalKeys:           len(shuffled),
		StartIndex:          start,
		ProcessedCharacters: processed,
	}
	last := start - 1
	limitHit := false

	o.logger.Info("crawl started",
		slog.String("crawler", o.cfg.Name),
		slog.Int64("seed", seed),
		slog.Int("start_index", start),
		slog.Int("total_keys", len(shuffled)),
		slog.Int("processed", processed),
		slog.Int("limit", o.cfg.Limit))

	for pos := start; pos < len(shuffled); pos++ {
		if res.ProcessedCharacters >= o.cfg.Limit {
			limitHit = true
			break
		}
		key := shuffled[pos]

		ids, err := o.deps.Lister.FetchCharacterIDs(ctx, key)
		if err != nil {
			metrics.CrawlErrorsTotal.WithLabelValues("list").Inc()
			o.logger.Warn("character list incomplete",
				slog.String("key", key.String()),
				slog.Int("ids", len(ids)),
				slog.String("error", err.Error()))
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		limitHit = o.processCharacters(ctx, key, ids, res)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if limitHit {
			break
		}

		last = pos
		res.ProcessedKeys++
		metrics.CrawlKeysTotal.Inc()
		if err := o.checkpoint(ctx, last, seed, res, ""); err != nil {
			return res, err
		}
		if res.ProcessedCharacters >= o.cfg.Limit && pos < len(shuffled)-1 {
			limitHit = true
			break
		}
	}

	res.ExitReason = model.ExitCompleted
	if limitHit {
		res.ExitReason = model.ExitLimitReached
	}
	if err := o.checkpoint(ctx, last, seed, res, res.ExitReason); err != nil {
		return res, err
	}
	res.Duration = time.Since(started)

	o.logger.Info("crawl finished",
		slog.String("crawler", o.cfg.Name),
		slog.String("exit_reason", string(res.ExitReason)),
		slog.Int("processed_keys", res.ProcessedKeys),
		slog.Int("processed", res.ProcessedCharacters),
		slog.Int("skipped", res.SkippedCharacters),
		slog.Int("existing", res.ExistingCharacters),
		slog.Int("errored", res.ErroredCharacters),
		slog.Int("opted_out", res.OptedOutCharacters),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// processCharacters 处理一个检索键下的角色，达到上限时返回 true。
func (o *Orchestrator) processCharacters(ctx context.Context, key SearchKey, ids []string, res *RunResult) bool {
	for _, id := range ids {
		if res.ProcessedCharacters >= o.cfg.Limit {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		exists, err := o.deps.Index.CharacterExists(ctx, id)
		if err != nil {
			res.ErroredCharacters++
			metrics.CrawlCharactersTotal.WithLabelValues("errored").Inc()
			metrics.CrawlErrorsTotal.WithLabelValues(string(ErrorKindDB)).Inc()
			o.logger.Warn("existence check failed", slog.String("character_id", id), slog.String("error", err.Error()))
			continue
		}
		if exists {
			res.ExistingCharacters++
			metrics.CrawlCharactersTotal.WithLabelValues("existing").Inc()
			continue
		}

		r := o.deps.Scraper.Scrape(ctx, id)
		for _, e := range r.Errors {
			metrics.CrawlErrorsTotal.WithLabelValues(string(e.Kind)).Inc()
			o.logger.Warn("scrape error",
				slog.String("character_id", id),
				slog.String("key", key.String()),
				slog.String("kind", string(e.Kind)),
				slog.String("error", e.Err.Error()))
		}
		switch {
		case r.Saved > 0:
			res.ProcessedCharacters++
			metrics.CrawlCharactersTotal.WithLabelValues("processed").Inc()
		case len(r.Errors) > 0:
			res.ErroredCharacters++
			metrics.CrawlCharactersTotal.WithLabelValues("errored").Inc()
		case r.OptedOut:
			res.OptedOutCharacters++
			res.SkippedCharacters++
			metrics.CrawlCharactersTotal.WithLabelValues("opted_out").Inc()
		default:
			res.SkippedCharacters++
			metrics.CrawlCharactersTotal.WithLabelValues("skipped").Inc()
		}
	}
	return false
}

func (o *Orchestrator) checkpoint(ctx context.Context, last int, seed int64, res *RunResult, exit model.ExitReason) error {
	p := &model.CrawlProgress{
		SchemaVersion:              model.CrawlProgressSchemaVersion,
		LastCompletedShuffledIndex: last,
		TotalKeys:                  res.TotalKeys,
		ProcessedCharacters:        res.ProcessedCharacters,
		Seed:                       seed,
		ExitReason:                 exit,
	}
	if err := o.deps.Progress.Save(ctx, o.cfg.Name, p); err != nil {
		return fmt.Errorf("save progress at shuffled index %d: %w", last, err)
	}
	return nil
}

// dryRun 打印洗牌后的检索键，不发起请求，也不读写进度。
func (o *Orchestrator) dryRun(keys []SearchKey, out io.Writer) *RunResult {
	if out == nil {
		out = io.Discard
	}
	seed := o.cfg.Seed
	if seed == 0 {
		seed = o.newSeed()
	}
	shuffled := ShuffleKeys(keys, seed)
	fmt.Fprintf(out, "# seed=%d total_keys=%d\n", seed, len(shuffled))
	for pos, k := range shuffled {
		fmt.Fprintf(out, "%d\t%d\t%s\t%d\t%s\t%d\n", pos, k.Index, k.World, k.ClassJobID, k.RaceTribeID, k.GrandCompanyID)
	}
	return &RunResult{Seed: seed, TotalKeys: len(shuffled)}
}
