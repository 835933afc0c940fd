package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/PhantomL4rd/mirapuri-stats/internal/config"
	"github.com/PhantomL4rd/mirapuri-stats/internal/crawler"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/logger"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/ratelimit"
	"github.com/PhantomL4rd/mirapuri-stats/internal/store"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Crawl character glamour from the Lodestone into the raw store",
		Long: `crawler walks the shuffled search-key space, collects level-capped
characters and stores their glamour. Progress is checkpointed after every
key, so an interrupted run resumes where it stopped.

Examples:
  # Resume or start a pass with the configured limit
  crawler -c configs/config.json

  # Print the shuffled key order without touching the network or database
  crawler --dry-run --seed 42`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCrawler,
	}

	cmd.Flags().StringP("config", "c", "", "Path to config file (default configs/config.json)")
	cmd.Flags().Bool("dry-run", false, "Print the shuffled search keys and exit")
	cmd.Flags().Int("limit", 0, "Override crawler.limit for this run")
	cmd.Flags().Int64("seed", 0, "Override crawler.seed for this run")
	return cmd
}

func runCrawler(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("limit") {
		cfg.Crawler.Limit, _ = cmd.Flags().GetInt("limit")
	}
	if cmd.Flags().Changed("seed") {
		cfg.Crawler.Seed, _ = cmd.Flags().GetInt64("seed")
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dryRun {
		orch := crawler.NewOrchestrator(cfg.Crawler, crawler.Deps{}, appLogger)
		_, err := orch.Run(ctx, crawler.RunOptions{DryRun: true, Out: cmd.OutOrStdout()})
		return err
	}

	db, err := store.Open(cfg.MySQL.RawDSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(db); err != nil {
			appLogger.Error("close raw store failed", slog.String("error", err.Error()))
		}
	}()
	if err := store.MigrateRaw(db); err != nil {
		return err
	}
	raw := store.NewRawStore(db)

	var shared crawler.TokenAcquirer
	if cfg.RateLimit.Rate > 0 && cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		shared = ratelimit.NewTokenBucket(rdb, appLogger, cfg.RateLimit.Key, cfg.RateLimit.Rate, cfg.RateLimit.Burst).
			WithHolder(cfg.Crawler.Name)
		appLogger.Info("shared upstream rate limit enabled",
			slog.Float64("rate", cfg.RateLimit.Rate),
			slog.Float64("burst", cfg.RateLimit.Burst))
	}

	base := crawler.NewRateLimitedClient(cfg.Crawler.RequestInterval, cfg.Crawler.RequestTimeout, cfg.Crawler.UserAgent, shared, appLogger)
	client := crawler.NewRetryClient(base, appLogger,
		crawler.WithMaxAttempts(cfg.Crawler.RetryAttempts),
		crawler.WithRetryDelay(cfg.Crawler.RetryDelay))
	urls := crawler.NewURLBuilder(cfg.Crawler.BaseURL)

	orch := crawler.NewOrchestrator(cfg.Crawler, crawler.Deps{
		Lister:   crawler.NewListFetcher(client, urls, cfg.Crawler.MinLevel, cfg.Crawler.MaxPages, appLogger),
		Scraper:  crawler.NewScraper(client, urls, raw, appLogger),
		Index:    raw,
		Progress: store.NewProgressStore(db),
	}, appLogger)

	metricsServer := startMetrics(cfg.App.MetricsAddr, appLogger)
	defer shutdownMetrics(metricsServer, appLogger)

	res, err := orch.Run(ctx, crawler.RunOptions{})
	if errors.Is(err, context.Canceled) && res != nil {
		appLogger.Info("crawl interrupted, progress kept for resume",
			slog.Int("processed", res.ProcessedCharacters),
			slog.Int("processed_keys", res.ProcessedKeys))
		return nil
	}
	return err
}

func startMetrics(addr string, appLogger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: promhttp.Handler()}
	go func() {
		appLogger.Info("crawler metrics server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()
	return srv
}

func shutdownMetrics(srv *http.Server, appLogger *slog.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}
}
