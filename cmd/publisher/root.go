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

	"github.com/PhantomL4rd/mirapuri-stats/internal/aggregate"
	"github.com/PhantomL4rd/mirapuri-stats/internal/config"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/logger"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/notify"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/synclock"
	"github.com/PhantomL4rd/mirapuri-stats/internal/publish"
	"github.com/PhantomL4rd/mirapuri-stats/internal/store"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publisher",
		Short: "Aggregate the raw store and publish a new statistics version",
		Long: `publisher checks that the latest crawl finished a pass, aggregates
usage and pair statistics with the privacy floor, uploads them to the
publish API under a fresh version and commits it. Any failure after the
version is opened aborts it; readers keep seeing the previous version.

Examples:
  # Publish and commit
  publisher -c configs/config.json

  # Aggregate only and print the row counts
  publisher --dry-run

  # Delete raw glamour rows after a successful commit
  publisher --cleanup-raw`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPublisher,
	}

	cmd.Flags().StringP("config", "c", "", "Path to config file (default configs/config.json)")
	cmd.Flags().Bool("dry-run", false, "Aggregate and report counts without the completeness gate or any write")
	cmd.Flags().Bool("cleanup-raw", false, "Delete raw glamour rows after a successful commit")
	return cmd
}

func runPublisher(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	cleanupRaw, _ := cmd.Flags().GetBool("cleanup-raw")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	agg := aggregate.New(db, store.NewProgressStore(db), cfg.Publish.ExcludedItems, appLogger)

	var lock publish.Lock
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		lock = synclock.NewLocker(rdb, cfg.Publish.LockKey, cfg.Publish.LockTTL)
	} else if !dryRun {
		appLogger.Warn("redis not configured, publish runs are not mutually excluded")
	}

	runner := publish.NewRunner(agg, publish.NewClient(cfg.Publish, appLogger), lock,
		notify.NewEmailNotifier(&cfg.Email, appLogger), appLogger)

	metricsServer := startMetrics(cfg.App.MetricsAddr, appLogger)
	defer shutdownMetrics(metricsServer, appLogger)

	report, err := runner.Run(ctx, publish.Options{
		DryRun:     dryRun,
		CleanupRaw: cleanupRaw || cfg.Publish.CleanupRaw,
		Out:        cmd.OutOrStdout(),
	})
	if errors.Is(err, aggregate.ErrCrawlIncomplete) {
		appLogger.Warn("publish skipped, latest crawl has not finished a pass")
		return nil
	}
	if err != nil {
		return err
	}
	if !dryRun {
		appLogger.Info("publish finished",
			slog.String("version", report.Version),
			slog.String("previous_version", report.PreviousVersion),
			slog.Int64("rows_written", report.RowsWritten),
			slog.Duration("duration", report.Duration))
	}
	return nil
}

func startMetrics(addr string, appLogger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: promhttp.Handler()}
	go func() {
		appLogger.Info("publisher metrics server started", slog.String("addr", addr))
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
