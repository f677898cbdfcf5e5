package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vietwatch/disaster-crawler/internal/adapter/feed"
	httpadapter "github.com/vietwatch/disaster-crawler/internal/adapter/http"
	kafkaadapter "github.com/vietwatch/disaster-crawler/internal/adapter/kafka"
	"github.com/vietwatch/disaster-crawler/internal/classify"
	"github.com/vietwatch/disaster-crawler/internal/config"
	"github.com/vietwatch/disaster-crawler/internal/domain"
	"github.com/vietwatch/disaster-crawler/internal/observability"
	"github.com/vietwatch/disaster-crawler/internal/pipeline"
	"github.com/vietwatch/disaster-crawler/internal/scheduler"
	"github.com/vietwatch/disaster-crawler/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	sources, err := domain.LoadSources(cfg.SourcesFile)
	if err != nil {
		logger.Error("failed to load source catalog", "error", err)
		os.Exit(1)
	}

	rules, err := classify.LoadRules(cfg.RulesFile)
	if err != nil {
		logger.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	classifier, err := classify.New(rules)
	if err != nil {
		logger.Error("failed to compile rules", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBURL, cfg.Timezone, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err, "db_url", cfg.DBURL)
		os.Exit(1)
	}

	logs, err := store.OpenRunLogs(cfg.LogsDir)
	if err != nil {
		logger.Error("failed to open run logs", "error", err, "dir", cfg.LogsDir)
		os.Exit(1)
	}

	fetcher, err := feed.NewFetcher(feed.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
		ProxyPool: cfg.ProxyPool,
	}, st, logger)
	if err != nil {
		logger.Error("failed to build fetcher", "error", err)
		os.Exit(1)
	}

	notifier := kafkaadapter.NewNotifier(
		cfg.KafkaBrokers, cfg.KafkaEventsTopic, cfg.BroadcastQueue,
		cfg.ShutdownTimeout/2, logs.Push, logger, metrics,
	)

	worker := pipeline.NewWorker(
		fetcher, classifier, st, notifier,
		logs.Review, cfg.StoreRejected, logger, metrics,
	)

	sched := scheduler.New(
		sources, worker, st, logs,
		cfg.CrawlInterval, cfg.MaxConcurrency,
		domain.Clock(), logger, metrics,
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, sched, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Let the in-flight tick drain before touching the notifier or the pool;
	// workers may still be finishing their current article.
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("tick drain timed out, shutting down anyway")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := notifier.Close(); err != nil {
		logger.Error("notifier close error", "error", err)
	}
	if err := st.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("shutdown complete")
}
