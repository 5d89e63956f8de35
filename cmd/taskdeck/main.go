package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crowvale/taskdeck/internal/config"
	"github.com/crowvale/taskdeck/internal/directory"
	"github.com/crowvale/taskdeck/internal/feed"
	"github.com/crowvale/taskdeck/internal/gateway"
	"github.com/crowvale/taskdeck/internal/httpapi"
	"github.com/crowvale/taskdeck/internal/notify"
	"github.com/crowvale/taskdeck/internal/observability"
	"github.com/crowvale/taskdeck/internal/optimistic"
	"github.com/crowvale/taskdeck/internal/service"
	"github.com/crowvale/taskdeck/internal/store"
	"github.com/crowvale/taskdeck/internal/sweep"
	"github.com/crowvale/taskdeck/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := observability.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)

	ctx := context.Background()

	var (
		gw  gateway.TaskGateway
		dir directory.Directory
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database pool init failed", zap.Error(err))
		}
		pg, err := gateway.NewPostgres(ctx, pool)
		if err != nil {
			logger.Fatal("task gateway init failed", zap.Error(err))
		}
		pgDir, err := directory.NewPostgres(ctx, pool)
		if err != nil {
			logger.Fatal("directory init failed", zap.Error(err))
		}
		gw = pg
		dir = pgDir
		logger.Info("persistence: postgres")
	} else {
		gw = gateway.NewMemory()
		dir = directory.NewStatic()
		logger.Info("persistence: in-memory (no DATABASE_URL)")
	}
	defer gw.Close()

	taskStore := store.New()
	listeners := feed.NewManager()

	// The process-level task feed keeps the store in sync with the gateway's
	// snapshot pushes. Every other component reads the store, never the feed.
	err = listeners.Subscribe("tasks", func() (feed.Teardown, error) {
		return gw.SubscribeTasks(func(tasks []workflow.Task) {
			taskStore.ReplaceAll(tasks)
			metrics.FeedSnapshots.Inc()
		})
	})
	if err != nil {
		logger.Fatal("task feed subscribe failed", zap.Error(err))
	}
	defer listeners.UnsubscribeAll()

	engine := workflow.NewEngine(dir)
	coord := optimistic.New(taskStore)
	sink := notify.NewLogSink(logger)
	svc := service.New(taskStore, engine, coord, gw, sink, sink, metrics, logger)

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	sweeper := sweep.New(taskStore, gw, cfg.SweepInterval, cfg.ReactivationWindow, metrics, logger)
	sweeper.Start(runCtx)

	api := httpapi.New(cfg, svc, dir, gw, listeners, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
