package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-cmms/meridian-cmms/internal/app"
	"github.com/meridian-cmms/meridian-cmms/internal/equipment"
	"github.com/meridian-cmms/meridian-cmms/internal/inventory"
	jobmetrics "github.com/meridian-cmms/meridian-cmms/internal/jobs"
	"github.com/meridian-cmms/meridian-cmms/internal/maintenance"
	"github.com/meridian-cmms/meridian-cmms/internal/observability"
	"github.com/meridian-cmms/meridian-cmms/internal/platform/cache"
	"github.com/meridian-cmms/meridian-cmms/internal/platform/db"
	"github.com/meridian-cmms/meridian-cmms/internal/shared"
	"github.com/meridian-cmms/meridian-cmms/internal/workorders"
	"github.com/meridian-cmms/meridian-cmms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The queue lives in Redis, so unlike the web process the worker
	// cannot start without it.
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	alertCache := inventory.NewAlertCache(redisClient, cfg.StockAlertTTL)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotencyStore, alertCache)

	equipmentRepo := equipment.NewRepository(pool)
	equipmentService := equipment.NewService(equipmentRepo, auditLogger)

	maintenanceRepo := maintenance.NewRepository(pool)
	workOrdersRepo := workorders.NewRepository(pool)

	workOrderGateway := app.NewWorkOrderGateway()
	maintenanceService := maintenance.NewService(maintenanceRepo, workOrderGateway, equipmentService, auditLogger)
	workOrdersService := workorders.NewService(workOrdersRepo, inventoryService, maintenanceService, equipmentService, auditLogger)
	workOrderGateway.Bind(workOrdersService)

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	generateJob := jobs.NewPMGenerateJob(maintenanceService, logger, jobMetrics)

	nightlyTask, err := jobs.NewPMGenerateTask(cfg.PMGenerateLimit, false)
	if err != nil {
		logger.Error("build nightly generate task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPMGenerate, Handler: generateJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PMGenerateCron, Task: nightlyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metricsMux}
	go func() {
		logger.Info("starting metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
