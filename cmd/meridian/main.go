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
	"github.com/meridian-cmms/meridian-cmms/internal/auth"
	"github.com/meridian-cmms/meridian-cmms/internal/equipment"
	"github.com/meridian-cmms/meridian-cmms/internal/inventory"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Redis backs the stock alert cache and the job queue. Both degrade
	// gracefully, so an outage only costs async generation and alerts.
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis unavailable, alert cache and queue disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	var alertCache *inventory.AlertCache
	if redisClient != nil {
		alertCache = inventory.NewAlertCache(redisClient, cfg.StockAlertTTL)
	}

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotencyStore, alertCache)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	equipmentRepo := equipment.NewRepository(pool)
	equipmentService := equipment.NewService(equipmentRepo, auditLogger)
	equipmentHandler := equipment.NewHandler(logger, equipmentService)

	maintenanceRepo := maintenance.NewRepository(pool)
	workOrdersRepo := workorders.NewRepository(pool)

	workOrderGateway := app.NewWorkOrderGateway()
	maintenanceService := maintenance.NewService(maintenanceRepo, workOrderGateway, equipmentService, auditLogger)
	workOrdersService := workorders.NewService(workOrdersRepo, inventoryService, maintenanceService, equipmentService, auditLogger)
	workOrderGateway.Bind(workOrdersService)

	workOrdersHandler := workorders.NewHandler(logger, workOrdersService)

	var enqueuer maintenance.GenerateEnqueuer
	var jobsHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
		jobsClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init jobs client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		enqueuer = jobsClient

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobsHandler = jobs.NewHandler(inspector, logger)
	}
	maintenanceHandler := maintenance.NewHandler(maintenanceService, enqueuer)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	keysHandler := auth.NewHandler(authService)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Pool:               pool,
		AuthService:        authService,
		KeysHandler:        keysHandler,
		InventoryHandler:   inventoryHandler,
		EquipmentHandler:   equipmentHandler,
		WorkOrdersHandler:  workOrdersHandler,
		MaintenanceHandler: maintenanceHandler,
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
