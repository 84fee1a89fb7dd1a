package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/riceledger/riceledger/internal/app"
	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
	"github.com/riceledger/riceledger/internal/observability"
	"github.com/riceledger/riceledger/internal/platform/cache"
	"github.com/riceledger/riceledger/internal/reports"
	"github.com/riceledger/riceledger/internal/shared"
	"github.com/riceledger/riceledger/jobs"
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

	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("open storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer storage.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = cache.New(ctx, redisOpts)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var locker shared.Locker = shared.NewLocalLocker()
	if cfg.LockBackend == app.LockRedis {
		locker = shared.NewRedisLocker(redisClient, cfg.LockTTL)
	}

	var notifier inventory.LowStockNotifier
	var jobHandler *jobs.Handler
	if cfg.LowStockNotify {
		jobClient := jobs.NewClient(redisOpts.AsynqOpt(), logger)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		notifier = jobClient

		inspector := asynq.NewInspector(redisOpts.AsynqOpt())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	metrics := observability.NewMetrics()

	inventoryService := inventory.NewService(inventory.Deps{
		Repo:     storage.Inventory,
		Audit:    storage.Audit,
		Locker:   locker,
		Notifier: notifier,
		Metrics:  metrics,
		Logger:   logger,
	}, inventory.ServiceConfig{DefaultOwner: cfg.LooseDefaultOwner})

	ledgerService := ledger.NewService(ledger.Deps{
		Repo:     storage.Ledger,
		Audit:    storage.Audit,
		Locker:   locker,
		Notifier: notifier,
		Metrics:  metrics,
		Logger:   logger,
	}, ledger.ServiceConfig{})

	reportsService := reports.NewService(ledgerService, inventoryService, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		LedgerHandler:    ledger.NewHandler(logger, ledgerService, storage.Idempotency),
		ReportsHandler:   reports.NewHandler(logger, reportsService),
		JobHandler:       jobHandler,
		Metrics:          metrics,
		Ready:            storage.Ping,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
