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

	"github.com/odyssey-erp/daybook/internal/app"
	"github.com/odyssey-erp/daybook/internal/catalog"
	cataloghttp "github.com/odyssey-erp/daybook/internal/catalog/http"
	"github.com/odyssey-erp/daybook/internal/days"
	dayshttp "github.com/odyssey-erp/daybook/internal/days/http"
	"github.com/odyssey-erp/daybook/internal/inventory"
	inventoryhttp "github.com/odyssey-erp/daybook/internal/inventory/http"
	"github.com/odyssey-erp/daybook/internal/observability"
	"github.com/odyssey-erp/daybook/internal/platform/cache"
	"github.com/odyssey-erp/daybook/internal/platform/db"
	"github.com/odyssey-erp/daybook/internal/platform/events"
	"github.com/odyssey-erp/daybook/internal/shared"
	"github.com/odyssey-erp/daybook/jobs"
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

	thresholds, err := cfg.Thresholds()
	if err != nil {
		logger.Error("discrepancy thresholds", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	publisher := events.NewKafkaPublisher(cfg.Brokers(), cfg.KafkaTopic, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("kafka close", slog.Any("error", err))
		}
	}()
	if !publisher.Enabled() {
		logger.Info("kafka publishing disabled")
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	summaryCache := days.NewSummaryCache(redisClient, cfg.SummaryCacheTTL)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, auditLogger, summaryCache)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, catalogRepo, auditLogger, idempotencyStore, summaryCache)

	daysRepo := days.NewRepository(dbpool)
	daysService := days.NewService(daysRepo, catalogRepo, inventoryRepo, thresholds, logger)
	daysService.WithAudit(auditLogger)
	daysService.WithPublisher(publisher)
	daysService.WithLocker(shared.NewLocker(redisClient, cfg.DayLockTTL))
	daysService.WithCache(summaryCache)
	daysService.WithMetrics(days.NewMetrics(metrics.Registerer()))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := asynq.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   cataloghttp.NewHandler(logger, catalogService),
		InventoryHandler: inventoryhttp.NewHandler(logger, inventoryService),
		DaysHandler:      dayshttp.NewHandler(logger, daysService),
		JobsHandler:      jobs.NewHandler(inspector, jobClient, cfg.VerifyLookbackDays, logger),
		Metrics:          metrics,
		Database:         dbpool,
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
