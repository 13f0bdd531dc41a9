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

	"github.com/threadline-retail/threadline/internal/alerts"
	"github.com/threadline-retail/threadline/internal/app"
	"github.com/threadline-retail/threadline/internal/billing"
	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/ledger"
	"github.com/threadline-retail/threadline/internal/platform/cache"
	"github.com/threadline-retail/threadline/internal/platform/db"
	"github.com/threadline-retail/threadline/internal/returns"
	"github.com/threadline-retail/threadline/internal/shared"
	"github.com/threadline-retail/threadline/internal/trash"
	"github.com/threadline-retail/threadline/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, alert caching disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditLogger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerHandler := ledger.NewHandler(logger, ledgerRepo)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, auditLogger)
	billingHandler := billing.NewHandler(logger, billingService)

	returnsRepo := returns.NewRepository(pool)
	returnsService := returns.NewService(returnsRepo, auditLogger, idempotencyStore)
	returnsHandler := returns.NewHandler(logger, returnsService)

	alertsCache := alerts.NewCache(redisClient, cfg.AlertCacheTTL)
	alertsService := alerts.NewService(catalogRepo, alertsCache)
	alertsHandler := alerts.NewHandler(logger, alertsService)

	trashRepo := trash.NewRepository(pool)
	trashService := trash.NewService(trashRepo, auditLogger)
	trashHandler := trash.NewHandler(logger, trashService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		CatalogHandler: catalogHandler,
		LedgerHandler:  ledgerHandler,
		BillingHandler: billingHandler,
		ReturnsHandler: returnsHandler,
		AlertsHandler:  alertsHandler,
		TrashHandler:   trashHandler,
		JobsHandler:    jobsHandler,
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
