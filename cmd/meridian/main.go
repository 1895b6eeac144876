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
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/assets"
	"github.com/meridian-erp/meridian-erp/internal/expenses"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/invoicing"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/purchasing"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/treasury"
	"github.com/meridian-erp/meridian-erp/jobs"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	balanceCache := accounts.NewCache(redisClient, cfg.BalanceCacheTTL)
	// Balance invalidation rides on the audit path: services record audit
	// after their transaction commits, never inside it.
	auditSink := accounts.NewInvalidatingSink(shared.NewAuditLogger(pool), balanceCache, logger)

	ledgerRepo := ledger.NewRepository(pool)
	fiscalRepo := fiscal.NewRepository(pool)
	engine := ledger.NewEngine(ledgerRepo, fiscalRepo, metrics, logger)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, logger)
	accountsService.WithCache(balanceCache)

	fiscalService := fiscal.NewService(fiscalRepo, engine, auditSink)
	expensesService := expenses.NewService(expenses.NewRepository(pool), engine, auditSink, logger)
	purchasingService := purchasing.NewService(purchasing.NewRepository(pool), engine, auditSink, logger)
	invoicingService := invoicing.NewService(invoicing.NewRepository(pool), engine, auditSink, logger)
	treasuryService := treasury.NewService(treasury.NewRepository(pool), engine, auditSink, logger)
	assetsService := assets.NewService(assets.NewRepository(pool), engine, auditSink, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountsHandler:   accounts.NewHandler(logger, accountsService),
		LedgerHandler:     ledger.NewHandler(logger, ledgerRepo),
		FiscalHandler:     fiscal.NewHandler(logger, fiscalService),
		ExpensesHandler:   expenses.NewHandler(logger, expensesService),
		PurchasingHandler: purchasing.NewHandler(logger, purchasingService),
		InvoicingHandler:  invoicing.NewHandler(logger, invoicingService),
		TreasuryHandler:   treasury.NewHandler(logger, treasuryService),
		AssetsHandler:     assets.NewHandler(logger, assetsService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
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
