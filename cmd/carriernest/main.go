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
	"github.com/joho/godotenv"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/app"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/auth"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/driverinvoices"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/invoices"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/observability"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/cache"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/db"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/shared"
	"github.com/mannybatth/carrier-nest-web-sub010/jobs"
)

func main() {
	if app.SkipStartup("api") {
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, HealthCheckPeriod: time.Minute})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "carriernest_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpt)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	authHandler := auth.NewHandler(logger, auth.NewService(auth.NewRepository(dbpool)), sessionManager)

	invoiceService := invoices.NewService(invoices.NewRepository(dbpool), logger,
		invoices.WithAuditor(auditLogger),
		invoices.WithRecorder(metrics),
	)
	invoicesHandler := invoices.NewHandler(logger, invoiceService, idempotencyStore)

	driverInvoiceService := driverinvoices.NewService(driverinvoices.NewRepository(dbpool), logger,
		driverinvoices.WithNotifier(jobClient),
		driverinvoices.WithAuditor(auditLogger),
		driverinvoices.WithRecorder(metrics),
	)
	driverInvoicesHandler := driverinvoices.NewHandler(logger, driverInvoiceService, idempotencyStore)

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		SessionManager:        sessionManager,
		AuthHandler:           authHandler,
		InvoicesHandler:       invoicesHandler,
		DriverInvoicesHandler: driverInvoicesHandler,
		JobHandler:            jobs.NewHandler(inspector, logger),
		Metrics:               metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := idempotencyStore.Cleanup(ctx, 24*time.Hour); err != nil {
					logger.Warn("idempotency cleanup", slog.Any("error", err))
				}
			}
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
