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

	"github.com/sojourn-loans/sojourn/internal/app"
	"github.com/sojourn-loans/sojourn/internal/auth"
	"github.com/sojourn-loans/sojourn/internal/loan"
	"github.com/sojourn-loans/sojourn/internal/observability"
	"github.com/sojourn-loans/sojourn/internal/platform/cache"
	"github.com/sojourn-loans/sojourn/internal/platform/db"
	"github.com/sojourn-loans/sojourn/internal/portal"
	"github.com/sojourn-loans/sojourn/internal/shared"
	"github.com/sojourn-loans/sojourn/jobs"
	"github.com/sojourn-loans/sojourn/report"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
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

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, redisClient, auth.Config{
		JWTSecret:  cfg.JWTSecret,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	})
	authHandler := auth.NewHandler(logger, authService)
	authMW := auth.Middleware{Service: authService, Logger: logger}

	auditLogger := shared.NewAuditLogger(dbpool)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	loanRepo := loan.NewRepository(dbpool)
	loanCache := loan.NewCache(redisClient, cfg.CacheTTL)
	loanService := loan.NewService(logger, loanRepo, loanCache, auditLogger, asynqClient)

	gotenberg := report.NewClient(cfg.GotenbergURL)
	if err := gotenberg.Ping(ctx); err != nil {
		// Schedule downloads fail until the sidecar comes up; everything
		// else keeps working.
		logger.Warn("gotenberg unreachable", slog.String("url", cfg.GotenbergURL), slog.Any("error", err))
	}
	pdfRenderer := report.NewRenderer(gotenberg)
	loanHandler := loan.NewHandler(logger, loanService, pdfRenderer)

	portalService := portal.NewService(loanService)
	portalHandler := portal.NewHandler(logger, portalService, pdfRenderer)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		AuthHandler:   authHandler,
		AuthMW:        authMW,
		LoanHandler:   loanHandler,
		PortalHandler: portalHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
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
