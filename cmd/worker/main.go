package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sojourn-loans/sojourn/internal/app"
	jobmetrics "github.com/sojourn-loans/sojourn/internal/jobs"
	"github.com/sojourn-loans/sojourn/internal/loan"
	"github.com/sojourn-loans/sojourn/internal/platform/cache"
	"github.com/sojourn-loans/sojourn/internal/platform/db"
	"github.com/sojourn-loans/sojourn/internal/shared"
	"github.com/sojourn-loans/sojourn/jobs"
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

	auditLogger := shared.NewAuditLogger(pool)
	loanRepo := loan.NewRepository(pool)
	loanCache := loan.NewCache(redisClient, cfg.CacheTTL)
	loanService := loan.NewService(logger, loanRepo, loanCache, auditLogger, nil)

	metrics := jobmetrics.NewMetrics(nil)
	refreshJob := jobs.NewStatusRefreshJob(loanService, logger, metrics)

	mailer := jobs.NewMailer(jobs.MailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		NotifyTo: cfg.NotifyEmail,
	}, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: loan.TaskTypeStatusRefresh, Handler: refreshJob.Handle},
			{Type: loan.TaskTypePaymentReceipt, Handler: mailer.HandleReceiptTask},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.CronStatusRefresh, Task: loan.NewStatusRefreshTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
