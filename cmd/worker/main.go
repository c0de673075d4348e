package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridianfit/meridian/internal/app"
	"github.com/meridianfit/meridian/internal/observability"
	"github.com/meridianfit/meridian/internal/platform/db"
	"github.com/meridianfit/meridian/internal/push"
	"github.com/meridianfit/meridian/jobs"
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

	metrics := observability.NewMetrics()

	pushRepo := push.NewRepository(pool)
	pushSender := push.NewWebPushSender(push.VAPIDConfig{
		Subscriber: cfg.VAPIDSubscriber,
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		TTL:        cfg.PushTTL,
	})
	pushService := push.NewService(pushRepo, pushSender, logger, metrics)

	cron, err := jobs.DefaultCron()
	if err != nil {
		logger.Error("build cron schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Push:      pushService,
		Mailer:    jobs.LogMailer{Logger: logger},
		Cron:      cron,
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
