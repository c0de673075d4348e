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

	"github.com/meridianfit/meridian/internal/app"
	"github.com/meridianfit/meridian/internal/auth"
	"github.com/meridianfit/meridian/internal/catalog"
	"github.com/meridianfit/meridian/internal/checkins"
	"github.com/meridianfit/meridian/internal/gate"
	"github.com/meridianfit/meridian/internal/identity"
	"github.com/meridianfit/meridian/internal/observability"
	"github.com/meridianfit/meridian/internal/platform/cache"
	"github.com/meridianfit/meridian/internal/platform/db"
	"github.com/meridianfit/meridian/internal/profiles"
	"github.com/meridianfit/meridian/internal/push"
	"github.com/meridianfit/meridian/internal/shared"
	"github.com/meridianfit/meridian/internal/view"
	"github.com/meridianfit/meridian/jobs"
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

	sessionManager := shared.NewSessionManager(redisClient, "meridian_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	provider := identity.NewClient(identity.ClientConfig{
		BaseURL:   cfg.AuthURL,
		AnonKey:   cfg.AuthAnonKey,
		JWTSecret: cfg.AuthJWTSecret,
	})

	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	profileRepo := profiles.NewRepository(dbpool)
	profileService := profiles.NewService(profileRepo, auditLogger, logger)
	profileHandler := profiles.NewHandler(logger, profileService, templates, csrfManager, jobClient)

	authService := auth.NewService(provider, profileService, logger)
	authHandler := auth.NewHandler(logger, provider, authService, templates, sessionManager, csrfManager)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, auditLogger, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	checkinRepo := checkins.NewRepository(dbpool)
	checkinService := checkins.NewService(checkinRepo)
	checkinHandler := checkins.NewHandler(logger, checkinService, templates, csrfManager)

	pushRepo := push.NewRepository(dbpool)
	pushSender := push.NewWebPushSender(push.VAPIDConfig{
		Subscriber: cfg.VAPIDSubscriber,
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		TTL:        cfg.PushTTL,
	})
	pushService := push.NewService(pushRepo, pushSender, logger, metrics)
	pushHandler := push.NewHandler(logger, pushService)

	gateMiddleware := &gate.Middleware{
		Provider: provider,
		Profiles: profileService,
		Sessions: sessionManager,
		Routes:   gate.DefaultRoutes(),
		Logger:   logger,
		Metrics:  metrics,
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Templates:       templates,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		Gate:            gateMiddleware,
		AuthHandler:     authHandler,
		ProfilesHandler: profileHandler,
		CatalogHandler:  catalogHandler,
		CheckInsHandler: checkinHandler,
		PushHandler:     pushHandler,
		JobHandler:      jobHandler,
		Profiles:        profileService,
		Jobs:            jobClient,
		Metrics:         metrics,
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
