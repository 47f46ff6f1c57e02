package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school-portal/internal/config"
	"school-portal/internal/database/minio"
	"school-portal/internal/database/postgres"
	"school-portal/internal/database/redis"
	"school-portal/internal/event"
	"school-portal/internal/handlers"
	"school-portal/internal/logging"
	"school-portal/internal/policy"
	"school-portal/internal/repository"
	"school-portal/internal/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.LoggingCfg.Level,
		Format: cfg.LoggingCfg.Format,
	})
	logging.Info().Str("environment", cfg.Environment).Str("port", cfg.Port).Msg("starting school-portal")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("server exited with error")
	}
	logging.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	db, err := postgres.ConnectWithRetry(ctx, cfg.PostgresCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	redisClient, err := redis.NewRedisClient(ctx, cfg.RedisCfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	var notifier services.Notifier
	if cfg.RabbitMQCfg.Enabled {
		conn, err := event.ConnectRabbitMQ(cfg.RabbitMQCfg)
		if err != nil {
			return err
		}
		defer conn.Close()
		notifier = event.NewNotificationPublisher(conn, cfg.RabbitMQCfg.Queue)
	} else {
		logging.Warn().Msg("RabbitMQ disabled, notifications will be dropped")
	}

	var archive services.ArchiveStore
	if cfg.MinioCfg.Enabled {
		minioClient, err := minio.NewMinioClient(ctx, cfg.MinioCfg)
		if err != nil {
			return err
		}
		archive = minioClient
	}

	enforcer, err := policy.NewEnforcer()
	if err != nil {
		return err
	}

	sessionService := services.NewSessionService(repository.NewSessionRepository(redisClient.GetClient()))
	auditService := services.NewAuditService(repository.NewAuditRepository(db), archive)
	authService, err := services.NewAuthService(
		repository.NewPrincipalRepository(db),
		sessionService,
		services.NewJWTService(cfg.AuthCfg.JWTSecret, cfg.AuthCfg.Issuer),
		auditService,
		repository.NewAuthCacheRepository(redisClient.GetClient()),
		notifier,
		cfg.AuthCfg,
	)
	if err != nil {
		return err
	}

	if err := authService.BootstrapAdmin(ctx, cfg.AuthCfg.BootstrapAdminUsername, cfg.AuthCfg.BootstrapAdminPassword); err != nil {
		return err
	}

	router := handlers.SetupRouter(handlers.RouterDeps{
		Config:         cfg,
		AuthService:    authService,
		SessionService: sessionService,
		AuditService:   auditService,
		AcademicRepo:   repository.NewAcademicRepository(db),
		Enforcer:       enforcer,
		Routes:         policy.NewRouteTable(policy.DefaultRouteRules),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
