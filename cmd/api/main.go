package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/aquafarm-service/internal/api/http"
	"github.com/spec-kit/aquafarm-service/internal/api/http/handlers"
	"github.com/spec-kit/aquafarm-service/internal/auth"
	"github.com/spec-kit/aquafarm-service/internal/config"
	"github.com/spec-kit/aquafarm-service/internal/events"
	"github.com/spec-kit/aquafarm-service/internal/observability"
	"github.com/spec-kit/aquafarm-service/internal/persistence"
	"github.com/spec-kit/aquafarm-service/internal/repository"
	"github.com/spec-kit/aquafarm-service/internal/service"
	"github.com/spec-kit/aquafarm-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.Pool()
	identityRepo := repository.NewIdentityRepository(pool)
	permissionRepo := repository.NewPermissionRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	registerAuditLog(dispatcher, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL(), cfg.Auth.RefreshTokenTTL())
	cache := auth.NewIdentityCache(identityRepo, cfg.Auth.CacheIdleTTL(), logger)
	limiter := auth.NewLoginLimiter(redis.Client,
		time.Duration(cfg.Auth.LoginWindowSeconds)*time.Second, cfg.Auth.LoginMaxAttempts, logger)
	engine := auth.NewEngine(permissionRepo)

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		Identities: identityRepo,
		Cache:      cache,
		Tokens:     tokens,
		Limiter:    limiter,
		Dispatcher: dispatcher,
		Metrics:    metrics,
	})
	permService := service.NewPermissionService(engine, identityRepo, dispatcher)
	authMiddleware := auth.NewMiddleware(tokens, cache, identityRepo)

	worker.StartSweeper(ctx, cache, cfg.Auth.SweepInterval(), logger)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(redis),
		Auth:           handlers.NewAuthHandler(authService),
		Permissions:    handlers.NewPermissionsHandler(permService),
		AuthMiddleware: authMiddleware,
		Engine:         engine,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	cache.Shutdown(flushCtx)
}

// registerAuditLog subscribes a zap-backed audit sink to every auth event.
func registerAuditLog(dispatcher events.Dispatcher, logger *zap.Logger) {
	audit := logger.Named("audit")
	handler := func(_ context.Context, e events.Event) error {
		audit.Info(string(e.Type),
			zap.String("event_id", e.ID),
			zap.String("user_id", e.UserID),
			zap.String("account_id", e.AccountID),
			zap.String("actor_id", e.ActorID),
			zap.Any("payload", e.Payload),
		)
		return nil
	}
	for _, t := range []events.EventType{
		events.EventIdentityCreated,
		events.EventLoginSucceeded,
		events.EventLoginFailed,
		events.EventLogout,
		events.EventProfileUpdated,
		events.EventPermissionChanged,
		events.EventPermissionRevoked,
	} {
		dispatcher.Subscribe(t, handler)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
