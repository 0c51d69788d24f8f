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

	"github.com/meridian-club/meridian/internal/app"
	"github.com/meridian-club/meridian/internal/auth"
	"github.com/meridian-club/meridian/internal/content"
	"github.com/meridian-club/meridian/internal/grants"
	"github.com/meridian-club/meridian/internal/initiations"
	"github.com/meridian-club/meridian/internal/observability"
	"github.com/meridian-club/meridian/internal/orders"
	"github.com/meridian-club/meridian/internal/platform/cache"
	"github.com/meridian-club/meridian/internal/platform/db"
	"github.com/meridian-club/meridian/internal/policy"
	"github.com/meridian-club/meridian/internal/shared"
	"github.com/meridian-club/meridian/internal/subroles"
	"github.com/meridian-club/meridian/internal/users"
	"github.com/meridian-club/meridian/jobs"
)

// actorDirectory feeds the policy resolver from the user record and the
// grant ledger.
type actorDirectory struct {
	users  *users.Service
	ledger *grants.Service
}

func (d actorDirectory) Classification(ctx context.Context, userID int64) (users.Classification, error) {
	user, err := d.users.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Classification, nil
}

func (d actorDirectory) RoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	return d.ledger.RoleIDs(ctx, userID)
}

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
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	userService := users.NewService(users.NewRepository(dbpool))
	subRoleService := subroles.NewService(subroles.NewRepository(dbpool))
	grantService := grants.NewService(grants.NewRepository(dbpool), subRoleService, auditLogger, logger, metrics.GrantCounter())

	contentResolver := content.NewResolver(content.NewRepository(dbpool))
	contentService := content.NewService(content.NewRepository(dbpool), subRoleService, contentResolver)

	orderService := orders.NewService(orders.NewRepository(dbpool), jobClient, logger)
	initiationService := initiations.NewService(initiations.NewRepository(dbpool), jobClient, logger)

	actorResolver := policy.NewResolver(actorDirectory{users: userService, ledger: grantService})

	authHandler := auth.NewHandler(logger, auth.NewService(userService), sessionManager, csrfManager)
	subRoleHandler := subroles.NewHandler(logger, subRoleService, actorResolver)
	grantHandler := grants.NewHandler(logger, grantService, actorResolver)
	contentHandler := content.NewHandler(logger, contentService, actorResolver)
	orderHandler := orders.NewHandler(logger, orderService, actorResolver)
	initiationHandler := initiations.NewHandler(logger, initiationService, actorResolver)
	userHandler := users.NewHandler(logger, userService, actorResolver)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		AuthHandler:       authHandler,
		SubRoleHandler:    subRoleHandler,
		GrantHandler:      grantHandler,
		ContentHandler:    contentHandler,
		OrderHandler:      orderHandler,
		InitiationHandler: initiationHandler,
		UserHandler:       userHandler,
		JobHandler:        jobHandler,
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
