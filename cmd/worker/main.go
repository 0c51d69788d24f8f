package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-club/meridian/internal/app"
	"github.com/meridian-club/meridian/internal/autogrant"
	"github.com/meridian-club/meridian/internal/grants"
	"github.com/meridian-club/meridian/internal/initiations"
	jobmetrics "github.com/meridian-club/meridian/internal/jobs"
	"github.com/meridian-club/meridian/internal/orders"
	"github.com/meridian-club/meridian/internal/platform/db"
	"github.com/meridian-club/meridian/internal/shared"
	"github.com/meridian-club/meridian/internal/subroles"
	"github.com/meridian-club/meridian/internal/users"
	"github.com/meridian-club/meridian/jobs"
)

// addressBook resolves notification targets from the user directory.
type addressBook struct {
	users *users.Service
}

func (b addressBook) Email(ctx context.Context, userID int64) (string, error) {
	user, err := b.users.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	userService := users.NewService(users.NewRepository(pool))
	subRoleService := subroles.NewService(subroles.NewRepository(pool))
	grantService := grants.NewService(grants.NewRepository(pool), subRoleService, auditLogger, logger, nil)

	// The worker reads lifecycle state but never transitions it, so the
	// services run without an enqueuer.
	orderService := orders.NewService(orders.NewRepository(pool), nil, logger)
	initiationService := initiations.NewService(initiations.NewRepository(pool), nil, logger)

	trigger := autogrant.NewTrigger(grantService, orderService, initiationService, logger)

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

	metrics := jobmetrics.NewMetrics(nil)
	autoGrantHandler := jobs.NewAutoGrantHandler(trigger, idempotencyStore, jobClient, addressBook{users: userService}, metrics, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		AutoGrant: autoGrantHandler,
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
