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
	"golang.org/x/sync/errgroup"

	"github.com/teamdesk/identity/internal/app"
	"github.com/teamdesk/identity/internal/audit"
	"github.com/teamdesk/identity/internal/auth"
	"github.com/teamdesk/identity/internal/notify"
	"github.com/teamdesk/identity/internal/observability"
	"github.com/teamdesk/identity/internal/platform/cache"
	"github.com/teamdesk/identity/internal/platform/db"
	"github.com/teamdesk/identity/internal/rbac"
	"github.com/teamdesk/identity/internal/shared"
	"github.com/teamdesk/identity/internal/users"
	"github.com/teamdesk/identity/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{PingTimeout: 5 * time.Second})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	notifier, err := notify.NewQueueNotifier(queue, notify.Config{
		BaseURL:      cfg.AppURL,
		Product:      cfg.AppName,
		SetupLinkTTL: cfg.SetupTokenTTL,
		ResetLinkTTL: cfg.ResetTokenTTL,
	})
	if err != nil {
		logger.Error("init notifier", slog.Any("error", err))
		os.Exit(1)
	}

	application, err := app.Build(app.Components{
		Logger:    logger,
		Config:    cfg,
		Metrics:   observability.NewMetrics(),
		AuthRepo:  auth.NewRepository(pool),
		RBACRepo:  rbac.NewRepository(pool),
		UsersRepo: users.NewRepository(pool),
		Audit:     shared.NewAuditLogger(pool),
		Trail:     audit.NewRepository(pool),
		Links:     auth.NewRedisLinkStore(redisClient),
		Notifier:  notifier,
		Queue:     inspector,
	})
	if err != nil {
		logger.Error("build application", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           application.Handler,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		application.Auth.Wait()
		return err
	})

	if err := group.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
