package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/teamdesk/identity/internal/audit"
	audithttp "github.com/teamdesk/identity/internal/audit/http"
	"github.com/teamdesk/identity/internal/auth"
	"github.com/teamdesk/identity/internal/observability"
	"github.com/teamdesk/identity/internal/rbac"
	"github.com/teamdesk/identity/internal/shared"
	"github.com/teamdesk/identity/internal/users"
	"github.com/teamdesk/identity/jobs"
)

// Components are the storage and delivery backends the services run on.
type Components struct {
	Logger    *slog.Logger
	Config    *Config
	Metrics   *observability.Metrics
	AuthRepo  auth.Repository
	RBACRepo  rbac.Repository
	UsersRepo users.RepositoryPort
	Audit     shared.AuditRecorder
	Trail     audit.Repository
	Links     auth.LinkStore
	Notifier  auth.Notifier
	Queue     jobs.QueueInspector
}

// Application holds the wired services and the HTTP handler serving them.
type Application struct {
	Auth    *auth.Service
	RBAC    *rbac.Service
	Users   *users.Service
	Gate    *auth.Gate
	Handler http.Handler
}

// Build wires services, gate and handlers onto the given components.
func Build(c Components) (*Application, error) {
	if c.Config == nil {
		return nil, errors.New("app: config required")
	}
	if c.AuthRepo == nil || c.RBACRepo == nil || c.UsersRepo == nil {
		return nil, errors.New("app: repositories required")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := c.Config

	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("app: hasher: %w", err)
	}
	tokens, err := auth.NewTokenCodec(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("app: token codec: %w", err)
	}

	authService := auth.NewService(c.AuthRepo, hasher, tokens, auth.Options{
		Logger:        logger,
		Links:         c.Links,
		Notifier:      c.Notifier,
		Audit:         c.Audit,
		Observer:      c.Metrics,
		LookupTimeout: cfg.LoginLookupTimeout,
		SetupLinkTTL:  cfg.SetupTokenTTL,
		ResetLinkTTL:  cfg.ResetTokenTTL,
	})
	rbacService := rbac.NewService(c.RBACRepo, c.Audit, logger)
	usersService := users.NewService(c.UsersRepo, c.Audit, logger)

	gate := auth.NewGate(tokens, c.AuthRepo, rbacService, c.Metrics, logger)
	guard := rbac.Middleware{Service: rbacService, Logger: logger, Observer: c.Metrics}
	debug := cfg.IsDevelopment()

	var jobHandler *jobs.Handler
	if c.Queue != nil {
		jobHandler = jobs.NewHandler(c.Queue, logger)
	}

	var auditHandler *audithttp.Handler
	if c.Trail != nil {
		auditHandler = audithttp.NewHandler(logger, audit.NewService(c.Trail), guard, debug)
	}

	handler := NewRouter(RouterParams{
		Logger:       logger,
		Config:       cfg,
		Metrics:      c.Metrics,
		Gate:         gate,
		AuthHandler:  auth.NewHandler(logger, authService, gate, guard.Require, debug),
		RBACHandler:  rbac.NewHandler(logger, rbacService, guard, debug),
		UsersHandler: users.NewHandler(logger, usersService, guard, debug),
		AuditHandler: auditHandler,
		JobHandler:   jobHandler,
	})

	return &Application{
		Auth:    authService,
		RBAC:    rbacService,
		Users:   usersService,
		Gate:    gate,
		Handler: handler,
	}, nil
}
