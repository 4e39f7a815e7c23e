package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teamdesk/identity/internal/platform/httpx"
	"github.com/teamdesk/identity/internal/shared"
)

// DecisionObserver receives forbidden and allowed decisions for metrics.
type DecisionObserver interface {
	GateDecision(decision string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers. It expects
// the authentication gate to have attached the actor already.
type Middleware struct {
	Service  *Service
	Logger   *slog.Logger
	Observer DecisionObserver
}

// Require ensures the current user holds permission.
func (m Middleware) Require(permission string) func(http.Handler) http.Handler {
	return m.RequireAll(permission)
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.guard(normalizePermissions(perms), func(ctx context.Context, userID string, required []string) (bool, error) {
		for _, p := range required {
			ok, err := m.Service.HasPermission(ctx, userID, p)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	})
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.guard(normalizePermissions(perms), func(ctx context.Context, userID string, required []string) (bool, error) {
		if len(required) == 1 {
			return m.Service.HasPermission(ctx, userID, required[0])
		}
		granted, err := m.Service.EffectivePermissions(ctx, userID)
		if err != nil {
			return false, err
		}
		return hasAllPermissions(granted, required), nil
	})
}

type checkFunc func(ctx context.Context, userID string, required []string) (bool, error)

func (m Middleware) guard(required []string, check checkFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor := shared.ActorFromContext(r.Context())
			if actor == nil {
				m.observe("unauthorized")
				httpx.RespondError(w, r, shared.Unauthorized(shared.ReasonMissingToken, "authentication required"))
				return
			}
			ok, err := check(r.Context(), actor.UserID, required)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac check", slog.String("user_id", actor.UserID), slog.Any("error", err))
				}
				m.observe("error")
				httpx.RespondError(w, r, err)
				return
			}
			if !ok {
				m.observe("forbidden")
				httpx.RespondError(w, r, shared.Forbidden(strings.Join(required, ",")))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) observe(decision string) {
	if m.Observer != nil {
		m.Observer.GateDecision(decision)
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAllPermissions(granted []string, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[p] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
