package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teamdesk/identity/internal/platform/httpx"
	"github.com/teamdesk/identity/internal/shared"
)

// Gate decisions reported to the EventObserver.
const (
	DecisionAllow        = "allow"
	DecisionUnauthorized = "unauthorized"
	DecisionForbidden    = "forbidden"
	DecisionError        = "error"
)

// PermissionChecker answers single-permission queries for a principal.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// Gate authenticates bearer tokens against the codec and the credential
// store. A structurally valid token is not enough: the principal is
// reloaded on every request and must still exist and be active.
type Gate struct {
	tokens    *TokenCodec
	repo      Repository
	checker   PermissionChecker
	observer  EventObserver
	logger    *slog.Logger
	responder httpx.ErrorResponder
}

// NewGate constructs a Gate. checker may be nil when Authorize is unused.
func NewGate(tokens *TokenCodec, repo Repository, checker PermissionChecker, observer EventObserver, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		tokens:    tokens,
		repo:      repo,
		checker:   checker,
		observer:  observer,
		logger:    logger,
		responder: httpx.ErrorResponder{Logger: logger},
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", shared.Unauthorized(shared.ReasonMissingToken, "authorization header required")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", shared.Unauthorized(shared.ReasonInvalidToken, "invalid authorization format")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", shared.Unauthorized(shared.ReasonMissingToken, "empty bearer token")
	}
	return token, nil
}

// Authenticate verifies raw and resolves the current principal.
func (g *Gate) Authenticate(ctx context.Context, raw string) (*shared.Actor, error) {
	claims, err := g.tokens.Verify(raw)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, shared.Unauthorized(shared.ReasonExpiredToken, "token expired")
		}
		return nil, shared.Unauthorized(shared.ReasonInvalidToken, "invalid token")
	}
	user, err := g.principal(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.Unauthorized(shared.ReasonUnknownUser, "user no longer exists")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.Unauthorized(shared.ReasonInactiveUser, "user is deactivated")
	}
	return &shared.Actor{
		UserID:    user.ID,
		Email:     user.Email,
		Username:  user.Username,
		RoleNames: claims.RoleNames,
	}, nil
}

func (g *Gate) principal(ctx context.Context, subject string) (*User, error) {
	id, err := shared.ParseID("user", subject)
	if err != nil {
		return nil, err
	}
	return g.repo.FindUserByID(ctx, id)
}

// Authorize reports whether actor holds permission. Decisions always read
// current grants.
func (g *Gate) Authorize(ctx context.Context, actor *shared.Actor, permission string) (bool, error) {
	if actor == nil {
		return false, shared.Unauthorized(shared.ReasonMissingToken, "authentication required")
	}
	if g.checker == nil {
		return false, shared.Internal("authorize", errors.New("permission checker not configured"))
	}
	return g.checker.HasPermission(ctx, actor.UserID, permission)
}

// Middleware rejects requests without a valid bearer token and attaches the
// principal to the request context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := BearerToken(r)
		if err == nil {
			var actor *shared.Actor
			actor, err = g.Authenticate(r.Context(), raw)
			if err == nil {
				g.decide(DecisionAllow)
				next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
				return
			}
		}
		if shared.KindOf(err) == shared.KindUnauthorized {
			g.decide(DecisionUnauthorized)
			g.logger.Debug("gate rejected request",
				slog.String("path", r.URL.Path),
				slog.String("reason", string(shared.ReasonOf(err))),
			)
		} else {
			g.decide(DecisionError)
		}
		g.responder.Respond(w, r, err)
	})
}

func (g *Gate) decide(decision string) {
	if g.observer != nil {
		g.observer.GateDecision(decision)
	}
}
