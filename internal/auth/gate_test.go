package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamdesk/identity/internal/auth"
	"github.com/teamdesk/identity/internal/shared"
	"github.com/teamdesk/identity/internal/testing/fakes"
	"github.com/teamdesk/identity/internal/testing/memstore"
)

type allowAll struct{ granted map[string]bool }

func (a allowAll) HasPermission(_ context.Context, _ string, permission string) (bool, error) {
	return a.granted[permission], nil
}

func newGate(t *testing.T) (*auth.Gate, *memstore.Store, *auth.TokenCodec, *fakes.Observer) {
	t.Helper()
	store := memstore.New()
	tokens, err := auth.NewTokenCodec(testSecret, time.Hour)
	require.NoError(t, err)
	observer := &fakes.Observer{}
	gate := auth.NewGate(tokens, store.Auth(), allowAll{granted: map[string]bool{shared.PermReadUser: true}}, observer, nil)
	return gate, store, tokens, observer
}

func expiredToken(t *testing.T, subject string) string {
	t.Helper()
	past := time.Now().Add(-2 * time.Hour)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(past),
		ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		ID:        "expired",
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		token  string
		reason shared.Reason
	}{
		{"missing", "", "", shared.ReasonMissingToken},
		{"wrong scheme", "Basic abc", "", shared.ReasonInvalidToken},
		{"no separator", "Bearer", "", shared.ReasonInvalidToken},
		{"empty token", "Bearer   ", "", shared.ReasonMissingToken},
		{"lower case scheme", "bearer abc.def.ghi", "abc.def.ghi", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			token, err := auth.BearerToken(r)
			if tc.reason == "" {
				require.NoError(t, err)
				assert.Equal(t, tc.token, token)
				return
			}
			assert.Equal(t, tc.reason, shared.ReasonOf(err))
		})
	}
}

func TestAuthenticateRejections(t *testing.T) {
	gate, store, tokens, _ := newGate(t)
	role := store.MustRole("USER")
	active := store.MustUser(auth.User{Username: "ann", Email: "ann@example.com", IsActive: true}, role.ID)
	inactive := store.MustUser(auth.User{Username: "ben", Email: "ben@example.com", IsActive: false}, role.ID)
	ctx := context.Background()

	other, err := auth.NewTokenCodec("another-secret-another-secret-xx", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue(active.ID, nil, 0)
	require.NoError(t, err)
	ghost, err := tokens.Issue("3f1d2c4b-0000-4000-8000-000000000000", nil, 0)
	require.NoError(t, err)
	deactivated, err := tokens.Issue(inactive.ID, []string{"USER"}, 0)
	require.NoError(t, err)

	cases := []struct {
		name   string
		raw    string
		reason shared.Reason
	}{
		{"garbage", "not-a-token", shared.ReasonInvalidToken},
		{"foreign key", foreign, shared.ReasonInvalidToken},
		{"expired", expiredToken(t, active.ID), shared.ReasonExpiredToken},
		{"unknown user", ghost, shared.ReasonUnknownUser},
		{"deactivated user", deactivated, shared.ReasonInactiveUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gate.Authenticate(ctx, tc.raw)
			require.ErrorIs(t, err, shared.ErrUnauthorized)
			assert.Equal(t, tc.reason, shared.ReasonOf(err))
		})
	}
}

func TestAuthenticateExpiredMessageDiffers(t *testing.T) {
	gate, store, _, _ := newGate(t)
	role := store.MustRole("USER")
	user := store.MustUser(auth.User{Username: "cat", Email: "cat@example.com", IsActive: true}, role.ID)

	_, expired := gate.Authenticate(context.Background(), expiredToken(t, user.ID))
	_, invalid := gate.Authenticate(context.Background(), "x.y.z")

	assert.Equal(t, "token expired", shared.UserSafeMessage(expired))
	assert.Equal(t, "invalid token", shared.UserSafeMessage(invalid))
}

func TestMiddlewareAttachesActor(t *testing.T) {
	gate, store, tokens, observer := newGate(t)
	role := store.MustRole("USER")
	user := store.MustUser(auth.User{Username: "dan", Email: "dan@example.com", IsActive: true}, role.ID)
	raw, err := tokens.Issue(user.ID, []string{"USER"}, 0)
	require.NoError(t, err)

	var seen *shared.Actor
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, user.ID, seen.UserID)
	assert.Equal(t, []string{"USER"}, seen.RoleNames)
	assert.Equal(t, 1, observer.Decision(auth.DecisionAllow))

	ok, err := gate.Authorize(context.Background(), seen, shared.PermReadUser)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = gate.Authorize(context.Background(), seen, shared.PermDeleteUser)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMiddlewareRejectsWithoutToken(t *testing.T) {
	gate, _, _, observer := newGate(t)
	called := false
	handler := gate.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, observer.Decision(auth.DecisionUnauthorized))
}
