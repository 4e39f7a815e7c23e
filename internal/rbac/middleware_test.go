package rbac_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamdesk/identity/internal/auth"
	"github.com/teamdesk/identity/internal/rbac"
	"github.com/teamdesk/identity/internal/shared"
	"github.com/teamdesk/identity/internal/testing/fakes"
)

func serve(t *testing.T, h func(http.Handler) http.Handler, actor *shared.Actor) int {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	h(next).ServeHTTP(rec, req)
	return rec.Code
}

func TestMiddlewareDecisions(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	role := store.MustRole("MANAGER")
	read := store.MustPermission(shared.PermReadUser)
	update := store.MustPermission(shared.PermUpdateUser)
	store.MustPermission(shared.PermDeleteUser)
	require.NoError(t, svc.Grant(ctx, role.ID, read.ID))
	require.NoError(t, svc.Grant(ctx, role.ID, update.ID))
	user := store.MustUser(auth.User{Username: "mgr", Email: "mgr@example.com", IsActive: true}, role.ID)
	actor := &shared.Actor{UserID: user.ID}

	observer := &fakes.Observer{}
	mw := rbac.Middleware{Service: svc, Observer: observer}

	assert.Equal(t, http.StatusNoContent, serve(t, mw.Require(shared.PermReadUser), actor))
	assert.Equal(t, http.StatusForbidden, serve(t, mw.Require(shared.PermDeleteUser), actor))
	assert.Equal(t, http.StatusNoContent, serve(t, mw.RequireAll(shared.PermReadUser, shared.PermUpdateUser), actor))
	assert.Equal(t, http.StatusForbidden, serve(t, mw.RequireAll(shared.PermReadUser, shared.PermDeleteUser), actor))
	assert.Equal(t, http.StatusNoContent, serve(t, mw.RequireAny(shared.PermDeleteUser, shared.PermUpdateUser), actor))
	assert.Equal(t, http.StatusUnauthorized, serve(t, mw.Require(shared.PermReadUser), nil))
	assert.Equal(t, http.StatusNoContent, serve(t, mw.RequireAll(" ", ""), nil))

	assert.Equal(t, 2, observer.Decision("forbidden"))
	assert.Equal(t, 1, observer.Decision("unauthorized"))
}

func TestMiddlewareSeesGrantChangesImmediately(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	role := store.MustRole("VIEWER")
	perm := store.MustPermission(shared.PermReadUser)
	user := store.MustUser(auth.User{Username: "v", Email: "v@example.com", IsActive: true}, role.ID)
	actor := &shared.Actor{UserID: user.ID, RoleNames: []string{"VIEWER"}}
	mw := rbac.Middleware{Service: svc}

	assert.Equal(t, http.StatusForbidden, serve(t, mw.Require(shared.PermReadUser), actor))
	require.NoError(t, svc.Grant(ctx, role.ID, perm.ID))
	assert.Equal(t, http.StatusNoContent, serve(t, mw.Require(shared.PermReadUser), actor))
}
