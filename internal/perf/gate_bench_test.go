package perf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/teamdesk/identity/internal/auth"
	"github.com/teamdesk/identity/internal/rbac"
	"github.com/teamdesk/identity/internal/shared"
	"github.com/teamdesk/identity/internal/testing/memstore"
)

const benchSecret = "bench-secret-bench-secret-bench-secret"

type bench struct {
	gate   *auth.Gate
	rbac   *rbac.Service
	auth   *auth.Service
	userID string
	token  string
}

func newBench(tb testing.TB) *bench {
	tb.Helper()
	store := memstore.New()
	rbacSvc := rbac.NewService(store.RBAC(), nil, nil)
	require.NoError(tb, rbacSvc.Bootstrap(context.Background(), shared.DefaultGrants()))

	hasher, err := auth.NewHasher(bcrypt.MinCost)
	require.NoError(tb, err)
	tokens, err := auth.NewTokenCodec(benchSecret, time.Hour)
	require.NoError(tb, err)
	authSvc := auth.NewService(store.Auth(), hasher, tokens, auth.Options{})

	profile, err := authSvc.Register(context.Background(), auth.RegisterInput{
		Username: "bench",
		Email:    "bench@example.com",
		Password: "bench-password",
		RoleName: shared.RoleManager,
	})
	require.NoError(tb, err)
	result, err := authSvc.Login(context.Background(), "bench@example.com", "bench-password")
	require.NoError(tb, err)

	return &bench{
		gate:   auth.NewGate(tokens, store.Auth(), rbacSvc, nil, nil),
		rbac:   rbacSvc,
		auth:   authSvc,
		userID: profile.ID,
		token:  result.Token,
	}
}

func BenchmarkGateAuthenticate(b *testing.B) {
	env := newBench(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.gate.Authenticate(ctx, env.token); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHasPermission(b *testing.B) {
	env := newBench(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.rbac.HasPermission(ctx, env.userID, shared.PermUpdateUser); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGatedRequest(b *testing.B) {
	env := newBench(b)
	guard := rbac.Middleware{Service: env.rbac}
	handler := env.gate.Middleware(guard.Require(shared.PermReadUser)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.Header.Set("Authorization", "Bearer "+env.token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			b.Fatalf("unexpected status %d", rr.Code)
		}
	}
}

func TestGateLatencyBudget(t *testing.T) {
	env := newBench(t)
	ctx := context.Background()

	samples := make([]time.Duration, 0, 200)
	for i := 0; i < 200; i++ {
		start := time.Now()
		actor, err := env.gate.Authenticate(ctx, env.token)
		require.NoError(t, err)
		ok, err := env.gate.Authorize(ctx, actor, shared.PermCreateUser)
		require.NoError(t, err)
		require.True(t, ok)
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 25*time.Millisecond {
		t.Fatalf("gate latency regression: p95=%s", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
