package audithttp

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamdesk/identity/internal/rbac"
	"github.com/teamdesk/identity/internal/shared"
)

func newTestHandler() *Handler {
	h := NewHandler(nil, nil, rbac.Middleware{}, false)
	h.now = func() time.Time { return time.Date(2024, 3, 20, 15, 30, 0, 0, time.UTC) }
	return h
}

func TestParseFiltersDefaultsToLastWeek(t *testing.T) {
	h := newTestHandler()

	filters, err := h.parseFilters(httptest.NewRequest("GET", "/api/audit", nil))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), filters.From)
	assert.Equal(t, time.Date(2024, 3, 21, 0, 0, 0, 0, time.UTC), filters.To, "to is inclusive of the whole day")
	assert.Zero(t, filters.Page)
}

func TestParseFiltersCarriesQuery(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest("GET", "/api/audit?from=2024-03-01&to=2024-03-02&entity=role&entity_id=r-1&action=grant_permission&actor=u-1&page=2&page_size=5", nil)
	filters, err := h.parseFilters(req)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), filters.From)
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), filters.To)
	assert.Equal(t, "role", filters.Entity)
	assert.Equal(t, "r-1", filters.EntityID)
	assert.Equal(t, "grant_permission", filters.Action)
	assert.Equal(t, "u-1", filters.Actor)
	assert.Equal(t, 2, filters.Page)
	assert.Equal(t, 5, filters.PageSize)
}

func TestParseFiltersRejects(t *testing.T) {
	h := newTestHandler()
	cases := map[string]string{
		"bad date":       "/api/audit?from=yesterday",
		"inverted range": "/api/audit?from=2024-03-10&to=2024-03-01",
		"too wide":       "/api/audit?from=2023-01-01&to=2024-03-01",
		"bad page":       "/api/audit?page=0",
		"bad page size":  "/api/audit?page_size=ten",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.parseFilters(httptest.NewRequest("GET", target, nil))
			assert.Equal(t, shared.KindValidation, shared.KindOf(err))
		})
	}
}

func TestRateLimitKeyPrefersActor(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/audit/export.csv", nil)
	key, err := rateLimitKey(req)
	require.NoError(t, err)
	assert.Contains(t, key, "ip:")

	req = req.WithContext(shared.ContextWithActor(req.Context(), &shared.Actor{UserID: "u-1"}))
	key, err = rateLimitKey(req)
	require.NoError(t, err)
	assert.Equal(t, "user:u-1", key)
}
