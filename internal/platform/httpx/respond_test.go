package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamdesk/identity/internal/shared"
)

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

func TestRespondMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.Validation("email", "email is required"), http.StatusBadRequest},
		{shared.Conflict("user", "email"), http.StatusConflict},
		{shared.NotFound("role"), http.StatusNotFound},
		{shared.InvalidCredentials(), http.StatusUnauthorized},
		{shared.Unauthorized(shared.ReasonExpiredToken, "token expired"), http.StatusUnauthorized},
		{shared.Forbidden("READ_USER"), http.StatusForbidden},
		{shared.Timeout("lookup", nil), http.StatusGatewayTimeout},
		{errors.New("pq: relation does not exist"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
	}
}

func TestRespondHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("SQLSTATE 42P01"))

	p := decodeProblem(t, rr)
	assert.Equal(t, "internal server error", p.Detail)
	assert.Empty(t, p.Debug)
	assert.NotContains(t, rr.Body.String(), "42P01")
}

func TestRespondDebugIncludesDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrorResponder{Debug: true}.Respond(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("SQLSTATE 42P01"))

	p := decodeProblem(t, rr)
	assert.Equal(t, "SQLSTATE 42P01", p.Debug)
}

func TestRespondNamesConflictField(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, httptest.NewRequest(http.MethodPost, "/", nil), shared.Conflict("user", "username"))

	p := decodeProblem(t, rr)
	assert.Equal(t, "username", p.Field)
	assert.Equal(t, "user", p.Entity)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Email string `json:"email"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com","is_admin":true}`))

	err := DecodeJSON(req, &target)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDecodeJSONEmptyBody(t *testing.T) {
	var target struct{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))

	assert.ErrorIs(t, DecodeJSON(req, &target), shared.ErrValidation)
}
