// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/teamdesk/identity/internal/shared"
)

var statusByKind = map[shared.Kind]int{
	shared.KindValidation:         http.StatusBadRequest,
	shared.KindConflict:           http.StatusConflict,
	shared.KindNotFound:           http.StatusNotFound,
	shared.KindInvalidCredentials: http.StatusUnauthorized,
	shared.KindPasswordNotSet:     http.StatusBadRequest,
	shared.KindUnauthorized:       http.StatusUnauthorized,
	shared.KindForbidden:          http.StatusForbidden,
	shared.KindTimeout:            http.StatusGatewayTimeout,
	shared.KindInternal:           http.StatusInternalServerError,
}

var titleByKind = map[shared.Kind]string{
	shared.KindValidation:         "Validation Failed",
	shared.KindConflict:           "Conflict",
	shared.KindNotFound:           "Not Found",
	shared.KindInvalidCredentials: "Invalid Credentials",
	shared.KindPasswordNotSet:     "Password Not Set",
	shared.KindUnauthorized:       "Unauthorized",
	shared.KindForbidden:          "Forbidden",
	shared.KindTimeout:            "Timeout",
	shared.KindInternal:           "Internal Error",
}

// ErrorResponder maps domain errors to RFC7807 responses. Internal error
// detail is only exposed when Debug is set.
type ErrorResponder struct {
	Logger *slog.Logger
	Debug  bool
}

// Respond writes the problem response for err.
func (e ErrorResponder) Respond(w http.ResponseWriter, r *http.Request, err error) {
	kind := shared.KindOf(err)
	status := statusByKind[kind]
	problem := ProblemDetail{
		Type:   "about:blank",
		Title:  titleByKind[kind],
		Status: status,
		Detail: shared.UserSafeMessage(err),
		Kind:   string(kind),
	}
	var typed *shared.Error
	if errors.As(err, &typed) {
		problem.Field = typed.Field
		problem.Entity = typed.Entity
	}
	if kind == shared.KindInternal || kind == shared.KindTimeout {
		if e.Logger != nil {
			e.Logger.Error("request failed",
				slog.String("path", r.URL.Path),
				slog.String("kind", string(kind)),
				slog.Any("error", err),
			)
		}
		if e.Debug {
			problem.Debug = err.Error()
		}
	}
	JSON(w, status, problem)
}

// RespondError maps domain errors to HTTP responses without debug detail.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	ErrorResponder{}.Respond(w, r, err)
}
