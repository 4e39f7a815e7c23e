package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates caller-fixable input problems.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("already exists")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Unknown account and
	// wrong password share this error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordNotSet indicates the principal has no password hash yet.
	ErrPasswordNotSet = errors.New("password not set")
	// ErrUnauthorized indicates a missing, invalid or expired bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated principal lacks a permission.
	ErrForbidden = errors.New("forbidden")
	// ErrTimeout indicates the credential store did not answer in time.
	ErrTimeout = errors.New("timeout")
	// ErrInternal is the catch-all kind.
	ErrInternal = errors.New("internal error")
)

// Kind classifies errors raised by the services.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindPasswordNotSet     Kind = "password_not_set"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindTimeout            Kind = "timeout"
	KindInternal           Kind = "internal"
)

var kindSentinels = map[Kind]error{
	KindValidation:         ErrValidation,
	KindConflict:           ErrConflict,
	KindNotFound:           ErrNotFound,
	KindInvalidCredentials: ErrInvalidCredentials,
	KindPasswordNotSet:     ErrPasswordNotSet,
	KindUnauthorized:       ErrUnauthorized,
	KindForbidden:          ErrForbidden,
	KindTimeout:            ErrTimeout,
	KindInternal:           ErrInternal,
}

// Reason refines an unauthorized error for logging and messaging.
type Reason string

const (
	ReasonMissingToken Reason = "missing_token"
	ReasonInvalidToken Reason = "invalid_token"
	ReasonExpiredToken Reason = "expired_token"
	ReasonUnknownUser  Reason = "unknown_user"
	ReasonInactiveUser Reason = "inactive_user"
)

// Error is the typed error carried across service boundaries. It matches the
// sentinel of its kind with errors.Is.
type Error struct {
	Kind    Kind
	Entity  string
	Field   string
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// Validation builds a validation error for field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// Conflict builds a uniqueness error naming the offending field.
func Conflict(entity, field string) *Error {
	return &Error{
		Kind:    KindConflict,
		Entity:  entity,
		Field:   field,
		Message: fmt.Sprintf("%s with this %s already exists", entity, field),
	}
}

// InUse builds a conflict for deleting an entity that is still referenced.
func InUse(entity string) *Error {
	return &Error{Kind: KindConflict, Entity: entity, Message: entity + " is still in use"}
}

// NotFound builds a not-found error for entity.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Message: entity + " not found"}
}

// InvalidCredentials returns the single login failure error.
func InvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
}

// PasswordNotSet reports a principal without password hash.
func PasswordNotSet() *Error {
	return &Error{Kind: KindPasswordNotSet, Message: "password not set"}
}

// Unauthorized builds a gate rejection with the internal reason retained.
func Unauthorized(reason Reason, message string) *Error {
	return &Error{Kind: KindUnauthorized, Reason: reason, Message: message}
}

// Forbidden builds a permission denial.
func Forbidden(permission string) *Error {
	return &Error{Kind: KindForbidden, Field: permission, Message: "you do not have the required permission"}
}

// Timeout wraps a store deadline.
func Timeout(op string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: op + " timed out", Err: err}
}

// Internal wraps an unclassified failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: op + " failed", Err: err}
}

// KindOf classifies err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// ReasonOf returns the unauthorized reason carried by err, if any.
func ReasonOf(err error) Reason {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Reason
	}
	return ""
}

// UserSafeMessage returns a message that can be shown to callers without
// leaking internals.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	kind := KindOf(err)
	if kind == KindInternal {
		return "internal server error"
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Message != "" {
		return typed.Message
	}
	return kindSentinels[kind].Error()
}
