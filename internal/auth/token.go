package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of an access token when none is given.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Token verification failures. Callers tell expiry apart from the others
// because the user-facing message differs.
var (
	ErrTokenMalformed = errors.New("auth: token malformed")
	ErrTokenSignature = errors.New("auth: token signature mismatch")
	ErrTokenExpired   = errors.New("auth: token expired")
)

// Claims is the verified content of an access token.
type Claims struct {
	TokenID     string
	PrincipalID string
	RoleNames   []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// TokenCodec signs and verifies HS256 access tokens. It holds no state other
// than its key, so rotating the key invalidates every issued token.
type TokenCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenCodec builds a codec. The secret must be non-empty.
func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token signing secret must be provided")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{key: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the default token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue mints a token for principalID carrying a snapshot of roleNames. A
// non-positive ttl uses the codec default.
func (c *TokenCodec) Issue(principalID string, roleNames []string, ttl time.Duration) (string, error) {
	if principalID == "" {
		return "", errors.New("auth: issue token: principal id required")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now().UTC().Truncate(time.Second)
	roles := make([]string, len(roleNames))
	copy(roles, roleNames)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Roles: roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded claims.
func (c *TokenCodec) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMalformed
	}
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, c.classify(raw, err)
	}
	if !token.Valid {
		return nil, ErrTokenSignature
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	out := &Claims{
		TokenID:     claims.ID,
		PrincipalID: claims.Subject,
		RoleNames:   claims.Roles,
		ExpiresAt:   claims.ExpiresAt.Time.UTC(),
	}
	if out.RoleNames == nil {
		out.RoleNames = []string{}
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return out, nil
}

// classify maps parser errors onto the three verification kinds. A token
// with a well-formed three-part shape whose body no longer decodes was
// produced by altering a signed token, so it is reported as a signature
// mismatch rather than as malformed input.
func (c *TokenCodec) classify(raw string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		if c.signatureMismatch(raw) {
			return fmt.Errorf("%w: %v", ErrTokenSignature, err)
		}
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}

func (c *TokenCodec) signatureMismatch(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return false
	}
	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || len(header) == 0 {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(sig) == 0 {
		return false
	}
	return jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.key) != nil
}
