package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

func newTestCodec(t *testing.T, now time.Time) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testSecret, 0)
	require.NoError(t, err)
	codec.now = func() time.Time { return now }
	return codec
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, now)

	token, err := codec.Issue("usr-001", []string{"USER", "VIEWER"}, 0)
	require.NoError(t, err)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "usr-001", claims.PrincipalID)
	assert.Equal(t, []string{"USER", "VIEWER"}, claims.RoleNames)
	assert.Equal(t, now, claims.IssuedAt)
	assert.Equal(t, now.Add(DefaultTokenTTL), claims.ExpiresAt)
	assert.NotEmpty(t, claims.TokenID)
}

func TestTokenWithoutRoles(t *testing.T) {
	codec := newTestCodec(t, time.Now())

	token, err := codec.Issue("usr-002", nil, time.Hour)
	require.NoError(t, err)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Empty(t, claims.RoleNames)
}

func TestTokenExpiredIsDistinct(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, issued)

	token, err := codec.Issue("usr-001", []string{"USER"}, time.Hour)
	require.NoError(t, err)

	codec.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrTokenSignature)
	assert.NotErrorIs(t, err, ErrTokenMalformed)
}

func tamper(segment string) string {
	mid := len(segment) / 2
	replacement := byte('A')
	if segment[mid] == 'A' {
		replacement = 'B'
	}
	return segment[:mid] + string(replacement) + segment[mid+1:]
}

func TestTokenTamperedPayload(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	token, err := codec.Issue("usr-001", []string{"USER"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[1] = tamper(parts[1])

	_, err = codec.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestTokenTamperedSignature(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	token, err := codec.Issue("usr-001", []string{"USER"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[2] = tamper(parts[2])

	_, err = codec.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestTokenTamperedAndExpiredReportsSignature(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, issued)
	token, err := codec.Issue("usr-001", nil, time.Minute)
	require.NoError(t, err)

	codec.now = func() time.Time { return issued.Add(time.Hour) }
	parts := strings.Split(token, ".")
	parts[2] = tamper(parts[2])

	_, err = codec.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestTokenRotatedKey(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	token, err := codec.Issue("usr-001", nil, time.Hour)
	require.NoError(t, err)

	rotated, err := NewTokenCodec("a-completely-different-signing-secret!!", 0)
	require.NoError(t, err)

	_, err = rotated.Verify(token)
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestTokenMalformed(t *testing.T) {
	codec := newTestCodec(t, time.Now())

	for _, raw := range []string{"", "   ", "not-a-token", "a.b", "a.b.c"} {
		_, err := codec.Verify(raw)
		assert.ErrorIs(t, err, ErrTokenMalformed, raw)
	}
}

func TestTokenRejectsOtherAlgorithms(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	claims := jwt.RegisteredClaims{
		Subject:   "usr-001",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Verify(unsigned)
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestNewTokenCodecRequiresSecret(t *testing.T) {
	_, err := NewTokenCodec("  ", time.Hour)
	assert.Error(t, err)
}
