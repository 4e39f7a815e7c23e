package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := testHasher(t)

	digest, err := h.Hash("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", digest)

	assert.True(t, h.Verify("correct horse battery", digest))
	assert.False(t, h.Verify("correct horse batterY", digest))
	assert.False(t, h.Verify("", digest))
}

func TestHashIsSalted(t *testing.T) {
	h := testHasher(t)

	a, err := h.Hash("same-password")
	require.NoError(t, err)
	b, err := h.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerifyEmptyDigestNeverMatches(t *testing.T) {
	h := testHasher(t)

	for _, input := range []string{"", "anything", "password123"} {
		assert.False(t, h.Verify(input, ""), input)
	}
	assert.ErrorIs(t, h.Compare("anything", ""), ErrMalformedDigest)
}

func TestVerifyMalformedDigest(t *testing.T) {
	h := testHasher(t)

	assert.False(t, h.Verify("secret", "not-a-bcrypt-digest"))
	assert.ErrorIs(t, h.Compare("secret", "not-a-bcrypt-digest"), ErrMalformedDigest)
}

func TestCostChangeKeepsOldDigestsValid(t *testing.T) {
	old := testHasher(t)
	digest, err := old.Hash("rotate-me")
	require.NoError(t, err)

	stronger, err := NewHasher(bcrypt.MinCost + 1)
	require.NoError(t, err)

	assert.True(t, stronger.Verify("rotate-me", digest))
	cost, err := bcrypt.Cost([]byte(digest))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestNewHasherRejectsBadCost(t *testing.T) {
	_, err := NewHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)

	h, err := NewHasher(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultHashCost, h.Cost())
}

func TestHashRejectsInputBeyondBcryptLimit(t *testing.T) {
	h := testHasher(t)

	_, err := h.Hash(strings.Repeat("a", MaxHashInputBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestVerifyDoesNotMatchOnLongerPlaintextSharingPrefix(t *testing.T) {
	h := testHasher(t)
	exact := strings.Repeat("b", MaxHashInputBytes)

	digest, err := h.Hash(exact)
	require.NoError(t, err)

	assert.True(t, h.Verify(exact, digest))
	assert.False(t, h.Verify(exact+"X", digest))
	assert.ErrorIs(t, h.Compare(exact+"X", digest), bcrypt.ErrMismatchedHashAndPassword)
}
