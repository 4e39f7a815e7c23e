package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost matches the cost used for previously issued digests.
const DefaultHashCost = 10

// MaxHashInputBytes is the longest plaintext bcrypt reads. Longer input
// would be truncated, so it is rejected instead.
const MaxHashInputBytes = 72

// ErrPasswordTooLong reports plaintext over MaxHashInputBytes.
var ErrPasswordTooLong = errors.New("auth: password exceeds 72 bytes")

// ErrMalformedDigest indicates a stored digest bcrypt cannot parse.
var ErrMalformedDigest = errors.New("auth: malformed password digest")

// Hasher hashes and verifies passwords with bcrypt. The digest embeds its
// cost, so changing Cost never breaks verification of older digests.
type Hasher struct {
	cost int
}

// NewHasher validates cost against bcrypt's bounds.
func NewHasher(cost int) (*Hasher, error) {
	if cost == 0 {
		cost = DefaultHashCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d outside [%d,%d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Cost returns the configured work factor.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt digest of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxHashInputBytes {
		return "", ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. An empty or malformed
// digest never matches.
func (h *Hasher) Verify(plaintext, digest string) bool {
	return h.Compare(plaintext, digest) == nil
}

// Compare is Verify with the failure cause: nil on match,
// bcrypt.ErrMismatchedHashAndPassword on mismatch, ErrMalformedDigest when
// the stored digest is empty or unparseable. Plaintext over
// MaxHashInputBytes never matches.
func (h *Hasher) Compare(plaintext, digest string) error {
	if digest == "" {
		return ErrMalformedDigest
	}
	if len(plaintext) > MaxHashInputBytes {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrMalformedDigest, err)
	}
}
