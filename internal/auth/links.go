package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/teamdesk/identity/internal/shared"
)

// LinkPurpose distinguishes setup links from reset links.
type LinkPurpose string

const (
	LinkSetup LinkPurpose = "setup"
	LinkReset LinkPurpose = "reset"
)

// LinkGrant is what a consumed link token resolves to.
type LinkGrant struct {
	Purpose LinkPurpose `json:"purpose"`
	Email   string      `json:"email"`
}

// LinkStore issues and consumes one-time password link tokens.
type LinkStore interface {
	Issue(ctx context.Context, grant LinkGrant, ttl time.Duration) (string, error)
	Consume(ctx context.Context, token string) (LinkGrant, error)
}

const linkKeyPrefix = "identity:link:"

// RedisLinkStore keeps link tokens in Redis with a TTL.
type RedisLinkStore struct {
	client *redis.Client
}

// NewRedisLinkStore constructs the store.
func NewRedisLinkStore(client *redis.Client) *RedisLinkStore {
	return &RedisLinkStore{client: client}
}

// Issue stores grant under a fresh random token.
func (s *RedisLinkStore) Issue(ctx context.Context, grant LinkGrant, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("auth: link ttl must be positive")
	}
	payload, err := json.Marshal(grant)
	if err != nil {
		return "", fmt.Errorf("auth: encode link: %w", err)
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.client.Set(ctx, linkKeyPrefix+token, payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store link: %w", err)
	}
	return token, nil
}

// Consume atomically reads and deletes the token. Unknown or expired tokens
// are unauthorized.
func (s *RedisLinkStore) Consume(ctx context.Context, token string) (LinkGrant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return LinkGrant{}, shared.Unauthorized(shared.ReasonMissingToken, "password link token is required")
	}
	raw, err := s.client.GetDel(ctx, linkKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return LinkGrant{}, shared.Unauthorized(shared.ReasonInvalidToken, "password link is invalid or expired")
		}
		return LinkGrant{}, fmt.Errorf("auth: consume link: %w", err)
	}
	var grant LinkGrant
	if err := json.Unmarshal(raw, &grant); err != nil {
		return LinkGrant{}, fmt.Errorf("auth: decode link: %w", err)
	}
	return grant, nil
}

var _ LinkStore = (*RedisLinkStore)(nil)
