package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamdesk/identity/internal/shared"
)

func newLinkStore(t *testing.T) (*RedisLinkStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLinkStore(client), mr
}

func TestLinkIssueAndConsumeOnce(t *testing.T) {
	store, _ := newLinkStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, LinkGrant{Purpose: LinkSetup, Email: "a@x.com"}, time.Hour)
	require.NoError(t, err)
	assert.Len(t, token, 32)

	grant, err := store.Consume(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, LinkGrant{Purpose: LinkSetup, Email: "a@x.com"}, grant)

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestLinkExpires(t *testing.T) {
	store, mr := newLinkStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, LinkGrant{Purpose: LinkReset, Email: "a@x.com"}, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
	assert.Equal(t, shared.ReasonInvalidToken, shared.ReasonOf(err))
}

func TestLinkConsumeEmptyToken(t *testing.T) {
	store, _ := newLinkStore(t)

	_, err := store.Consume(context.Background(), "  ")
	assert.Equal(t, shared.ReasonMissingToken, shared.ReasonOf(err))
}

func TestLinkIssueRejectsZeroTTL(t *testing.T) {
	store, _ := newLinkStore(t)

	_, err := store.Issue(context.Background(), LinkGrant{Purpose: LinkSetup, Email: "a@x.com"}, 0)
	assert.Error(t, err)
}
