package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestLockIsExclusiveUntilReleased(t *testing.T) {
	_, c := newMiniRedisClient(t)
	ctx := context.Background()

	token, ok, err := c.AcquireLock(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = c.AcquireLock(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "reconcile", token))

	_, ok, err = c.AcquireLock(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseWithStaleTokenKeepsNewHolder(t *testing.T) {
	mr, c := newMiniRedisClient(t)
	ctx := context.Background()

	stale, ok, err := c.AcquireLock(ctx, "reconcile", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	fresh, ok, err := c.AcquireLock(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "reconcile", stale))

	held, err := mr.Get("lock:reconcile")
	require.NoError(t, err)
	assert.Equal(t, fresh, held)
}

func TestClaimIdempotencyKey(t *testing.T) {
	mr, c := newMiniRedisClient(t)
	ctx := context.Background()

	first, err := c.ClaimIdempotencyKey(ctx, "evt-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := c.ClaimIdempotencyKey(ctx, "evt-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, second)

	assert.True(t, mr.Exists("fulfill:evt-1"))

	require.NoError(t, c.ForgetIdempotencyKey(ctx, "evt-1"))
	assert.False(t, mr.Exists("fulfill:evt-1"))

	_, err = c.ClaimIdempotencyKey(ctx, "evt-2", time.Hour)
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("fulfill:evt-2"))
}
