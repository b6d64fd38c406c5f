package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileCreatesMissingGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mapAsset(t, 1, "L1abcdefgh")
	f.completedOrder(t, "A", "U1", 1, 2)
	f.completedOrder(t, "B", "U2", 1)

	summary, err := f.reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Orders)
	assert.Equal(t, 3, summary.Created)
	assert.Zero(t, summary.Failed)

	g, err := f.ledger.GetGrant(ctx, "U1", 2)
	require.NoError(t, err)
	assert.Equal(t, "fallback:2", g.Locator)
}

func TestReconcileUpgradesFallbackAndSkipsHealthy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mapAsset(t, 1, "L1abcdefgh")
	order := f.completedOrder(t, "A", "U1", 1, 2)
	_, err := f.engine.FulfillOrder(ctx, order)
	require.NoError(t, err)

	summary, err := f.reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ReconcileSummary{Orders: 1, Skipped: 2, Duration: summary.Duration}, summary)

	f.mapAsset(t, 2, "L2abcdefgh")
	summary, err = f.reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Refreshed)
	assert.Equal(t, 1, summary.Skipped)

	g, err := f.ledger.GetGrant(ctx, "U1", 2)
	require.NoError(t, err)
	assert.Equal(t, "L2abcdefgh", g.Locator)
}

func TestReconcileRefreshesPendingAndSkipsRevoked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completedOrder(t, "A", "U1", 1, 2)
	_, err := f.ledger.UpsertGrant(ctx, "U1", 1, "fallback:1", models.GrantStatusPending)
	require.NoError(t, err)
	_, err = f.ledger.UpsertGrant(ctx, "U1", 2, "fallback:2", models.GrantStatusGranted)
	require.NoError(t, err)
	require.NoError(t, f.ledger.RevokeGrant(ctx, "U1", 2))

	summary, err := f.reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Refreshed)
	assert.Equal(t, 1, summary.Skipped)

	g, err := f.ledger.GetGrant(ctx, "U1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.GrantStatusGranted, g.Status)

	g, err = f.ledger.GetGrant(ctx, "U1", 2)
	require.NoError(t, err)
	assert.Equal(t, models.GrantStatusRevoked, g.Status)
}

func TestReconcileKeepsRevocationMadeMidRun(t *testing.T) {
	f := newFixtureWithGrants(t, func(g GrantStore) GrantStore {
		return &revokingGrants{GrantStore: g}
	})
	ctx := context.Background()

	f.completedOrder(t, "A", "U1", 1)
	_, err := f.ledger.UpsertGrant(ctx, "U1", 1, "fallback:1", models.GrantStatusGranted)
	require.NoError(t, err)
	f.mapAsset(t, 1, "L1abcdefgh")

	summary, err := f.reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Refreshed)

	g, err := f.store.GetGrant(ctx, "U1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.GrantStatusRevoked, g.Status)
	assert.Equal(t, "fallback:1", g.Locator)
}

func TestReconcileHandlesRepeatedPurchaseOnce(t *testing.T) {
	f := newFixture(t)

	f.completedOrder(t, "A", "U1", 1)
	f.completedOrder(t, "B", "U1", 1)

	summary, err := f.reconciler.ReconcileAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Orders)
	assert.Equal(t, 1, summary.Created)
	assert.Zero(t, summary.Skipped)
}

func TestReconcileCountsFailures(t *testing.T) {
	f := newFixtureWithGrants(t, func(g GrantStore) GrantStore {
		return &failingGrants{GrantStore: g, failProduct: 2}
	})

	f.completedOrder(t, "A", "U1", 1, 2)

	summary, err := f.reconciler.ReconcileAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Failed)
}

func TestReconcileRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	locks := redisclient.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer locks.Close()

	reconciler := NewReconciler(f.store, f.catalog, f.ledger, locks, 2, time.Minute)

	token, ok, err := locks.AcquireLock(ctx, reconcileLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = reconciler.ReconcileAll(ctx)
	assert.True(t, errors.Is(err, ErrReconcileInProgress))

	require.NoError(t, locks.ReleaseLock(ctx, reconcileLockKey, token))

	f.completedOrder(t, "A", "U1", 1)
	summary, err := reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.False(t, mr.Exists("lock:"+reconcileLockKey))
}
