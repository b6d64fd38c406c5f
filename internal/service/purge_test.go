package service

import (
	"context"
	"errors"
	"testing"

	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenOrderPurger struct{}

func (brokenOrderPurger) DeleteOrdersForUser(context.Context, string) (int64, error) {
	return 0, errors.New("orders table locked")
}

type brokenGrantDeletes struct {
	GrantStore
}

func (brokenGrantDeletes) DeleteGrantsForUser(context.Context, string) (int64, error) {
	return 0, errors.New("grants table locked")
}

func TestPurgeUserHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.completedOrder(t, "A", "U1", 1, 2)
	f.completedOrder(t, "B", "U2", 1)
	_, err := f.engine.FulfillOrder(ctx, order)
	require.NoError(t, err)

	result := NewHistoryPurger(f.ledger, f.store).PurgeUserHistory(ctx, "U1")
	assert.Equal(t, models.PurgeResult{UserID: "U1", DeletedGrants: 2, DeletedOrders: 1}, result)

	d, err := f.resolver.Resolve(ctx, "U1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.AccessNoPurchase, d.State)

	remaining, err := f.store.ListCompletedOrdersContaining(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestPurgeUserHistoryHalvesAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.completedOrder(t, "A", "U1", 1)
	_, err := f.engine.FulfillOrder(ctx, order)
	require.NoError(t, err)

	result := NewHistoryPurger(f.ledger, brokenOrderPurger{}).PurgeUserHistory(ctx, "U1")
	assert.Equal(t, int64(1), result.DeletedGrants)
	assert.Empty(t, result.GrantsError)
	assert.Zero(t, result.DeletedOrders)
	assert.Contains(t, result.OrdersError, "orders table locked")

	ledger := NewEntitlementLedger(brokenGrantDeletes{GrantStore: f.store})
	result = NewHistoryPurger(ledger, f.store).PurgeUserHistory(ctx, "U1")
	assert.Contains(t, result.GrantsError, "grants table locked")
	assert.Equal(t, int64(1), result.DeletedOrders)
	assert.Empty(t, result.OrdersError)
}
