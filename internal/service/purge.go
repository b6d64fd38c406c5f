package service

import (
	"context"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// HistoryPurger removes everything recorded about a user's purchases
type HistoryPurger struct {
	ledger *EntitlementLedger
	orders OrderPurger
	logger *zap.Logger
}

// NewHistoryPurger creates a new history purger
func NewHistoryPurger(ledger *EntitlementLedger, orders OrderPurger) *HistoryPurger {
	return &HistoryPurger{
		ledger: ledger,
		orders: orders,
		logger: util.GetLogger(),
	}
}

// PurgeUserHistory deletes the user's grants and then their orders. Each half
// runs even when the other fails, and the result reports them separately.
func (p *HistoryPurger) PurgeUserHistory(ctx context.Context, userID string) models.PurgeResult {
	ctx, span := util.StartSpan(ctx, "HistoryPurger.PurgeUserHistory")
	defer span.End()

	result := models.PurgeResult{UserID: userID}

	grants, err := p.ledger.PurgeForUser(ctx, userID)
	if err != nil {
		result.GrantsError = err.Error()
		p.logger.Error("Failed to purge grants", zap.String("user_id", userID), zap.Error(err))
	}
	result.DeletedGrants = grants

	orders, err := p.orders.DeleteOrdersForUser(ctx, userID)
	if err != nil {
		result.OrdersError = err.Error()
		p.logger.Error("Failed to purge orders", zap.String("user_id", userID), zap.Error(err))
	}
	result.DeletedOrders = orders

	outcome := "ok"
	if result.GrantsError != "" || result.OrdersError != "" {
		outcome = "partial"
	}
	util.HistoryPurgesTotal.WithLabelValues(outcome).Inc()

	p.logger.Info("Purchase history purged",
		zap.String("user_id", userID),
		zap.Int64("grants", result.DeletedGrants),
		zap.Int64("orders", result.DeletedOrders))

	return result
}
