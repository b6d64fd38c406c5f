package service

import (
	"context"
	"fmt"

	"fulfillment-service/internal/locator"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"
)

// AccessResolver decides what a user sees for a product. Nothing is cached;
// each call reads orders and the ledger.
type AccessResolver struct {
	orders OrderReader
	ledger *EntitlementLedger
}

// NewAccessResolver creates a new access resolver
func NewAccessResolver(orders OrderReader, ledger *EntitlementLedger) *AccessResolver {
	return &AccessResolver{orders: orders, ledger: ledger}
}

// Resolve derives the access decision for (userID, productID)
func (r *AccessResolver) Resolve(ctx context.Context, userID string, productID int64) (models.AccessDecision, error) {
	ctx, span := util.StartSpan(ctx, "AccessResolver.Resolve")
	defer span.End()

	decision := models.AccessDecision{UserID: userID, ProductID: productID}

	purchased, err := r.hasPurchased(ctx, userID, productID)
	if err != nil {
		return decision, err
	}
	if !purchased {
		decision.State = models.AccessNoPurchase
		decision.Message = models.MessageNoPurchase
		util.AccessDecisionsTotal.WithLabelValues(decision.State).Inc()
		return decision, nil
	}

	grant, err := r.ledger.GetGrant(ctx, userID, productID)
	if err != nil {
		return decision, err
	}

	switch {
	case grant == nil || grant.Status == models.GrantStatusPending:
		decision.State = models.AccessPendingMapping
		decision.Message = models.MessagePendingMapping
	case grant.Status == models.GrantStatusRevoked:
		decision.State = models.AccessRevoked
		decision.Message = models.MessageRevoked
	default:
		ref := locator.Resolve(grant.Locator)
		decision.State = models.AccessGranted
		decision.Locator = grant.Locator
		decision.Reference = &ref
		decision.Message = models.MessageGranted
		if locator.IsFallback(grant.Locator) {
			decision.Degraded = true
			decision.Message = models.MessageFallback
		}
	}

	util.AccessDecisionsTotal.WithLabelValues(decision.State).Inc()
	return decision, nil
}

func (r *AccessResolver) hasPurchased(ctx context.Context, userID string, productID int64) (bool, error) {
	orders, err := r.orders.ListCompletedOrdersContaining(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("failed to check purchases: %w", err)
	}
	for _, o := range orders {
		if o.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}
