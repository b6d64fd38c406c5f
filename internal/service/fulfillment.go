package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FulfillmentEngine turns completed orders into entitlement grants
type FulfillmentEngine struct {
	orders    OrderReader
	catalog   *AssetCatalog
	ledger    *EntitlementLedger
	publisher GrantsPublisher
	logger    *zap.Logger
}

// NewFulfillmentEngine creates a new fulfillment engine. publisher may be nil.
func NewFulfillmentEngine(
	orders OrderReader,
	catalog *AssetCatalog,
	ledger *EntitlementLedger,
	publisher GrantsPublisher,
) *FulfillmentEngine {
	return &FulfillmentEngine{
		orders:    orders,
		catalog:   catalog,
		ledger:    ledger,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// FulfillOrderByID loads a completed order and fulfills it
func (e *FulfillmentEngine) FulfillOrderByID(ctx context.Context, orderID string) ([]models.ProductOutcome, error) {
	order, err := e.orders.GetCompletedOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		util.OrdersRejectedTotal.WithLabelValues("order_not_found").Inc()
		return nil, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	return e.FulfillOrder(ctx, order)
}

// FulfillOrder writes one grant per distinct product of a completed order.
// Products without a usable asset get a fallback grant. A ledger failure on
// one product is reported in its outcome and the remaining products are
// still processed. Running it again for the same order rewrites the same
// grants. Once started it ignores cancellation of ctx.
func (e *FulfillmentEngine) FulfillOrder(ctx context.Context, order *models.Order) ([]models.ProductOutcome, error) {
	if order == nil {
		return nil, ErrOrderNotFound
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := util.StartSpan(ctx, "FulfillmentEngine.FulfillOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.FulfillmentLatency.Observe(time.Since(start).Seconds())
	}()

	productIDs, err := normalizeProductIDs(order.ProductIDs)
	if err != nil {
		util.OrdersRejectedTotal.WithLabelValues("invalid_product_set").Inc()
		return nil, fmt.Errorf("order %s: %w", order.ID, err)
	}

	outcomes := make([]models.ProductOutcome, 0, len(productIDs))
	for _, productID := range productIDs {
		outcome, err := e.fulfillProduct(ctx, order, productID)
		if err != nil {
			util.OrdersRejectedTotal.WithLabelValues("catalog_error").Inc()
			return nil, err
		}
		util.FulfillmentOutcomesTotal.WithLabelValues(outcome.Outcome).Inc()
		outcomes = append(outcomes, outcome)
	}

	util.OrdersFulfilledTotal.Inc()
	e.logger.Info("Order fulfilled",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int("products", len(outcomes)))

	e.publish(ctx, order, outcomes)
	return outcomes, nil
}

func (e *FulfillmentEngine) fulfillProduct(ctx context.Context, order *models.Order, productID int64) (models.ProductOutcome, error) {
	mapping, err := e.catalog.Lookup(ctx, productID)
	if err != nil {
		e.logger.Error("Asset lookup failed",
			zap.String("order_id", order.ID),
			zap.Int64("product_id", productID),
			zap.Error(err))
		return models.ProductOutcome{}, err
	}

	loc, mapped := grantLocator(productID, mapping)
	outcome := models.OutcomeGranted
	if !mapped {
		outcome = models.OutcomeGrantedFallback
		util.AssetMappingMissingTotal.Inc()
		e.logger.Warn("No asset mapped for product, granting fallback",
			zap.String("order_id", order.ID),
			zap.Int64("product_id", productID))
	}

	if _, err := e.ledger.UpsertGrant(ctx, order.UserID, productID, loc, models.GrantStatusGranted); err != nil {
		e.logger.Error("Failed to write grant",
			zap.String("order_id", order.ID),
			zap.String("user_id", order.UserID),
			zap.Int64("product_id", productID),
			zap.Error(err))
		return models.ProductOutcome{
			ProductID: productID,
			Outcome:   models.OutcomeFailed,
			Error:     err.Error(),
		}, nil
	}

	return models.ProductOutcome{ProductID: productID, Outcome: outcome}, nil
}

func (e *FulfillmentEngine) publish(ctx context.Context, order *models.Order, outcomes []models.ProductOutcome) {
	if e.publisher == nil {
		return
	}

	event := &models.GrantsFulfilledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeGrantsFulfilled,
			Timestamp: time.Now(),
		},
		OrderID:  order.ID,
		UserID:   order.UserID,
		Outcomes: outcomes,
	}

	if err := e.publisher.PublishGrantsFulfilled(ctx, event); err != nil {
		e.logger.Error("Failed to publish GrantsFulfilled event",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}

// normalizeProductIDs drops repeated ids, keeping first-seen order
func normalizeProductIDs(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, ErrInvalidProductSet
	}

	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("product id %d: %w", id, ErrInvalidProductSet)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
