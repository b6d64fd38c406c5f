package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// EventProcessor applies order and payment events consumed from the broker.
// Each event id is handled at most once: redis claims stop concurrent
// deliveries and processed_events stops replays. A handler error releases
// the claim and is returned, so the consumer retries the same message.
type EventProcessor struct {
	events    EventStore
	claims    EventClaimer
	engine    *FulfillmentEngine
	dedupeTTL time.Duration
	logger    *zap.Logger
}

// NewEventProcessor creates a new event processor. claims may be nil.
func NewEventProcessor(events EventStore, claims EventClaimer, engine *FulfillmentEngine, dedupeTTL time.Duration) *EventProcessor {
	return &EventProcessor{
		events:    events,
		claims:    claims,
		engine:    engine,
		dedupeTTL: dedupeTTL,
		logger:    util.GetLogger(),
	}
}

// HandleOrderCompleted fulfills an order that checkout reported complete
func (p *EventProcessor) HandleOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	ctx, span := util.StartSpan(ctx, "EventProcessor.HandleOrderCompleted")
	defer span.End()

	return p.once(ctx, event.BaseEvent, func(ctx context.Context) error {
		return p.fulfill(ctx, event.OrderID)
	})
}

// HandlePaymentSuccess completes the order's payment and fulfills it
func (p *EventProcessor) HandlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	ctx, span := util.StartSpan(ctx, "EventProcessor.HandlePaymentSuccess")
	defer span.End()

	return p.once(ctx, event.BaseEvent, func(ctx context.Context) error {
		p.logger.Info("Handling payment success",
			zap.String("order_id", event.OrderID),
			zap.String("tx_id", event.TxID))

		changed, err := p.events.MarkPaymentStatus(ctx, event.OrderID, models.PaymentStatusCompleted)
		if err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		if !changed {
			p.logger.Info("Order was not pending, fulfilling as recorded",
				zap.String("order_id", event.OrderID))
		}

		return p.fulfill(ctx, event.OrderID)
	})
}

// HandlePaymentFailed marks the order failed. No grants are written.
func (p *EventProcessor) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "EventProcessor.HandlePaymentFailed")
	defer span.End()

	return p.once(ctx, event.BaseEvent, func(ctx context.Context) error {
		p.logger.Warn("Handling payment failure",
			zap.String("order_id", event.OrderID),
			zap.String("reason", event.Reason))

		if _, err := p.events.MarkPaymentStatus(ctx, event.OrderID, models.PaymentStatusFailed); err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		return nil
	})
}

// fulfill grants an order's products. An order that is missing or not
// completed is final for this event: redelivery cannot change it.
func (p *EventProcessor) fulfill(ctx context.Context, orderID string) error {
	outcomes, err := p.engine.FulfillOrderByID(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		p.logger.Warn("No completed order to fulfill, dropping event",
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	for _, o := range outcomes {
		if o.Outcome == models.OutcomeFailed {
			p.logger.Warn("Grant left for reconciliation",
				zap.String("order_id", orderID),
				zap.Int64("product_id", o.ProductID),
				zap.String("error", o.Error))
		}
	}
	return nil
}

func (p *EventProcessor) once(ctx context.Context, event models.BaseEvent, handle func(context.Context) error) error {
	processed, err := p.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		p.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		util.EventsProcessedTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		return nil
	}

	claimed := false
	if p.claims != nil {
		claimed, err = p.claims.ClaimIdempotencyKey(ctx, event.EventID, p.dedupeTTL)
		switch {
		case err != nil:
			// redis unavailable; processed_events still guards replays
			p.logger.Warn("Failed to claim event, processing anyway",
				zap.String("event_id", event.EventID),
				zap.Error(err))
		case !claimed:
			p.logger.Info("Event claimed by another consumer", zap.String("event_id", event.EventID))
			util.EventsProcessedTotal.WithLabelValues(event.EventType, "duplicate").Inc()
			return nil
		}
	}

	if err := handle(ctx); err != nil {
		if claimed {
			if ferr := p.claims.ForgetIdempotencyKey(context.WithoutCancel(ctx), event.EventID); ferr != nil {
				p.logger.Error("Failed to release event claim", zap.String("event_id", event.EventID), zap.Error(ferr))
			}
		}
		util.EventsProcessedTotal.WithLabelValues(event.EventType, "error").Inc()
		return err
	}

	if err := p.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		p.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	util.EventsProcessedTotal.WithLabelValues(event.EventType, "ok").Inc()
	return nil
}
