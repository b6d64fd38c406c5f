package worker

import (
	"context"

	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// FulfillmentWorker consumes order and payment events and turns completed
// orders into grants
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(consumer *broker.Consumer, processor *service.EventProcessor) *FulfillmentWorker {
	return &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: NewEventHandler(processor),
		logger:       util.GetLogger(),
	}
}

// NewEventHandler wires the processor's handlers into a broker router
func NewEventHandler(processor *service.EventProcessor) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCompleted(processor.HandleOrderCompleted)
	eventHandler.OnPaymentSuccess(processor.HandlePaymentSuccess)
	eventHandler.OnPaymentFailed(processor.HandlePaymentFailed)
	return eventHandler
}

// Start blocks consuming events until ctx is cancelled
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting fulfillment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	w.logger.Info("Stopping fulfillment worker")
	return w.consumer.Close()
}
