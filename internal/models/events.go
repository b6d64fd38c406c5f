package models

import "time"

// Event types
const (
	EventTypeOrderCompleted  = "ORDER_COMPLETED"
	EventTypePaymentSuccess  = "PAYMENT_SUCCESS"
	EventTypePaymentFailed   = "PAYMENT_FAILED"
	EventTypeGrantsFulfilled = "GRANTS_FULFILLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCompletedEvent is published by checkout once an order is paid
type OrderCompletedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

// PaymentSuccessEvent published by the payment gateway adapter
type PaymentSuccessEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
	TxID    string `json:"tx_id"`
}

// PaymentFailedEvent published by the payment gateway adapter
type PaymentFailedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// GrantsFulfilledEvent published after an order has been turned into grants
type GrantsFulfilledEvent struct {
	BaseEvent
	OrderID  string           `json:"order_id"`
	UserID   string           `json:"user_id"`
	Outcomes []ProductOutcome `json:"outcomes"`
}
