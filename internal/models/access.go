package models

import "fulfillment-service/internal/locator"

// Access states
const (
	AccessNoPurchase     = "no_purchase"
	AccessPendingMapping = "pending_mapping"
	AccessGranted        = "granted"
	AccessRevoked        = "revoked"
)

// User-facing messages
const (
	MessageNoPurchase     = "product has not been purchased"
	MessagePendingMapping = "access granted, file being prepared"
	MessageGranted        = "access granted"
	MessageFallback       = "access granted, contact support for file"
	MessageRevoked        = "access to this product has been revoked"
)

// AccessDecision is derived on every request and never stored
type AccessDecision struct {
	UserID    string             `json:"user_id"`
	ProductID int64              `json:"product_id"`
	State     string             `json:"state"`
	Locator   string             `json:"locator,omitempty"`
	Reference *locator.Reference `json:"reference,omitempty"`
	Degraded  bool               `json:"degraded"`
	Message   string             `json:"message"`
}
