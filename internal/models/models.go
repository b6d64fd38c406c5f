package models

import "time"

// Order represents one purchase as recorded by the checkout flow
type Order struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	ProductIDs    []int64   `db:"-" json:"product_ids"`
	TotalAmount   int64     `db:"total_amount" json:"total_amount"`
	PaymentStatus string    `db:"payment_status" json:"payment_status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// OrderItem is one product line of an order
type OrderItem struct {
	OrderID   string `db:"order_id" json:"order_id"`
	ProductID int64  `db:"product_id" json:"product_id"`
}

// AssetMapping maps a product to its externally hosted asset
type AssetMapping struct {
	ProductID int64     `db:"product_id" json:"product_id"`
	AssetName string    `db:"asset_name" json:"asset_name"`
	Locator   string    `db:"locator" json:"locator,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EntitlementGrant records that a user may access a product's asset.
// Keyed by (UserID, ProductID).
type EntitlementGrant struct {
	UserID    string    `db:"user_id" json:"user_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Locator   string    `db:"locator" json:"locator"`
	Status    string    `db:"status" json:"status"`
	GrantedAt time.Time `db:"granted_at" json:"granted_at"`
}

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Grant statuses
const (
	GrantStatusGranted = "granted"
	GrantStatusPending = "pending"
	GrantStatusRevoked = "revoked"
)

// Fulfillment outcomes per product
const (
	OutcomeGranted         = "granted"
	OutcomeGrantedFallback = "granted_fallback"
	OutcomeFailed          = "failed"
)

// ProductOutcome is the terminal result of fulfilling one product of an order
type ProductOutcome struct {
	ProductID int64  `json:"product_id"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
}

// ReconcileSummary reports what a reconciliation run did
type ReconcileSummary struct {
	Orders    int           `json:"orders"`
	Created   int           `json:"created"`
	Refreshed int           `json:"refreshed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// PurgeResult reports the two halves of a purchase history purge independently
type PurgeResult struct {
	UserID        string `json:"user_id"`
	DeletedGrants int64  `json:"deleted_grants"`
	DeletedOrders int64  `json:"deleted_orders"`
	GrantsError   string `json:"grants_error,omitempty"`
	OrdersError   string `json:"orders_error,omitempty"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
