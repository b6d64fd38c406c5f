package service

import (
	"context"
	"time"

	"fulfillment-service/internal/models"
)

// OrderReader is the read side of the orders collaborator
type OrderReader interface {
	GetCompletedOrder(ctx context.Context, id string) (*models.Order, error)
	ListCompletedOrdersContaining(ctx context.Context, productID int64) ([]models.Order, error)
	ListAllCompletedOrders(ctx context.Context) ([]models.Order, error)
}

// OrderPurger deletes a user's purchase history
type OrderPurger interface {
	DeleteOrdersForUser(ctx context.Context, userID string) (int64, error)
}

// AssetStore holds product to asset mappings. A missing mapping reads as (nil, nil).
type AssetStore interface {
	GetAssetMapping(ctx context.Context, productID int64) (*models.AssetMapping, error)
	ListAssetMappings(ctx context.Context) ([]models.AssetMapping, error)
	UpsertAssetMapping(ctx context.Context, m *models.AssetMapping) error
}

// GrantStore persists entitlement grants keyed by (user, product)
type GrantStore interface {
	UpsertGrant(ctx context.Context, g *models.EntitlementGrant) error
	UpsertGrantUnlessRevoked(ctx context.Context, g *models.EntitlementGrant) (bool, error)
	GetGrant(ctx context.Context, userID string, productID int64) (*models.EntitlementGrant, error)
	ListGrants(ctx context.Context, userID string) ([]models.EntitlementGrant, error)
	ListGrantsByStatus(ctx context.Context, status string) ([]models.EntitlementGrant, error)
	UpdateGrantStatus(ctx context.Context, userID string, productID int64, status string) (bool, error)
	DeleteGrantsForUser(ctx context.Context, userID string) (int64, error)
}

// EventStore records consumed events and applies payment transitions
type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	MarkPaymentStatus(ctx context.Context, orderID, status string) (bool, error)
}

// EventClaimer claims event ids across instances before they are handled
type EventClaimer interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ForgetIdempotencyKey(ctx context.Context, key string) error
}

// Locker is a distributed mutex with token-checked release
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// GrantsPublisher announces fulfilled orders
type GrantsPublisher interface {
	PublishGrantsFulfilled(ctx context.Context, event *models.GrantsFulfilledEvent) error
}
