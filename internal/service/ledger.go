package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// EntitlementLedger is the durable record of which users may access which
// products. Every read goes to storage.
type EntitlementLedger struct {
	grants GrantStore
	logger *zap.Logger
	now    func() time.Time
}

// NewEntitlementLedger creates a new entitlement ledger
func NewEntitlementLedger(grants GrantStore) *EntitlementLedger {
	return &EntitlementLedger{
		grants: grants,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// UpsertGrant creates or overwrites the grant for (userID, productID) in a
// single storage statement. Concurrent writers converge to one row.
func (l *EntitlementLedger) UpsertGrant(ctx context.Context, userID string, productID int64, locator, status string) (*models.EntitlementGrant, error) {
	ctx, span := util.StartSpan(ctx, "EntitlementLedger.UpsertGrant")
	defer span.End()

	grant := &models.EntitlementGrant{
		UserID:    userID,
		ProductID: productID,
		Locator:   locator,
		Status:    status,
		GrantedAt: l.now().UTC(),
	}

	if err := l.grants.UpsertGrant(ctx, grant); err != nil {
		util.LedgerWriteFailuresTotal.Inc()
		return nil, fmt.Errorf("%w: user %s product %d: %w", ErrLedgerWriteFailed, userID, productID, err)
	}

	util.GrantsUpsertedTotal.WithLabelValues(status).Inc()
	return grant, nil
}

// RefreshGrant writes a granted row carrying locator unless the grant has been
// revoked, in which case nothing is written and ok is false.
func (l *EntitlementLedger) RefreshGrant(ctx context.Context, userID string, productID int64, locator string) (grant *models.EntitlementGrant, ok bool, err error) {
	ctx, span := util.StartSpan(ctx, "EntitlementLedger.RefreshGrant")
	defer span.End()

	grant = &models.EntitlementGrant{
		UserID:    userID,
		ProductID: productID,
		Locator:   locator,
		Status:    models.GrantStatusGranted,
		GrantedAt: l.now().UTC(),
	}

	ok, err = l.grants.UpsertGrantUnlessRevoked(ctx, grant)
	if err != nil {
		util.LedgerWriteFailuresTotal.Inc()
		return nil, false, fmt.Errorf("%w: user %s product %d: %w", ErrLedgerWriteFailed, userID, productID, err)
	}
	if !ok {
		return nil, false, nil
	}

	util.GrantsUpsertedTotal.WithLabelValues(grant.Status).Inc()
	return grant, true, nil
}

// GetGrant returns the grant for (userID, productID), or nil when none exists
func (l *EntitlementLedger) GetGrant(ctx context.Context, userID string, productID int64) (*models.EntitlementGrant, error) {
	ctx, span := util.StartSpan(ctx, "EntitlementLedger.GetGrant")
	defer span.End()

	grant, err := l.grants.GetGrant(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return grant, nil
}

// ListGrants returns every grant held by a user
func (l *EntitlementLedger) ListGrants(ctx context.Context, userID string) ([]models.EntitlementGrant, error) {
	ctx, span := util.StartSpan(ctx, "EntitlementLedger.ListGrants")
	defer span.End()

	grants, err := l.grants.ListGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return grants, nil
}

// ListGrantsByStatus returns every grant in a status, across users
func (l *EntitlementLedger) ListGrantsByStatus(ctx context.Context, status string) ([]models.EntitlementGrant, error) {
	switch status {
	case models.GrantStatusGranted, models.GrantStatusPending, models.GrantStatusRevoked:
	default:
		return nil, fmt.Errorf("unknown grant status %q", status)
	}

	grants, err := l.grants.ListGrantsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return grants, nil
}

// RevokeGrant marks an existing grant revoked
func (l *EntitlementLedger) RevokeGrant(ctx context.Context, userID string, productID int64) error {
	ctx, span := util.StartSpan(ctx, "EntitlementLedger.RevokeGrant")
	defer span.End()

	changed, err := l.grants.UpdateGrantStatus(ctx, userID, productID, models.GrantStatusRevoked)
	if err != nil {
		util.LedgerWriteFailuresTotal.Inc()
		return fmt.Errorf("%w: %w", ErrLedgerWriteFailed, err)
	}
	if !changed {
		return fmt.Errorf("user %s product %d: %w", userID, productID, ErrGrantNotFound)
	}

	util.GrantsRevokedTotal.Inc()
	l.logger.Info("Grant revoked",
		zap.String("user_id", userID),
		zap.Int64("product_id", productID))
	return nil
}

// PurgeForUser deletes every grant held by a user and returns how many went
func (l *EntitlementLedger) PurgeForUser(ctx context.Context, userID string) (int64, error) {
	ctx, span := util.StartSpan(ctx, "EntitlementLedger.PurgeForUser")
	defer span.End()

	n, err := l.grants.DeleteGrantsForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete grants: %w", err)
	}
	return n, nil
}
