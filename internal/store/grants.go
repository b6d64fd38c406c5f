package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fulfillment-service/internal/models"
)

// UpsertGrant inserts the grant or overwrites the existing one for the same
// (user_id, product_id). The statement is atomic, so concurrent callers for
// one key leave a single row holding the last writer's values.
func (s *Store) UpsertGrant(ctx context.Context, g *models.EntitlementGrant) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO entitlement_grants (user_id, product_id, locator, status, granted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			locator = excluded.locator,
			status = excluded.status,
			granted_at = excluded.granted_at`),
		g.UserID, g.ProductID, g.Locator, g.Status, g.GrantedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert grant: %w", err)
	}
	return nil
}

// UpsertGrantUnlessRevoked behaves like UpsertGrant but leaves a revoked row
// untouched. It reports whether a row was written.
func (s *Store) UpsertGrantUnlessRevoked(ctx context.Context, g *models.EntitlementGrant) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO entitlement_grants (user_id, product_id, locator, status, granted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			locator = excluded.locator,
			status = excluded.status,
			granted_at = excluded.granted_at
		WHERE entitlement_grants.status <> 'revoked'`),
		g.UserID, g.ProductID, g.Locator, g.Status, g.GrantedAt)
	if err != nil {
		return false, fmt.Errorf("failed to upsert grant: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// GetGrant returns the grant for (userID, productID), or nil when none exists
func (s *Store) GetGrant(ctx context.Context, userID string, productID int64) (*models.EntitlementGrant, error) {
	var g models.EntitlementGrant
	err := s.db.GetContext(ctx, &g,
		s.q("SELECT user_id, product_id, locator, status, granted_at FROM entitlement_grants WHERE user_id = ? AND product_id = ?"),
		userID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGrants returns every grant held by a user
func (s *Store) ListGrants(ctx context.Context, userID string) ([]models.EntitlementGrant, error) {
	var grants []models.EntitlementGrant
	err := s.db.SelectContext(ctx, &grants,
		s.q("SELECT user_id, product_id, locator, status, granted_at FROM entitlement_grants WHERE user_id = ? ORDER BY product_id"),
		userID)
	return grants, err
}

// ListGrantsByStatus returns grants in the given status across all users
func (s *Store) ListGrantsByStatus(ctx context.Context, status string) ([]models.EntitlementGrant, error) {
	var grants []models.EntitlementGrant
	err := s.db.SelectContext(ctx, &grants,
		s.q("SELECT user_id, product_id, locator, status, granted_at FROM entitlement_grants WHERE status = ? ORDER BY granted_at"),
		status)
	return grants, err
}

// UpdateGrantStatus changes the status of an existing grant. It reports false
// when there is no grant for the key.
func (s *Store) UpdateGrantStatus(ctx context.Context, userID string, productID int64, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE entitlement_grants SET status = ? WHERE user_id = ? AND product_id = ?"),
		status, userID, productID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteGrantsForUser removes every grant held by a user
func (s *Store) DeleteGrantsForUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM entitlement_grants WHERE user_id = ?"), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
