package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fulfillment-service/internal/models"
)

// GetAssetMapping returns the mapping for a product, or nil when none exists
func (s *Store) GetAssetMapping(ctx context.Context, productID int64) (*models.AssetMapping, error) {
	var m models.AssetMapping
	err := s.db.GetContext(ctx, &m,
		s.q("SELECT product_id, asset_name, COALESCE(locator, '') AS locator, updated_at FROM asset_mappings WHERE product_id = ?"),
		productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListAssetMappings returns every mapping ordered by product
func (s *Store) ListAssetMappings(ctx context.Context) ([]models.AssetMapping, error) {
	var mappings []models.AssetMapping
	err := s.db.SelectContext(ctx, &mappings,
		"SELECT product_id, asset_name, COALESCE(locator, '') AS locator, updated_at FROM asset_mappings ORDER BY product_id")
	return mappings, err
}

// UpsertAssetMapping creates or replaces the mapping for a product. An empty
// locator is stored as NULL.
func (s *Store) UpsertAssetMapping(ctx context.Context, m *models.AssetMapping) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}

	var locator sql.NullString
	if m.Locator != "" {
		locator = sql.NullString{String: m.Locator, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO asset_mappings (product_id, asset_name, locator, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (product_id) DO UPDATE SET
			asset_name = excluded.asset_name,
			locator = excluded.locator,
			updated_at = excluded.updated_at`),
		m.ProductID, m.AssetName, locator, m.UpdatedAt)
	return err
}
