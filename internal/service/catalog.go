package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fulfillment-service/internal/locator"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// AssetCatalog answers which hosted asset backs a product
type AssetCatalog struct {
	assets AssetStore
	logger *zap.Logger
}

// NewAssetCatalog creates a new asset catalog
func NewAssetCatalog(assets AssetStore) *AssetCatalog {
	return &AssetCatalog{assets: assets, logger: util.GetLogger()}
}

// Lookup returns the mapping for a product, or nil when none exists
func (c *AssetCatalog) Lookup(ctx context.Context, productID int64) (*models.AssetMapping, error) {
	ctx, span := util.StartSpan(ctx, "AssetCatalog.Lookup")
	defer span.End()

	m, err := c.assets.GetAssetMapping(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up asset for product %d: %w", productID, err)
	}
	return m, nil
}

// List returns every mapping
func (c *AssetCatalog) List(ctx context.Context) ([]models.AssetMapping, error) {
	mappings, err := c.assets.ListAssetMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset mappings: %w", err)
	}
	return mappings, nil
}

// SetAsset records where a product's asset lives. Locators are opaque, but
// the reserved fallback prefix and malformed values are refused. An empty
// locator leaves the product unmapped; existing grants pick the asset up on
// the next reconcile.
func (c *AssetCatalog) SetAsset(ctx context.Context, productID int64, assetName, loc string) (*models.AssetMapping, error) {
	ctx, span := util.StartSpan(ctx, "AssetCatalog.SetAsset")
	defer span.End()

	loc = strings.TrimSpace(loc)
	if productID <= 0 {
		return nil, fmt.Errorf("product id %d: %w", productID, ErrInvalidProductSet)
	}
	if locator.IsFallback(loc) || locator.Malformed(loc) {
		return nil, fmt.Errorf("%q: %w", loc, ErrInvalidLocator)
	}

	m := &models.AssetMapping{
		ProductID: productID,
		AssetName: assetName,
		Locator:   loc,
		UpdatedAt: time.Now().UTC(),
	}
	if err := c.assets.UpsertAssetMapping(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to save asset mapping: %w", err)
	}

	c.logger.Info("Asset mapping updated",
		zap.Int64("product_id", productID),
		zap.String("kind", string(locator.Classify(loc))))
	return m, nil
}

// grantLocator picks the locator a grant for productID should carry
func grantLocator(productID int64, m *models.AssetMapping) (string, bool) {
	if m != nil && locator.IsReal(m.Locator) {
		return m.Locator, true
	}
	return locator.Fallback(productID), false
}
