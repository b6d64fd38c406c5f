package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fulfillment-service/internal/locator"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const reconcileLockKey = "reconcile"

// Reconcile actions per (user, product)
const (
	actionCreated   = "created"
	actionRefreshed = "refreshed"
	actionSkipped   = "skipped"
	actionFailed    = "failed"
)

// Reconciler re-derives grants from completed orders and the current catalog
type Reconciler struct {
	orders      OrderReader
	catalog     *AssetCatalog
	ledger      *EntitlementLedger
	locker      Locker
	lockTTL     time.Duration
	concurrency int
	logger      *zap.Logger
}

// NewReconciler creates a new reconciler. locker may be nil for single
// instance runs.
func NewReconciler(
	orders OrderReader,
	catalog *AssetCatalog,
	ledger *EntitlementLedger,
	locker Locker,
	concurrency int,
	lockTTL time.Duration,
) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{
		orders:      orders,
		catalog:     catalog,
		ledger:      ledger,
		locker:      locker,
		lockTTL:     lockTTL,
		concurrency: concurrency,
		logger:      util.GetLogger(),
	}
}

type grantKey struct {
	userID    string
	productID int64
}

// ReconcileAll walks every completed order and makes sure each purchased
// product has a grant carrying the best known locator. Healthy and revoked
// grants are left alone.
func (r *Reconciler) ReconcileAll(ctx context.Context) (models.ReconcileSummary, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.ReconcileAll")
	defer span.End()

	var summary models.ReconcileSummary
	start := time.Now()

	if r.locker != nil {
		token, ok, err := r.locker.AcquireLock(ctx, reconcileLockKey, r.lockTTL)
		if err != nil {
			util.ReconcileRunsTotal.WithLabelValues("error").Inc()
			return summary, fmt.Errorf("failed to acquire reconcile lock: %w", err)
		}
		if !ok {
			util.ReconcileRunsTotal.WithLabelValues("locked").Inc()
			return summary, ErrReconcileInProgress
		}
		defer func() {
			if err := r.locker.ReleaseLock(context.WithoutCancel(ctx), reconcileLockKey, token); err != nil {
				r.logger.Error("Failed to release reconcile lock", zap.Error(err))
			}
		}()
	}

	orders, err := r.orders.ListAllCompletedOrders(ctx)
	if err != nil {
		util.ReconcileRunsTotal.WithLabelValues("error").Inc()
		return summary, fmt.Errorf("failed to list completed orders: %w", err)
	}
	summary.Orders = len(orders)

	keys := make([]grantKey, 0, len(orders))
	seen := make(map[grantKey]struct{})
	for _, o := range orders {
		for _, productID := range o.ProductIDs {
			if productID <= 0 {
				continue
			}
			k := grantKey{userID: o.UserID, productID: productID}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for _, k := range keys {
		if ctx.Err() != nil {
			break
		}
		k := k
		g.Go(func() error {
			action := r.reconcileGrant(ctx, k)
			util.ReconcileGrantsTotal.WithLabelValues(action).Inc()

			mu.Lock()
			defer mu.Unlock()
			switch action {
			case actionCreated:
				summary.Created++
			case actionRefreshed:
				summary.Refreshed++
			case actionSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)
	util.ReconcileDuration.Observe(summary.Duration.Seconds())

	if err := ctx.Err(); err != nil {
		util.ReconcileRunsTotal.WithLabelValues("cancelled").Inc()
		return summary, err
	}

	util.ReconcileRunsTotal.WithLabelValues("ok").Inc()
	r.logger.Info("Reconciliation finished",
		zap.Int("orders", summary.Orders),
		zap.Int("created", summary.Created),
		zap.Int("refreshed", summary.Refreshed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

func (r *Reconciler) reconcileGrant(ctx context.Context, k grantKey) string {
	grant, err := r.ledger.GetGrant(ctx, k.userID, k.productID)
	if err != nil {
		r.logFailure(k, err)
		return actionFailed
	}

	if grant != nil {
		if grant.Status == models.GrantStatusRevoked {
			return actionSkipped
		}
		if grant.Status == models.GrantStatusGranted && locator.IsReal(grant.Locator) {
			return actionSkipped
		}
	}

	mapping, err := r.catalog.Lookup(ctx, k.productID)
	if err != nil {
		r.logFailure(k, err)
		return actionFailed
	}

	loc, _ := grantLocator(k.productID, mapping)
	if grant != nil && grant.Status == models.GrantStatusGranted && grant.Locator == loc {
		// still unmapped, nothing better to write
		return actionSkipped
	}

	_, written, err := r.ledger.RefreshGrant(ctx, k.userID, k.productID, loc)
	if err != nil {
		r.logFailure(k, err)
		return actionFailed
	}
	if !written {
		r.logger.Info("Grant revoked during reconciliation, left as is",
			zap.String("user_id", k.userID),
			zap.Int64("product_id", k.productID))
		return actionSkipped
	}

	if grant == nil {
		return actionCreated
	}
	r.logger.Debug("Grant refreshed",
		zap.String("user_id", k.userID),
		zap.Int64("product_id", k.productID),
		zap.String("previous_locator", grant.Locator),
		zap.String("locator", loc))
	return actionRefreshed
}

func (r *Reconciler) logFailure(k grantKey, err error) {
	r.logger.Error("Failed to reconcile grant",
		zap.String("user_id", k.userID),
		zap.Int64("product_id", k.productID),
		zap.Error(err))
}
