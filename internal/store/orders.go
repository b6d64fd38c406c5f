package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// itemBatchSize bounds the IN list when loading order lines
const itemBatchSize = 500

// CreateOrder inserts an order with its product lines. Duplicate product ids
// collapse into one line.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		s.q("INSERT INTO orders (id, user_id, total_amount, payment_status, created_at) VALUES (?, ?, ?, ?, ?)"),
		order.ID, order.UserID, order.TotalAmount, order.PaymentStatus, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, productID := range order.ProductIDs {
		_, err = tx.ExecContext(ctx,
			s.q("INSERT INTO order_items (order_id, product_id) VALUES (?, ?) ON CONFLICT (order_id, product_id) DO NOTHING"),
			order.ID, productID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// MarkPaymentStatus moves a pending order to completed or failed. It reports
// false when the order was not pending.
func (s *Store) MarkPaymentStatus(ctx context.Context, orderID, status string) (bool, error) {
	if status != models.PaymentStatusCompleted && status != models.PaymentStatusFailed {
		return false, fmt.Errorf("invalid payment status transition to %q", status)
	}

	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE orders SET payment_status = ? WHERE id = ? AND payment_status = ?"),
		status, orderID, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetOrderByID retrieves an order regardless of payment status
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		s.q("SELECT id, user_id, total_amount, payment_status, created_at FROM orders WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachItems(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetCompletedOrder retrieves an order whose payment has completed
func (s *Store) GetCompletedOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != models.PaymentStatusCompleted {
		return nil, fmt.Errorf("order %s is %s: %w", id, order.PaymentStatus, ErrNotFound)
	}
	return order, nil
}

// ListCompletedOrdersContaining lists completed orders that include a product
func (s *Store) ListCompletedOrdersContaining(ctx context.Context, productID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, s.q(`
		SELECT o.id, o.user_id, o.total_amount, o.payment_status, o.created_at
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE oi.product_id = ? AND o.payment_status = ?
		ORDER BY o.created_at`),
		productID, models.PaymentStatusCompleted)
	if err != nil {
		return nil, err
	}
	return orders, s.attachItemsToSlice(ctx, orders)
}

// ListAllCompletedOrders lists every completed order, oldest first
func (s *Store) ListAllCompletedOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, s.q(`
		SELECT id, user_id, total_amount, payment_status, created_at
		FROM orders
		WHERE payment_status = ?
		ORDER BY created_at, id`),
		models.PaymentStatusCompleted)
	if err != nil {
		return nil, err
	}
	return orders, s.attachItemsToSlice(ctx, orders)
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		s.q("SELECT id, user_id, total_amount, payment_status, created_at FROM orders WHERE user_id = ? ORDER BY created_at DESC"),
		userID)
	if err != nil {
		return nil, err
	}
	return orders, s.attachItemsToSlice(ctx, orders)
}

// DeleteOrdersForUser removes a user's orders and their lines
func (s *Store) DeleteOrdersForUser(ctx context.Context, userID string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		s.q("DELETE FROM order_items WHERE order_id IN (SELECT id FROM orders WHERE user_id = ?)"), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete order items: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.q("DELETE FROM orders WHERE user_id = ?"), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orders: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return n, tx.Commit()
}

func (s *Store) attachItemsToSlice(ctx context.Context, orders []models.Order) error {
	ptrs := make([]*models.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	return s.attachItems(ctx, ptrs)
}

// attachItems fills ProductIDs for the given orders, batching the IN list
func (s *Store) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[string]*models.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		o.ProductIDs = nil
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	for start := 0; start < len(ids); start += itemBatchSize {
		end := start + itemBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		query, args, err := sqlx.In("SELECT order_id, product_id FROM order_items WHERE order_id IN (?) ORDER BY order_id, product_id", ids[start:end])
		if err != nil {
			return err
		}

		var items []models.OrderItem
		if err := s.db.SelectContext(ctx, &items, s.q(query), args...); err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}

		for _, it := range items {
			if o, ok := byID[it.OrderID]; ok {
				o.ProductIDs = append(o.ProductIDs, it.ProductID)
			}
		}
	}
	return nil
}
