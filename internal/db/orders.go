package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/purchase-tracker/internal/provider"
)

// -----------------------------------------------------------------------------
// Order Methods
// -----------------------------------------------------------------------------

// SaveOrder stores an order and its items. An order already stored for owner
// is left untouched and yields no new items.
func (db *DB) SaveOrder(ctx context.Context, owner uuid.UUID, order provider.Order) ([]provider.OrderItem, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	var orderDate *time.Time
	if !order.Date.IsZero() {
		orderDate = &order.Date
	}

	var orderID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, external_order_id, order_date, total)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, external_order_id) DO NOTHING
		 RETURNING id`,
		owner, order.ID, orderDate, order.Total,
	).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to insert order %s: %w", order.ID, err)
	}

	for i, item := range order.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_items (order_id, line_no, title, asin, url, price, quantity)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderID, i+1, item.Title, nullIfEmpty(item.ASIN), nullIfEmpty(item.URL), item.Price, quantity,
		); err != nil {
			return nil, fmt.Errorf("failed to insert item %d of order %s: %w", i+1, order.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return order.Items, nil
}

// CountOrders returns how many orders are stored for owner.
func (db *DB) CountOrders(ctx context.Context, owner uuid.UUID) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, owner).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}
