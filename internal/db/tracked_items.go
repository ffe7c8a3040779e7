package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jonathan/purchase-tracker/internal/pricing"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// -----------------------------------------------------------------------------
// Tracked Item Methods
// -----------------------------------------------------------------------------

const trackedItemColumns = `id, user_id, url, COALESCE(asin, ''), name, is_custom_name, current_price,
	currency, threshold_type, threshold_value, last_checked, created_at`

// CreateTrackedItem inserts an item and its first price observation.
func (db *DB) CreateTrackedItem(ctx context.Context, item *types.TrackedItem, initial decimal.NullDecimal) (*types.TrackedItem, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	created, err := scanTrackedItem(tx.QueryRow(ctx,
		`INSERT INTO tracked_items (user_id, url, asin, name, current_price, currency,
		                            threshold_type, threshold_value, last_checked)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 RETURNING `+trackedItemColumns,
		item.Owner, item.SourceURL, nullIfEmpty(item.ExternalID), item.DisplayName, initial,
		item.Currency, nullIfEmpty(string(item.ThresholdType)), item.ThresholdValue,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, pricing.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create tracked item: %w", err)
	}

	if initial.Valid {
		if _, err := tx.Exec(ctx,
			`INSERT INTO price_history (tracked_item_id, price) VALUES ($1, $2)`,
			created.ID, initial.Decimal,
		); err != nil {
			return nil, fmt.Errorf("failed to record initial price: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return created, nil
}

// GetTrackedItem retrieves an item owned by owner
func (db *DB) GetTrackedItem(ctx context.Context, owner, id uuid.UUID) (*types.TrackedItem, error) {
	item, err := scanTrackedItem(db.pool.QueryRow(ctx,
		`SELECT `+trackedItemColumns+` FROM tracked_items WHERE id = $1 AND user_id = $2`,
		id, owner,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tracked item: %w", err)
	}
	return item, nil
}

// ListTrackedItems lists owner's items, newest first
func (db *DB) ListTrackedItems(ctx context.Context, owner uuid.UUID) ([]types.TrackedItem, error) {
	return db.queryTrackedItems(ctx,
		`SELECT `+trackedItemColumns+` FROM tracked_items WHERE user_id = $1 ORDER BY created_at DESC`,
		owner)
}

// ListAllTrackedItems lists every tracked item, oldest first
func (db *DB) ListAllTrackedItems(ctx context.Context) ([]types.TrackedItem, error) {
	return db.queryTrackedItems(ctx,
		`SELECT `+trackedItemColumns+` FROM tracked_items ORDER BY created_at`)
}

// FindTrackedItemsByASIN lists owner's items for one product
func (db *DB) FindTrackedItemsByASIN(ctx context.Context, owner uuid.UUID, asin string) ([]types.TrackedItem, error) {
	return db.queryTrackedItems(ctx,
		`SELECT `+trackedItemColumns+` FROM tracked_items WHERE user_id = $1 AND asin = $2 ORDER BY created_at`,
		owner, asin)
}

// DailyPriceHistory returns the last observation of each day, oldest first.
func (db *DB) DailyPriceHistory(ctx context.Context, itemID uuid.UUID) ([]types.PriceHistoryEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT ON (DATE(recorded_at)) tracked_item_id, price, recorded_at
		 FROM price_history
		 WHERE tracked_item_id = $1
		 ORDER BY DATE(recorded_at) ASC, recorded_at DESC`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer rows.Close()

	var history []types.PriceHistoryEntry
	for rows.Next() {
		var e types.PriceHistoryEntry
		if err := rows.Scan(&e.TrackedItemID, &e.Price, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

// RecordPrice appends a price observation and updates the item in one
// transaction, returning the item as it was before.
func (db *DB) RecordPrice(ctx context.Context, itemID uuid.UUID, price decimal.Decimal, title *string) (*types.TrackedItem, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	prev, err := scanTrackedItem(tx.QueryRow(ctx,
		`SELECT `+trackedItemColumns+` FROM tracked_items WHERE id = $1 FOR UPDATE`, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock tracked item: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO price_history (tracked_item_id, price) VALUES ($1, $2)`,
		itemID, price,
	); err != nil {
		return nil, fmt.Errorf("failed to insert price history: %w", err)
	}

	name := prev.DisplayName
	if title != nil && *title != "" && !prev.CustomName {
		name = *title
	}
	if _, err := tx.Exec(ctx,
		`UPDATE tracked_items SET current_price = $2, name = $3, last_checked = NOW() WHERE id = $1`,
		itemID, price, name,
	); err != nil {
		return nil, fmt.Errorf("failed to update tracked item: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return prev, nil
}

// TouchLastChecked records a check that produced no price.
func (db *DB) TouchLastChecked(ctx context.Context, itemID uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `UPDATE tracked_items SET last_checked = NOW() WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to update last checked: %w", err)
	}
	return nil
}

// UpdateThreshold sets an item's notification threshold.
func (db *DB) UpdateThreshold(ctx context.Context, owner, id uuid.UUID, thresholdType types.ThresholdType, value decimal.NullDecimal) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tracked_items SET threshold_type = $3, threshold_value = $4
		 WHERE id = $1 AND user_id = $2`,
		id, owner, nullIfEmpty(string(thresholdType)), value,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update threshold: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RenameTrackedItem gives an item a custom name.
func (db *DB) RenameTrackedItem(ctx context.Context, owner, id uuid.UUID, name string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE tracked_items SET name = $3, is_custom_name = TRUE
		 WHERE id = $1 AND user_id = $2`,
		id, owner, name,
	)
	if err != nil {
		return false, fmt.Errorf("failed to rename tracked item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteTrackedItem deletes an item and its history (via cascade)
func (db *DB) DeleteTrackedItem(ctx context.Context, owner, id uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM tracked_items WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return false, fmt.Errorf("failed to delete tracked item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) queryTrackedItems(ctx context.Context, query string, args ...any) ([]types.TrackedItem, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked items: %w", err)
	}
	defer rows.Close()

	var items []types.TrackedItem
	for rows.Next() {
		item, err := scanTrackedItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanTrackedItem(row pgx.Row) (*types.TrackedItem, error) {
	var item types.TrackedItem
	var thresholdType *string
	if err := row.Scan(&item.ID, &item.Owner, &item.SourceURL, &item.ExternalID, &item.DisplayName,
		&item.CustomName, &item.CurrentPrice, &item.Currency, &thresholdType, &item.ThresholdValue,
		&item.LastCheckedAt, &item.CreatedAt); err != nil {
		return nil, err
	}
	if thresholdType != nil {
		item.ThresholdType = types.ThresholdType(*thresholdType)
	}
	return &item, nil
}

var _ pricing.Store = (*DB)(nil)
