// Package pricing tracks product prices, records their history and raises
// price-drop alerts.
package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonathan/purchase-tracker/internal/types"
)

var (
	// ErrDuplicate is returned when the owner already tracks the product.
	ErrDuplicate = errors.New("item already tracked")
	// ErrNotFound is returned when the item does not exist or belongs to someone else.
	ErrNotFound = errors.New("tracked item not found")
	// ErrInvalidName is returned for a blank display name.
	ErrInvalidName = errors.New("name is required")
)

// Store persists tracked items and their price history.
type Store interface {
	// CreateTrackedItem inserts item and, when initial is valid, its first
	// history entry in one transaction. It returns ErrDuplicate when the owner
	// already tracks the URL.
	CreateTrackedItem(ctx context.Context, item *types.TrackedItem, initial decimal.NullDecimal) (*types.TrackedItem, error)
	// GetTrackedItem returns nil, nil when the item is missing or not owned by owner.
	GetTrackedItem(ctx context.Context, owner, id uuid.UUID) (*types.TrackedItem, error)
	ListTrackedItems(ctx context.Context, owner uuid.UUID) ([]types.TrackedItem, error)
	ListAllTrackedItems(ctx context.Context) ([]types.TrackedItem, error)
	FindTrackedItemsByASIN(ctx context.Context, owner uuid.UUID, asin string) ([]types.TrackedItem, error)
	// DailyPriceHistory returns the last observation of each day, oldest first.
	DailyPriceHistory(ctx context.Context, itemID uuid.UUID) ([]types.PriceHistoryEntry, error)
	// RecordPrice appends a history entry and updates current_price and
	// last_checked in one transaction. A non-nil title replaces the display
	// name unless the item has a custom name. It returns the item as it was
	// before the update, or nil, nil when the item no longer exists.
	RecordPrice(ctx context.Context, itemID uuid.UUID, price decimal.Decimal, title *string) (*types.TrackedItem, error)
	TouchLastChecked(ctx context.Context, itemID uuid.UUID) error
	UpdateThreshold(ctx context.Context, owner, id uuid.UUID, thresholdType types.ThresholdType, value decimal.NullDecimal) (bool, error)
	RenameTrackedItem(ctx context.Context, owner, id uuid.UUID, name string) (bool, error)
	DeleteTrackedItem(ctx context.Context, owner, id uuid.UUID) (bool, error)
	NotificationSettings(ctx context.Context, userID uuid.UUID) (*types.NotificationSettings, error)
}
