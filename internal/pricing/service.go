package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonathan/purchase-tracker/internal/fetch"
	"github.com/jonathan/purchase-tracker/internal/logging"
	"github.com/jonathan/purchase-tracker/internal/provider"
	"github.com/jonathan/purchase-tracker/internal/types"
)

const unknownProduct = "Unknown Product"

// DefaultSweepConcurrency bounds parallel page fetches during a price sweep.
const DefaultSweepConcurrency = 4

// Dispatcher delivers price-drop payloads.
type Dispatcher interface {
	Dispatch(ctx context.Context, url string, payload any)
}

// Service owns tracked-item mutations and price observations.
type Service struct {
	store     Store
	prices    provider.PriceFetcher
	alerts    Dispatcher
	log       *logging.Logger
	sweepSize int64
}

// Option configures a Service.
type Option func(*Service)

// WithSweepConcurrency sets how many items CheckAll fetches at once.
func WithSweepConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepSize = int64(n)
		}
	}
}

// NewService creates a pricing service.
func NewService(store Store, prices provider.PriceFetcher, alerts Dispatcher, log *logging.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		prices:    prices,
		alerts:    alerts,
		log:       logging.OrNop(log).With("component", "pricing"),
		sweepSize: DefaultSweepConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Track starts watching a product for owner. The current price is scraped
// once; a failed scrape still tracks the item without a price. When the
// request has no threshold the owner's default threshold applies.
func (s *Service) Track(ctx context.Context, owner uuid.UUID, req types.AddTrackedItemRequest) (*types.TrackedItem, error) {
	url := provider.CanonicalURL(req.URL)
	asin := provider.ExtractASIN(url)

	if asin != "" {
		existing, err := s.store.FindTrackedItemsByASIN(ctx, owner, asin)
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicates: %w", err)
		}
		if len(existing) > 0 {
			return nil, ErrDuplicate
		}
	}

	item := &types.TrackedItem{
		Owner:       owner,
		SourceURL:   url,
		ExternalID:  asin,
		DisplayName: unknownProduct,
		Currency:    fetch.DetectStorefront(url).Currency(),
	}

	var initial decimal.NullDecimal
	quote, err := s.prices.FetchPrice(ctx, url)
	if err != nil {
		s.log.Warn("initial price fetch failed", "url", url, "error", err)
	} else if quote != nil {
		if quote.Title != "" {
			item.DisplayName = quote.Title
		}
		if quote.Currency != "" {
			item.Currency = quote.Currency
		}
		initial = quote.Price
	}

	if err := s.applyThreshold(ctx, owner, item, req); err != nil {
		return nil, err
	}

	created, err := s.store.CreateTrackedItem(ctx, item, initial)
	if err != nil {
		return nil, err
	}
	s.log.Info("tracking item", "item_id", created.ID, "asin", asin, "has_price", initial.Valid)
	return created, nil
}

func (s *Service) applyThreshold(ctx context.Context, owner uuid.UUID, item *types.TrackedItem, req types.AddTrackedItemRequest) error {
	if req.ThresholdType != "" {
		item.ThresholdType = req.ThresholdType
		if req.ThresholdValue != nil {
			item.ThresholdValue = decimal.NewNullDecimal(decimal.NewFromFloat(*req.ThresholdValue))
		}
		return nil
	}

	settings, err := s.store.NotificationSettings(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to load notification settings: %w", err)
	}
	if settings != nil && settings.DefaultThresholdType.Valid() {
		item.ThresholdType = settings.DefaultThresholdType
		item.ThresholdValue = settings.DefaultThresholdValue
	}
	return nil
}

// List returns owner's items, newest first.
func (s *Service) List(ctx context.Context, owner uuid.UUID) ([]types.TrackedItem, error) {
	items, err := s.store.ListTrackedItems(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked items: %w", err)
	}
	if items == nil {
		items = []types.TrackedItem{}
	}
	return items, nil
}

// Detail returns one item with its per-day price history.
func (s *Service) Detail(ctx context.Context, owner, id uuid.UUID) (*types.TrackedItemDetail, error) {
	item, err := s.get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	history, err := s.store.DailyPriceHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load price history: %w", err)
	}
	if history == nil {
		history = []types.PriceHistoryEntry{}
	}
	return &types.TrackedItemDetail{TrackedItem: *item, History: history}, nil
}

// Rename sets a custom display name. Later scrapes keep it.
func (s *Service) Rename(ctx context.Context, owner, id uuid.UUID, name string) (*types.TrackedItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	ok, err := s.store.RenameTrackedItem(ctx, owner, id, name)
	if err != nil {
		return nil, fmt.Errorf("failed to rename item: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.get(ctx, owner, id)
}

// UpdateThreshold sets or clears the item's notification threshold.
func (s *Service) UpdateThreshold(ctx context.Context, owner, id uuid.UUID, req types.ThresholdRequest) (*types.TrackedItem, error) {
	var value decimal.NullDecimal
	if req.ThresholdValue != nil {
		value = decimal.NewNullDecimal(decimal.NewFromFloat(*req.ThresholdValue))
	}
	ok, err := s.store.UpdateThreshold(ctx, owner, id, req.ThresholdType, value)
	if err != nil {
		return nil, fmt.Errorf("failed to update threshold: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.get(ctx, owner, id)
}

// Delete stops tracking an item and drops its history.
func (s *Service) Delete(ctx context.Context, owner, id uuid.UUID) error {
	ok, err := s.store.DeleteTrackedItem(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) get(ctx context.Context, owner, id uuid.UUID) (*types.TrackedItem, error) {
	item, err := s.store.GetTrackedItem(ctx, owner, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load item: %w", err)
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}
