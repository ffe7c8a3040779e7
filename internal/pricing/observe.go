package pricing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/jonathan/purchase-tracker/internal/notify"
	"github.com/jonathan/purchase-tracker/internal/provider"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// SweepResult summarizes one CheckAll pass.
type SweepResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Alerts  int `json:"alerts"`
}

// Observe records price for an item and alerts its owner when the drop
// crosses the item's threshold. A non-nil title refreshes the display name
// of items without a custom name.
func (s *Service) Observe(ctx context.Context, itemID uuid.UUID, price decimal.Decimal, title *string) (notify.Decision, error) {
	prev, err := s.store.RecordPrice(ctx, itemID, price, title)
	if err != nil {
		return notify.Decision{}, fmt.Errorf("failed to record price: %w", err)
	}
	if prev == nil {
		return notify.Decision{}, ErrNotFound
	}

	d := notify.Evaluate(prev, price)
	if d.Fire {
		s.alert(ctx, prev, title, d)
	}
	return d, nil
}

func (s *Service) alert(ctx context.Context, item *types.TrackedItem, title *string, d notify.Decision) {
	settings, err := s.store.NotificationSettings(ctx, item.Owner)
	if err != nil {
		s.log.Warn("failed to load notification settings", "user_id", item.Owner, "error", err)
		return
	}
	if settings == nil || settings.PriceWebhookURL == "" {
		return
	}

	named := *item
	if title != nil && *title != "" && !item.CustomName {
		named.DisplayName = *title
	}
	s.log.Info("price drop alert", "item_id", item.ID, "previous", d.Previous.String(), "current", d.Current.String())
	s.alerts.Dispatch(ctx, settings.PriceWebhookURL, notify.NewPriceDropPayload(&named, d))
}

// ObservePurchase feeds the price paid for a newly ingested order item into
// every tracked item of owner with the same ASIN.
func (s *Service) ObservePurchase(ctx context.Context, owner uuid.UUID, item provider.OrderItem) error {
	if item.ASIN == "" || !item.Price.IsPositive() {
		return nil
	}
	tracked, err := s.store.FindTrackedItemsByASIN(ctx, owner, item.ASIN)
	if err != nil {
		return fmt.Errorf("failed to find tracked items: %w", err)
	}
	for _, t := range tracked {
		if _, err := s.Observe(ctx, t.ID, item.Price, nil); err != nil {
			return err
		}
	}
	return nil
}

// CheckItem scrapes one item's page and records the result. A failed scrape
// only bumps last_checked. It reports whether a price was recorded and
// whether an alert fired.
func (s *Service) CheckItem(ctx context.Context, item types.TrackedItem) (recorded, alerted bool, err error) {
	quote, ferr := s.prices.FetchPrice(ctx, item.SourceURL)
	if ferr != nil || quote == nil || !quote.Price.Valid {
		s.log.Warn("price check failed", "item_id", item.ID, "error", ferr)
		if err := s.store.TouchLastChecked(ctx, item.ID); err != nil {
			return false, false, fmt.Errorf("failed to update last checked: %w", err)
		}
		return false, false, nil
	}

	var title *string
	if quote.Title != "" && !item.CustomName {
		title = &quote.Title
	}
	d, err := s.Observe(ctx, item.ID, quote.Price.Decimal, title)
	if err != nil {
		return false, false, err
	}
	return true, d.Fire, nil
}

// CheckAll refreshes the price of every tracked item. Per-item failures are
// counted, not returned.
func (s *Service) CheckAll(ctx context.Context) (SweepResult, error) {
	items, err := s.store.ListAllTrackedItems(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list tracked items: %w", err)
	}
	s.log.Info("starting price sweep", "items", len(items))

	var updated, failed, alerts atomic.Int64
	sem := semaphore.NewWeighted(s.sweepSize)
	var wg sync.WaitGroup

	for _, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			recorded, alerted, err := s.CheckItem(ctx, item)
			if err != nil {
				s.log.Error("price check errored", "item_id", item.ID, "error", err)
			}
			if !recorded {
				failed.Add(1)
				return
			}
			updated.Add(1)
			if alerted {
				alerts.Add(1)
			}
		}()
	}
	wg.Wait()

	res := SweepResult{
		Checked: int(updated.Load() + failed.Load()),
		Updated: int(updated.Load()),
		Failed:  int(failed.Load()),
		Alerts:  int(alerts.Load()),
	}
	s.log.Info("price sweep finished", "checked", res.Checked, "updated", res.Updated, "failed", res.Failed, "alerts", res.Alerts)
	return res, ctx.Err()
}
