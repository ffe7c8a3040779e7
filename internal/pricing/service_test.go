package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/purchase-tracker/internal/logging"
	"github.com/jonathan/purchase-tracker/internal/notify"
	"github.com/jonathan/purchase-tracker/internal/provider"
	"github.com/jonathan/purchase-tracker/internal/types"
)

type memStore struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*types.TrackedItem
	order    []uuid.UUID
	history  map[uuid.UUID][]types.PriceHistoryEntry
	settings map[uuid.UUID]*types.NotificationSettings
	touched  map[uuid.UUID]int
}

func newMemStore() *memStore {
	return &memStore{
		items:    make(map[uuid.UUID]*types.TrackedItem),
		history:  make(map[uuid.UUID][]types.PriceHistoryEntry),
		settings: make(map[uuid.UUID]*types.NotificationSettings),
		touched:  make(map[uuid.UUID]int),
	}
}

func (s *memStore) CreateTrackedItem(_ context.Context, item *types.TrackedItem, initial decimal.NullDecimal) (*types.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.Owner == item.Owner && existing.SourceURL == item.SourceURL {
			return nil, ErrDuplicate
		}
	}
	c := *item
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.CurrentPrice = initial
	s.items[c.ID] = &c
	s.order = append(s.order, c.ID)
	if initial.Valid {
		s.history[c.ID] = append(s.history[c.ID], types.PriceHistoryEntry{TrackedItemID: c.ID, Price: initial.Decimal, RecordedAt: time.Now()})
	}
	out := c
	return &out, nil
}

func (s *memStore) GetTrackedItem(_ context.Context, owner, id uuid.UUID) (*types.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.Owner != owner {
		return nil, nil
	}
	c := *it
	return &c, nil
}

func (s *memStore) ListTrackedItems(_ context.Context, owner uuid.UUID) ([]types.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.TrackedItem
	for i := len(s.order) - 1; i >= 0; i-- {
		if it, ok := s.items[s.order[i]]; ok && it.Owner == owner {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (s *memStore) ListAllTrackedItems(context.Context) ([]types.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.TrackedItem
	for _, id := range s.order {
		if it, ok := s.items[id]; ok {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (s *memStore) FindTrackedItemsByASIN(_ context.Context, owner uuid.UUID, asin string) ([]types.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.TrackedItem
	for _, id := range s.order {
		if it, ok := s.items[id]; ok && it.Owner == owner && it.ExternalID == asin {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (s *memStore) DailyPriceHistory(_ context.Context, itemID uuid.UUID) ([]types.PriceHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.PriceHistoryEntry(nil), s.history[itemID]...), nil
}

func (s *memStore) RecordPrice(_ context.Context, itemID uuid.UUID, price decimal.Decimal, title *string) (*types.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return nil, nil
	}
	prev := *it
	now := time.Now()
	s.history[itemID] = append(s.history[itemID], types.PriceHistoryEntry{TrackedItemID: itemID, Price: price, RecordedAt: now})
	it.CurrentPrice = decimal.NewNullDecimal(price)
	it.LastCheckedAt = &now
	if title != nil && !it.CustomName {
		it.DisplayName = *title
	}
	return &prev, nil
}

func (s *memStore) TouchLastChecked(_ context.Context, itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[itemID]++
	if it, ok := s.items[itemID]; ok {
		now := time.Now()
		it.LastCheckedAt = &now
	}
	return nil
}

func (s *memStore) UpdateThreshold(_ context.Context, owner, id uuid.UUID, tt types.ThresholdType, value decimal.NullDecimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.Owner != owner {
		return false, nil
	}
	it.ThresholdType = tt
	it.ThresholdValue = value
	return true, nil
}

func (s *memStore) RenameTrackedItem(_ context.Context, owner, id uuid.UUID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.Owner != owner {
		return false, nil
	}
	it.DisplayName = name
	it.CustomName = true
	return true, nil
}

func (s *memStore) DeleteTrackedItem(_ context.Context, owner, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.Owner != owner {
		return false, nil
	}
	delete(s.items, id)
	delete(s.history, id)
	return true, nil
}

func (s *memStore) NotificationSettings(_ context.Context, userID uuid.UUID) (*types.NotificationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[userID], nil
}

type stubPrices struct {
	mu     sync.Mutex
	quotes map[string]*provider.PriceQuote
	err    error
}

func (p *stubPrices) FetchPrice(_ context.Context, url string) (*provider.PriceQuote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	q, ok := p.quotes[url]
	if !ok {
		return nil, provider.ErrBlocked
	}
	c := *q
	return &c, nil
}

func (p *stubPrices) set(url, title, price string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quotes == nil {
		p.quotes = make(map[string]*provider.PriceQuote)
	}
	p.quotes[url] = &provider.PriceQuote{URL: url, Title: title, Price: decimal.NewNullDecimal(decimal.RequireFromString(price)), Currency: "$"}
}

type sentAlert struct {
	url     string
	payload notify.PriceDropPayload
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentAlert
}

func (d *recordingDispatcher) Dispatch(_ context.Context, url string, payload any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentAlert{url: url, payload: payload.(notify.PriceDropPayload)})
}

const productURL = "https://www.amazon.com/dp/B0TESTASIN"

type fixture struct {
	store  *memStore
	prices *stubPrices
	alerts *recordingDispatcher
	svc    *Service
	owner  uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		store:  newMemStore(),
		prices: &stubPrices{},
		alerts: &recordingDispatcher{},
		owner:  uuid.New(),
	}
	f.svc = NewService(f.store, f.prices, f.alerts, logging.Nop(), WithSweepConcurrency(2))
	return f
}

func floatPtr(v float64) *float64 { return &v }

func TestTrack_ScrapesInitialPrice(t *testing.T) {
	f := newFixture()
	f.prices.set(productURL, "Widget", "19.99")

	item, err := f.svc.Track(context.Background(), f.owner, types.AddTrackedItemRequest{URL: productURL + "?ref=abc"})
	require.NoError(t, err)
	assert.Equal(t, productURL, item.SourceURL)
	assert.Equal(t, "B0TESTASIN", item.ExternalID)
	assert.Equal(t, "Widget", item.DisplayName)
	assert.True(t, item.CurrentPrice.Decimal.Equal(decimal.RequireFromString("19.99")))
	assert.Len(t, f.store.history[item.ID], 1)
	assert.False(t, item.HasThreshold())
}

func TestTrack_FailedScrapeStillTracks(t *testing.T) {
	f := newFixture()

	item, err := f.svc.Track(context.Background(), f.owner, types.AddTrackedItemRequest{URL: productURL})
	require.NoError(t, err)
	assert.Equal(t, "Unknown Product", item.DisplayName)
	assert.False(t, item.CurrentPrice.Valid)
	assert.Empty(t, f.store.history[item.ID])
}

func TestTrack_Duplicate(t *testing.T) {
	f := newFixture()
	f.prices.set(productURL, "Widget", "10")

	_, err := f.svc.Track(context.Background(), f.owner, types.AddTrackedItemRequest{URL: productURL})
	require.NoError(t, err)
	_, err = f.svc.Track(context.Background(), f.owner, types.AddTrackedItemRequest{URL: "https://www.amazon.com/gp/product/B0TESTASIN"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = f.svc.Track(context.Background(), uuid.New(), types.AddTrackedItemRequest{URL: productURL})
	assert.NoError(t, err, "another user may track the same product")
}

func TestTrack_AppliesRequestedThreshold(t *testing.T) {
	f := newFixture()
	item, err := f.svc.Track(context.Background(), f.owner, types.AddTrackedItemRequest{
		URL:            productURL,
		ThresholdType:  types.ThresholdAbsolute,
		ThresholdValue: floatPtr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, types.ThresholdAbsolute, item.ThresholdType)
	assert.True(t, item.ThresholdValue.Decimal.Equal(decimal.NewFromInt(5)))
}

func TestTrack_AppliesUserDefaultThreshold(t *testing.T) {
	f := newFixture()
	f.store.settings[f.owner] = &types.NotificationSettings{
		UserID:                f.owner,
		DefaultThresholdType:  types.ThresholdPercent,
		DefaultThresholdValue: decimal.NewNullDecimal(decimal.NewFromInt(10)),
	}

	item, err := f.svc.Track(context.Background(), f.owner, types.AddTrackedItemRequest{URL: productURL})
	require.NoError(t, err)
	assert.Equal(t, types.ThresholdPercent, item.ThresholdType)
	assert.True(t, item.ThresholdValue.Decimal.Equal(decimal.NewFromInt(10)))
}

func trackedWithThreshold(t *testing.T, f *fixture, price string, tt types.ThresholdType, threshold float64) *types.TrackedItem {
	t.Helper()
	f.prices.set(productURL, "Widget", price)
	item, err := f.svc.Track(context.Background(), f.owner, types.AddTrackedItemRequest{
		URL:            productURL,
		ThresholdType:  tt,
		ThresholdValue: floatPtr(threshold),
	})
	require.NoError(t, err)
	return item
}

func TestObserve_PercentDropAlerts(t *testing.T) {
	f := newFixture()
	f.store.settings[f.owner] = &types.NotificationSettings{PriceWebhookURL: "https://hooks.example.com/price"}
	item := trackedWithThreshold(t, f, "100", types.ThresholdPercent, 10)

	d, err := f.svc.Observe(context.Background(), item.ID, decimal.NewFromInt(91), nil)
	require.NoError(t, err)
	assert.False(t, d.Fire)
	assert.Empty(t, f.alerts.sent)

	d, err = f.svc.Observe(context.Background(), item.ID, decimal.NewFromInt(80), nil)
	require.NoError(t, err)
	assert.True(t, d.Fire, "91 -> 80 is a 12% drop")
	require.Len(t, f.alerts.sent, 1)
	assert.Equal(t, "https://hooks.example.com/price", f.alerts.sent[0].url)
	assert.Equal(t, 91.0, f.alerts.sent[0].payload.PreviousPrice)
	assert.Equal(t, 80.0, f.alerts.sent[0].payload.CurrentPrice)
	assert.Equal(t, "Widget", f.alerts.sent[0].payload.ItemName)

	assert.Len(t, f.store.history[item.ID], 3)
	assert.True(t, f.store.items[item.ID].CurrentPrice.Decimal.Equal(decimal.NewFromInt(80)))
}

func TestObserve_NoWebhookNoAlert(t *testing.T) {
	f := newFixture()
	item := trackedWithThreshold(t, f, "20", types.ThresholdAbsolute, 5)

	d, err := f.svc.Observe(context.Background(), item.ID, decimal.NewFromInt(14), nil)
	require.NoError(t, err)
	assert.True(t, d.Fire)
	assert.Empty(t, f.alerts.sent)
}

func TestObserve_MissingItem(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Observe(context.Background(), uuid.New(), decimal.NewFromInt(1), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestObservePurchase_MatchesByASIN(t *testing.T) {
	f := newFixture()
	f.store.settings[f.owner] = &types.NotificationSettings{PriceWebhookURL: "https://hooks.example.com/price"}
	item := trackedWithThreshold(t, f, "20", types.ThresholdAbsolute, 5)

	err := f.svc.ObservePurchase(context.Background(), f.owner, provider.OrderItem{ASIN: "B0TESTASIN", Price: decimal.NewFromInt(14)})
	require.NoError(t, err)
	assert.Len(t, f.alerts.sent, 1)
	assert.Len(t, f.store.history[item.ID], 2)

	err = f.svc.ObservePurchase(context.Background(), f.owner, provider.OrderItem{ASIN: "B0OTHERXXX", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Len(t, f.store.history[item.ID], 2)

	err = f.svc.ObservePurchase(context.Background(), uuid.New(), provider.OrderItem{ASIN: "B0TESTASIN", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Len(t, f.store.history[item.ID], 2, "other owners' purchases are ignored")
}

func TestCheckAll_RecordsAndTouches(t *testing.T) {
	f := newFixture()
	f.store.settings[f.owner] = &types.NotificationSettings{PriceWebhookURL: "https://hooks.example.com/price"}
	ok := trackedWithThreshold(t, f, "100", types.ThresholdPercent, 10)

	blockedURL := "https://www.amazon.com/dp/B0BLOCKED0"
	blocked, err := f.svc.Track(context.Background(), f.owner, types.AddTrackedItemRequest{URL: blockedURL})
	require.NoError(t, err)

	f.prices.set(productURL, "Widget v2", "85")

	res, err := f.svc.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 2, Updated: 1, Failed: 1, Alerts: 1}, res)

	assert.Equal(t, "Widget v2", f.store.items[ok.ID].DisplayName)
	assert.Equal(t, 1, f.store.touched[blocked.ID])
	assert.NotNil(t, f.store.items[blocked.ID].LastCheckedAt)
	require.Len(t, f.alerts.sent, 1)
	assert.Equal(t, "Widget v2", f.alerts.sent[0].payload.ItemName)
}

func TestCheckItem_KeepsCustomName(t *testing.T) {
	f := newFixture()
	item := trackedWithThreshold(t, f, "10", types.ThresholdPercent, 50)
	_, err := f.svc.Rename(context.Background(), f.owner, item.ID, "  My widget  ")
	require.NoError(t, err)

	f.prices.set(productURL, "Scraped title", "9")
	current, err := f.store.GetTrackedItem(context.Background(), f.owner, item.ID)
	require.NoError(t, err)

	recorded, alerted, err := f.svc.CheckItem(context.Background(), *current)
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.False(t, alerted)
	assert.Equal(t, "My widget", f.store.items[item.ID].DisplayName)
}

func TestRename_Validation(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Rename(context.Background(), f.owner, uuid.New(), "   ")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = f.svc.Rename(context.Background(), f.owner, uuid.New(), "name")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateThreshold(t *testing.T) {
	f := newFixture()
	item := trackedWithThreshold(t, f, "10", types.ThresholdPercent, 50)

	updated, err := f.svc.UpdateThreshold(context.Background(), f.owner, item.ID, types.ThresholdRequest{ThresholdType: types.ThresholdAbsolute})
	require.NoError(t, err)
	assert.Equal(t, types.ThresholdAbsolute, updated.ThresholdType)
	assert.False(t, updated.HasThreshold(), "a null value clears the threshold")

	_, err = f.svc.UpdateThreshold(context.Background(), uuid.New(), item.ID, types.ThresholdRequest{ThresholdType: types.ThresholdAbsolute})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDetailAndDelete(t *testing.T) {
	f := newFixture()
	item := trackedWithThreshold(t, f, "10", types.ThresholdPercent, 50)

	detail, err := f.svc.Detail(context.Background(), f.owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, detail.ID)
	assert.Len(t, detail.History, 1)

	_, err = f.svc.Detail(context.Background(), uuid.New(), item.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.svc.Delete(context.Background(), f.owner, item.ID))
	assert.ErrorIs(t, f.svc.Delete(context.Background(), f.owner, item.ID), ErrNotFound)

	items, err := f.svc.List(context.Background(), f.owner)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)
}

func TestCheckAll_ListFailure(t *testing.T) {
	f := newFixture()
	f.svc.store = failingList{f.store}
	_, err := f.svc.CheckAll(context.Background())
	assert.Error(t, err)
}

type failingList struct{ *memStore }

func (failingList) ListAllTrackedItems(context.Context) ([]types.TrackedItem, error) {
	return nil, errors.New("connection refused")
}
