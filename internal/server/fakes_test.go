package server

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/purchase-tracker/internal/db"
	"github.com/jonathan/purchase-tracker/internal/events"
	"github.com/jonathan/purchase-tracker/internal/jobs"
	"github.com/jonathan/purchase-tracker/internal/notify"
	"github.com/jonathan/purchase-tracker/internal/pricing"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// fakeUsers is an in-memory UserStore. The first user becomes admin.
type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*db.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[uuid.UUID]*db.User)}
}

func (f *fakeUsers) CreateUser(_ context.Context, username, passwordHash string, isAdmin bool) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(username, passwordHash, isAdmin)
}

func (f *fakeUsers) BootstrapAdmin(_ context.Context, username, passwordHash string) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.users) > 0 {
		return nil, db.ErrRegistrationClosed
	}
	return f.insert(username, passwordHash, true)
}

func (f *fakeUsers) insert(username, passwordHash string, isAdmin bool) (*db.User, error) {
	for _, u := range f.users {
		if strings.EqualFold(u.Username, username) {
			return nil, db.ErrUsernameTaken
		}
	}
	u := &db.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin || len(f.users) == 0,
		CreatedAt:    time.Now(),
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) ListUsers(_ context.Context) ([]db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]db.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeUsers) DeleteUser(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return db.ErrUserNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return db.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// fakeJobs implements JobStarter, JobReader and JobStreamer over a map.
type fakeJobs struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*types.Job
	startErr error
	started  []jobs.StartRequest
	streamed []uuid.UUID
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[uuid.UUID]*types.Job)}
}

func (f *fakeJobs) add(kind types.JobKind, owner *uuid.UUID, status types.JobStatus) *types.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := &types.Job{
		ID:        uuid.New(),
		Kind:      kind,
		Owner:     owner,
		Status:    status,
		Log:       []string{"started"},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.jobs[job.ID] = job
	return job
}

func (f *fakeJobs) Start(_ context.Context, req jobs.StartRequest) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, req)
	if f.startErr != nil {
		return uuid.Nil, f.startErr
	}
	return uuid.New(), nil
}

func (f *fakeJobs) get(id uuid.UUID, authorize jobs.Authorizer) (*types.Job, error) {
	f.mu.Lock()
	job, ok := f.jobs[id]
	f.mu.Unlock()
	if !ok {
		return nil, jobs.ErrNotFound
	}
	if authorize != nil {
		if err := authorize(job); err != nil {
			return nil, err
		}
	}
	return job, nil
}

func toSnapshot(job *types.Job, show bool) *jobs.Snapshot {
	return &jobs.Snapshot{
		ID:               job.ID,
		Kind:             job.Kind,
		Status:           job.Status,
		Log:              job.Log,
		ShowNotification: show,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
		Owner:            job.Owner,
	}
}

func (f *fakeJobs) Snapshot(_ context.Context, id uuid.UUID, authorize jobs.Authorizer) (*jobs.Snapshot, error) {
	job, err := f.get(id, authorize)
	if err != nil {
		return nil, err
	}
	return toSnapshot(job, false), nil
}

func (f *fakeJobs) Latest(_ context.Context, kind types.JobKind, owner *uuid.UUID, authorize jobs.Authorizer) (*jobs.Snapshot, error) {
	f.mu.Lock()
	var latest *types.Job
	for _, job := range f.jobs {
		if job.Kind != kind {
			continue
		}
		if owner != nil && (job.Owner == nil || *job.Owner != *owner) {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	f.mu.Unlock()
	if latest == nil {
		return nil, nil
	}
	if authorize != nil {
		if err := authorize(latest); err != nil {
			return nil, err
		}
	}
	return toSnapshot(latest, false), nil
}

func (f *fakeJobs) Acknowledge(_ context.Context, id uuid.UUID, authorize jobs.Authorizer) (bool, error) {
	job, err := f.get(id, authorize)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !job.Status.Terminal() {
		return false, jobs.ErrStillActive
	}
	won := !job.NotificationSeen
	job.NotificationSeen = true
	return won, nil
}

func (f *fakeJobs) Authorize(_ context.Context, id uuid.UUID, authorize jobs.Authorizer) error {
	_, err := f.get(id, authorize)
	return err
}

// Stream emits a fixed sequence and always finishes with done.
func (f *fakeJobs) Stream(_ context.Context, w jobs.EventWriter, jobID uuid.UUID, startErr error) error {
	f.mu.Lock()
	f.streamed = append(f.streamed, jobID)
	f.mu.Unlock()

	defer func() { _ = w.WriteEvent(events.Done()) }()
	if startErr != nil {
		return w.WriteEvent(events.Error(startErr.Error()))
	}
	if err := w.WriteEvent(events.Status(types.JobStatusRunning)); err != nil {
		return err
	}
	return w.WriteEvent(events.Log("processing"))
}

// fakeItems is an in-memory TrackedItems.
type fakeItems struct {
	mu    sync.Mutex
	items map[uuid.UUID]*types.TrackedItem
}

func newFakeItems() *fakeItems {
	return &fakeItems{items: make(map[uuid.UUID]*types.TrackedItem)}
}

func (f *fakeItems) Track(_ context.Context, owner uuid.UUID, req types.AddTrackedItemRequest) (*types.TrackedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.Owner == owner && it.SourceURL == req.URL {
			return nil, pricing.ErrDuplicate
		}
	}
	item := &types.TrackedItem{
		ID:            uuid.New(),
		Owner:         owner,
		SourceURL:     req.URL,
		DisplayName:   "Widget",
		Currency:      "USD",
		ThresholdType: req.ThresholdType,
		CreatedAt:     time.Now(),
	}
	f.items[item.ID] = item
	return item, nil
}

func (f *fakeItems) List(_ context.Context, owner uuid.UUID) ([]types.TrackedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []types.TrackedItem{}
	for _, it := range f.items {
		if it.Owner == owner {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeItems) lookup(owner, id uuid.UUID) (*types.TrackedItem, error) {
	it, ok := f.items[id]
	if !ok || it.Owner != owner {
		return nil, pricing.ErrNotFound
	}
	return it, nil
}

func (f *fakeItems) Detail(_ context.Context, owner, id uuid.UUID) (*types.TrackedItemDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, err := f.lookup(owner, id)
	if err != nil {
		return nil, err
	}
	return &types.TrackedItemDetail{TrackedItem: *it, History: []types.PriceHistoryEntry{}}, nil
}

func (f *fakeItems) Rename(_ context.Context, owner, id uuid.UUID, name string) (*types.TrackedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, err := f.lookup(owner, id)
	if err != nil {
		return nil, err
	}
	it.DisplayName = name
	it.CustomName = true
	return it, nil
}

func (f *fakeItems) UpdateThreshold(_ context.Context, owner, id uuid.UUID, req types.ThresholdRequest) (*types.TrackedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, err := f.lookup(owner, id)
	if err != nil {
		return nil, err
	}
	it.ThresholdType = req.ThresholdType
	return it, nil
}

func (f *fakeItems) Delete(_ context.Context, owner, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(owner, id); err != nil {
		return err
	}
	delete(f.items, id)
	return nil
}

// fakePurchases serves canned history and records the queries it was given.
type fakePurchases struct {
	mu           sync.Mutex
	summary      *types.SpendingSummary
	page         *types.ItemPage
	repeats      []types.RepeatItem
	itemQueries  []types.ItemQuery
	repeatQueries []types.RepeatItemQuery
}

func (f *fakePurchases) SpendingSummary(_ context.Context, _ uuid.UUID) (*types.SpendingSummary, error) {
	return f.summary, nil
}

func (f *fakePurchases) ListPurchasedItems(_ context.Context, _ uuid.UUID, q types.ItemQuery) (*types.ItemPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itemQueries = append(f.itemQueries, q)
	page := *f.page
	page.Page, page.Limit = q.Page, q.Limit
	return &page, nil
}

func (f *fakePurchases) RepeatItems(_ context.Context, _ uuid.UUID, q types.RepeatItemQuery) ([]types.RepeatItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repeatQueries = append(f.repeatQueries, q)
	return f.repeats, nil
}

// fakeSettings records provider updates.
type fakeSettings struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*types.NotificationSettings
	provider      map[uuid.UUID]*db.ProviderSettings
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{
		notifications: make(map[uuid.UUID]*types.NotificationSettings),
		provider:      make(map[uuid.UUID]*db.ProviderSettings),
	}
}

func (f *fakeSettings) NotificationSettings(_ context.Context, userID uuid.UUID) (*types.NotificationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notifications[userID], nil
}

func (f *fakeSettings) UpdateNotificationSettings(_ context.Context, userID uuid.UUID, req *types.NotificationSettingsRequest) (*types.NotificationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ns := &types.NotificationSettings{
		UserID:          userID,
		JobWebhookURL:   req.JobWebhookURL,
		JobPreference:   req.JobPreference,
		PriceWebhookURL: req.PriceWebhookURL,
	}
	f.notifications[userID] = ns
	return ns, nil
}

func (f *fakeSettings) GetProviderSettings(_ context.Context, userID uuid.UUID) (*db.ProviderSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.provider[userID], nil
}

func (f *fakeSettings) UpdateProviderSettings(_ context.Context, userID uuid.UUID, email string, passwordEncrypted, otpEncrypted *string, scheduled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ps, ok := f.provider[userID]
	if !ok {
		ps = &db.ProviderSettings{UserID: userID}
		f.provider[userID] = ps
	}
	ps.Email = email
	if passwordEncrypted != nil {
		ps.PasswordEncrypted = *passwordEncrypted
	}
	if otpEncrypted != nil {
		ps.OTPSecretEncrypted = *otpEncrypted
	}
	ps.ScheduledIngestionEnabled = scheduled
	return nil
}

type fakeWebhooks struct {
	urls []string
}

func (f *fakeWebhooks) TestWebhook(_ context.Context, url string) notify.DeliveryResult {
	f.urls = append(f.urls, url)
	return notify.DeliveryResult{Delivered: true, StatusCode: 204}
}
