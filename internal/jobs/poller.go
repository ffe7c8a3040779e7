package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/purchase-tracker/internal/types"
)

// Snapshot is the pull-based view of a job.
type Snapshot struct {
	ID               uuid.UUID            `json:"id"`
	Kind             types.JobKind        `json:"kind"`
	Status           types.JobStatus      `json:"status"`
	Progress         types.Progress       `json:"progress"`
	Log              []string             `json:"log"`
	Error            *string              `json:"error"`
	ShowNotification bool                 `json:"show_notification"`
	Targets          []types.TargetStatus `json:"targets,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`

	Owner *uuid.UUID `json:"-"`
}

// Authorizer decides whether the caller may read a job. A non-nil error
// aborts the read before any state changes.
type Authorizer func(job *types.Job) error

// Poller assembles snapshots from the store.
type Poller struct {
	store Store
}

// NewPoller creates a poller.
func NewPoller(store Store) *Poller {
	return &Poller{store: store}
}

// Snapshot reads job id. When the job is completed and unseen, the caller
// that wins the seen flip gets ShowNotification=true; every later read sees false.
func (p *Poller) Snapshot(ctx context.Context, id uuid.UUID, authorize Authorizer) (*Snapshot, error) {
	job, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.snapshot(ctx, job, authorize)
}

// Latest reads the most recent job of kind for owner (nil for scheduled).
// It returns nil, nil when there is none.
func (p *Poller) Latest(ctx context.Context, kind types.JobKind, owner *uuid.UUID, authorize Authorizer) (*Snapshot, error) {
	job, err := p.store.GetLatest(ctx, kind, owner)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p.snapshot(ctx, job, authorize)
}

// Authorize loads job id and applies authorize without changing the job.
func (p *Poller) Authorize(ctx context.Context, id uuid.UUID, authorize Authorizer) error {
	job, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if authorize == nil {
		return nil
	}
	return authorize(job)
}

// Acknowledge marks a finished job's notification as seen without reading it.
func (p *Poller) Acknowledge(ctx context.Context, id uuid.UUID, authorize Authorizer) (bool, error) {
	job, err := p.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if authorize != nil {
		if err := authorize(job); err != nil {
			return false, err
		}
	}
	if !job.Status.Terminal() {
		return false, fmt.Errorf("job %s is %s: %w", id, job.Status, ErrStillActive)
	}
	return p.store.MarkNotificationSeen(ctx, id)
}

func (p *Poller) snapshot(ctx context.Context, job *types.Job, authorize Authorizer) (*Snapshot, error) {
	if authorize != nil {
		if err := authorize(job); err != nil {
			return nil, err
		}
	}

	show := false
	if job.Status == types.JobStatusCompleted && !job.NotificationSeen {
		won, err := p.store.MarkNotificationSeen(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to mark notification seen: %w", err)
		}
		show = won
	}

	log := job.Log
	if log == nil {
		log = []string{}
	}
	return &Snapshot{
		ID:               job.ID,
		Kind:             job.Kind,
		Status:           job.Status,
		Progress:         job.Progress,
		Log:              log,
		Error:            job.Error,
		ShowNotification: show,
		Targets:          job.Targets,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
		Owner:            job.Owner,
	}, nil
}
