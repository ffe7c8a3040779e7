// Package jobs runs ingestion jobs and exposes their progress to pollers and
// event streams.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/purchase-tracker/internal/types"
)

var (
	// ErrConflict is returned by TryReserve when the scope already has an active job.
	ErrConflict = errors.New("an ingestion job is already running")
	// ErrNotFound is returned when a job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrNotActive is returned when a mutation targets a job that already finished.
	ErrNotActive = errors.New("job is no longer active")
	// ErrStillActive is returned when an operation needs a finished job.
	ErrStillActive = errors.New("job is still running")
)

// Store is the durable record of jobs. TryReserve is the only concurrency
// control point: it must atomically refuse a second active job per scope
// (one manual job per owner, one scheduled job overall).
type Store interface {
	TryReserve(ctx context.Context, kind types.JobKind, owner, triggeredBy *uuid.UUID) (uuid.UUID, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	AppendLog(ctx context.Context, id uuid.UUID, line string) error
	SetProgress(ctx context.Context, id uuid.UUID, current, total int) error
	SetTargets(ctx context.Context, id uuid.UUID, targets []types.TargetStatus) error
	SetTargetStatus(ctx context.Context, id, target uuid.UUID, state types.TargetState, errMsg string) error
	Finalize(ctx context.Context, id uuid.UUID, status types.JobStatus, errMsg *string) error
	MarkNotificationSeen(ctx context.Context, id uuid.UUID) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Job, error)
	GetLatest(ctx context.Context, kind types.JobKind, owner *uuid.UUID) (*types.Job, error)
	FailStale(ctx context.Context, before time.Time, reason string) ([]uuid.UUID, error)
}
