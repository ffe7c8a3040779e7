package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/purchase-tracker/internal/events"
	"github.com/jonathan/purchase-tracker/internal/logging"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// Reporter is the single writer of one job's log, progress and target rows.
// Each write goes to the store first and is then published, under one lock,
// so pollers and streams observe the same order.
type Reporter struct {
	mu       sync.Mutex
	store    Store
	broker   *events.Broker
	jobID    uuid.UUID
	log      *logging.Logger
	progress types.Progress
}

func newReporter(store Store, broker *events.Broker, jobID uuid.UUID, log *logging.Logger) *Reporter {
	return &Reporter{
		store:  store,
		broker: broker,
		jobID:  jobID,
		log:    log.With("job_id", jobID),
	}
}

// JobID returns the job this reporter writes to.
func (r *Reporter) JobID() uuid.UUID {
	return r.jobID
}

// Running moves the job to running.
func (r *Reporter) Running(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.MarkRunning(ctx, r.jobID); err != nil {
		r.log.Warn("failed to mark job running", "error", err)
		return
	}
	r.broker.Publish(ctx, r.jobID, events.Status(types.JobStatusRunning))
}

// Log appends one line.
func (r *Reporter) Log(ctx context.Context, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.AppendLog(ctx, r.jobID, line); err != nil {
		r.log.Warn("failed to append job log", "error", err)
		return
	}
	r.broker.Publish(ctx, r.jobID, events.Log(line))
}

// Logf appends one formatted line.
func (r *Reporter) Logf(ctx context.Context, format string, args ...any) {
	r.Log(ctx, fmt.Sprintf(format, args...))
}

// Progress records (current, total). Current never moves backwards.
func (r *Reporter) Progress(ctx context.Context, current, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.progress.Advance(current, total)
	if err := r.store.SetProgress(ctx, r.jobID, next.Current, next.Total); err != nil {
		r.log.Warn("failed to set job progress", "error", err)
		return
	}
	r.progress = next
	r.broker.Publish(ctx, r.jobID, events.Progress(next))
}

// Complete fills the progress bar.
func (r *Reporter) Complete(ctx context.Context) {
	r.mu.Lock()
	total := r.progress.Total
	r.mu.Unlock()
	r.Progress(ctx, total, total)
}

// Targets records the ordered target list of a scheduled job.
func (r *Reporter) Targets(ctx context.Context, targets []types.TargetStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.SetTargets(ctx, r.jobID, targets)
}

// Target records one target's state.
func (r *Reporter) Target(ctx context.Context, target uuid.UUID, state types.TargetState, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.SetTargetStatus(ctx, r.jobID, target, state, errMsg); err != nil {
		r.log.Warn("failed to set target status", "target_id", target, "error", err)
	}
}
