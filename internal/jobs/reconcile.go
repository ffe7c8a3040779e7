package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/purchase-tracker/internal/events"
	"github.com/jonathan/purchase-tracker/internal/logging"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// DefaultStaleAfter is how long an active job may go without an update.
const DefaultStaleAfter = 60 * time.Minute

// Reconciler fails active jobs whose execution unit is gone, freeing their
// concurrency slot.
type Reconciler struct {
	store      Store
	broker     *events.Broker
	staleAfter time.Duration
	log        *logging.Logger
	now        func() time.Time
}

// NewReconciler creates a reconciler. A non-positive staleAfter uses DefaultStaleAfter.
func NewReconciler(store Store, broker *events.Broker, staleAfter time.Duration, log *logging.Logger) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reconciler{
		store:      store,
		broker:     broker,
		staleAfter: staleAfter,
		log:        logging.OrNop(log).With("component", "reconciler"),
		now:        time.Now,
	}
}

// Run fails every stale job once and returns how many were failed.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	reason := fmt.Sprintf("job abandoned: no progress for %s", r.staleAfter)
	ids, err := r.store.FailStale(ctx, r.now().Add(-r.staleAfter), reason)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale jobs: %w", err)
	}
	for _, id := range ids {
		r.log.Warn("failed stale job", "job_id", id)
		r.broker.Publish(ctx, id, events.Status(types.JobStatusFailed))
		r.broker.Publish(ctx, id, events.Error(reason))
		r.broker.Close(ctx, id)
	}
	return len(ids), nil
}
