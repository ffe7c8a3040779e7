package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/purchase-tracker/internal/events"
	"github.com/jonathan/purchase-tracker/internal/logging"
	"github.com/jonathan/purchase-tracker/internal/provider"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// Directory resolves who to ingest for and how to log in on their behalf.
type Directory interface {
	ScheduledTargets(ctx context.Context) ([]types.ScheduledTarget, error)
	Credentials(ctx context.Context, userID uuid.UUID) (provider.Credentials, error)
}

// OrderSink persists orders and returns the items that were not stored before.
type OrderSink interface {
	SaveOrder(ctx context.Context, owner uuid.UUID, order provider.Order) ([]provider.OrderItem, error)
}

// PurchaseObserver is told about each newly ingested item.
type PurchaseObserver interface {
	ObservePurchase(ctx context.Context, owner uuid.UUID, item provider.OrderItem) error
}

// Notifier is told when a job reaches a terminal state.
type Notifier interface {
	JobFinished(ctx context.Context, job *types.Job, automated bool)
}

// Config tunes job execution.
type Config struct {
	ManualDefaultDays int
	ScheduledDays     int
	TargetConcurrency int
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		ManualDefaultDays: 60,
		ScheduledDays:     3,
		TargetConcurrency: 1,
	}
}

// Deps are the collaborators of an Orchestrator. Observer and Notifier are optional.
type Deps struct {
	Store     Store
	Broker    *events.Broker
	Provider  provider.OrderProvider
	Directory Directory
	Sink      OrderSink
	Observer  PurchaseObserver
	Notifier  Notifier
}

// StartRequest describes a job to launch.
type StartRequest struct {
	Kind        types.JobKind
	Owner       *uuid.UUID
	TriggeredBy *uuid.UUID
	// Days overrides the lookback window of a manual job.
	Days int
	// Automated marks scheduled runs started by the cron trigger.
	Automated bool
}

// ShutdownReason is recorded on jobs still running when Shutdown gives up waiting.
const ShutdownReason = "server shut down before the job finished"

// Orchestrator reserves jobs and runs them in supervised background goroutines.
type Orchestrator struct {
	deps Deps
	cfg  Config
	log  *logging.Logger
	wg   sync.WaitGroup

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

// New creates an orchestrator.
func New(deps Deps, cfg Config, log *logging.Logger) *Orchestrator {
	if cfg.ManualDefaultDays <= 0 {
		cfg.ManualDefaultDays = DefaultConfig().ManualDefaultDays
	}
	if cfg.ScheduledDays <= 0 {
		cfg.ScheduledDays = DefaultConfig().ScheduledDays
	}
	if cfg.TargetConcurrency <= 0 {
		cfg.TargetConcurrency = 1
	}
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		log:      logging.OrNop(log).With("component", "orchestrator"),
		inFlight: make(map[uuid.UUID]struct{}),
	}
}

// Start reserves a job and launches it. It returns as soon as the job is
// reserved; ErrConflict means the scope already has an active job. The job
// keeps running after ctx is canceled.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (uuid.UUID, error) {
	if !req.Kind.Valid() {
		return uuid.Nil, fmt.Errorf("unknown job kind %q", req.Kind)
	}
	if req.Kind == types.JobKindManual && req.Owner == nil {
		return uuid.Nil, errors.New("manual jobs require an owner")
	}
	if req.Kind == types.JobKindScheduled {
		req.Owner = nil
	}
	if req.Days <= 0 {
		req.Days = o.cfg.ManualDefaultDays
	}

	id, err := o.deps.Store.TryReserve(ctx, req.Kind, req.Owner, req.TriggeredBy)
	if err != nil {
		return uuid.Nil, err
	}

	o.log.Info("job reserved", "job_id", id, "kind", req.Kind)
	o.deps.Broker.Open(id)
	o.deps.Broker.Publish(ctx, id, events.Status(types.JobStatusPending))
	o.launch(context.WithoutCancel(ctx), id, req)
	return id, nil
}

// Wait blocks until every launched job has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown waits for running jobs until ctx ends. Jobs still running then are
// failed with ShutdownReason so their scope can be reserved again.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		o.abandon(ShutdownReason)
		return ctx.Err()
	}
}

func (o *Orchestrator) abandon(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	o.mu.Lock()
	ids := make([]uuid.UUID, 0, len(o.inFlight))
	for id := range o.inFlight {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		msg := reason
		if err := o.deps.Store.Finalize(ctx, id, types.JobStatusFailed, &msg); err != nil {
			o.log.Warn("failed to abandon job", "job_id", id, "error", err)
			continue
		}
		o.log.Warn("job abandoned", "job_id", id, "reason", reason)
		o.deps.Broker.Publish(ctx, id, events.Status(types.JobStatusFailed))
		o.deps.Broker.Publish(ctx, id, events.Error(msg))
		o.deps.Broker.Close(ctx, id)
	}
}

func (o *Orchestrator) launch(ctx context.Context, id uuid.UUID, req StartRequest) {
	rep := newReporter(o.deps.Store, o.deps.Broker, id, o.log)
	o.mu.Lock()
	o.inFlight[id] = struct{}{}
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.inFlight, id)
			o.mu.Unlock()
		}()
		defer o.deps.Broker.Close(ctx, id)
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("job panicked", "job_id", id, "panic", r, "stack", string(debug.Stack()))
				msg := fmt.Sprintf("internal error: %v", r)
				o.finish(ctx, rep, req, types.JobStatusFailed, &msg)
			}
		}()

		var status types.JobStatus
		var errMsg *string
		switch req.Kind {
		case types.JobKindManual:
			status, errMsg = o.runManual(ctx, rep, *req.Owner, req.Days)
		default:
			status, errMsg = o.runScheduled(ctx, rep)
		}
		o.finish(ctx, rep, req, status, errMsg)
	}()
}

func (o *Orchestrator) finish(ctx context.Context, rep *Reporter, req StartRequest, status types.JobStatus, errMsg *string) {
	id := rep.JobID()
	if err := o.deps.Store.Finalize(ctx, id, status, errMsg); err != nil {
		o.log.Error("failed to finalize job", "job_id", id, "status", status, "error", err)
		if errors.Is(err, ErrNotActive) {
			return
		}
	}
	o.deps.Broker.Publish(ctx, id, events.Status(status))
	if errMsg != nil {
		o.deps.Broker.Publish(ctx, id, events.Error(*errMsg))
	}
	o.log.Info("job finished", "job_id", id, "status", status)
	o.notify(ctx, id, req.Automated)
}

func (o *Orchestrator) notify(ctx context.Context, id uuid.UUID, automated bool) {
	if o.deps.Notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("job notifier panicked", "job_id", id, "panic", r)
		}
	}()
	job, err := o.deps.Store.Get(ctx, id)
	if err != nil {
		o.log.Warn("failed to load job for notification", "job_id", id, "error", err)
		return
	}
	o.deps.Notifier.JobFinished(ctx, job, automated)
}

func (o *Orchestrator) runManual(ctx context.Context, rep *Reporter, owner uuid.UUID, days int) (types.JobStatus, *string) {
	rep.Running(ctx)
	rep.Progress(ctx, 0, 100)
	rep.Log(ctx, "Job started...")
	rep.Logf(ctx, "Fetching orders from the last %d days.", days)

	logf := func(line string) { rep.Log(ctx, line) }
	progress := func(done, total int) { rep.Progress(ctx, done, total) }

	added, err := o.ingest(ctx, owner, days, logf, progress)
	if err != nil {
		msg := err.Error()
		rep.Logf(ctx, "Job failed: %s", msg)
		return types.JobStatusFailed, &msg
	}

	rep.Complete(ctx)
	rep.Logf(ctx, "Job finished. %d new items imported.", added)
	return types.JobStatusCompleted, nil
}

func (o *Orchestrator) runScheduled(ctx context.Context, rep *Reporter) (types.JobStatus, *string) {
	rep.Running(ctx)
	rep.Log(ctx, "Job started...")

	fail := func(msg string) (types.JobStatus, *string) {
		rep.Log(ctx, msg)
		return types.JobStatusFailed, &msg
	}

	targets, err := o.deps.Directory.ScheduledTargets(ctx)
	if err != nil {
		return fail(fmt.Sprintf("failed to list scheduled users: %v", err))
	}
	if len(targets) == 0 {
		return fail("no users have scheduled ingestion enabled")
	}

	list := make([]types.TargetStatus, len(targets))
	for i, t := range targets {
		list[i] = types.TargetStatus{TargetID: t.UserID, Label: t.Username, Status: types.TargetPending}
	}
	if err := rep.Targets(ctx, list); err != nil {
		return fail(fmt.Sprintf("failed to record targets: %v", err))
	}
	rep.Progress(ctx, 0, len(targets))
	rep.Logf(ctx, "Processing %d users.", len(targets))

	var done, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(o.cfg.TargetConcurrency)
	for _, t := range targets {
		g.Go(func() error {
			if err := o.runTarget(ctx, rep, t); err != nil {
				failed.Add(1)
			}
			rep.Progress(ctx, int(done.Add(1)), len(targets))
			return nil
		})
	}
	_ = g.Wait()

	nFailed := int(failed.Load())
	rep.Logf(ctx, "Finished: %d succeeded, %d failed.", len(targets)-nFailed, nFailed)
	if nFailed == len(targets) {
		msg := fmt.Sprintf("all %d users failed", nFailed)
		return types.JobStatusFailed, &msg
	}
	return types.JobStatusCompleted, nil
}

// runTarget ingests one user of a scheduled job. Failures, including panics,
// are recorded on the target and never stop the other targets.
func (o *Orchestrator) runTarget(ctx context.Context, rep *Reporter, t types.ScheduledTarget) (err error) {
	logf := func(line string) { rep.Log(ctx, fmt.Sprintf("[%s] %s", t.Username, line)) }

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("target panicked", "job_id", rep.JobID(), "user_id", t.UserID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
		if err != nil {
			rep.Target(ctx, t.UserID, types.TargetFailed, err.Error())
			logf("Failed: " + err.Error())
			return
		}
		rep.Target(ctx, t.UserID, types.TargetCompleted, "")
	}()

	rep.Target(ctx, t.UserID, types.TargetRunning, "")
	logf("Started.")
	added, err := o.ingest(ctx, t.UserID, o.cfg.ScheduledDays, logf, nil)
	if err != nil {
		return err
	}
	logf(fmt.Sprintf("Completed. %d new items imported.", added))
	return nil
}

func (o *Orchestrator) ingest(ctx context.Context, owner uuid.UUID, days int, logf func(string), progress func(done, total int)) (int, error) {
	creds, err := o.deps.Directory.Credentials(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("failed to load provider credentials: %w", err)
	}

	orders, err := o.deps.Provider.FetchOrders(ctx, provider.FetchRequest{
		UserID:      owner,
		Credentials: creds,
		Days:        days,
	}, logf)
	if err != nil {
		return 0, fmt.Errorf("order retrieval failed: %w", err)
	}
	logf(fmt.Sprintf("Retrieved %d orders.", len(orders)))

	added := 0
	for i, order := range orders {
		items, err := o.deps.Sink.SaveOrder(ctx, owner, order)
		if err != nil {
			return added, fmt.Errorf("failed to save order %s: %w", order.ID, err)
		}
		if o.deps.Observer != nil {
			for _, item := range items {
				if err := o.deps.Observer.ObservePurchase(ctx, owner, item); err != nil {
					logf(fmt.Sprintf("Price tracking update failed for %q: %v", item.Title, err))
				}
			}
		}
		if len(items) > 0 {
			logf(fmt.Sprintf("Imported order %s (%d items).", order.ID, len(items)))
		}
		added += len(items)
		if progress != nil {
			progress(i+1, len(orders))
		}
	}
	return added, nil
}
