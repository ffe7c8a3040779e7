// Package scheduler runs the periodic triggers: the daily scheduled ingestion,
// the price sweep and stale-job reconciliation.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jonathan/purchase-tracker/internal/jobs"
	"github.com/jonathan/purchase-tracker/internal/logging"
	"github.com/jonathan/purchase-tracker/internal/pricing"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// Starter starts ingestion jobs.
type Starter interface {
	Start(ctx context.Context, req jobs.StartRequest) (uuid.UUID, error)
}

// Sweeper re-checks every tracked item's price.
type Sweeper interface {
	CheckAll(ctx context.Context) (pricing.SweepResult, error)
}

// Reconciler fails abandoned jobs.
type Reconciler interface {
	Run(ctx context.Context) (int, error)
}

// TopicSweeper drops expired event topics.
type TopicSweeper interface {
	Sweep() int
}

// Config holds the cron specs. An empty spec disables that trigger.
type Config struct {
	IngestionSpec string
	PriceSpec     string
	ReconcileSpec string
}

// Deps are the components the triggers call. Nil members disable their trigger.
type Deps struct {
	Starter    Starter
	Sweeper    Sweeper
	Reconciler Reconciler
	Topics     TopicSweeper
}

// Scheduler owns a cron runner with the registered triggers.
type Scheduler struct {
	cron *cron.Cron
	deps Deps
	log  *logging.Logger
}

// New registers the triggers. It fails on an invalid cron spec.
func New(cfg Config, deps Deps, log *logging.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(),
		deps: deps,
		log:  logging.OrNop(log).With("component", "scheduler"),
	}

	if err := s.add("ingestion", cfg.IngestionSpec, deps.Starter != nil, s.RunIngestion); err != nil {
		return nil, err
	}
	if err := s.add("price_sweep", cfg.PriceSpec, deps.Sweeper != nil, s.RunPriceSweep); err != nil {
		return nil, err
	}
	if err := s.add("reconcile", cfg.ReconcileSpec, deps.Reconciler != nil || deps.Topics != nil, s.RunReconcile); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, enabled bool, run func(context.Context) error) error {
	if spec == "" || !enabled {
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		if err := run(context.Background()); err != nil {
			s.log.Error("scheduled trigger failed", "trigger", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register %s trigger %q: %w", name, spec, err)
	}
	s.log.Info("trigger registered", "trigger", name, "schedule", spec)
	return nil
}

// Entries reports how many triggers are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron loop and waits for running triggers or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

// RunIngestion starts an automated scheduled ingestion. A run already in
// progress is not an error.
func (s *Scheduler) RunIngestion(ctx context.Context) error {
	id, err := s.deps.Starter.Start(ctx, jobs.StartRequest{
		Kind:      types.JobKindScheduled,
		Automated: true,
	})
	if errors.Is(err, jobs.ErrConflict) {
		s.log.Info("scheduled ingestion skipped, a run is already active")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to start scheduled ingestion: %w", err)
	}
	s.log.Info("scheduled ingestion started", "job_id", id)
	return nil
}

// RunPriceSweep checks every tracked item once.
func (s *Scheduler) RunPriceSweep(ctx context.Context) error {
	res, err := s.deps.Sweeper.CheckAll(ctx)
	if err != nil {
		return fmt.Errorf("price sweep failed: %w", err)
	}
	s.log.Info("price sweep finished",
		"checked", res.Checked, "updated", res.Updated, "failed", res.Failed, "alerts", res.Alerts)
	return nil
}

// RunReconcile fails abandoned jobs and drops expired event topics.
func (s *Scheduler) RunReconcile(ctx context.Context) error {
	if s.deps.Topics != nil {
		if n := s.deps.Topics.Sweep(); n > 0 {
			s.log.Debug("event topics swept", "count", n)
		}
	}
	if s.deps.Reconciler == nil {
		return nil
	}
	if _, err := s.deps.Reconciler.Run(ctx); err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	return nil
}
