package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/purchase-tracker/internal/jobs"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// -----------------------------------------------------------------------------
// Ingestion Job Methods
// -----------------------------------------------------------------------------

const jobColumns = `id, kind, owner_id, triggered_by, status, progress_current, progress_total,
	log, error, notification_seen, created_at, updated_at`

const activeStatuses = `('pending', 'running')`

// JobStore is the Postgres implementation of jobs.Store.
type JobStore struct {
	pool *pgxpool.Pool
}

// Jobs returns the job store backed by db.
func (db *DB) Jobs() *JobStore {
	return &JobStore{pool: db.pool}
}

// TryReserve inserts a pending job. The partial unique indexes on
// ingestion_jobs reject a second active job in the same scope.
func (s *JobStore) TryReserve(ctx context.Context, kind types.JobKind, owner, triggeredBy *uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ingestion_jobs (kind, owner_id, triggered_by)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		string(kind), owner, triggeredBy,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, jobs.ErrConflict
		}
		return uuid.Nil, fmt.Errorf("failed to reserve job: %w", err)
	}
	return id, nil
}

// MarkRunning moves a pending job to running.
func (s *JobStore) MarkRunning(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET status = 'running', updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.inactiveReason(ctx, id)
	}
	return nil
}

// AppendLog appends one line to an active job's log.
func (s *JobStore) AppendLog(ctx context.Context, id uuid.UUID, line string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET log = array_append(log, $2), updated_at = NOW()
		 WHERE id = $1 AND status IN `+activeStatuses,
		id, line,
	)
	if err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.inactiveReason(ctx, id)
	}
	return nil
}

// SetProgress records progress. current never decreases and total never drops below it.
func (s *JobStore) SetProgress(ctx context.Context, id uuid.UUID, current, total int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingestion_jobs
		 SET progress_current = GREATEST(progress_current, $2),
		     progress_total = GREATEST($3, progress_current, $2),
		     updated_at = NOW()
		 WHERE id = $1 AND status IN `+activeStatuses,
		id, current, total,
	)
	if err != nil {
		return fmt.Errorf("failed to set job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.inactiveReason(ctx, id)
	}
	return nil
}

// SetTargets replaces the ordered target list of a job.
func (s *JobStore) SetTargets(ctx context.Context, id uuid.UUID, targets []types.TargetStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	var active bool
	err = tx.QueryRow(ctx,
		`SELECT status IN `+activeStatuses+` FROM ingestion_jobs WHERE id = $1 FOR UPDATE`, id,
	).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return jobs.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock job: %w", err)
	}
	if !active {
		return jobs.ErrNotActive
	}

	if _, err := tx.Exec(ctx, `DELETE FROM job_targets WHERE job_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear job targets: %w", err)
	}
	for i, t := range targets {
		status := t.Status
		if status == "" {
			status = types.TargetPending
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO job_targets (job_id, position, target_id, label, status, error)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, i, t.TargetID, t.Label, string(status), nullIfEmpty(t.Error),
		); err != nil {
			return fmt.Errorf("failed to insert job target %s: %w", t.Label, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetTargetStatus updates one target row of an active job and touches the job.
func (s *JobStore) SetTargetStatus(ctx context.Context, id, target uuid.UUID, state types.TargetState, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`WITH t AS (
		     UPDATE job_targets AS jt SET status = $3, error = $4
		     FROM ingestion_jobs AS j
		     WHERE jt.job_id = $1 AND jt.target_id = $2
		       AND j.id = jt.job_id AND j.status IN `+activeStatuses+`
		     RETURNING jt.job_id
		 )
		 UPDATE ingestion_jobs SET updated_at = NOW()
		 WHERE id IN (SELECT job_id FROM t)`,
		id, target, string(state), nullIfEmpty(errMsg),
	)
	if err != nil {
		return fmt.Errorf("failed to set target status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.targetMissReason(ctx, id)
	}
	return nil
}

// targetMissReason explains why a target update matched no rows: the job is
// missing or finished, or the job is active and the target is unknown.
func (s *JobStore) targetMissReason(ctx context.Context, id uuid.UUID) error {
	var active bool
	err := s.pool.QueryRow(ctx,
		`SELECT status IN `+activeStatuses+` FROM ingestion_jobs WHERE id = $1`, id,
	).Scan(&active)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return jobs.ErrNotFound
	case err != nil:
		return fmt.Errorf("failed to check job: %w", err)
	case !active:
		return jobs.ErrNotActive
	}
	return jobs.ErrNotFound
}

// Finalize moves an active job to a terminal status.
func (s *JobStore) Finalize(ctx context.Context, id uuid.UUID, status types.JobStatus, errMsg *string) error {
	if !status.Terminal() {
		return fmt.Errorf("cannot finalize job with status %q", status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET status = $2, error = $3, updated_at = NOW()
		 WHERE id = $1 AND status IN `+activeStatuses,
		id, string(status), errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.inactiveReason(ctx, id)
	}
	return nil
}

// MarkNotificationSeen flips notification_seen on a finished job and reports
// whether this call performed the flip.
func (s *JobStore) MarkNotificationSeen(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET notification_seen = TRUE
		 WHERE id = $1 AND status IN ('completed', 'failed') AND NOT notification_seen`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification seen: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get retrieves a job with its targets.
func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if err := s.loadTargets(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetLatest retrieves the newest job of kind for owner. A nil owner matches
// jobs without an owner.
func (s *JobStore) GetLatest(ctx context.Context, kind types.JobKind, owner *uuid.UUID) (*types.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs
		 WHERE kind = $1 AND owner_id IS NOT DISTINCT FROM $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		string(kind), owner,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}
	if err := s.loadTargets(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// FailStale fails every active job not updated since before.
func (s *JobStore) FailStale(ctx context.Context, before time.Time, reason string) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE ingestion_jobs
		 SET status = 'failed', error = $2, log = array_append(log, $2), updated_at = NOW()
		 WHERE status IN `+activeStatuses+` AND updated_at < $1
		 RETURNING id`,
		before, reason,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fail stale jobs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan stale job ids: %w", err)
	}
	return ids, nil
}

func (s *JobStore) loadTargets(ctx context.Context, job *types.Job) error {
	rows, err := s.pool.Query(ctx,
		`SELECT target_id, label, status, COALESCE(error, '')
		 FROM job_targets WHERE job_id = $1
		 ORDER BY position`,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load job targets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t types.TargetStatus
		var status string
		if err := rows.Scan(&t.TargetID, &t.Label, &status, &t.Error); err != nil {
			return fmt.Errorf("failed to scan job target: %w", err)
		}
		t.Status = types.TargetState(status)
		job.Targets = append(job.Targets, t)
	}
	return rows.Err()
}

// inactiveReason explains why a conditional update on a job matched no rows.
func (s *JobStore) inactiveReason(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ingestion_jobs WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if !exists {
		return jobs.ErrNotFound
	}
	return jobs.ErrNotActive
}

func scanJob(row pgx.Row) (*types.Job, error) {
	var job types.Job
	var kind, status string
	if err := row.Scan(&job.ID, &kind, &job.Owner, &job.TriggeredBy, &status,
		&job.Progress.Current, &job.Progress.Total, &job.Log, &job.Error,
		&job.NotificationSeen, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Kind = types.JobKind(kind)
	job.Status = types.JobStatus(status)
	if job.Log == nil {
		job.Log = []string{}
	}
	return &job, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ jobs.Store = (*JobStore)(nil)
