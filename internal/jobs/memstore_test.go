package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/purchase-tracker/internal/types"
)

// memStore is an in-memory Store with the same conditional-update rules as
// the Postgres implementation.
type memStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*types.Job
	seq  []uuid.UUID
	now  func() time.Time
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]*types.Job), now: time.Now}
}

func (s *memStore) TryReserve(_ context.Context, kind types.JobKind, owner, triggeredBy *uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if !j.Status.Active() || j.Kind != kind {
			continue
		}
		if kind == types.JobKindScheduled || (j.Owner != nil && owner != nil && *j.Owner == *owner) {
			return uuid.Nil, ErrConflict
		}
	}
	id := uuid.New()
	now := s.now()
	s.jobs[id] = &types.Job{
		ID:          id,
		Kind:        kind,
		Owner:       owner,
		TriggeredBy: triggeredBy,
		Status:      types.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.seq = append(s.seq, id)
	return id, nil
}

func (s *memStore) active(id uuid.UUID) (*types.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !j.Status.Active() {
		return nil, ErrNotActive
	}
	return j, nil
}

func (s *memStore) MarkRunning(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.active(id)
	if err != nil {
		return err
	}
	if j.Status != types.JobStatusPending {
		return ErrNotActive
	}
	j.Status = types.JobStatusRunning
	j.UpdatedAt = s.now()
	return nil
}

func (s *memStore) AppendLog(_ context.Context, id uuid.UUID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.active(id)
	if err != nil {
		return err
	}
	j.Log = append(j.Log, line)
	j.UpdatedAt = s.now()
	return nil
}

func (s *memStore) SetProgress(_ context.Context, id uuid.UUID, current, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.active(id)
	if err != nil {
		return err
	}
	j.Progress = j.Progress.Advance(current, total)
	j.UpdatedAt = s.now()
	return nil
}

func (s *memStore) SetTargets(_ context.Context, id uuid.UUID, targets []types.TargetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.active(id)
	if err != nil {
		return err
	}
	j.Targets = append([]types.TargetStatus(nil), targets...)
	return nil
}

func (s *memStore) SetTargetStatus(_ context.Context, id, target uuid.UUID, state types.TargetState, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.active(id)
	if err != nil {
		return err
	}
	for i := range j.Targets {
		if j.Targets[i].TargetID == target {
			j.Targets[i].Status = state
			j.Targets[i].Error = errMsg
			j.UpdatedAt = s.now()
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) Finalize(_ context.Context, id uuid.UUID, status types.JobStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.active(id)
	if err != nil {
		return err
	}
	j.Status = status
	j.Error = errMsg
	j.UpdatedAt = s.now()
	return nil
}

func (s *memStore) MarkNotificationSeen(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || !j.Status.Terminal() || j.NotificationSeen {
		return false, nil
	}
	j.NotificationSeen = true
	return true, nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *memStore) GetLatest(_ context.Context, kind types.JobKind, owner *uuid.UUID) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.seq) - 1; i >= 0; i-- {
		j := s.jobs[s.seq[i]]
		if j.Kind != kind {
			continue
		}
		if owner != nil && (j.Owner == nil || *j.Owner != *owner) {
			continue
		}
		return cloneJob(j), nil
	}
	return nil, ErrNotFound
}

func (s *memStore) FailStale(_ context.Context, before time.Time, reason string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for _, id := range s.seq {
		j := s.jobs[id]
		if j.Status.Active() && j.UpdatedAt.Before(before) {
			msg := reason
			j.Status = types.JobStatusFailed
			j.Error = &msg
			j.Log = append(j.Log, reason)
			j.UpdatedAt = s.now()
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func cloneJob(j *types.Job) *types.Job {
	c := *j
	c.Log = append([]string(nil), j.Log...)
	c.Targets = append([]types.TargetStatus(nil), j.Targets...)
	return &c
}
