// Package types provides the data model shared by the job, pricing and HTTP layers.
package types

import (
	"time"

	"github.com/google/uuid"
)

// JobKind distinguishes user-triggered imports from the system-wide scheduled run.
type JobKind string

const (
	JobKindManual    JobKind = "manual"
	JobKindScheduled JobKind = "scheduled"
)

// Valid reports whether k is a known kind.
func (k JobKind) Valid() bool {
	return k == JobKindManual || k == JobKindScheduled
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Active reports whether the job occupies its concurrency slot.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// CanTransitionTo reports whether s -> next is a legal lifecycle step.
// A pending job may fail directly when its execution unit dies before starting.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusFailed
	case JobStatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// Progress is a fraction of work done. JSON keys follow the poll contract.
type Progress struct {
	Current int `json:"value"`
	Total   int `json:"max"`
}

// Advance returns the progress after reporting (current, total), keeping
// current non-decreasing and never above total.
func (p Progress) Advance(current, total int) Progress {
	if current < p.Current {
		current = p.Current
	}
	if current < 0 {
		current = 0
	}
	if total < current {
		total = current
	}
	return Progress{Current: current, Total: total}
}

// TargetState is the status of one user inside a scheduled job.
type TargetState string

const (
	TargetPending   TargetState = "pending"
	TargetRunning   TargetState = "running"
	TargetCompleted TargetState = "completed"
	TargetFailed    TargetState = "failed"
)

// TargetStatus is one entry of a scheduled job's ordered per-target list.
type TargetStatus struct {
	TargetID uuid.UUID   `json:"target_id"`
	Label    string      `json:"label"`
	Status   TargetState `json:"status"`
	Error    string      `json:"error,omitempty"`
}

// Job is a unit of ingestion work with tracked lifecycle state.
type Job struct {
	ID               uuid.UUID      `json:"id"`
	Kind             JobKind        `json:"kind"`
	Owner            *uuid.UUID     `json:"owner,omitempty"`
	TriggeredBy      *uuid.UUID     `json:"triggered_by,omitempty"`
	Status           JobStatus      `json:"status"`
	Progress         Progress       `json:"progress"`
	Log              []string       `json:"log"`
	Targets          []TargetStatus `json:"targets,omitempty"`
	Error            *string        `json:"error"`
	NotificationSeen bool           `json:"notification_seen"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// FailedTargets counts targets that ended in failure.
func (j *Job) FailedTargets() int {
	n := 0
	for _, t := range j.Targets {
		if t.Status == TargetFailed {
			n++
		}
	}
	return n
}
