package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncScopeAll is the scope of a run covering every active store.
const SyncScopeAll = "ALL"

type SyncKind string

const (
	SyncKindStore SyncKind = "STORE_SYNC"
	SyncKindFull  SyncKind = "FULL_SYNC"
)

type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "PENDING"
	SyncStatusRunning   SyncStatus = "RUNNING"
	SyncStatusCompleted SyncStatus = "COMPLETED"
	SyncStatusFailed    SyncStatus = "FAILED"
)

type SyncRun struct {
	ID             string
	Scope          string
	Kind           SyncKind
	Status         SyncStatus
	StartedAt      time.Time
	EndedAt        time.Time
	ItemsProcessed int
	SuccessCount   int
	FailureCount   int
	ConflictCount  int
	ErrorMessage   string
}

func NewSyncRun(kind SyncKind, scope string, now time.Time) *SyncRun {
	return &SyncRun{
		ID:        uuid.NewString(),
		Scope:     scope,
		Kind:      kind,
		Status:    SyncStatusPending,
		StartedAt: now,
	}
}

func (r *SyncRun) RecordSuccess() {
	r.SuccessCount++
	r.ItemsProcessed++
}

func (r *SyncRun) RecordFailure() {
	r.FailureCount++
	r.ItemsProcessed++
}

func (r *SyncRun) Terminal() bool {
	return r.Status == SyncStatusCompleted || r.Status == SyncStatusFailed
}

// Complete moves the run to COMPLETED. It is a no-op once the run is terminal.
func (r *SyncRun) Complete(now time.Time) {
	if r.Terminal() {
		return
	}
	r.Status = SyncStatusCompleted
	r.EndedAt = now
}

// Fail moves the run to FAILED. It is a no-op once the run is terminal.
func (r *SyncRun) Fail(now time.Time, err error) {
	if r.Terminal() {
		return
	}
	r.Status = SyncStatusFailed
	r.EndedAt = now
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

func (r *SyncRun) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
