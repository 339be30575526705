package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// StatusUpdate carries the fields that accompany a status transition.
// Only the fields relevant to the target status are consulted: worker
// identity on the transition to processing, result/error/duration on the
// terminal transitions.
type StatusUpdate struct {
	Status       Status
	WorkerID     string
	ProcessingBy string
	Result       json.RawMessage
	Error        string
	DurationMS   *int64
}

// Store defines the persistence contract for task rows. It is a thin,
// crash-consistent boundary: no retries or business validation live here.
// Implementations must be safe for concurrent use.
type Store interface {
	// InsertTasks persists the given tasks as a single atomic unit; a failure
	// inserting any task leaves none of them stored.
	InsertTasks(ctx context.Context, tasks []*Task) error

	// GetTask returns the task with the given id, or store.ErrTaskNotFound.
	GetTask(ctx context.Context, id string) (*Task, error)

	// GetTasksByStatus returns up to limit tasks with the given status,
	// ordered by created_at ascending. A limit <= 0 means no limit.
	GetTasksByStatus(ctx context.Context, status Status, limit int) ([]*Task, error)

	// UpdateStatus applies a status transition to the task with the given id,
	// stamping started_at (to processing) or completed_at (to a terminal
	// status) as appropriate. Returns store.ErrTaskNotFound when no row matches.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error

	// CountByStatus returns the number of tasks per status via a single
	// grouped aggregate.
	CountByStatus(ctx context.Context) (map[Status]int, error)

	// DeleteTerminalBefore deletes completed and failed tasks created before
	// the cutoff, returning the number of rows removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ResetProcessingBefore reverts processing tasks whose started_at is
	// before the cutoff back to pending, clearing worker_id, processing_by,
	// and started_at. Returns the number of rows reset.
	ResetProcessingBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx returns a Store bound to the given transaction, so reads and
	// writes can join a unit of work managed by store.RunInTransaction.
	// The returned Store shares no state with the transaction's lifecycle;
	// committing or rolling back remains the caller's responsibility.
	WithTx(tx *sql.Tx) Store
}
