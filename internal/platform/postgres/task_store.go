package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/irshadali21/localBrowser-playwright-sub001/internal/platform/logger"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/store"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/task"
)

// TaskStore implements the task.Store interface using PostgreSQL. It queries
// through store.DBTX, so the same code serves both the connection pool and a
// transaction obtained via WithTx.
type TaskStore struct {
	db store.DBTX
}

var _ task.Store = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore over an open database or transaction.
// The schema must already be migrated (Open does both).
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

// WithTx returns a TaskStore bound to the given transaction.
func (s *TaskStore) WithTx(tx *sql.Tx) task.Store {
	return &TaskStore{db: tx}
}

// nullStr maps an empty string to NULL.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullJSON maps an empty raw message to NULL.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// InsertTasks persists the given tasks as a single atomic unit. On the
// connection pool this opens its own transaction; a store already bound to a
// transaction inserts directly and leaves commit or rollback to its owner.
func (s *TaskStore) InsertTasks(ctx context.Context, tasks []*task.Task) error {
	if db, ok := s.db.(*sql.DB); ok {
		return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return (&TaskStore{db: tx}).insertTasks(ctx, tasks)
		})
	}
	return s.insertTasks(ctx, tasks)
}

func (s *TaskStore) insertTasks(ctx context.Context, tasks []*task.Task) error {
	const query = `
		INSERT INTO tasks (id, type, url, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare task insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, t := range tasks {
		encoded, err := t.Payload.Encode(t.Type)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}

		if _, err := stmt.ExecContext(ctx,
			t.ID,
			string(t.Type),
			t.URL,
			nullJSON(encoded),
			string(t.Status),
			t.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
		}
	}
	return nil
}

const taskColumns = `id, type, url, payload, status, result, error,
	worker_id, processing_by, created_at, started_at, completed_at, duration_ms`

// GetTask returns the task with the given id, or store.ErrTaskNotFound.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// GetTasksByStatus returns up to limit tasks with the given status, oldest first.
func (s *TaskStore) GetTasksByStatus(ctx context.Context, status task.Status, limit int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1
		ORDER BY created_at ASC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

// UpdateStatus applies a status transition. Transitions to processing stamp
// started_at and set the worker identity when provided; terminal transitions
// stamp completed_at along with result, error, and duration.
func (s *TaskStore) UpdateStatus(ctx context.Context, id string, update task.StatusUpdate) error {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()

	var (
		query string
		args  []any
	)
	switch {
	case update.Status == task.StatusProcessing:
		query = `
			UPDATE tasks
			SET status = $1,
			    started_at = $2,
			    worker_id = COALESCE($3, worker_id),
			    processing_by = COALESCE($4, processing_by)
			WHERE id = $5
		`
		args = []any{string(update.Status), now, nullStr(update.WorkerID), nullStr(update.ProcessingBy), id}

	case update.Status.Terminal():
		query = `
			UPDATE tasks
			SET status = $1,
			    completed_at = $2,
			    result = $3,
			    error = $4,
			    duration_ms = $5
			WHERE id = $6
		`
		args = []any{string(update.Status), now, nullJSON(update.Result), nullStr(update.Error), update.DurationMS, id}

	default:
		query = `UPDATE tasks SET status = $1 WHERE id = $2`
		args = []any{string(update.Status), id}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update task status",
			"task_id", id,
			"status", update.Status,
			"error", err)
		return fmt.Errorf("%w: %v", store.ErrUpdateFailed, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

// CountByStatus returns task counts per status via one grouped aggregate.
func (s *TaskStore) CountByStatus(ctx context.Context) (map[task.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[task.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[task.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return counts, nil
}

// DeleteTerminalBefore deletes completed and failed tasks created before the
// cutoff and returns how many were removed.
func (s *TaskStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE status IN ($1, $2) AND created_at < $3`,
		string(task.StatusCompleted),
		string(task.StatusFailed),
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tasks: %w", err)
	}
	return res.RowsAffected()
}

// ResetProcessingBefore reverts stale processing tasks to pending, clearing
// the worker identity and start time, and returns how many were reset.
func (s *TaskStore) ResetProcessingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1,
		    worker_id = NULL,
		    processing_by = NULL,
		    started_at = NULL
		WHERE status = $2 AND started_at < $3`,
		string(task.StatusPending),
		string(task.StatusProcessing),
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask hydrates one task row, decoding the payload into its typed variant.
func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t            task.Task
		typ          string
		status       string
		payload      sql.NullString
		result       sql.NullString
		errMsg       sql.NullString
		workerID     sql.NullString
		processingBy sql.NullString
		createdAt    time.Time
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		durationMS   sql.NullInt64
	)

	err := row.Scan(
		&t.ID, &typ, &t.URL, &payload, &status, &result, &errMsg,
		&workerID, &processingBy, &createdAt, &startedAt, &completedAt, &durationMS,
	)
	if err != nil {
		return nil, err
	}

	t.Type = task.Type(typ)
	t.Status = task.Status(status)
	t.Error = errMsg.String
	t.WorkerID = workerID.String
	t.ProcessingBy = processingBy.String
	t.CreatedAt = createdAt.UTC()

	if payload.Valid {
		decoded, err := task.DecodePayload(t.Type, json.RawMessage(payload.String))
		if err != nil {
			return nil, err
		}
		t.Payload = decoded
	}
	if result.Valid {
		t.Result = json.RawMessage(result.String)
	}
	if startedAt.Valid {
		ts := startedAt.Time.UTC()
		t.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := completedAt.Time.UTC()
		t.CompletedAt = &ts
	}
	if durationMS.Valid {
		t.DurationMS = &durationMS.Int64
	}

	return &t, nil
}
