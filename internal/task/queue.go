package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Validation errors returned by the queue service before anything reaches
// the store.
var (
	ErrMissingType = errors.New("task type is required")
	ErrUnknownType = errors.New("unknown task type")
	ErrInvalidURL  = errors.New("task url must start with http:// or https://")
	ErrEmptyBatch  = errors.New("batch contains no tasks")
)

// NewTask is the input for enqueueing one task. ID is optional; one is
// generated when absent. Payload is the raw type-specific options object.
type NewTask struct {
	ID      string
	Type    Type
	URL     string
	Payload json.RawMessage
}

// QueueService owns the task lifecycle: creation, claim-eligible fetch,
// status mutation, statistics, retention cleanup, and stuck-task reset.
// It is the only writer of status, result, and error.
type QueueService struct {
	store  Store
	logger *slog.Logger
}

// NewQueueService creates a QueueService over the given store.
func NewQueueService(store Store, logger *slog.Logger) *QueueService {
	return &QueueService{
		store:  store,
		logger: logger,
	}
}

// validate checks a NewTask and returns the fully-formed Task row to insert,
// decoding the payload into its typed variant.
func (s *QueueService) validate(input NewTask, now time.Time) (*Task, error) {
	if input.Type == "" {
		return nil, ErrMissingType
	}
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, input.Type)
	}
	if !ValidURL(input.URL) {
		return nil, ErrInvalidURL
	}

	payload, err := DecodePayload(input.Type, input.Payload)
	if err != nil {
		return nil, err
	}

	id := input.ID
	if id == "" {
		id = NewTaskID()
	}

	return &Task{
		ID:        id,
		Type:      input.Type,
		URL:       input.URL,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
	}, nil
}

// EnqueueTask validates the input and inserts a pending task, returning its id.
func (s *QueueService) EnqueueTask(ctx context.Context, input NewTask) (string, error) {
	t, err := s.validate(input, time.Now().UTC())
	if err != nil {
		return "", err
	}

	if err := s.store.InsertTasks(ctx, []*Task{t}); err != nil {
		s.logger.Error("failed to enqueue task",
			"task_id", t.ID,
			"task_type", t.Type,
			"error", err)
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("task enqueued",
		"task_id", t.ID,
		"task_type", t.Type,
		"url", t.URL)
	return t.ID, nil
}

// EnqueueBatch validates and inserts all tasks in one atomic unit. A
// validation or store failure on any task leaves none of them enqueued.
// Returns the task ids in input order.
func (s *QueueService) EnqueueBatch(ctx context.Context, inputs []NewTask) ([]string, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}

	now := time.Now().UTC()
	tasks := make([]*Task, 0, len(inputs))
	ids := make([]string, 0, len(inputs))
	for i, input := range inputs {
		t, err := s.validate(input, now)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		tasks = append(tasks, t)
		ids = append(ids, t.ID)
	}

	if err := s.store.InsertTasks(ctx, tasks); err != nil {
		s.logger.Error("failed to enqueue batch",
			"count", len(tasks),
			"error", err)
		return nil, fmt.Errorf("failed to enqueue batch: %w", err)
	}

	s.logger.Info("batch enqueued", "count", len(tasks))
	return ids, nil
}

// GetPendingTasks returns up to limit pending tasks, oldest first. A store
// fault degrades to an empty slice so a transient read error never breaks
// the scheduler tick.
func (s *QueueService) GetPendingTasks(ctx context.Context, limit int) []*Task {
	tasks, err := s.store.GetTasksByStatus(ctx, StatusPending, limit)
	if err != nil {
		s.logger.Error("failed to fetch pending tasks", "error", err)
		return nil
	}
	return tasks
}

// GetTask returns the task with the given id, or store.ErrTaskNotFound.
func (s *QueueService) GetTask(ctx context.Context, id string) (*Task, error) {
	return s.store.GetTask(ctx, id)
}

// StatusMetadata carries the optional companions of a status transition.
type StatusMetadata struct {
	WorkerID     string
	ProcessingBy string
	Result       json.RawMessage
	Error        string
	DurationMS   *int64
}

// UpdateTaskStatus is the sole status mutator. Transitions to processing
// stamp started_at and the worker identity; terminal transitions stamp
// completed_at along with any provided result, error, and duration.
func (s *QueueService) UpdateTaskStatus(ctx context.Context, id string, status Status, meta StatusMetadata) error {
	if !status.Valid() {
		return fmt.Errorf("invalid task status %q", status)
	}

	err := s.store.UpdateStatus(ctx, id, StatusUpdate{
		Status:       status,
		WorkerID:     meta.WorkerID,
		ProcessingBy: meta.ProcessingBy,
		Result:       meta.Result,
		Error:        meta.Error,
		DurationMS:   meta.DurationMS,
	})
	if err != nil {
		s.logger.Error("failed to update task status",
			"task_id", id,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// GetStatistics returns per-status task counts plus the total. A store fault
// degrades to zeroed statistics.
func (s *QueueService) GetStatistics(ctx context.Context) Statistics {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("failed to compute task statistics", "error", err)
		return Statistics{}
	}

	stats := Statistics{
		Pending:    counts[StatusPending],
		Processing: counts[StatusProcessing],
		Completed:  counts[StatusCompleted],
		Failed:     counts[StatusFailed],
	}
	stats.Total = stats.Pending + stats.Processing + stats.Completed + stats.Failed
	return stats
}

// CleanupOldTasks deletes terminal tasks created more than olderThanDays days
// ago and returns the number removed.
func (s *QueueService) CleanupOldTasks(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	deleted, err := s.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to clean up old tasks",
			"older_than_days", olderThanDays,
			"error", err)
		return 0, fmt.Errorf("failed to clean up old tasks: %w", err)
	}
	return deleted, nil
}

// ResetStuckTasks reverts processing tasks whose started_at is older than
// thresholdMinutes back to pending, clearing the worker identity fields, and
// returns the number reset. This is the only permitted backward transition.
func (s *QueueService) ResetStuckTasks(ctx context.Context, thresholdMinutes int) (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(thresholdMinutes) * time.Minute)
	reset, err := s.store.ResetProcessingBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to reset stuck tasks",
			"threshold_minutes", thresholdMinutes,
			"error", err)
		return 0, fmt.Errorf("failed to reset stuck tasks: %w", err)
	}
	return reset, nil
}
