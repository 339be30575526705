package task

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/irshadali21/localBrowser-playwright-sub001/internal/store"
)

// MockStore implements the Store interface in memory for testing. Every
// method has a default implementation with real semantics (ordering,
// atomicity, timestamp stamping) and an overridable Fn field for injecting
// failures.
type MockStore struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	sequence int
	inserted map[string]int // insertion order, tie-breaker for equal created_at

	InsertFn       func(ctx context.Context, tasks []*Task) error
	GetFn          func(ctx context.Context, id string) (*Task, error)
	GetByStatusFn  func(ctx context.Context, status Status, limit int) ([]*Task, error)
	UpdateStatusFn func(ctx context.Context, id string, update StatusUpdate) error
	CountFn        func(ctx context.Context) (map[Status]int, error)
	DeleteFn       func(ctx context.Context, cutoff time.Time) (int64, error)
	ResetFn        func(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewMockStore creates a MockStore with default in-memory behavior.
func NewMockStore() *MockStore {
	return &MockStore{
		tasks:    make(map[string]*Task),
		inserted: make(map[string]int),
	}
}

func copyTask(t *Task) *Task {
	clone := *t
	return &clone
}

// InsertTasks stores all tasks or none of them.
func (s *MockStore) InsertTasks(ctx context.Context, tasks []*Task) error {
	if s.InsertFn != nil {
		return s.InsertFn(ctx, tasks)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tasks {
		if _, exists := s.tasks[t.ID]; exists {
			return store.ErrTaskExists
		}
	}
	for _, t := range tasks {
		s.sequence++
		s.inserted[t.ID] = s.sequence
		s.tasks[t.ID] = copyTask(t)
	}
	return nil
}

// GetTask returns a copy of the stored task or store.ErrTaskNotFound.
func (s *MockStore) GetTask(ctx context.Context, id string) (*Task, error) {
	if s.GetFn != nil {
		return s.GetFn(ctx, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return copyTask(t), nil
}

// GetTasksByStatus returns matching tasks ordered by created_at ascending.
func (s *MockStore) GetTasksByStatus(ctx context.Context, status Status, limit int) ([]*Task, error) {
	if s.GetByStatusFn != nil {
		return s.GetByStatusFn(ctx, status, limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Task
	for _, t := range s.tasks {
		if t.Status == status {
			matched = append(matched, copyTask(t))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return s.inserted[matched[i].ID] < s.inserted[matched[j].ID]
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// UpdateStatus applies the transition with the same timestamp stamping as the
// real backends.
func (s *MockStore) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	if s.UpdateStatusFn != nil {
		return s.UpdateStatusFn(ctx, id, update)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}

	now := time.Now().UTC()
	t.Status = update.Status
	switch {
	case update.Status == StatusProcessing:
		t.StartedAt = &now
		if update.WorkerID != "" {
			t.WorkerID = update.WorkerID
		}
		if update.ProcessingBy != "" {
			t.ProcessingBy = update.ProcessingBy
		}
	case update.Status.Terminal():
		t.CompletedAt = &now
		t.Result = update.Result
		t.Error = update.Error
		t.DurationMS = update.DurationMS
	}
	return nil
}

// CountByStatus counts stored tasks per status.
func (s *MockStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	if s.CountFn != nil {
		return s.CountFn(ctx)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Status]int)
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

// DeleteTerminalBefore removes old completed/failed tasks.
func (s *MockStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.DeleteFn != nil {
		return s.DeleteFn(ctx, cutoff)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, t := range s.tasks {
		if t.Status.Terminal() && t.CreatedAt.Before(cutoff) {
			delete(s.tasks, id)
			deleted++
		}
	}
	return deleted, nil
}

// WithTx returns the store itself; the in-memory mock has no transactions,
// its mutations are individually atomic under the mutex.
func (s *MockStore) WithTx(tx *sql.Tx) Store {
	return s
}

// ResetProcessingBefore reverts stale processing tasks to pending.
func (s *MockStore) ResetProcessingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.ResetFn != nil {
		return s.ResetFn(ctx, cutoff)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var reset int64
	for _, t := range s.tasks {
		if t.Status == StatusProcessing && t.StartedAt != nil && t.StartedAt.Before(cutoff) {
			t.Status = StatusPending
			t.WorkerID = ""
			t.ProcessingBy = ""
			t.StartedAt = nil
			reset++
		}
	}
	return reset, nil
}
