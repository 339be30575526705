package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irshadali21/localBrowser-playwright-sub001/internal/store"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/task"
)

// newIntegrationStore connects to the database named by DATABASE_URL, or
// skips the test when none is configured. Each test truncates the tasks
// table so runs are independent.
func newIntegrationStore(t *testing.T) *TaskStore {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test - DATABASE_URL environment variable required")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`TRUNCATE tasks`)
	require.NoError(t, err)

	return NewTaskStore(db)
}

func pendingTask(id string, createdAt time.Time) *task.Task {
	return &task.Task{
		ID:        id,
		Type:      task.TypeWebsiteHTML,
		URL:       "https://example.com",
		Status:    task.StatusPending,
		CreatedAt: createdAt,
	}
}

func TestTaskStore_Lifecycle_Integration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	in := pendingTask("a1b2c3", created)
	in.Payload = &task.Payload{Website: &task.WebsiteOptions{WaitUntil: "networkidle"}}
	require.NoError(t, s.InsertTasks(ctx, []*task.Task{in}))

	got, err := s.GetTask(ctx, "a1b2c3")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.True(t, got.CreatedAt.Equal(created))
	require.NotNil(t, got.Payload)
	require.NotNil(t, got.Payload.Website)
	assert.Equal(t, "networkidle", got.Payload.Website.WaitUntil)

	require.NoError(t, s.UpdateStatus(ctx, "a1b2c3", task.StatusUpdate{
		Status:       task.StatusProcessing,
		WorkerID:     "worker-1",
		ProcessingBy: "worker-1:42",
	}))

	got, err = s.GetTask(ctx, "a1b2c3")
	require.NoError(t, err)
	assert.Equal(t, task.StatusProcessing, got.Status)
	assert.Equal(t, "worker-1", got.WorkerID)
	require.NotNil(t, got.StartedAt)

	duration := int64(2400)
	require.NoError(t, s.UpdateStatus(ctx, "a1b2c3", task.StatusUpdate{
		Status:     task.StatusCompleted,
		Result:     []byte(`{"file_id":"f1"}`),
		DurationMS: &duration,
	}))

	got, err = s.GetTask(ctx, "a1b2c3")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.JSONEq(t, `{"file_id":"f1"}`, string(got.Result))
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.DurationMS)
	assert.Equal(t, int64(2400), *got.DurationMS)
}

func TestTaskStore_InsertRollback_Integration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.InsertTasks(ctx, []*task.Task{pendingTask("dup", now)}))

	err := s.InsertTasks(ctx, []*task.Task{
		pendingTask("fresh", now),
		pendingTask("dup", now),
	})
	require.Error(t, err)

	_, err = s.GetTask(ctx, "fresh")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskStore_QueueQueries_Integration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertTasks(ctx, []*task.Task{
		pendingTask("second", base.Add(time.Second)),
		pendingTask("first", base),
		pendingTask("third", base.Add(2*time.Second)),
	}))

	got, err := s.GetTasksByStatus(ctx, task.StatusPending, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].ID)
	assert.Equal(t, "second", got[1].ID)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[task.StatusPending])
}

func TestTaskStore_Maintenance_Integration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -10)
	done := pendingTask("old-done", old)
	done.Status = task.StatusCompleted
	require.NoError(t, s.InsertTasks(ctx, []*task.Task{
		done,
		pendingTask("stale", old),
	}))
	require.NoError(t, s.UpdateStatus(ctx, "stale", task.StatusUpdate{
		Status:   task.StatusProcessing,
		WorkerID: "w1",
	}))

	deleted, err := s.DeleteTerminalBefore(ctx, time.Now().UTC().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	reset, err := s.ResetProcessingBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	stale, err := s.GetTask(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, stale.Status)
	assert.Empty(t, stale.WorkerID)
	assert.Nil(t, stale.StartedAt)
}
