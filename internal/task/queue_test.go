package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irshadali21/localBrowser-playwright-sub001/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestQueueService_EnqueueTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("successful enqueue", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		queue := NewQueueService(mockStore, testLogger())

		id, err := queue.EnqueueTask(ctx, NewTask{
			Type: TypeWebsiteHTML,
			URL:  "https://example.com",
		})
		require.NoError(t, err)
		assert.Len(t, id, 32)

		stored, err := queue.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, stored.Status)
		assert.Equal(t, TypeWebsiteHTML, stored.Type)
		assert.False(t, stored.CreatedAt.IsZero())
	})

	t.Run("caller-supplied id is kept", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		queue := NewQueueService(mockStore, testLogger())

		id, err := queue.EnqueueTask(ctx, NewTask{
			ID:   "aabbccddeeff00112233445566778899",
			Type: TypeWebsiteHTML,
			URL:  "https://example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, "aabbccddeeff00112233445566778899", id)
	})

	t.Run("missing type", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		queue := NewQueueService(mockStore, testLogger())

		_, err := queue.EnqueueTask(ctx, NewTask{URL: "https://example.com"})
		assert.ErrorIs(t, err, ErrMissingType)

		// Validation failures never reach the store.
		counts, _ := mockStore.CountByStatus(ctx)
		assert.Empty(t, counts)
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()

		queue := NewQueueService(NewMockStore(), testLogger())

		_, err := queue.EnqueueTask(ctx, NewTask{Type: "pdf_render", URL: "https://example.com"})
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("invalid url", func(t *testing.T) {
		t.Parallel()

		queue := NewQueueService(NewMockStore(), testLogger())

		_, err := queue.EnqueueTask(ctx, NewTask{Type: TypeWebsiteHTML, URL: "example.com"})
		assert.ErrorIs(t, err, ErrInvalidURL)
	})

	t.Run("store error propagates", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		mockStore.InsertFn = func(ctx context.Context, tasks []*Task) error {
			return errors.New("disk full")
		}
		queue := NewQueueService(mockStore, testLogger())

		_, err := queue.EnqueueTask(ctx, NewTask{Type: TypeWebsiteHTML, URL: "https://example.com"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to enqueue task")
	})
}

func TestQueueService_EnqueueBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("all tasks inserted in order", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		queue := NewQueueService(mockStore, testLogger())

		ids, err := queue.EnqueueBatch(ctx, []NewTask{
			{Type: TypeWebsiteHTML, URL: "https://one.example.com"},
			{Type: TypeLighthouseHTML, URL: "https://two.example.com"},
		})
		require.NoError(t, err)
		require.Len(t, ids, 2)

		first, err := queue.GetTask(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, "https://one.example.com", first.URL)
	})

	t.Run("one invalid task rejects the whole batch", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		queue := NewQueueService(mockStore, testLogger())

		_, err := queue.EnqueueBatch(ctx, []NewTask{
			{Type: TypeWebsiteHTML, URL: "https://ok.example.com"},
			{Type: "", URL: "https://bad.example.com"},
		})
		assert.ErrorIs(t, err, ErrMissingType)

		counts, _ := mockStore.CountByStatus(ctx)
		assert.Empty(t, counts, "nothing may be enqueued when any task fails validation")
	})

	t.Run("empty batch", func(t *testing.T) {
		t.Parallel()

		queue := NewQueueService(NewMockStore(), testLogger())
		_, err := queue.EnqueueBatch(ctx, nil)
		assert.ErrorIs(t, err, ErrEmptyBatch)
	})
}

func TestQueueService_GetPendingTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("fifo order with limit", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		queue := NewQueueService(mockStore, testLogger())

		base := time.Now().UTC().Add(-time.Hour)
		require.NoError(t, mockStore.InsertTasks(ctx, []*Task{
			{ID: "task-c", Type: TypeWebsiteHTML, URL: "https://c.example.com", Status: StatusPending, CreatedAt: base.Add(3 * time.Minute)},
			{ID: "task-a", Type: TypeWebsiteHTML, URL: "https://a.example.com", Status: StatusPending, CreatedAt: base.Add(1 * time.Minute)},
			{ID: "task-b", Type: TypeWebsiteHTML, URL: "https://b.example.com", Status: StatusPending, CreatedAt: base.Add(2 * time.Minute)},
		}))

		pending := queue.GetPendingTasks(ctx, 2)
		require.Len(t, pending, 2)
		assert.Equal(t, "task-a", pending[0].ID)
		assert.Equal(t, "task-b", pending[1].ID)
	})

	t.Run("store fault degrades to empty", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		mockStore.GetByStatusFn = func(ctx context.Context, status Status, limit int) ([]*Task, error) {
			return nil, errors.New("connection reset")
		}
		queue := NewQueueService(mockStore, testLogger())

		assert.Empty(t, queue.GetPendingTasks(ctx, 10))
	})
}

func TestQueueService_UpdateTaskStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("processing stamps started_at and worker identity", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		queue := NewQueueService(mockStore, testLogger())

		id, err := queue.EnqueueTask(ctx, NewTask{Type: TypeWebsiteHTML, URL: "https://example.com"})
		require.NoError(t, err)

		err = queue.UpdateTaskStatus(ctx, id, StatusProcessing, StatusMetadata{
			WorkerID:     "worker-1",
			ProcessingBy: "worker-1:42",
		})
		require.NoError(t, err)

		stored, err := queue.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, stored.Status)
		assert.Equal(t, "worker-1", stored.WorkerID)
		assert.Equal(t, "worker-1:42", stored.ProcessingBy)
		require.NotNil(t, stored.StartedAt)
		assert.Nil(t, stored.CompletedAt)
	})

	t.Run("terminal stamps completed_at with outcome", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		queue := NewQueueService(mockStore, testLogger())

		id, err := queue.EnqueueTask(ctx, NewTask{Type: TypeWebsiteHTML, URL: "https://example.com"})
		require.NoError(t, err)

		duration := int64(1234)
		err = queue.UpdateTaskStatus(ctx, id, StatusFailed, StatusMetadata{
			Error:      "navigation timeout",
			DurationMS: &duration,
		})
		require.NoError(t, err)

		stored, err := queue.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, stored.Status)
		assert.Equal(t, "navigation timeout", stored.Error)
		require.NotNil(t, stored.CompletedAt)
		require.NotNil(t, stored.DurationMS)
		assert.Equal(t, int64(1234), *stored.DurationMS)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		t.Parallel()

		queue := NewQueueService(NewMockStore(), testLogger())
		err := queue.UpdateTaskStatus(ctx, "some-id", Status("archived"), StatusMetadata{})
		assert.Error(t, err)
	})

	t.Run("unknown task", func(t *testing.T) {
		t.Parallel()

		queue := NewQueueService(NewMockStore(), testLogger())
		err := queue.UpdateTaskStatus(ctx, "missing", StatusCompleted, StatusMetadata{})
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestQueueService_GetStatistics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("counts per status", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		queue := NewQueueService(mockStore, testLogger())

		now := time.Now().UTC()
		require.NoError(t, mockStore.InsertTasks(ctx, []*Task{
			{ID: "p1", Type: TypeWebsiteHTML, URL: "https://example.com", Status: StatusPending, CreatedAt: now},
			{ID: "p2", Type: TypeWebsiteHTML, URL: "https://example.com", Status: StatusPending, CreatedAt: now},
			{ID: "c1", Type: TypeWebsiteHTML, URL: "https://example.com", Status: StatusCompleted, CreatedAt: now},
			{ID: "f1", Type: TypeWebsiteHTML, URL: "https://example.com", Status: StatusFailed, CreatedAt: now},
		}))

		stats := queue.GetStatistics(ctx)
		assert.Equal(t, 2, stats.Pending)
		assert.Equal(t, 0, stats.Processing)
		assert.Equal(t, 1, stats.Completed)
		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, 4, stats.Total)
	})

	t.Run("store fault degrades to zeroes", func(t *testing.T) {
		t.Parallel()

		mockStore := NewMockStore()
		mockStore.CountFn = func(ctx context.Context) (map[Status]int, error) {
			return nil, errors.New("connection reset")
		}
		queue := NewQueueService(mockStore, testLogger())

		assert.Equal(t, Statistics{}, queue.GetStatistics(ctx))
	})
}

func TestQueueService_ResetStuckTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mockStore := NewMockStore()
	queue := NewQueueService(mockStore, testLogger())

	now := time.Now().UTC()
	longAgo := now.Add(-40 * time.Minute)
	recently := now.Add(-5 * time.Minute)
	require.NoError(t, mockStore.InsertTasks(ctx, []*Task{
		{ID: "stuck", Type: TypeWebsiteHTML, URL: "https://example.com", Status: StatusProcessing, StartedAt: &longAgo, WorkerID: "w1", ProcessingBy: "w1:1", CreatedAt: now},
		{ID: "active", Type: TypeWebsiteHTML, URL: "https://example.com", Status: StatusProcessing, StartedAt: &recently, CreatedAt: now},
		{ID: "done", Type: TypeWebsiteHTML, URL: "https://example.com", Status: StatusCompleted, CreatedAt: now},
	}))

	reset, err := queue.ResetStuckTasks(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	stuck, err := queue.GetTask(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stuck.Status)
	assert.Empty(t, stuck.WorkerID)
	assert.Empty(t, stuck.ProcessingBy)
	assert.Nil(t, stuck.StartedAt)

	active, err := queue.GetTask(ctx, "active")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, active.Status)

	done, err := queue.GetTask(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
}

func TestQueueService_CleanupOldTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mockStore := NewMockStore()
	queue := NewQueueService(mockStore, testLogger())

	old := time.Now().UTC().AddDate(0, 0, -10)
	fresh := time.Now().UTC()
	require.NoError(t, mockStore.InsertTasks(ctx, []*Task{
		{ID: "old-done", Type: TypeWebsiteHTML, URL: "https://example.com", Status: StatusCompleted, CreatedAt: old},
		{ID: "old-failed", Type: TypeWebsiteHTML, URL: "https://example.com", Status: StatusFailed, CreatedAt: old},
		{ID: "old-pending", Type: TypeWebsiteHTML, URL: "https://example.com", Status: StatusPending, CreatedAt: old},
		{ID: "new-done", Type: TypeWebsiteHTML, URL: "https://example.com", Status: StatusCompleted, CreatedAt: fresh},
	}))

	deleted, err := queue.CleanupOldTasks(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// Pending rows survive regardless of age.
	_, err = queue.GetTask(ctx, "old-pending")
	assert.NoError(t, err)
	_, err = queue.GetTask(ctx, "new-done")
	assert.NoError(t, err)
	_, err = queue.GetTask(ctx, "old-done")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}
