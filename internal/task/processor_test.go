package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExecutor lets tests block executions and observe their start.
type scriptedExecutor struct {
	mu       sync.Mutex
	executed []string
	started  chan string // receives each task id when execution begins
	release  chan struct{}
	result   func(t *Task) *Result
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		started: make(chan string, 16),
		result: func(t *Task) *Result {
			return &Result{
				TaskID:     t.ID,
				Type:       t.Type,
				Success:    true,
				ExecutedAt: time.Now().UTC(),
				DurationMS: 1,
			}
		},
	}
}

func (e *scriptedExecutor) Execute(ctx context.Context, t *Task) *Result {
	e.mu.Lock()
	e.executed = append(e.executed, t.ID)
	e.mu.Unlock()

	e.started <- t.ID
	if e.release != nil {
		<-e.release
	}
	return e.result(t)
}

func (e *scriptedExecutor) executedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.executed...)
}

// recordingSubmitter captures submissions and optionally fails them.
type recordingSubmitter struct {
	mu          sync.Mutex
	submissions []*Result
	err         error
}

func (s *recordingSubmitter) Submit(ctx context.Context, t *Task, result *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, result)
	return s.err
}

func (s *recordingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submissions)
}

func enqueueN(t *testing.T, queue *QueueService, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := queue.EnqueueTask(context.Background(), NewTask{
			Type: TypeWebsiteHTML,
			URL:  "https://example.com",
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestProcessor_Pipeline(t *testing.T) {
	mockStore := NewMockStore()
	queue := NewQueueService(mockStore, testLogger())
	executor := newScriptedExecutor()
	submitter := &recordingSubmitter{}

	ids := enqueueN(t, queue, 1)

	processor := NewProcessor(queue, executor, submitter, ProcessorConfig{
		Interval:      50 * time.Millisecond,
		MaxConcurrent: 2,
		WorkerID:      "worker-test",
		ProcessingBy:  "worker-test:1",
	}, testLogger())

	processor.Start()
	defer processor.Stop()

	require.Eventually(t, func() bool {
		stored, err := queue.GetTask(context.Background(), ids[0])
		return err == nil && stored.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := queue.GetTask(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, "worker-test", stored.WorkerID)
	assert.Equal(t, "worker-test:1", stored.ProcessingBy)
	require.NotNil(t, stored.StartedAt)
	require.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.DurationMS)

	require.Eventually(t, func() bool { return submitter.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestProcessor_FailedExecutionPersisted(t *testing.T) {
	mockStore := NewMockStore()
	queue := NewQueueService(mockStore, testLogger())
	executor := newScriptedExecutor()
	executor.result = func(task *Task) *Result {
		return &Result{
			TaskID:     task.ID,
			Type:       task.Type,
			Success:    false,
			Error:      "browser visit failed: connection refused",
			ExecutedAt: time.Now().UTC(),
			DurationMS: 7,
		}
	}

	ids := enqueueN(t, queue, 1)

	processor := NewProcessor(queue, executor, nil, ProcessorConfig{
		Interval:      50 * time.Millisecond,
		MaxConcurrent: 1,
	}, testLogger())
	processor.Start()
	defer processor.Stop()

	require.Eventually(t, func() bool {
		stored, err := queue.GetTask(context.Background(), ids[0])
		return err == nil && stored.Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := queue.GetTask(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Contains(t, stored.Error, "connection refused")
	require.NotNil(t, stored.DurationMS)
	assert.Equal(t, int64(7), *stored.DurationMS)
}

func TestProcessor_ConcurrencyBound(t *testing.T) {
	mockStore := NewMockStore()
	queue := NewQueueService(mockStore, testLogger())
	executor := newScriptedExecutor()
	executor.release = make(chan struct{})

	enqueueN(t, queue, 3)

	processor := NewProcessor(queue, executor, nil, ProcessorConfig{
		Interval:      30 * time.Millisecond,
		MaxConcurrent: 2,
	}, testLogger())
	processor.Start()

	// Two executions begin and then block; the third must not start while
	// both slots are held, even as ticks keep firing.
	<-executor.started
	<-executor.started
	assert.Equal(t, 2, processor.InFlight())

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, executor.executedIDs(), 2)
	assert.Equal(t, 2, processor.InFlight())

	// Freeing the slots lets the remaining task through.
	close(executor.release)
	require.Eventually(t, func() bool {
		return queue.GetStatistics(context.Background()).Completed == 3
	}, 2*time.Second, 10*time.Millisecond)

	processor.Stop()
	assert.Equal(t, 0, processor.InFlight())
}

func TestProcessor_SubmissionFailureDoesNotAffectStatus(t *testing.T) {
	mockStore := NewMockStore()
	queue := NewQueueService(mockStore, testLogger())
	executor := newScriptedExecutor()
	submitter := &recordingSubmitter{err: errors.New("callback endpoint down")}

	ids := enqueueN(t, queue, 1)

	processor := NewProcessor(queue, executor, submitter, ProcessorConfig{
		Interval:      50 * time.Millisecond,
		MaxConcurrent: 1,
	}, testLogger())
	processor.Start()
	defer processor.Stop()

	require.Eventually(t, func() bool { return submitter.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	stored, err := queue.GetTask(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
}

func TestProcessor_MarkProcessingFailureLeavesTaskPending(t *testing.T) {
	mockStore := NewMockStore()
	mockStore.UpdateStatusFn = func(ctx context.Context, id string, update StatusUpdate) error {
		return errors.New("database locked")
	}
	queue := NewQueueService(mockStore, testLogger())
	executor := newScriptedExecutor()

	mockStore.UpdateStatusFn = nil
	ids := enqueueN(t, queue, 1)
	mockStore.UpdateStatusFn = func(ctx context.Context, id string, update StatusUpdate) error {
		return errors.New("database locked")
	}

	processor := NewProcessor(queue, executor, nil, ProcessorConfig{
		Interval:      30 * time.Millisecond,
		MaxConcurrent: 1,
	}, testLogger())
	processor.Start()

	// Give the loop a few ticks; the claim keeps failing, so nothing may
	// ever reach the executor.
	time.Sleep(150 * time.Millisecond)
	processor.Stop()

	assert.Empty(t, executor.executedIDs())
	mockStore.UpdateStatusFn = nil
	stored, err := queue.GetTask(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestProcessor_MalformedRowFailsWithoutProcessing(t *testing.T) {
	mockStore := NewMockStore()
	queue := NewQueueService(mockStore, testLogger())
	executor := newScriptedExecutor()

	// Bypass enqueue validation to plant a corrupt row.
	require.NoError(t, mockStore.InsertTasks(context.Background(), []*Task{
		{ID: "corrupt", Type: "pdf_render", URL: "https://example.com", Status: StatusPending, CreatedAt: time.Now().UTC()},
	}))

	processor := NewProcessor(queue, executor, nil, ProcessorConfig{
		Interval:      30 * time.Millisecond,
		MaxConcurrent: 1,
	}, testLogger())
	processor.Start()
	defer processor.Stop()

	require.Eventually(t, func() bool {
		stored, err := queue.GetTask(context.Background(), "corrupt")
		return err == nil && stored.Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := queue.GetTask(context.Background(), "corrupt")
	require.NoError(t, err)
	assert.Contains(t, stored.Error, "unknown task type")
	// Validation failures never reach the executor or the processing state.
	assert.Empty(t, executor.executedIDs())
	assert.Nil(t, stored.StartedAt)
}

func TestProcessor_StartStopIdempotent(t *testing.T) {
	queue := NewQueueService(NewMockStore(), testLogger())
	processor := NewProcessor(queue, newScriptedExecutor(), nil, DefaultProcessorConfig(), testLogger())

	processor.Start()
	processor.Start() // no-op
	processor.Stop()
	processor.Stop() // no-op

	// A stopped processor can be started again.
	processor.Start()
	processor.Stop()
}
