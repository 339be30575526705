package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TaskExecutor runs one task to a result envelope. Implemented by Executor.
type TaskExecutor interface {
	Execute(ctx context.Context, t *Task) *Result
}

// ResultSubmitter delivers a finished task's result. Implemented by Submitter.
type ResultSubmitter interface {
	Submit(ctx context.Context, t *Task, result *Result) error
}

// ProcessorConfig holds configuration for the task processor.
type ProcessorConfig struct {
	// Interval is the polling period between scheduler ticks.
	Interval time.Duration

	// MaxConcurrent caps the number of tasks in flight at once.
	MaxConcurrent int

	// WorkerID and ProcessingBy identify this process in task rows and
	// result submissions.
	WorkerID     string
	ProcessingBy string
}

// DefaultProcessorConfig returns a ProcessorConfig with reasonable defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Interval:      5 * time.Second,
		MaxConcurrent: 2,
	}
}

// Processor is the scheduler: a ticking loop that pulls pending tasks from
// the queue service under a concurrency cap, executes them, persists the
// outcome, and best-effort forwards it to the result submitter.
//
// The in-flight set is process-local bookkeeping used only to bound
// concurrency; the durable "processing" status is the authoritative record,
// and crash recovery is the maintenance worker's stuck-task reset.
type Processor struct {
	queue     *QueueService
	executor  TaskExecutor
	submitter ResultSubmitter // nil disables submission
	config    ProcessorConfig
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	running  bool
	cancel   context.CancelFunc

	// wg tracks the scheduler loop and the bookkeeping of dispatched tasks,
	// so Stop never leaks tracking state.
	wg sync.WaitGroup
}

// NewProcessor creates a Processor. submitter may be nil, in which case
// results are persisted but not delivered anywhere.
func NewProcessor(
	queue *QueueService,
	executor TaskExecutor,
	submitter ResultSubmitter,
	config ProcessorConfig,
	logger *slog.Logger,
) *Processor {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}

	return &Processor{
		queue:     queue,
		executor:  executor,
		submitter: submitter,
		config:    config,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
	}
}

// Start launches the scheduler loop with an immediate first tick. Starting an
// already-running processor is a no-op with a warning.
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn("task processor already running, ignoring start")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("task processor started",
		"interval", p.config.Interval,
		"max_concurrent", p.config.MaxConcurrent,
		"worker_id", p.config.WorkerID)
}

// Stop halts scheduling of new work and waits for the bookkeeping of already
// dispatched tasks to finish. The tasks themselves are not cancelled; they
// run to completion on a background context. Stopping an already-stopped
// processor is a no-op with a warning.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		p.logger.Warn("task processor not running, ignoring stop")
		return
	}
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("task processor stopped")
}

// InFlight returns the number of tasks currently being processed.
func (p *Processor) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// run is the scheduler loop: one tick immediately, then one per interval.
func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()

	p.tick(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick fetches up to availableSlots pending tasks and dispatches each on its
// own goroutine. The tick never waits for task completion.
func (p *Processor) tick(ctx context.Context) {
	available := p.config.MaxConcurrent - p.InFlight()
	if available <= 0 {
		p.logger.Debug("all worker slots busy, skipping tick")
		return
	}

	tasks := p.queue.GetPendingTasks(ctx, available)
	for _, t := range tasks {
		if !p.track(t.ID) {
			// Already in flight in this process; a stuck-task reset can make
			// a claimed task reappear as pending.
			continue
		}
		p.wg.Add(1)
		go p.process(t)
	}
}

// track adds the task id to the in-flight set; false if already present.
func (p *Processor) track(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.inFlight[id]; exists {
		return false
	}
	p.inFlight[id] = struct{}{}
	return true
}

// untrack removes the task id from the in-flight set.
func (p *Processor) untrack(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, id)
}

// process advances one task through processing to a terminal status. It runs
// on a background context so stopping the processor never abandons a task
// mid-write, and the deferred untrack guarantees the in-flight slot is freed
// on every path.
func (p *Processor) process(t *Task) {
	defer p.wg.Done()
	defer p.untrack(t.ID)

	ctx := context.Background()
	logger := p.logger.With("task_id", t.ID, "task_type", t.Type)

	var result *Result
	if vErr := validateForExecution(t); vErr != nil {
		// A malformed row fails directly without ever being marked
		// processing or reaching the executor.
		logger.Warn("task failed validation", "error", vErr)
		result = &Result{
			TaskID:     t.ID,
			Type:       t.Type,
			Success:    false,
			Error:      vErr.Error(),
			ExecutedAt: time.Now().UTC(),
		}
	} else {
		err := p.queue.UpdateTaskStatus(ctx, t.ID, StatusProcessing, StatusMetadata{
			WorkerID:     p.config.WorkerID,
			ProcessingBy: p.config.ProcessingBy,
		})
		if err != nil {
			// Task stays pending; a later tick will pick it up again.
			logger.Error("failed to mark task processing", "error", err)
			return
		}
		t.WorkerID = p.config.WorkerID
		t.ProcessingBy = p.config.ProcessingBy

		logger.Info("processing task")

		result = p.executor.Execute(ctx, t)
	}

	status := StatusCompleted
	if !result.Success {
		status = StatusFailed
	}
	duration := result.DurationMS

	err := p.queue.UpdateTaskStatus(ctx, t.ID, status, StatusMetadata{
		Result:     result.Result,
		Error:      result.Error,
		DurationMS: &duration,
	})
	if err != nil {
		logger.Error("failed to persist task outcome",
			"status", status,
			"error", err)
	}

	// Delivery is best-effort and decoupled from task state: a failed
	// submission is logged, never allowed to affect the terminal status.
	if p.submitter != nil {
		if err := p.submitter.Submit(ctx, t, result); err != nil {
			logger.Error("result submission failed", "error", err)
		}
	}
}
