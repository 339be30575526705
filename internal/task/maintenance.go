package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MaintenanceConfig holds the sweep intervals and thresholds for the
// maintenance worker.
type MaintenanceConfig struct {
	// StuckCheckInterval is how often to look for stuck tasks.
	StuckCheckInterval time.Duration

	// StuckThresholdMinutes is how long a task may sit in processing before
	// it is presumed abandoned and reset.
	StuckThresholdMinutes int

	// CleanupInterval is how often to run the retention sweep.
	CleanupInterval time.Duration

	// RetentionDays is how long terminal tasks are kept.
	RetentionDays int
}

// DefaultMaintenanceConfig returns a MaintenanceConfig with reasonable defaults.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		StuckCheckInterval:    5 * time.Minute,
		StuckThresholdMinutes: 30,
		CleanupInterval:       time.Hour,
		RetentionDays:         7,
	}
}

// MaintenanceWorker runs two independent periodic sweeps against the queue
// service: resetting tasks stuck in processing, and deleting terminal tasks
// past the retention window. Sweep errors are logged and swallowed; a failed
// sweep never stops future ones.
type MaintenanceWorker struct {
	queue  *QueueService
	config MaintenanceConfig
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMaintenanceWorker creates a MaintenanceWorker over the queue service.
func NewMaintenanceWorker(queue *QueueService, config MaintenanceConfig, logger *slog.Logger) *MaintenanceWorker {
	if config.StuckCheckInterval <= 0 {
		config.StuckCheckInterval = 5 * time.Minute
	}
	if config.StuckThresholdMinutes <= 0 {
		config.StuckThresholdMinutes = 30
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = 7
	}

	return &MaintenanceWorker{
		queue:  queue,
		config: config,
		logger: logger,
	}
}

// Start launches both sweep timers. Starting an already-running worker is a
// no-op with a warning.
func (w *MaintenanceWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.logger.Warn("maintenance worker already running, ignoring start")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("maintenance worker started",
		"stuck_check_interval", w.config.StuckCheckInterval,
		"stuck_threshold_minutes", w.config.StuckThresholdMinutes,
		"cleanup_interval", w.config.CleanupInterval,
		"retention_days", w.config.RetentionDays)
}

// Stop cancels both sweep timers and waits for any sweep in progress to
// finish. Stopping an already-stopped worker is a no-op with a warning.
func (w *MaintenanceWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.logger.Warn("maintenance worker not running, ignoring stop")
		return
	}
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("maintenance worker stopped")
}

// run drives both tickers until the context is cancelled.
func (w *MaintenanceWorker) run(ctx context.Context) {
	defer w.wg.Done()

	stuckTicker := time.NewTicker(w.config.StuckCheckInterval)
	defer stuckTicker.Stop()
	cleanupTicker := time.NewTicker(w.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stuckTicker.C:
			w.sweepStuck(ctx)
		case <-cleanupTicker.C:
			w.sweepExpired(ctx)
		}
	}
}

// sweepStuck resets tasks abandoned in the processing state.
func (w *MaintenanceWorker) sweepStuck(ctx context.Context) {
	reset, err := w.queue.ResetStuckTasks(ctx, w.config.StuckThresholdMinutes)
	if err != nil {
		// Already logged by the queue service; keep the timer alive.
		w.logger.Warn("stuck task sweep skipped", "error", err)
		return
	}
	if reset > 0 {
		w.logger.Info("reset stuck tasks",
			"count", reset,
			"threshold_minutes", w.config.StuckThresholdMinutes)
	}
}

// sweepExpired deletes terminal tasks past the retention window.
func (w *MaintenanceWorker) sweepExpired(ctx context.Context) {
	deleted, err := w.queue.CleanupOldTasks(ctx, w.config.RetentionDays)
	if err != nil {
		w.logger.Warn("retention sweep skipped", "error", err)
		return
	}
	if deleted > 0 {
		w.logger.Info("deleted expired tasks",
			"count", deleted,
			"retention_days", w.config.RetentionDays)
	}
}
