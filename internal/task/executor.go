package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/irshadali21/localBrowser-playwright-sub001/internal/browser"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/lighthouse"
)

// LighthouseRunner is the capability-checked contract for the optional
// analysis tool. Implemented by lighthouse.Runner.
type LighthouseRunner interface {
	Available() bool
	Run(ctx context.Context, url string) (*lighthouse.Report, error)
}

// Executor validates a task and dispatches it to its type-specific execution
// strategy. It never returns an error or lets a panic escape; every outcome
// is folded into the result envelope.
type Executor struct {
	browser    browser.Automation
	lighthouse LighthouseRunner
	// defaultNavTimeout is forwarded to the browser service when a website
	// payload does not specify a timeout.
	defaultNavTimeout time.Duration
	logger            *slog.Logger
}

// NewExecutor creates an Executor. The lighthouse runner may be one whose
// Available() is false; lighthouse tasks then complete with null scores.
func NewExecutor(
	automation browser.Automation,
	lhRunner LighthouseRunner,
	defaultNavTimeout time.Duration,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		browser:           automation,
		lighthouse:        lhRunner,
		defaultNavTimeout: defaultNavTimeout,
		logger:            logger,
	}
}

// websiteResult is the result body of a website_html execution.
type websiteResult struct {
	FileID      string    `json:"file_id"`
	StorageType string    `json:"storage_type"`
	DownloadURL string    `json:"download_url,omitempty"`
	ViewURL     string    `json:"view_url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// lighthouseResult is the result body of a lighthouse_html execution.
type lighthouseResult struct {
	Scores     lighthouse.Scores `json:"scores"`
	FetchedURL string            `json:"fetched_url,omitempty"`
	Message    string            `json:"message,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Execute runs one task and returns its result envelope. Validation failures
// produce an immediate failed result without touching any collaborator.
func (e *Executor) Execute(ctx context.Context, t *Task) (result *Result) {
	started := time.Now()

	// A panic anywhere below becomes a failed result, never a crashed worker.
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("panic during task execution",
				"task_id", taskID(t),
				"panic", p)
			result = e.failure(t, started, fmt.Sprintf("task execution panicked: %v", p))
		}
	}()

	if err := validateForExecution(t); err != nil {
		return e.failure(t, started, err.Error())
	}

	logger := e.logger.With("task_id", t.ID, "task_type", t.Type)

	var (
		body json.RawMessage
		err  error
	)
	switch t.Type {
	case TypeWebsiteHTML:
		body, err = e.executeWebsite(ctx, t, logger)
	case TypeLighthouseHTML:
		body, err = e.executeLighthouse(ctx, t, logger)
	default:
		// validateTask rejects unknown types; kept as a safety net.
		err = fmt.Errorf("unknown task type %q", t.Type)
	}

	if err != nil {
		logger.Error("task execution failed",
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err)
		return e.failure(t, started, err.Error())
	}

	logger.Info("task executed",
		"duration_ms", time.Since(started).Milliseconds())

	return &Result{
		TaskID:     t.ID,
		Type:       t.Type,
		Success:    true,
		Result:     body,
		ExecutedAt: started.UTC(),
		DurationMS: time.Since(started).Milliseconds(),
	}
}

// validateForExecution checks the task shape before any collaborator is
// touched. The processor runs it before the processing write, so a malformed
// row fails without ever being marked processing; the executor repeats it as
// a safety net for direct callers.
func validateForExecution(t *Task) error {
	if t == nil {
		return fmt.Errorf("task is nil")
	}
	if t.ID == "" {
		return fmt.Errorf("task has no id")
	}
	if !t.Type.Valid() {
		return fmt.Errorf("unknown task type %q", t.Type)
	}
	if !ValidURL(t.URL) {
		return fmt.Errorf("task url must start with http:// or https://")
	}
	return nil
}

// executeWebsite forwards the task to the browser-automation collaborator and
// wraps the returned file metadata.
func (e *Executor) executeWebsite(ctx context.Context, t *Task, logger *slog.Logger) (json.RawMessage, error) {
	opts := browser.VisitOptions{
		Timeout:       e.defaultNavTimeout,
		SaveToStorage: true,
	}
	if t.Payload != nil && t.Payload.Website != nil {
		w := t.Payload.Website
		opts.WaitUntil = w.WaitUntil
		opts.HandleAntiBot = w.HandleAntiBot
		opts.RetryOnFailure = w.RetryOnFailure
		if w.TimeoutMS > 0 {
			opts.Timeout = time.Duration(w.TimeoutMS) * time.Millisecond
		}
		if w.SaveToStorage != nil {
			opts.SaveToStorage = *w.SaveToStorage
		}
	}

	meta, err := e.browser.Visit(ctx, t.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("browser visit failed: %w", err)
	}

	logger.Debug("browser visit completed",
		"file_id", meta.FileID,
		"storage_type", meta.StorageType)

	return json.Marshal(websiteResult{
		FileID:      meta.FileID,
		StorageType: meta.StorageType,
		DownloadURL: meta.DownloadURL,
		ViewURL:     meta.ViewURL,
		Timestamp:   time.Now().UTC(),
	})
}

// executeLighthouse runs the optional analysis tool under a payload-derived
// timeout. An unavailable tool is not a failure: the task completes with null
// scores and an explanatory message.
func (e *Executor) executeLighthouse(ctx context.Context, t *Task, logger *slog.Logger) (json.RawMessage, error) {
	if e.lighthouse == nil || !e.lighthouse.Available() {
		logger.Warn("lighthouse unavailable, completing task with null scores")
		return json.Marshal(lighthouseResult{
			Message:   "lighthouse is not available in this environment; scores omitted",
			Timestamp: time.Now().UTC(),
		})
	}

	timeout := t.Payload.LighthouseTimeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report, err := e.lighthouse.Run(runCtx, t.URL)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("lighthouse analysis timeout after %s", timeout)
		}
		return nil, err
	}

	return json.Marshal(lighthouseResult{
		Scores:     report.Scores,
		FetchedURL: report.FetchedURL,
		Timestamp:  time.Now().UTC(),
	})
}

// failure builds a failed result envelope for the task.
func (e *Executor) failure(t *Task, started time.Time, msg string) *Result {
	return &Result{
		TaskID:     taskID(t),
		Type:       taskType(t),
		Success:    false,
		Error:      msg,
		ExecutedAt: started.UTC(),
		DurationMS: time.Since(started).Milliseconds(),
	}
}

// taskID tolerates a nil task so validation failures can still produce an envelope.
func taskID(t *Task) string {
	if t == nil {
		return ""
	}
	return t.ID
}

func taskType(t *Task) Type {
	if t == nil {
		return ""
	}
	return t.Type
}
