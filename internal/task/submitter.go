package task

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrEndpointRedirected marks a 3xx response from the result endpoint. A
// redirect there is almost always a routing or middleware misconfiguration on
// the receiving side, so it is surfaced immediately instead of being retried.
var ErrEndpointRedirected = errors.New("result endpoint responded with a redirect")

// SubmitterConfig holds the delivery settings for a Submitter.
type SubmitterConfig struct {
	// BaseURL is the consumer's base URL; results go to
	// <BaseURL>/internal/task-result.
	BaseURL string

	// Secret is the shared HMAC key used to sign submissions.
	Secret string

	// Timeout bounds each individual delivery attempt.
	// Defaults to 10 seconds when zero.
	Timeout time.Duration

	// MaxRetries is the total number of attempts. Defaults to 3 when zero.
	MaxRetries int

	// RetryDelay is the delay before the second attempt; subsequent delays
	// double. Defaults to 1 second when zero.
	RetryDelay time.Duration
}

// Submitter delivers finished task results to the external consumer with an
// HMAC signature and exponential-backoff retry. It is stateless aside from
// its configuration and safe for concurrent use.
type Submitter struct {
	config     SubmitterConfig
	httpClient *http.Client
	logger     *slog.Logger
	// now and sleep are test seams.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSubmitter creates a Submitter from the given configuration.
func NewSubmitter(config SubmitterConfig, logger *slog.Logger) *Submitter {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	return &Submitter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			// Redirects must surface as 3xx responses, not be followed:
			// a redirected result endpoint is a fatal misconfiguration.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// submission is the wire form of a delivered result. Result and Error are
// omitted entirely when absent.
type submission struct {
	TaskID       string          `json:"task_id"`
	Type         Type            `json:"type"`
	Status       Status          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	ExecutedAt   time.Time       `json:"executed_at"`
	DurationMS   int64           `json:"duration_ms"`
	WorkerID     string          `json:"worker_id,omitempty"`
	ProcessingBy string          `json:"processing_by,omitempty"`
}

// Submit delivers the result envelope for the given task. It retries
// transient failures with exponential backoff and returns an error naming
// the last failure once MaxRetries attempts are exhausted. A redirect
// response fails immediately with ErrEndpointRedirected.
func (s *Submitter) Submit(ctx context.Context, t *Task, result *Result) error {
	status := StatusCompleted
	if !result.Success {
		status = StatusFailed
	}

	body, err := json.Marshal(submission{
		TaskID:       result.TaskID,
		Type:         result.Type,
		Status:       status,
		Result:       result.Result,
		Error:        result.Error,
		ExecutedAt:   result.ExecutedAt,
		DurationMS:   result.DurationMS,
		WorkerID:     t.WorkerID,
		ProcessingBy: t.ProcessingBy,
	})
	if err != nil {
		return fmt.Errorf("failed to encode result submission: %w", err)
	}

	endpoint := strings.TrimRight(s.config.BaseURL, "/") + "/internal/task-result"

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 1 {
			// retryDelay * 2^(attempt-2): base delay before the second
			// attempt, doubling from there.
			delay := s.config.RetryDelay * (1 << (attempt - 2))
			s.logger.Warn("retrying result submission",
				"task_id", result.TaskID,
				"attempt", attempt,
				"delay", delay,
				"last_error", lastErr)
			if err := s.sleep(ctx, delay); err != nil {
				return fmt.Errorf("result submission aborted: %w", err)
			}
		}

		err := s.deliver(ctx, endpoint, body)
		if err == nil {
			s.logger.Info("result submitted",
				"task_id", result.TaskID,
				"status", status,
				"attempts", attempt)
			return nil
		}
		if errors.Is(err, ErrEndpointRedirected) {
			// Fatal configuration error, no point in retrying.
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("result submission failed after %d attempts: %w",
		s.config.MaxRetries, lastErr)
}

// deliver performs one signed POST to the result endpoint.
func (s *Submitter) deliver(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build submission request: %w", err)
	}

	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", sign(s.config.Secret, timestamp))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("result submission request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	// Drain so the connection can be reused across retries.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return fmt.Errorf("%w (status %d, location %q): check the callback base URL",
			ErrEndpointRedirected, resp.StatusCode, resp.Header.Get("Location"))
	default:
		return fmt.Errorf("result endpoint returned status %d", resp.StatusCode)
	}
}

// sign computes the hex HMAC-SHA256 of the timestamp string under the shared
// secret.
func sign(secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
