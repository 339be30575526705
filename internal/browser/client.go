package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// visitRequest is the wire form of a visit call.
type visitRequest struct {
	URL            string `json:"url"`
	WaitUntil      string `json:"wait_until,omitempty"`
	TimeoutMS      int64  `json:"timeout_ms,omitempty"`
	SaveToStorage  bool   `json:"save_to_storage"`
	HandleAntiBot  bool   `json:"handle_anti_bot"`
	RetryOnFailure bool   `json:"retry_on_failure"`
}

// attemptHeadroom is added on top of a visit's navigation timeout when
// bounding the HTTP request, so the service gets to report its own timeout
// instead of having the connection cut mid-flight.
const attemptHeadroom = 30 * time.Second

// Client is an Automation implementation that talks to the browser-automation
// service over HTTP.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	defaultTimeout time.Duration
	headroom       time.Duration
	logger         *slog.Logger
}

// NewClient creates a Client for the service at baseURL. defaultTimeout is
// used as the navigation timeout when a visit does not specify one. Each
// request is bounded by the visit's own timeout plus headroom, so a task
// with a long navigation timeout is never cut short by a fixed client budget.
func NewClient(baseURL string, defaultTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		defaultTimeout: defaultTimeout,
		headroom:       attemptHeadroom,
		logger:         logger,
	}
}

// Visit asks the browser service to navigate to url with the given options
// and returns the metadata of the stored content.
func (c *Client) Visit(ctx context.Context, url string, opts VisitOptions) (*FileMetadata, error) {
	req := visitRequest{
		URL:            url,
		WaitUntil:      opts.WaitUntil,
		SaveToStorage:  opts.SaveToStorage,
		HandleAntiBot:  opts.HandleAntiBot,
		RetryOnFailure: opts.RetryOnFailure,
	}
	if opts.Timeout > 0 {
		req.TimeoutMS = opts.Timeout.Milliseconds()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout+c.headroom)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode visit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/visit",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build visit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("visiting url via browser service", "url", url)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("browser service request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Surface the service's error message when it sends one.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf(
			"browser service returned status %d: %s",
			resp.StatusCode,
			strings.TrimSpace(string(msg)),
		)
	}

	var meta FileMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode browser service response: %w", err)
	}

	return &meta, nil
}
