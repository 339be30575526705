// Package lighthouse wraps the optional lighthouse CLI. The binary is probed
// once at construction; callers branch on Available() instead of discovering
// a missing tool mid-task.
package lighthouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// Scores holds the top-level category scores on a 0-100 scale. Pointers so a
// category missing from the report stays null instead of reading as zero.
type Scores struct {
	Performance   *float64 `json:"performance"`
	Accessibility *float64 `json:"accessibility"`
	BestPractices *float64 `json:"best_practices"`
	SEO           *float64 `json:"seo"`
}

// Report is the parsed outcome of one lighthouse run.
type Report struct {
	Scores     Scores `json:"scores"`
	FetchedURL string `json:"fetched_url,omitempty"`
}

// Runner invokes the lighthouse CLI. Construct it with Detect.
type Runner struct {
	path      string
	available bool
	logger    *slog.Logger
}

// Detect probes for the lighthouse binary and returns a Runner. When the
// binary is absent the Runner is still usable, but Available reports false
// and Run returns an error; callers are expected to degrade gracefully.
func Detect(binary string, logger *slog.Logger) *Runner {
	if binary == "" {
		binary = "lighthouse"
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		logger.Warn("lighthouse binary not found, lighthouse tasks will degrade",
			"binary", binary)
		return &Runner{logger: logger}
	}

	logger.Info("lighthouse binary detected", "path", path)
	return &Runner{
		path:      path,
		available: true,
		logger:    logger,
	}
}

// Available reports whether the lighthouse binary was found.
func (r *Runner) Available() bool {
	return r.available
}

// cliReport mirrors the slice of lighthouse's JSON output we consume.
type cliReport struct {
	FinalDisplayedURL string              `json:"finalDisplayedUrl"`
	Categories        map[string]category `json:"categories"`
}

type category struct {
	Score *float64 `json:"score"`
}

// Run executes lighthouse against the URL under the context's deadline and
// parses the category scores. The process is killed when the context expires.
func (r *Runner) Run(ctx context.Context, url string) (*Report, error) {
	if !r.available {
		return nil, errors.New("lighthouse binary is not available")
	}

	cmd := exec.CommandContext(ctx, r.path, url,
		"--output=json",
		"--quiet",
		"--chrome-flags=--headless --no-sandbox",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running lighthouse", "url", url)

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("lighthouse run timed out: %w", ctxErr)
		}
		return nil, fmt.Errorf("lighthouse run failed: %w (stderr: %s)",
			err, bytes.TrimSpace(stderr.Bytes()))
	}

	var parsed cliReport
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse lighthouse output: %w", err)
	}

	report := &Report{FetchedURL: parsed.FinalDisplayedURL}
	report.Scores.Performance = scaleScore(parsed.Categories, "performance")
	report.Scores.Accessibility = scaleScore(parsed.Categories, "accessibility")
	report.Scores.BestPractices = scaleScore(parsed.Categories, "best-practices")
	report.Scores.SEO = scaleScore(parsed.Categories, "seo")

	return report, nil
}

// scaleScore converts lighthouse's 0-1 category score to 0-100, preserving null.
func scaleScore(categories map[string]category, key string) *float64 {
	cat, ok := categories[key]
	if !ok || cat.Score == nil {
		return nil
	}
	scaled := *cat.Score * 100
	return &scaled
}
