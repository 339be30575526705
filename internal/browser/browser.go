// Package browser defines the narrow contract this service has with the
// local browser-automation collaborator: visit a URL, get back metadata for
// the stored page content. Navigation, anti-bot handling, and content
// persistence all live on the other side of this boundary.
package browser

import (
	"context"
	"time"
)

// VisitOptions are the knobs forwarded to the browser service for one visit.
type VisitOptions struct {
	// WaitUntil is the navigation wait condition (e.g. "load", "networkidle").
	WaitUntil string `json:"wait_until,omitempty"`

	// Timeout bounds the page navigation.
	Timeout time.Duration `json:"-"`

	// SaveToStorage asks the service to persist the fetched content.
	SaveToStorage bool `json:"save_to_storage"`

	// HandleAntiBot enables the service's anti-bot evasion path.
	HandleAntiBot bool `json:"handle_anti_bot"`

	// RetryOnFailure enables the service's internal navigation retry strategy.
	RetryOnFailure bool `json:"retry_on_failure"`
}

// FileMetadata describes where the fetched content ended up.
type FileMetadata struct {
	FileID      string `json:"file_id"`
	StorageType string `json:"storage_type"`
	DownloadURL string `json:"download_url,omitempty"`
	ViewURL     string `json:"view_url,omitempty"`
}

// Automation is the browser-automation collaborator contract. The task core
// never inspects page content; it only forwards options and wraps the
// returned metadata.
type Automation interface {
	Visit(ctx context.Context, url string, opts VisitOptions) (*FileMetadata, error)
}
