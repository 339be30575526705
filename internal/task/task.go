package task

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task.
type Status string

// Possible task status values.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Type identifies the execution strategy for a task.
type Type string

// Known task types.
const (
	// TypeWebsiteHTML fetches a page through the browser-automation service
	// and stores the rendered HTML.
	TypeWebsiteHTML Type = "website_html"

	// TypeLighthouseHTML runs a lighthouse page-quality analysis against the URL.
	TypeLighthouseHTML Type = "lighthouse_html"
)

// Valid reports whether the type is one of the known values.
func (t Type) Valid() bool {
	switch t {
	case TypeWebsiteHTML, TypeLighthouseHTML:
		return true
	}
	return false
}

// WebsiteOptions is the typed payload for website_html tasks. All fields are
// optional; zero values fall back to the browser service defaults.
type WebsiteOptions struct {
	// WaitUntil is the navigation wait condition (e.g. "load", "networkidle").
	WaitUntil string `json:"wait_until,omitempty"`
	// TimeoutMS is the navigation timeout in milliseconds.
	TimeoutMS int `json:"timeout_ms,omitempty"`
	// SaveToStorage asks the browser service to persist the fetched content.
	SaveToStorage *bool `json:"save_to_storage,omitempty"`
	// HandleAntiBot enables the service's anti-bot evasion path.
	HandleAntiBot bool `json:"handle_anti_bot,omitempty"`
	// RetryOnFailure enables the service's internal navigation retry strategy.
	RetryOnFailure bool `json:"retry_on_failure,omitempty"`
}

// LighthouseOptions is the typed payload for lighthouse_html tasks.
type LighthouseOptions struct {
	// TimeoutMS bounds the lighthouse run; defaults to 120000 when zero.
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

// DefaultLighthouseTimeout bounds a lighthouse run when the payload does not.
const DefaultLighthouseTimeout = 120 * time.Second

// Timeout returns the configured lighthouse timeout, or the default.
func (o *LighthouseOptions) Timeout() time.Duration {
	if o != nil && o.TimeoutMS > 0 {
		return time.Duration(o.TimeoutMS) * time.Millisecond
	}
	return DefaultLighthouseTimeout
}

// Payload is the tagged union of per-type task options. Exactly the variant
// matching the task's type is set; payloads are decoded once at the enqueue
// boundary and carried in typed form from then on.
type Payload struct {
	Website    *WebsiteOptions    `json:"website,omitempty"`
	Lighthouse *LighthouseOptions `json:"lighthouse,omitempty"`
}

// LighthouseTimeout returns the lighthouse run timeout from the payload, or
// the default when the payload or variant is absent.
func (p *Payload) LighthouseTimeout() time.Duration {
	if p == nil {
		return DefaultLighthouseTimeout
	}
	return p.Lighthouse.Timeout()
}

// DecodePayload parses the raw payload of a task according to its type.
// A nil or empty raw payload yields a Payload with the variant's zero options,
// so downstream code can rely on the variant being present.
func DecodePayload(typ Type, raw json.RawMessage) (*Payload, error) {
	switch typ {
	case TypeWebsiteHTML:
		opts := &WebsiteOptions{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, opts); err != nil {
				return nil, fmt.Errorf("invalid website_html payload: %w", err)
			}
		}
		return &Payload{Website: opts}, nil
	case TypeLighthouseHTML:
		opts := &LighthouseOptions{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, opts); err != nil {
				return nil, fmt.Errorf("invalid lighthouse_html payload: %w", err)
			}
		}
		return &Payload{Lighthouse: opts}, nil
	default:
		return nil, fmt.Errorf("unknown task type %q", typ)
	}
}

// Encode serializes the payload variant for storage. Returns nil for a nil
// payload so the column stays NULL.
func (p *Payload) Encode(typ Type) (json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}
	switch typ {
	case TypeWebsiteHTML:
		if p.Website == nil {
			return nil, nil
		}
		return json.Marshal(p.Website)
	case TypeLighthouseHTML:
		if p.Lighthouse == nil {
			return nil, nil
		}
		return json.Marshal(p.Lighthouse)
	default:
		return nil, fmt.Errorf("unknown task type %q", typ)
	}
}

// Task is one unit of asynchronous browser-automation work. The id, type,
// url, and payload are immutable after creation; only the queue service
// mutates status and its companion fields.
type Task struct {
	ID           string
	Type         Type
	URL          string
	Payload      *Payload
	Status       Status
	Result       json.RawMessage
	Error        string
	WorkerID     string
	ProcessingBy string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	DurationMS   *int64
}

// NewTaskID generates a random 128-bit task id rendered as 32 lowercase hex
// characters.
func NewTaskID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// ValidURL reports whether the given string is an acceptable task target:
// non-empty and using the http or https scheme.
func ValidURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// Result is the structured outcome envelope produced by executing a task.
type Result struct {
	TaskID     string          `json:"task_id"`
	Type       Type            `json:"type"`
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
	DurationMS int64           `json:"duration_ms"`
}

// Statistics holds per-status task counts plus the total.
type Statistics struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}
