package api

import (
	"encoding/json"
	"time"

	"github.com/irshadali21/localBrowser-playwright-sub001/internal/task"
)

// CreateTaskRequest defines the payload for the single-task enqueue endpoint.
type CreateTaskRequest struct {
	// ID is optional; a 32-hex-character id is generated when absent.
	ID      string          `json:"id,omitempty"   validate:"omitempty,len=32,hexadecimal"`
	Type    string          `json:"type"           validate:"required,oneof=website_html lighthouse_html"`
	URL     string          `json:"url"            validate:"required,startswith=http"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CreateTaskResponse defines the successful response for the enqueue endpoints.
type CreateTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// BatchRequest defines the payload for the batch enqueue endpoint.
type BatchRequest struct {
	Tasks []CreateTaskRequest `json:"tasks" validate:"required,min=1,max=50,dive"`
}

// BatchResponse defines the successful response for the batch enqueue endpoint.
type BatchResponse struct {
	TaskIDs []string `json:"task_ids"`
	Status  string   `json:"status"`
}

// TaskResponse is the full view of a task returned by the lookup endpoint.
type TaskResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	URL          string          `json:"url"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	WorkerID     string          `json:"worker_id,omitempty"`
	ProcessingBy string          `json:"processing_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	DurationMS   *int64          `json:"duration_ms,omitempty"`
}

// taskToResponse converts a task to its API representation.
func taskToResponse(t *task.Task) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		Type:         string(t.Type),
		URL:          t.URL,
		Status:       string(t.Status),
		Result:       t.Result,
		Error:        t.Error,
		WorkerID:     t.WorkerID,
		ProcessingBy: t.ProcessingBy,
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		DurationMS:   t.DurationMS,
	}
}
