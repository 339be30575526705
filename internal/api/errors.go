package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/irshadali21/localBrowser-playwright-sub001/internal/store"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/task"
)

// ErrorResponse defines the standard error response structure.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// RespondWithJSON writes a JSON response with the given status code and data.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithError writes a JSON error response with the given status code
// and message, stamping the request's trace id for correlation.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithJSON(w, r, status, ErrorResponse{
		Error:   message,
		TraceID: TraceIDFromContext(r.Context()),
	})
}

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes.
// This keeps internal error types from leaking to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case store.IsNotFoundError(err):
		return http.StatusNotFound
	case store.IsDuplicateError(err):
		return http.StatusConflict
	case errors.Is(err, task.ErrMissingType),
		errors.Is(err, task.ErrUnknownType),
		errors.Is(err, task.ErrInvalidURL),
		errors.Is(err, task.ErrEmptyBatch),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for the error,
// hiding internal details behind a generic message for server faults.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}
	if MapErrorToStatusCode(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}
