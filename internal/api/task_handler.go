package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/irshadali21/localBrowser-playwright-sub001/internal/platform/logger"
	"github.com/irshadali21/localBrowser-playwright-sub001/internal/task"
)

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	queue    *task.QueueService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(queue *task.QueueService, log *slog.Logger) *TaskHandler {
	return &TaskHandler{
		queue:    queue,
		validate: validator.New(),
		logger:   log.With(slog.String("component", "task_handler")),
	}
}

// Routes mounts the task endpoints on a fresh router.
func (h *TaskHandler) Routes(apiKey string) chi.Router {
	r := chi.NewRouter()
	r.Use(TraceMiddleware)
	r.Use(APIKeyMiddleware(apiKey))

	r.Post("/tasks", h.CreateTask)
	r.Post("/tasks/batch", h.CreateBatch)
	r.Get("/tasks/stats", h.GetStats)
	r.Get("/tasks/{id}", h.GetTask)

	return r
}

// CreateTask handles POST /tasks: validate, enqueue, return the task id.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	id, err := h.queue.EnqueueTask(r.Context(), task.NewTask{
		ID:      req.ID,
		Type:    task.Type(req.Type),
		URL:     req.URL,
		Payload: req.Payload,
	})
	if err != nil {
		log.Error("failed to enqueue task", "error", err)
		RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	RespondWithJSON(w, r, http.StatusAccepted, CreateTaskResponse{
		TaskID: id,
		Status: string(task.StatusPending),
	})
}

// CreateBatch handles POST /tasks/batch: validate and enqueue all-or-nothing.
func (h *TaskHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	inputs := make([]task.NewTask, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		inputs = append(inputs, task.NewTask{
			ID:      t.ID,
			Type:    task.Type(t.Type),
			URL:     t.URL,
			Payload: t.Payload,
		})
	}

	ids, err := h.queue.EnqueueBatch(r.Context(), inputs)
	if err != nil {
		log.Error("failed to enqueue batch", "count", len(inputs), "error", err)
		RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	RespondWithJSON(w, r, http.StatusAccepted, BatchResponse{
		TaskIDs: ids,
		Status:  string(task.StatusPending),
	})
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := h.queue.GetTask(r.Context(), id)
	if err != nil {
		RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// GetStats handles GET /tasks/stats.
func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.queue.GetStatistics(r.Context())
	RespondWithJSON(w, r, http.StatusOK, stats)
}
