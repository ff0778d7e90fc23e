package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hiroki-koketsu/focusflow/internal/coach"
	"github.com/hiroki-koketsu/focusflow/internal/model"
	"github.com/hiroki-koketsu/focusflow/internal/repository"
	"github.com/hiroki-koketsu/focusflow/internal/telemetry"
	"github.com/hiroki-koketsu/focusflow/internal/view"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/focusflow/internal/handler")

const (
	routeTasks     = "/api/v1/tasks"
	routeTask      = "/api/v1/tasks/{id}"
	routeToggle    = "/api/v1/tasks/{id}/toggle"
	routeBreakdown = "/api/v1/tasks/{id}/breakdown"
)

// TaskHandler handles HTTP requests for tasks.
type TaskHandler struct {
	base
	repo  *repository.TaskRepository
	coach *coach.Coach
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(repo *repository.TaskRepository, c *coach.Coach, logger *slog.Logger, metrics *telemetry.Metrics) *TaskHandler {
	return &TaskHandler{
		base:  base{logger: logger, metrics: metrics},
		repo:  repo,
		coach: c,
	}
}

// taskRequest is the body of create and update calls.
type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Priority    string `json:"priority"`
}

// input converts the body. An unknown priority is left as the zero value so
// validation reports it against the priority field.
func (req taskRequest) input() model.TaskInput {
	p, _ := model.ParsePriority(req.Priority)
	return model.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Priority:    p,
	}
}

// Routes returns the chi router with task routes.
func (h *TaskHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.GetByID)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/toggle", h.Toggle)
	r.Get("/{id}/breakdown", h.Breakdown)

	return r
}

// List returns the displayed list for the filter and sort query parameters.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TaskHandler.List")
	defer span.End()

	q := r.URL.Query()
	mode, err := model.ParseFilterMode(q.Get("filter"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		h.recordMetrics(ctx, http.MethodGet, routeTasks, http.StatusBadRequest, start)
		return
	}
	key, err := model.ParseSortKey(q.Get("sort"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		h.recordMetrics(ctx, http.MethodGet, routeTasks, http.StatusBadRequest, start)
		return
	}

	tasks := view.Display(h.repo.List(ctx), mode, key)

	span.SetAttributes(
		attribute.Int("task.count", len(tasks)),
		attribute.String("task.filter", mode.String()),
		attribute.String("task.sort", key.String()),
	)
	h.logger.InfoContext(ctx, "tasks listed",
		slog.Int("count", len(tasks)),
		slog.String("filter", mode.String()),
		slog.String("sort", key.String()),
	)

	h.respondJSON(w, http.StatusOK, tasks)
	h.recordMetrics(ctx, http.MethodGet, routeTasks, http.StatusOK, start)
}

// Create adds a new task.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TaskHandler.Create")
	defer span.End()

	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		h.recordMetrics(ctx, http.MethodPost, routeTasks, http.StatusBadRequest, start)
		return
	}

	task, err := h.repo.Add(ctx, req.input())
	if err != nil {
		if errors.Is(err, model.ErrInvalidTask) {
			h.logger.WarnContext(ctx, "validation failed", slog.Any("error", err))
			h.respondInvalid(w, err)
			h.recordMetrics(ctx, http.MethodPost, routeTasks, http.StatusBadRequest, start)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create task", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to create task")
		h.recordMetrics(ctx, http.MethodPost, routeTasks, http.StatusInternalServerError, start)
		return
	}

	span.SetAttributes(attribute.String("task.id", task.ID))
	h.logger.InfoContext(ctx, "task created", slog.String("id", task.ID))

	h.respondJSON(w, http.StatusCreated, task)
	h.recordMetrics(ctx, http.MethodPost, routeTasks, http.StatusCreated, start)
}

// GetByID returns a task by ID.
func (h *TaskHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.GetByID",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	task, ok := h.repo.Get(ctx, id)
	if !ok {
		h.logger.WarnContext(ctx, "task not found", slog.String("id", id))
		h.respondError(w, http.StatusNotFound, model.ErrTaskNotFound.Error())
		h.recordMetrics(ctx, http.MethodGet, routeTask, http.StatusNotFound, start)
		return
	}

	h.respondJSON(w, http.StatusOK, task)
	h.recordMetrics(ctx, http.MethodGet, routeTask, http.StatusOK, start)
}

// Update replaces the editable fields of a task.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		h.recordMetrics(ctx, http.MethodPut, routeTask, http.StatusBadRequest, start)
		return
	}

	task, found, err := h.repo.Update(ctx, id, req.input())
	switch {
	case errors.Is(err, model.ErrInvalidTask):
		h.logger.WarnContext(ctx, "validation failed", slog.Any("error", err))
		h.respondInvalid(w, err)
		h.recordMetrics(ctx, http.MethodPut, routeTask, http.StatusBadRequest, start)
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "failed to update task", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to update task")
		h.recordMetrics(ctx, http.MethodPut, routeTask, http.StatusInternalServerError, start)
		return
	case !found:
		h.logger.WarnContext(ctx, "task not found", slog.String("id", id))
		h.respondError(w, http.StatusNotFound, model.ErrTaskNotFound.Error())
		h.recordMetrics(ctx, http.MethodPut, routeTask, http.StatusNotFound, start)
		return
	}

	h.logger.InfoContext(ctx, "task updated", slog.String("id", id))

	h.respondJSON(w, http.StatusOK, task)
	h.recordMetrics(ctx, http.MethodPut, routeTask, http.StatusOK, start)
}

// Toggle flips the completion state of a task.
func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.Toggle",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	task, found, err := h.repo.ToggleCompletion(ctx, id)
	switch {
	case err != nil:
		h.logger.ErrorContext(ctx, "failed to toggle task", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to toggle task")
		h.recordMetrics(ctx, http.MethodPost, routeToggle, http.StatusInternalServerError, start)
		return
	case !found:
		h.logger.WarnContext(ctx, "task not found", slog.String("id", id))
		h.respondError(w, http.StatusNotFound, model.ErrTaskNotFound.Error())
		h.recordMetrics(ctx, http.MethodPost, routeToggle, http.StatusNotFound, start)
		return
	}

	h.logger.InfoContext(ctx, "task toggled", slog.String("id", id), slog.Bool("completed", task.Completed))

	h.respondJSON(w, http.StatusOK, task)
	h.recordMetrics(ctx, http.MethodPost, routeToggle, http.StatusOK, start)
}

// Delete removes a task. Deleting an unknown id still answers 204.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	found, err := h.repo.Delete(ctx, id)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to delete task", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to delete task")
		h.recordMetrics(ctx, http.MethodDelete, routeTask, http.StatusInternalServerError, start)
		return
	}

	span.SetAttributes(attribute.Bool("task.found", found))
	h.logger.InfoContext(ctx, "task deleted", slog.String("id", id), slog.Bool("found", found))

	w.WriteHeader(http.StatusNoContent)
	h.recordMetrics(ctx, http.MethodDelete, routeTask, http.StatusNoContent, start)
}

// Breakdown asks the advisor to split a task into steps.
func (h *TaskHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.Breakdown",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	b, found, ok := h.coach.Breakdown(ctx, id)
	switch {
	case !found:
		h.respondError(w, http.StatusNotFound, model.ErrTaskNotFound.Error())
		h.recordMetrics(ctx, http.MethodGet, routeBreakdown, http.StatusNotFound, start)
		return
	case !ok:
		h.respondError(w, http.StatusBadGateway, "breakdown unavailable")
		h.recordMetrics(ctx, http.MethodGet, routeBreakdown, http.StatusBadGateway, start)
		return
	}

	h.respondJSON(w, http.StatusOK, b)
	h.recordMetrics(ctx, http.MethodGet, routeBreakdown, http.StatusOK, start)
}

// Health returns a health check response.
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
