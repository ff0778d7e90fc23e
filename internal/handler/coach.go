package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hiroki-koketsu/focusflow/internal/coach"
	"github.com/hiroki-koketsu/focusflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	routeStats      = "/api/v1/stats"
	routeMotivation = "/api/v1/coach/motivation"
	routePlan       = "/api/v1/coach/plan"
)

// CoachHandler serves dashboard statistics and advisor summaries.
type CoachHandler struct {
	base
	coach *coach.Coach
}

// NewCoachHandler creates a new CoachHandler.
func NewCoachHandler(c *coach.Coach, logger *slog.Logger, metrics *telemetry.Metrics) *CoachHandler {
	return &CoachHandler{
		base:  base{logger: logger, metrics: metrics},
		coach: c,
	}
}

type motivationResponse struct {
	Date  string `json:"date"`
	Quote string `json:"quote"`
}

// Stats returns the statistics of the whole list.
func (h *CoachHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "CoachHandler.Stats")
	defer span.End()

	stats := h.coach.Statistics()
	span.SetAttributes(
		attribute.Int("task.total", stats.Total),
		attribute.Int("task.progress", stats.Progress),
	)

	h.respondJSON(w, http.StatusOK, stats)
	h.recordMetrics(ctx, http.MethodGet, routeStats, http.StatusOK, start)
}

// Motivation returns today's quote.
func (h *CoachHandler) Motivation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "CoachHandler.Motivation")
	defer span.End()

	resp := motivationResponse{Date: h.coach.Today(), Quote: h.coach.Motivation(ctx)}

	h.respondJSON(w, http.StatusOK, resp)
	h.recordMetrics(ctx, http.MethodGet, routeMotivation, http.StatusOK, start)
}

// Plan returns a smart-priority plan for the pending tasks.
func (h *CoachHandler) Plan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "CoachHandler.Plan")
	defer span.End()

	plan := h.coach.Plan(ctx)
	span.SetAttributes(attribute.Bool("plan.stale", plan.Stale))
	h.logger.InfoContext(ctx, "plan produced",
		slog.Uint64("revision", plan.Revision),
		slog.Bool("stale", plan.Stale),
	)

	h.respondJSON(w, http.StatusOK, plan)
	h.recordMetrics(ctx, http.MethodPost, routePlan, http.StatusOK, start)
}
