package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/hiroki-koketsu/focusflow/internal/telemetry"
)

const maxBodyBytes = 1 << 20

// base carries what every handler needs to answer and be measured.
type base struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *base) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Warn("failed to write response", slog.Any("error", err))
		}
	}
}

func (h *base) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}

// respondInvalid reports validation failures field by field.
func (h *base) respondInvalid(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: "invalid task"}

	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		resp.Fields = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			resp.Fields[fe.Field] = fe.Err.Error()
		}
	}
	h.respondJSON(w, http.StatusBadRequest, resp)
}

func (h *base) recordMetrics(ctx context.Context, method, route string, status int, start time.Time) {
	h.metrics.RecordRequest(ctx, method, route, status, start)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
