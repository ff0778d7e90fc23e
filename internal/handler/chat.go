package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hiroki-koketsu/focusflow/internal/advisor"
	"github.com/hiroki-koketsu/focusflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	routeSessions = "/api/v1/chat/sessions"
	routeSession  = "/api/v1/chat/sessions/{id}"
	routeMessages = "/api/v1/chat/sessions/{id}/messages"

	// MaxChatSessions bounds the number of open conversations.
	MaxChatSessions = 256
)

// ChatHandler serves study-assistant conversations. Replies stream as
// server-sent events.
type ChatHandler struct {
	base
	advisor advisor.Advisor

	mu       sync.Mutex
	sessions map[string]*advisor.ChatSession
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(adv advisor.Advisor, logger *slog.Logger, metrics *telemetry.Metrics) *ChatHandler {
	return &ChatHandler{
		base:     base{logger: logger, metrics: metrics},
		advisor:  adv,
		sessions: make(map[string]*advisor.ChatSession),
	}
}

type sessionResponse struct {
	ID       string `json:"id"`
	Greeting string `json:"greeting"`
}

type messageRequest struct {
	Message string `json:"message"`
}

// Routes returns the chi router with chat routes.
func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Open)
	r.Delete("/{id}", h.Close)
	r.Post("/{id}/messages", h.Send)

	return r
}

// Open starts a conversation and returns its id and greeting.
func (h *ChatHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "ChatHandler.Open")
	defer span.End()

	h.mu.Lock()
	if len(h.sessions) >= MaxChatSessions {
		h.mu.Unlock()
		h.logger.WarnContext(ctx, "too many chat sessions", slog.Int("limit", MaxChatSessions))
		h.respondError(w, http.StatusTooManyRequests, "too many open chat sessions")
		h.recordMetrics(ctx, http.MethodPost, routeSessions, http.StatusTooManyRequests, start)
		return
	}
	id := uuid.NewString()
	session := h.advisor.NewChat()
	h.sessions[id] = session
	h.mu.Unlock()

	span.SetAttributes(attribute.String("chat.session", id))
	h.logger.InfoContext(ctx, "chat session opened", slog.String("id", id))

	h.respondJSON(w, http.StatusCreated, sessionResponse{ID: id, Greeting: session.Greeting()})
	h.recordMetrics(ctx, http.MethodPost, routeSessions, http.StatusCreated, start)
}

// Close ends a conversation. Closing an unknown session is not an error.
func (h *ChatHandler) Close(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()

	h.logger.InfoContext(ctx, "chat session closed", slog.String("id", id))

	w.WriteHeader(http.StatusNoContent)
	h.recordMetrics(ctx, http.MethodDelete, routeSession, http.StatusNoContent, start)
}

// Send streams the reply to one message: a data line per fragment, then a
// done event. A client that disconnects mid-reply discards the turn.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "ChatHandler.Send",
		trace.WithAttributes(attribute.String("chat.session", id)),
	)
	defer span.End()

	h.mu.Lock()
	session, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		h.respondError(w, http.StatusNotFound, "chat session not found")
		h.recordMetrics(ctx, http.MethodPost, routeMessages, http.StatusNotFound, start)
		return
	}

	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		h.respondError(w, http.StatusBadRequest, "message is required")
		h.recordMetrics(ctx, http.MethodPost, routeMessages, http.StatusBadRequest, start)
		return
	}

	rc := http.NewResponseController(w)
	// Replies may outlast the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.DebugContext(ctx, "could not clear write deadline", slog.Any("error", err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var fragments int
	for fragment := range session.Send(ctx, req.Message) {
		if err := writeEvent(w, "", fragmentEvent{Text: fragment}); err != nil {
			h.logger.WarnContext(ctx, "client went away mid-reply", slog.Any("error", err))
			break
		}
		_ = rc.Flush()
		fragments++
	}

	if ctx.Err() == nil {
		if err := writeEvent(w, "done", struct{}{}); err == nil {
			_ = rc.Flush()
		}
	}

	span.SetAttributes(attribute.Int("chat.fragments", fragments))
	h.recordMetrics(ctx, http.MethodPost, routeMessages, http.StatusOK, start)
}

type fragmentEvent struct {
	Text string `json:"text"`
}

// writeEvent writes one server-sent event. JSON keeps each payload on a
// single data line.
func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
