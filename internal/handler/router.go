package handler

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestTimeout bounds every route except chat streams, which last as long
// as the client stays connected.
var requestTimeout = 60 * time.Second

// NewRouter assembles the API under /api/v1 with the standard middleware.
func NewRouter(tasks *TaskHandler, coach *CoachHandler, chat *ChatHandler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)

	// Health check endpoint (excluded from tracing)
	r.With(middleware.Timeout(requestTimeout)).Get("/health", tasks.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Mount("/tasks", tasks.Routes())
			r.Get("/stats", coach.Stats)
			r.Get("/coach/motivation", coach.Motivation)
			r.Post("/coach/plan", coach.Plan)
		})
		r.Mount("/chat/sessions", chat.Routes())
	})

	return r
}
