package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"genlab/internal/handlers"
)

// NewRouter assembles the genlabd HTTP surface.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)

	r.Get("/v1/healthz", app.Health)
	r.Post("/v1/generations", app.CreateGeneration)

	return r
}
