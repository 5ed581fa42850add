package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Get("/auth/link", s.handleLink)
	r.Get("/auth/callback", s.handleCallback)

	r.Route("/api", func(r chi.Router) {
		r.Get("/data/{dataType}", s.handleData)
		r.Get("/data-types", s.handleDataTypes)
		r.Get("/sync/status", s.handleSyncStatus)
		r.Get("/limits", s.handleLimits)
	})

	return r
}
