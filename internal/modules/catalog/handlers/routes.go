package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all catalog routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/qpus", func(r chi.Router) {
		r.Get("/", h.HandleListQPUs)
		r.Post("/refresh", h.HandleRefresh)
		r.Get("/{id}", h.HandleGetQPU)
	})
}
