package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all binding routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/bindings", func(r chi.Router) {
		r.Post("/", h.HandleBind)
		r.Post("/batch", h.HandleBindBatch)
	})
}
