// Package handlers provides HTTP handlers for the QPU catalog.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/qpubinder/internal/modules/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Refresher republishes the catalog on demand
type Refresher interface {
	Refresh(ctx context.Context) (*catalog.Snapshot, error)
}

// Handler handles catalog HTTP requests
type Handler struct {
	store     *catalog.Store
	refresher Refresher
	log       zerolog.Logger
}

// NewHandler creates a new catalog handler
func NewHandler(store *catalog.Store, refresher Refresher, log zerolog.Logger) *Handler {
	return &Handler{
		store:     store,
		refresher: refresher,
		log:       log.With().Str("handler", "catalog").Logger(),
	}
}

// HandleListQPUs handles GET /api/qpus
func (h *Handler) HandleListQPUs(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.currentSnapshot(w)
	if !ok {
		return
	}

	qpus := snap.QPUs
	if r.URL.Query().Get("available") == "true" {
		qpus = qpus[:0:0]
		for _, q := range snap.QPUs {
			if q.Available {
				qpus = append(qpus, q)
			}
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": qpus,
		"metadata": map[string]interface{}{
			"version":   snap.Version,
			"source":    snap.Source,
			"loaded_at": snap.LoadedAt.Format(time.RFC3339),
			"count":     len(qpus),
		},
	})
}

// HandleGetQPU handles GET /api/qpus/{id}
func (h *Handler) HandleGetQPU(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.currentSnapshot(w)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	qpu, found := snap.Get(id)
	if !found {
		http.Error(w, "QPU not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": qpu,
		"metadata": map[string]interface{}{
			"version": snap.Version,
		},
	})
}

// HandleRefresh handles POST /api/qpus/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.refresher.Refresh(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Manual catalog refresh failed")
		http.Error(w, "Catalog refresh failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"version": snap.Version,
			"source":  snap.Source,
			"count":   len(snap.QPUs),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) currentSnapshot(w http.ResponseWriter) (*catalog.Snapshot, bool) {
	snap, err := h.store.Current()
	if errors.Is(err, catalog.ErrNoSnapshot) {
		http.Error(w, "Catalog not loaded yet", http.StatusServiceUnavailable)
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read catalog snapshot")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return snap, true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
