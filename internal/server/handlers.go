package server

import (
	"encoding/json"
	"net/http"
)

// handleHealth reports liveness and whether a catalog snapshot is loaded
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "qpubinder",
	}

	if s.store != nil {
		if snap, err := s.store.Current(); err == nil {
			response["catalog_version"] = snap.Version
		} else {
			response["status"] = "degraded"
			response["catalog"] = err.Error()
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
