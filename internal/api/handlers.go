package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status          string `json:"status"`
	Uptime          string `json:"uptime"`
	CachedTemplates int    `json:"cachedTemplates"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.cache.Count()
	if err != nil {
		s.logger.Error("failed to count cache entries", "error", err)
	}

	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		Uptime:          time.Since(s.startTime).Round(time.Second).String(),
		CachedTemplates: count,
	})
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
