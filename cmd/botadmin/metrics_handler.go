package main

import (
	"net/http"

	"whatsbot/internal/tracing"
)

// handleMetrics serves the in-memory registry snapshot.
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.WithField("request_id", tracing.GetRequestID(r.Context())).Debug("Serving metrics snapshot")
		writeJSON(w, http.StatusOK, s.metrics.GetAllMetrics())
	}
}
