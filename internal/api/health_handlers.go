package api

import (
	"net/http"

	"github.com/vytor/hanziflash/internal/logger"
)

// handleHealth returns a liveness probe - always returns 200 OK.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady runs every readiness check and returns 503 with the failing
// ones, or 200.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	failed := map[string]string{}
	for _, c := range s.Checks {
		if err := c.Check(ctx); err != nil {
			log.Warn("readiness check failed - %s: %v", c.Name, err)
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}
