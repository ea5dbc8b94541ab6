// Package api provides the HTTP handlers of the liveroom development backend
package api

import (
	"encoding/json"
	"net/http"
)

// HealthResponse represents the response for health check endpoints
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthLiveHandler handles Kubernetes liveness probe requests
func HealthLiveHandler(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, "UP")
}

// HealthReadyHandler returns a readiness probe handler. The backend reports
// DOWN once ready returns false, e.g. while draining connections on shutdown.
func HealthReadyHandler(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready() {
			writeHealth(w, http.StatusServiceUnavailable, "DOWN")
			return
		}
		writeHealth(w, http.StatusOK, "UP")
	}
}

func writeHealth(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(HealthResponse{Status: value})
}
