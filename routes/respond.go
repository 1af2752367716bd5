package routes

import (
	"encoding/json"
	"net/http"

	"docrelay/logger"
	"docrelay/models"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	logger.Warnf("Invalid method for %s: %s", r.URL.Path, r.Method)
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
