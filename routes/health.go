package routes

import (
	"net/http"
	"time"

	"docrelay/logger"
	"docrelay/models"
)

// Build-time variables (injected by ldflags)
var (
	version   = "dev"
	buildTime = ""
	gitCommit = ""
)

// ServiceName is reported by the info endpoint.
const ServiceName = "docrelay storage sidecar"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

var processStart = time.Now()

func healthAt(now time.Time) HealthResponse {
	return HealthResponse{
		Status:        "healthy",
		Version:       Version(),
		StartedAt:     processStart.UTC(),
		UptimeSeconds: int64(now.Sub(processStart) / time.Second),
	}
}

// Version returns the build version.
func Version() string {
	return version
}

// HealthHandler is the liveness check. It always reports healthy.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	response := healthAt(time.Now())

	logger.Debugf("Health check: status=%s, version=%s", response.Status, response.Version)
	writeJSON(w, http.StatusOK, response)
}

// InfoHandler reports static identity and the storage root.
func (h *Handler) InfoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	writeJSON(w, http.StatusOK, models.InfoResponse{
		Name:        ServiceName,
		Version:     Version(),
		Status:      "running",
		StoragePath: h.opts.StoragePath,
	})
}
