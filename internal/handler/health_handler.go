package handler

import (
	"net/http"
	"time"

	"chatrelay/internal/pkg/resp"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Environment string  `json:"environment"`
	Uptime      float64 `json:"uptime"`
	Version     string  `json:"version"`
	Connections int     `json:"connections"`
}

// HandleRoot answers the plain-text liveness probe.
func HandleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondText(w, r, http.StatusOK, "Chat server is running")
	}
}

// HandleHealth reports process uptime and build metadata.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()

		resp.RespondJSON(w, r, http.StatusOK, HealthResponse{
			Status:      "ok",
			Timestamp:   now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Environment: deps.Config.Environment,
			Uptime:      now.Sub(deps.StartedAt).Seconds(),
			Version:     deps.Config.Version,
			Connections: deps.Hub.Connections(),
		})
	}
}
