package handlers

import (
	"net/http"
	"sync"
	"time"

	"agentdesk/internal/diagnostics"
)

var (
	startTime time.Time
	startOnce sync.Once
)

// InitStartTime initializes the server start time.
// Should be called when the server starts.
func InitStartTime() {
	startOnce.Do(func() {
		startTime = time.Now()
	})
}

// StatusFunc returns the latest agent server probe, if one has run.
type StatusFunc func() (diagnostics.Status, bool)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string              `json:"status"`
	Version string              `json:"version"`
	Uptime  int64               `json:"uptime"`
	Server  *diagnostics.Status `json:"server,omitempty"`
}

// HealthHandler returns a health check handler. The gateway is healthy by
// itself; status reports "degraded" while the agent server is unreachable.
func HealthHandler(version string, probe StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(0)
		if !startTime.IsZero() {
			uptime = int64(time.Since(startTime).Seconds())
		}

		resp := HealthResponse{
			Status:  "ok",
			Version: version,
			Uptime:  uptime,
		}
		if probe != nil {
			if st, ok := probe(); ok {
				resp.Server = &st
				if !st.Reachable {
					resp.Status = "degraded"
				}
			}
		}
		SendJSON(w, http.StatusOK, resp)
	}
}
