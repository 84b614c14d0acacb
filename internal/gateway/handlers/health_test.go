package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"agentdesk/internal/diagnostics"
)

func getHealth(t *testing.T, handler http.Handler) HealthResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	InitStartTime()

	resp := getHealth(t, HealthHandler("v1.0.0", nil))

	if resp.Status != "ok" {
		t.Errorf("status = %s, want ok", resp.Status)
	}

	if resp.Version != "v1.0.0" {
		t.Errorf("version = %s, want v1.0.0", resp.Version)
	}

	if resp.Uptime < 0 {
		t.Errorf("uptime = %d, want >= 0", resp.Uptime)
	}

	if resp.Server != nil {
		t.Errorf("server = %+v, want nil", resp.Server)
	}
}

func TestHealthHandlerReportsServer(t *testing.T) {
	tests := []struct {
		name       string
		status     diagnostics.Status
		wantStatus string
	}{
		{"reachable", diagnostics.Status{Reachable: true, Version: "0.4.1", Compatible: true}, "ok"},
		{"unreachable", diagnostics.Status{Error: "connection refused"}, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := func() (diagnostics.Status, bool) { return tt.status, true }
			resp := getHealth(t, HealthHandler("v1.0.0", probe))

			if resp.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", resp.Status, tt.wantStatus)
			}
			if resp.Server == nil || resp.Server.Reachable != tt.status.Reachable {
				t.Errorf("server = %+v", resp.Server)
			}
		})
	}
}
