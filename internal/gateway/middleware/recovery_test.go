package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agentdesk/internal/gateway/handlers"
)

func TestRecoveryPassThrough(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/messages", nil))

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

func TestRecoveryReportsRequestID(t *testing.T) {
	handler := Recovery(RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("resolver exploded")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/interrupt/submit", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var resp handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if resp.Error.Code != handlers.ErrCodeInternalError {
		t.Errorf("code = %s, want %s", resp.Error.Code, handlers.ErrCodeInternalError)
	}
	if !strings.Contains(resp.Error.Message, "req-42") {
		t.Errorf("message = %q, want request id", resp.Error.Message)
	}
}

func TestRecoveryReraisesAbort(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))
	t.Error("expected panic to propagate")
}
