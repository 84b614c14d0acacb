package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"agentdesk/internal/diagnostics"
	"agentdesk/internal/gateway/websocket"
	"agentdesk/internal/operator"
	"agentdesk/internal/session"
	"agentdesk/internal/thread"
	"agentdesk/internal/transport"
)

type emptyStream struct{}

func (emptyStream) Next() (thread.Event, error) { return thread.Event{}, io.EOF }
func (emptyStream) Close() error                { return nil }

type stubTransport struct{}

func (stubTransport) CreateThread(ctx context.Context) (string, error) { return "t-1", nil }

func (stubTransport) Stream(ctx context.Context, threadID string, req transport.RunRequest) (transport.Stream, error) {
	return emptyStream{}, nil
}

func (stubTransport) Cancel(ctx context.Context, threadID, runID string) error { return nil }

func (stubTransport) Info(ctx context.Context) (*transport.ServerInfo, error) {
	return &transport.ServerInfo{Version: "0.2.0"}, nil
}

func newTestServer(t *testing.T, probe func() (diagnostics.Status, bool)) (*Server, *session.Session) {
	t.Helper()
	sess, err := session.New(stubTransport{}, session.Options{AssistantID: "agent"})
	if err != nil {
		t.Fatalf("session.New error: %v", err)
	}
	op := operator.New(sess, operator.Options{})
	t.Cleanup(op.Close)

	s := NewServer(Options{
		Version:  "v1.0.0-test",
		Addr:     "127.0.0.1:0",
		Operator: op,
		Health:   probe,
	})
	return s, sess
}

func TestNewServer(t *testing.T) {
	hub := websocket.NewHub()
	sess, err := session.New(stubTransport{}, session.Options{AssistantID: "agent"})
	if err != nil {
		t.Fatalf("session.New error: %v", err)
	}
	op := operator.New(sess, operator.Options{})
	defer op.Close()

	server := NewServer(Options{Operator: op, Hub: hub})
	if server.Router() == nil {
		t.Error("Router() returned nil")
	}
	if server.Hub() != hub {
		t.Error("Hub() returned wrong hub")
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
}

func TestServerHealthDegraded(t *testing.T) {
	server, _ := newTestServer(t, func() (diagnostics.Status, bool) {
		return diagnostics.Status{Reachable: false, Error: "connection refused"}, true
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
}

func TestServerCORSPreflight(t *testing.T) {
	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/messages", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func readMessage(t *testing.T, conn *gws.Conn) websocket.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg websocket.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read error: %v", err)
	}
	return msg
}

func TestServerPushesSnapshots(t *testing.T) {
	server, sess := newTestServer(t, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = server.Serve(l)
	}()
	defer server.Shutdown(context.Background())

	url := "ws://" + l.Addr().String() + "/ws"
	var conn *gws.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err = gws.DefaultDialer.Dial(url, nil)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	// Welcome: current snapshot then interrupt view.
	if msg := readMessage(t, conn); msg.Type != websocket.TypeSnapshot {
		t.Fatalf("first message type = %q, want snapshot", msg.Type)
	}
	if msg := readMessage(t, conn); msg.Type != websocket.TypeInterrupt {
		t.Fatalf("second message type = %q, want interrupt", msg.Type)
	}

	resp, err := http.Post("http://"+l.Addr().String()+"/api/v1/messages", "application/json", strings.NewReader(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("post error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sess.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}

	// Snapshots arrive in order; the last one is idle with the human message.
	var last thread.Snapshot
	for last.Status != thread.StatusIdle || len(last.Messages) == 0 {
		msg := readMessage(t, conn)
		if msg.Type != websocket.TypeSnapshot {
			continue
		}
		if err := json.Unmarshal(msg.Data, &last); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}
	}
	if last.ThreadID != "t-1" {
		t.Errorf("thread id = %q, want t-1", last.ThreadID)
	}
}

func TestServerShutdown(t *testing.T) {
	server, _ := newTestServer(t, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(l)
	}()
	time.Sleep(50 * time.Millisecond)

	if err := server.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Serve did not return after Shutdown")
	}
}
