package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdesk/internal/thread"
)

func drain(t *testing.T, s Stream) []thread.Event {
	t.Helper()
	var out []thread.Event
	for {
		e, err := s.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestClient_CreateThread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/threads", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"thread_id":"t-1"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL + "/", APIKey: "secret"})
	id, err := c.CreateThread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t-1", id)
}

func TestClient_StreamSendsResumeCommand(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads/t-1/runs/stream", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: metadata\ndata: {\"run_id\":\"r-1\"}\n\n")
		fmt.Fprint(w, "event: values\ndata: {\"__interrupt__\":[]}\n\n")
		fmt.Fprint(w, "event: custom\ndata: \"working\"\n\n")
		fmt.Fprint(w, "event: end\ndata: null\n\n")
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL})
	req := RunRequest{
		AssistantID: "agent",
		Command: ResumeCommand([]thread.HumanResponse{
			{Type: thread.ResponseAccept, Action: "dispatch_case", Args: map[string]string{"unit": "A"}},
		}),
		StreamModes: []string{"values", "custom"},
	}
	s, err := c.Stream(context.Background(), "t-1", req)
	require.NoError(t, err)
	defer s.Close()

	events := drain(t, s)
	require.Len(t, events, 4)
	assert.Equal(t, thread.EventMetadata, events[0].Kind)
	assert.Equal(t, "r-1", events[0].RunID)
	assert.Equal(t, thread.EventValues, events[1].Kind)
	assert.True(t, events[1].Values.Interrupt.Set)
	assert.Nil(t, events[1].Values.Interrupt.Value)
	assert.Equal(t, thread.EventProgress, events[2].Kind)
	assert.Equal(t, thread.EventEnd, events[3].Kind)

	wire, _ := json.Marshal(body["command"])
	assert.JSONEq(t, `{"resume":[{"type":"accept","args":{"action":"dispatch_case","args":{"unit":"A"}}}]}`, string(wire))
	assert.Equal(t, "agent", body["assistant_id"])
	assert.NotContains(t, body, "input")
}

func TestClient_StreamEndCommand(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL})
	s, err := c.Stream(context.Background(), "t-1", RunRequest{AssistantID: "agent", Command: EndCommand()})
	require.NoError(t, err)
	assert.Empty(t, drain(t, s))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	wire, _ := json.Marshal(body["command"])
	assert.JSONEq(t, `{"goto":"__end__"}`, string(wire))
}

func TestClient_StreamRequiresThread(t *testing.T) {
	c := NewClient(Config{APIURL: "http://127.0.0.1:1"})
	_, err := c.Stream(context.Background(), "", RunRequest{})
	assert.ErrorIs(t, err, ErrNoThread)
}

func TestClient_InvalidAssistant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Assistant 'nope' not found"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL})
	_, err := c.Stream(context.Background(), "t-1", RunRequest{AssistantID: "nope"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAssistant)
	assert.False(t, errors.Is(err, ErrTransport))

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	assert.Equal(t, "Assistant 'nope' not found", reqErr.Message)
}

func TestClient_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL})
	_, err := c.CreateThread(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{APIURL: url})
	_, err := c.Info(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_CancelAndInfo(t *testing.T) {
	var cancelled string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/threads/t-1/runs/r-1/cancel":
			cancelled = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		case "/info":
			_, _ = w.Write([]byte(`{"version":"0.4.2","flags":{"assistants":true}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{APIURL: srv.URL})
	require.NoError(t, c.Cancel(context.Background(), "t-1", "r-1"))
	assert.NotEmpty(t, cancelled)

	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.4.2", info.Version)
	assert.Equal(t, true, info.Flags["assistants"])
}

func TestIsInvalidAssistantMessage(t *testing.T) {
	assert.True(t, IsInvalidAssistantMessage("Invalid assistant ID"))
	assert.True(t, IsInvalidAssistantMessage("assistant abc not found"))
	assert.False(t, IsInvalidAssistantMessage("thread not found"))
}
