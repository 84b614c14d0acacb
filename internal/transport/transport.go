// Package transport talks to a LangGraph-compatible agent server: it creates
// threads, opens run streams, cancels runs and probes server status.
package transport

import (
	"context"

	"agentdesk/internal/thread"
)

// EndNode is the graph node that terminates a run.
const EndNode = "__end__"

// Transport is the agent run transport used by the session.
type Transport interface {
	// CreateThread creates a fresh thread and returns its id.
	CreateThread(ctx context.Context) (string, error)
	// Stream starts a run on the thread (new input, resume or goto) and returns its event stream.
	Stream(ctx context.Context, threadID string, req RunRequest) (Stream, error)
	// Cancel stops a run on the server.
	Cancel(ctx context.Context, threadID, runID string) error
	// Info is the status probe. It is used for diagnostics only.
	Info(ctx context.Context) (*ServerInfo, error)
}

// Stream is an open run event stream. Next returns io.EOF once the stream ends.
type Stream interface {
	Next() (thread.Event, error)
	Close() error
}

// RunInput is the input of a new run.
type RunInput struct {
	Messages []thread.Message `json:"messages"`
	Context  map[string]any   `json:"context,omitempty"`
}

// Command drives a paused run: Resume answers the pending interrupt, Goto jumps to a node.
type Command struct {
	Resume []thread.HumanResponse `json:"resume,omitempty"`
	Goto   string                 `json:"goto,omitempty"`
}

// ResumeCommand answers the pending interrupt with responses.
func ResumeCommand(responses []thread.HumanResponse) *Command {
	return &Command{Resume: responses}
}

// EndCommand terminates the run at its current point.
func EndCommand() *Command {
	return &Command{Goto: EndNode}
}

// RunRequest describes one run to start.
type RunRequest struct {
	AssistantID string             `json:"assistant_id"`
	Input       *RunInput          `json:"input,omitempty"`
	Command     *Command           `json:"command,omitempty"`
	Checkpoint  *thread.Checkpoint `json:"checkpoint,omitempty"`
	StreamModes []string           `json:"stream_mode,omitempty"`
	Subgraphs   bool               `json:"stream_subgraphs,omitempty"`
	Resumable   bool               `json:"stream_resumable,omitempty"`
}

// ServerInfo is the status probe response.
type ServerInfo struct {
	Version string         `json:"version"`
	Flags   map[string]any `json:"flags,omitempty"`
}
