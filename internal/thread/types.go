// Package thread holds the client-side model of one agent run: the messages, UI
// fragments, progress notes and pending interrupt that together make up the
// render-ready snapshot, and the rules that fold stream events into it.
package thread

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Role identifies who authored a message. The wire names follow the agent server.
type Role string

const (
	RoleHuman Role = "human"
	RoleAgent Role = "ai"
	RoleTool  Role = "tool"
)

// Status is the lifecycle status of the run as seen by the operator.
type Status string

const (
	StatusIdle               Status = "idle"
	StatusStreaming          Status = "streaming"
	StatusAwaitingHumanInput Status = "awaiting_human_input"
	StatusError              Status = "error"
)

// ToolCall is a tool invocation requested by an agent message.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Checkpoint addresses a point in the thread history the run can restart from.
type Checkpoint struct {
	ThreadID     string `json:"thread_id,omitempty"`
	CheckpointNS string `json:"checkpoint_ns,omitempty"`
	CheckpointID string `json:"checkpoint_id"`
}

// Content is message text. On the wire it is either a plain string or an array of
// content blocks; only text blocks contribute to the rendered text.
type Content string

// UnmarshalJSON accepts a string or a list of {type, text} blocks.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content(s)
		return nil
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	*c = Content(strings.Join(parts, "\n"))
	return nil
}

// Message is one entry of the conversation.
type Message struct {
	ID               string      `json:"id,omitempty"`
	Role             Role        `json:"type"`
	Content          Content     `json:"content"`
	Name             string      `json:"name,omitempty"`
	ToolCalls        []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID       string      `json:"tool_call_id,omitempty"`
	ParentCheckpoint *Checkpoint `json:"parent_checkpoint,omitempty"`
}

// Hidden reports whether the message is bookkeeping that renderers should skip.
func (m Message) Hidden() bool {
	return strings.HasPrefix(m.ID, HiddenIDPrefix)
}

// UIFragment is a custom UI component emitted by the run and attached to a message.
type UIFragment struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Payload   json.RawMessage `json:"props,omitempty"`
}

// ResponseType is one way an operator may answer an action request.
type ResponseType string

const (
	ResponseAccept   ResponseType = "accept"
	ResponseEdit     ResponseType = "edit"
	ResponseResponse ResponseType = "response"
	ResponseIgnore   ResponseType = "ignore"
)

// Valid reports whether t is a known response type.
func (t ResponseType) Valid() bool {
	switch t {
	case ResponseAccept, ResponseEdit, ResponseResponse, ResponseIgnore:
		return true
	}
	return false
}

// ActionRequest is one named action inside an interrupt.
type ActionRequest struct {
	Name        string            `json:"action"`
	Args        map[string]string `json:"args"`
	Description string            `json:"description,omitempty"`
	Allowed     []ResponseType    `json:"allowed"`
}

// Allows reports whether the request accepts responses of type t.
func (r ActionRequest) Allows(t ResponseType) bool {
	for _, a := range r.Allowed {
		if a == t {
			return true
		}
	}
	return false
}

// Interrupt is a pause raised by the run that needs a human decision.
// Requests is empty for interrupts that do not follow the action-request schema;
// Raw always carries the payload as received.
type Interrupt struct {
	ID       string          `json:"id,omitempty"`
	Requests []ActionRequest `json:"requests,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// Generic reports whether the interrupt carries no structured action requests.
func (i *Interrupt) Generic() bool {
	return i != nil && len(i.Requests) == 0
}

// Identity returns a key that changes whenever a different interrupt is raised.
func (i *Interrupt) Identity() string {
	if i == nil {
		return ""
	}
	if i.ID != "" {
		return i.ID
	}
	return string(i.Raw)
}

// HumanResponse is one resolved answer sent back to resume a paused run.
// Args holds the action arguments for accept and edit, Text the reply for response.
type HumanResponse struct {
	Type   ResponseType
	Action string
	Args   map[string]string
	Text   string
}

// MarshalJSON encodes the response in the agent-inbox wire form.
func (r HumanResponse) MarshalJSON() ([]byte, error) {
	var args any
	switch r.Type {
	case ResponseAccept, ResponseEdit:
		a := r.Args
		if a == nil {
			a = map[string]string{}
		}
		args = struct {
			Action string            `json:"action"`
			Args   map[string]string `json:"args"`
		}{Action: r.Action, Args: a}
	case ResponseResponse:
		args = r.Text
	default:
		args = nil
	}
	return json.Marshal(struct {
		Type ResponseType `json:"type"`
		Args any          `json:"args"`
	}{Type: r.Type, Args: args})
}
