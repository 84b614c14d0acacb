package thread

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// inboxInterrupt is the agent-inbox interrupt schema.
type inboxInterrupt struct {
	ActionRequest *struct {
		Action string                     `json:"action"`
		Args   map[string]json.RawMessage `json:"args"`
	} `json:"action_request"`
	Config *struct {
		AllowIgnore  bool `json:"allow_ignore"`
		AllowRespond bool `json:"allow_respond"`
		AllowEdit    bool `json:"allow_edit"`
		AllowAccept  bool `json:"allow_accept"`
	} `json:"config"`
	Description string `json:"description"`
}

// interruptEnvelope is one entry of the __interrupt__ list.
type interruptEnvelope struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

// DecodeInterrupt decodes the __interrupt__ value of a state update.
// An empty list decodes to nil (no pending interrupt). Only the first pending
// interrupt is surfaced; it is the one the run resumes with.
func DecodeInterrupt(data json.RawMessage) (*Interrupt, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var envelopes []interruptEnvelope
	if data[0] == '[' {
		if err := json.Unmarshal(data, &envelopes); err != nil {
			return nil, fmt.Errorf("decode interrupt list: %w", err)
		}
	} else {
		var one interruptEnvelope
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("decode interrupt: %w", err)
		}
		envelopes = []interruptEnvelope{one}
	}
	if len(envelopes) == 0 {
		return nil, nil
	}

	first := envelopes[0]
	value := first.Value
	if len(value) == 0 {
		// Bare interrupt without the {value} wrapper.
		value = data
	}

	return &Interrupt{
		ID:       first.ID,
		Requests: decodeActionRequests(value),
		Raw:      append(json.RawMessage(nil), value...),
	}, nil
}

// decodeActionRequests returns the valid action requests of an agent-inbox payload,
// or nil when the payload does not follow that schema.
func decodeActionRequests(value json.RawMessage) []ActionRequest {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return nil
	}

	var items []inboxInterrupt
	if value[0] == '[' {
		if err := json.Unmarshal(value, &items); err != nil {
			return nil
		}
	} else if value[0] == '{' {
		var one inboxInterrupt
		if err := json.Unmarshal(value, &one); err != nil {
			return nil
		}
		items = []inboxInterrupt{one}
	} else {
		return nil
	}

	var out []ActionRequest
	for _, item := range items {
		if item.ActionRequest == nil || item.Config == nil {
			return nil
		}
		req := ActionRequest{
			Name:        item.ActionRequest.Action,
			Args:        stringArgs(item.ActionRequest.Args),
			Description: item.Description,
		}
		// accept needs something to accept
		if item.Config.AllowAccept && len(req.Args) > 0 {
			req.Allowed = append(req.Allowed, ResponseAccept)
		}
		if item.Config.AllowEdit {
			req.Allowed = append(req.Allowed, ResponseEdit)
		}
		if item.Config.AllowRespond {
			req.Allowed = append(req.Allowed, ResponseResponse)
		}
		if item.Config.AllowIgnore {
			req.Allowed = append(req.Allowed, ResponseIgnore)
		}
		if len(req.Allowed) == 0 {
			continue
		}
		out = append(out, req)
	}
	return out
}

// stringArgs flattens argument values to strings; non-string values keep their
// JSON encoding and null becomes the empty string.
func stringArgs(raw map[string]json.RawMessage) map[string]string {
	args := make(map[string]string, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		switch {
		case len(v) == 0 || bytes.Equal(v, []byte("null")):
			args[k] = ""
		case v[0] == '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				args[k] = string(v)
				continue
			}
			args[k] = s
		default:
			args[k] = string(v)
		}
	}
	return args
}
