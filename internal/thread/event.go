package thread

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventKind identifies the kind of a stream event.
type EventKind int

const (
	// EventUnknown is any event the client does not understand. It is ignored.
	EventUnknown EventKind = iota
	// EventMetadata carries the run identity.
	EventMetadata
	// EventValues is an authoritative (partial) state sync from the run.
	EventValues
	// EventOptimistic is a local guess applied before the server confirms it.
	EventOptimistic
	// EventUIUpsert adds or replaces a UI fragment.
	EventUIUpsert
	// EventUIRemove deletes a UI fragment by id.
	EventUIRemove
	// EventProgress appends a progress note.
	EventProgress
	// EventError reports a run failure.
	EventError
	// EventEnd marks the end of the stream.
	EventEnd
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventMetadata:
		return "metadata"
	case EventValues:
		return "values"
	case EventOptimistic:
		return "optimistic"
	case EventUIUpsert:
		return "ui_upsert"
	case EventUIRemove:
		return "ui_remove"
	case EventProgress:
		return "progress"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Field is an optional state field: Set distinguishes "absent" from "present and empty".
type Field[T any] struct {
	Set   bool
	Value T
}

// Some returns a present field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Values is a partial run state. Absent fields leave the snapshot untouched.
type Values struct {
	Messages      Field[[]Message]
	UI            Field[[]UIFragment]
	TaskReports   Field[[]Message]
	ProgressNotes Field[[]string]
	Context       Field[map[string]any]
	Interrupt     Field[*Interrupt]
}

// UnmarshalJSON decodes a state object, recording which keys were present.
func (v *Values) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if m, ok := raw["messages"]; ok {
		msgs, err := decodeMessages(m)
		if err != nil {
			return fmt.Errorf("messages: %w", err)
		}
		v.Messages = Some(msgs)
	}
	if u, ok := raw["ui"]; ok {
		var frags []UIFragment
		if err := json.Unmarshal(u, &frags); err != nil {
			return fmt.Errorf("ui: %w", err)
		}
		v.UI = Some(frags)
	}
	if r, ok := raw["task_reports"]; ok {
		msgs, err := decodeMessages(r)
		if err != nil {
			return fmt.Errorf("task_reports: %w", err)
		}
		v.TaskReports = Some(msgs)
	}
	if p, ok := raw["progress_messages"]; ok {
		var notes []string
		if err := json.Unmarshal(p, &notes); err != nil {
			return fmt.Errorf("progress_messages: %w", err)
		}
		v.ProgressNotes = Some(notes)
	}
	if c, ok := raw["context"]; ok {
		var ctx map[string]any
		if err := json.Unmarshal(c, &ctx); err != nil {
			return fmt.Errorf("context: %w", err)
		}
		v.Context = Some(ctx)
	}
	if i, ok := raw["__interrupt__"]; ok {
		intr, err := DecodeInterrupt(i)
		if err != nil {
			return err
		}
		v.Interrupt = Some(intr)
	}
	return nil
}

// decodeMessages accepts a list of messages or a single message object.
func decodeMessages(data json.RawMessage) ([]Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Message{}, nil
	}
	if data[0] == '{' {
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return []Message{m}, nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UnmarshalJSON accepts the server's UI message form, where the owning message id
// lives under metadata.message_id, as well as the flat form.
func (f *UIFragment) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		MessageID string          `json:"message_id"`
		Props     json.RawMessage `json:"props"`
		Metadata  struct {
			MessageID string `json:"message_id"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	f.ID = wire.ID
	f.Name = wire.Name
	f.MessageID = wire.MessageID
	if f.MessageID == "" {
		f.MessageID = wire.Metadata.MessageID
	}
	f.Payload = wire.Props
	return nil
}

// RunError describes a failure reported by the run.
type RunError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *RunError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Code != "" && e.Message != "" {
		return e.Code + ": " + e.Message
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Event is one incremental update delivered while a run is active.
type Event struct {
	Kind     EventKind
	Name     string // wire event name, for logging
	RunID    string
	Values   Values
	Fragment UIFragment
	RemoveID string
	Note     string
	Err      *RunError
}

// ValuesEvent returns an authoritative state sync event.
func ValuesEvent(v Values) Event {
	return Event{Kind: EventValues, Values: v}
}

// OptimisticEvent returns a local state guess event.
func OptimisticEvent(v Values) Event {
	return Event{Kind: EventOptimistic, Values: v}
}

// UIUpsertEvent returns an event that adds or replaces a fragment.
func UIUpsertEvent(f UIFragment) Event {
	return Event{Kind: EventUIUpsert, Fragment: f}
}

// UIRemoveEvent returns an event that removes the fragment with the given id.
func UIRemoveEvent(id string) Event {
	return Event{Kind: EventUIRemove, RemoveID: id}
}

// ProgressEvent returns an event appending a progress note.
func ProgressEvent(text string) Event {
	return Event{Kind: EventProgress, Note: text}
}

// MetadataEvent returns an event carrying the run id.
func MetadataEvent(runID string) Event {
	return Event{Kind: EventMetadata, RunID: runID}
}

// ErrorEvent returns an event reporting a run failure.
func ErrorEvent(err *RunError) Event {
	return Event{Kind: EventError, Err: err}
}
