package transport

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"agentdesk/internal/thread"
)

// namespaceSep separates the event name from the subgraph namespace ("values|tools:1").
const namespaceSep = "|"

// customPayload is the shape of UI messages sent on the custom channel.
type customPayload struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// DecodeFrame converts a frame into a stream event. It never fails: frames the
// client cannot interpret become EventUnknown and are logged at debug level.
func DecodeFrame(f Frame, log zerolog.Logger) thread.Event {
	name, namespace, _ := strings.Cut(f.Event, namespaceSep)
	data := json.RawMessage(strings.TrimSpace(f.Data))

	e, err := decode(name, namespace, data)
	if err != nil {
		log.Debug().Err(err).Str("event", f.Event).Msg("Ignoring undecodable stream event")
		return thread.Event{Kind: thread.EventUnknown, Name: f.Event}
	}
	e.Name = f.Event
	return e
}

func decode(name, namespace string, data json.RawMessage) (thread.Event, error) {
	switch name {
	case "metadata":
		var meta struct {
			RunID string `json:"run_id"`
		}
		if err := json.Unmarshal(data, &meta); err != nil {
			return thread.Event{}, err
		}
		return thread.MetadataEvent(meta.RunID), nil

	case "values":
		// Subgraph state is not the run state.
		if namespace != "" {
			return thread.Event{Kind: thread.EventUnknown}, nil
		}
		var v thread.Values
		if err := json.Unmarshal(data, &v); err != nil {
			return thread.Event{}, err
		}
		return thread.ValuesEvent(v), nil

	case "updates":
		if namespace != "" {
			return thread.Event{Kind: thread.EventUnknown}, nil
		}
		var updates map[string]json.RawMessage
		if err := json.Unmarshal(data, &updates); err != nil {
			return thread.Event{}, err
		}
		raw, ok := updates["__interrupt__"]
		if !ok {
			return thread.Event{Kind: thread.EventUnknown}, nil
		}
		intr, err := thread.DecodeInterrupt(raw)
		if err != nil {
			return thread.Event{}, err
		}
		return thread.ValuesEvent(thread.Values{Interrupt: thread.Some(intr)}), nil

	case "custom":
		return decodeCustom(data)

	case "error":
		runErr := &thread.RunError{}
		if len(data) > 0 && data[0] == '{' {
			if err := json.Unmarshal(data, runErr); err != nil {
				return thread.Event{}, err
			}
		} else {
			runErr.Message = strings.Trim(string(data), `"`)
		}
		return thread.ErrorEvent(runErr), nil

	case "end":
		return thread.Event{Kind: thread.EventEnd}, nil
	}
	return thread.Event{Kind: thread.EventUnknown}, nil
}

// decodeCustom handles custom channel payloads: UI upserts, UI removals and
// plain-string progress notes.
func decodeCustom(data json.RawMessage) (thread.Event, error) {
	if len(data) > 0 && data[0] == '"' {
		var note string
		if err := json.Unmarshal(data, &note); err != nil {
			return thread.Event{}, err
		}
		return thread.ProgressEvent(note), nil
	}
	if !bytes.HasPrefix(data, []byte("{")) {
		return thread.Event{Kind: thread.EventUnknown}, nil
	}

	var head customPayload
	if err := json.Unmarshal(data, &head); err != nil {
		return thread.Event{}, err
	}
	switch head.Type {
	case "ui":
		var f thread.UIFragment
		if err := json.Unmarshal(data, &f); err != nil {
			return thread.Event{}, err
		}
		return thread.UIUpsertEvent(f), nil
	case "remove-ui":
		return thread.UIRemoveEvent(head.ID), nil
	}
	return thread.Event{Kind: thread.EventUnknown}, nil
}
