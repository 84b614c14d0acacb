package thread

// Snapshot is the render-ready state of one run. Snapshots are values: a fold
// always produces a new snapshot and never mutates the slices of an older one,
// so a snapshot handed to an observer stays valid and consistent.
type Snapshot struct {
	ThreadID      string         `json:"thread_id,omitempty"`
	AssistantID   string         `json:"assistant_id,omitempty"`
	RunID         string         `json:"run_id,omitempty"`
	Messages      []Message      `json:"messages"`
	UI            []UIFragment   `json:"ui"`
	TaskReports   []Message      `json:"task_reports,omitempty"`
	ProgressNotes []string       `json:"progress_notes"`
	Context       map[string]any `json:"context,omitempty"`
	Interrupt     *Interrupt     `json:"interrupt,omitempty"`
	Status        Status         `json:"status"`
	LastError     string         `json:"last_error,omitempty"`
	Version       uint64         `json:"version"`
}

// NewSnapshot returns an empty idle snapshot for the given assistant.
func NewSnapshot(assistantID string) Snapshot {
	return Snapshot{
		AssistantID:   assistantID,
		Messages:      []Message{},
		UI:            []UIFragment{},
		ProgressNotes: []string{},
		Status:        StatusIdle,
	}
}

// VisibleMessages returns the messages a renderer should show, in order.
func (s Snapshot) VisibleMessages() []Message {
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if !m.Hidden() {
			out = append(out, m)
		}
	}
	return out
}

// FragmentsFor returns the UI fragments attached to a message.
func (s Snapshot) FragmentsFor(messageID string) []UIFragment {
	var out []UIFragment
	for _, f := range s.UI {
		if f.MessageID == messageID {
			out = append(out, f)
		}
	}
	return out
}

// Fragment looks up a UI fragment by id.
func (s Snapshot) Fragment(id string) (UIFragment, bool) {
	for _, f := range s.UI {
		if f.ID == id {
			return f, true
		}
	}
	return UIFragment{}, false
}

// LastMessage returns the last message, if any.
func (s Snapshot) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// HasAgentOutput reports whether any agent or tool message exists.
func (s Snapshot) HasAgentOutput() bool {
	for _, m := range s.Messages {
		if m.Role == RoleAgent || m.Role == RoleTool {
			return true
		}
	}
	return false
}
