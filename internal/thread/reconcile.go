package thread

// Fold applies one event to a snapshot and returns the resulting snapshot and
// whether anything changed. It is total: every event kind has a rule, and events
// the client does not understand leave the snapshot as it was.
//
// Error and End events carry no state; the session reacts to them. Fold never
// touches Status, which only the session writes.
func Fold(s Snapshot, e Event) (Snapshot, bool) {
	switch e.Kind {
	case EventValues, EventOptimistic:
		return mergeValues(s, e.Values)
	case EventUIUpsert:
		if e.Fragment.ID == "" {
			return s, false
		}
		s.UI = upsertFragment(s.UI, e.Fragment)
		return s, true
	case EventUIRemove:
		ui, removed := removeFragment(s.UI, e.RemoveID)
		if !removed {
			return s, false
		}
		s.UI = ui
		return s, true
	case EventProgress:
		notes := make([]string, len(s.ProgressNotes), len(s.ProgressNotes)+1)
		copy(notes, s.ProgressNotes)
		s.ProgressNotes = append(notes, e.Note)
		return s, true
	case EventMetadata:
		if e.RunID == "" || e.RunID == s.RunID {
			return s, false
		}
		s.RunID = e.RunID
		return s, true
	default:
		return s, false
	}
}

// mergeValues overwrites exactly the fields present in v.
func mergeValues(s Snapshot, v Values) (Snapshot, bool) {
	changed := false
	if v.Messages.Set {
		s.Messages = uniqueMessages(v.Messages.Value)
		changed = true
	}
	if v.UI.Set {
		ui := make([]UIFragment, 0, len(v.UI.Value))
		for _, f := range v.UI.Value {
			if f.ID == "" {
				continue
			}
			ui = upsertFragment(ui, f)
		}
		s.UI = ui
		changed = true
	}
	if v.TaskReports.Set {
		s.TaskReports = uniqueMessages(v.TaskReports.Value)
		changed = true
	}
	if v.ProgressNotes.Set {
		notes := make([]string, len(v.ProgressNotes.Value))
		copy(notes, v.ProgressNotes.Value)
		s.ProgressNotes = notes
		changed = true
	}
	if v.Context.Set {
		s.Context = copyContext(v.Context.Value)
		changed = true
	}
	if v.Interrupt.Set {
		s.Interrupt = v.Interrupt.Value
		changed = true
	}
	return s, changed
}

// uniqueMessages copies msgs so that each non-empty id appears once; a later
// duplicate replaces the earlier entry in place.
func uniqueMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	index := make(map[string]int, len(msgs))
	for _, m := range msgs {
		if m.ID != "" {
			if i, ok := index[m.ID]; ok {
				out[i] = m
				continue
			}
			index[m.ID] = len(out)
		}
		out = append(out, m)
	}
	return out
}

// upsertFragment returns a copy of ui with f replacing the fragment of the same id,
// or appended when no such fragment exists.
func upsertFragment(ui []UIFragment, f UIFragment) []UIFragment {
	out := make([]UIFragment, len(ui), len(ui)+1)
	copy(out, ui)
	for i := range out {
		if out[i].ID == f.ID {
			out[i] = f
			return out
		}
	}
	return append(out, f)
}

func removeFragment(ui []UIFragment, id string) ([]UIFragment, bool) {
	for i := range ui {
		if ui[i].ID != id {
			continue
		}
		out := make([]UIFragment, 0, len(ui)-1)
		out = append(out, ui[:i]...)
		out = append(out, ui[i+1:]...)
		return out, true
	}
	return ui, false
}

func copyContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
