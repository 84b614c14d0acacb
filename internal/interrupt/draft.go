package interrupt

import (
	"maps"

	"agentdesk/internal/thread"
)

// Draft is the operator's in-progress answer to one action request, for one of
// the response types the request offers.
type Draft struct {
	// Request is the index of the action request in the interrupt.
	Request int                 `json:"request"`
	Action  string              `json:"action"`
	Type    thread.ResponseType `json:"type"`
	// Args are the action arguments for accept and edit drafts.
	Args map[string]string `json:"args,omitempty"`
	// Text is the reply of a response draft.
	Text string `json:"text,omitempty"`
	// EditsMade flips on the first change to Args and never flips back.
	EditsMade bool `json:"edits_made"`
	// AcceptAllowed marks an edit draft whose request also accepts plain acceptance.
	AcceptAllowed bool `json:"accept_allowed"`
}

// buildDrafts creates the drafts for every action request of an interrupt.
// An edit draft stands in for acceptance when the request allows both, so a
// separate accept draft exists only when editing is not offered.
func buildDrafts(intr *thread.Interrupt) []Draft {
	var drafts []Draft
	for i, req := range intr.Requests {
		canAccept := req.Allows(thread.ResponseAccept) && len(req.Args) > 0
		canEdit := req.Allows(thread.ResponseEdit)

		if canEdit {
			drafts = append(drafts, Draft{
				Request:       i,
				Action:        req.Name,
				Type:          thread.ResponseEdit,
				Args:          maps.Clone(req.Args),
				AcceptAllowed: canAccept,
			})
		} else if canAccept {
			drafts = append(drafts, Draft{
				Request: i,
				Action:  req.Name,
				Type:    thread.ResponseAccept,
				Args:    maps.Clone(req.Args),
			})
		}
		if req.Allows(thread.ResponseResponse) {
			drafts = append(drafts, Draft{Request: i, Action: req.Name, Type: thread.ResponseResponse})
		}
		if req.Allows(thread.ResponseIgnore) {
			drafts = append(drafts, Draft{Request: i, Action: req.Name, Type: thread.ResponseIgnore})
		}
	}
	return drafts
}

// defaultSubmitType picks the first allowed type in priority order
// accept > edit > response > ignore.
func defaultSubmitType(intr *thread.Interrupt) thread.ResponseType {
	for _, t := range []thread.ResponseType{
		thread.ResponseAccept,
		thread.ResponseEdit,
		thread.ResponseResponse,
		thread.ResponseIgnore,
	} {
		for _, req := range intr.Requests {
			if req.Allows(t) {
				return t
			}
		}
	}
	return ""
}

// emit turns a draft into the response it would send. Unedited edit drafts that
// allow acceptance collapse to accept; empty replies are dropped.
func emit(d Draft) (thread.HumanResponse, bool) {
	switch d.Type {
	case thread.ResponseEdit:
		t := thread.ResponseEdit
		if d.AcceptAllowed && !d.EditsMade {
			t = thread.ResponseAccept
		}
		return thread.HumanResponse{Type: t, Action: d.Action, Args: maps.Clone(d.Args)}, true
	case thread.ResponseAccept:
		return thread.HumanResponse{Type: thread.ResponseAccept, Action: d.Action, Args: maps.Clone(d.Args)}, true
	case thread.ResponseResponse:
		if d.Text == "" {
			return thread.HumanResponse{}, false
		}
		return thread.HumanResponse{Type: thread.ResponseResponse, Action: d.Action, Text: d.Text}, true
	default:
		return thread.HumanResponse{Type: d.Type, Action: d.Action}, true
	}
}

// plan builds the resume payload for a submit of the selected type.
func plan(drafts []Draft, selected thread.ResponseType) ([]thread.HumanResponse, error) {
	if len(drafts) == 0 {
		return nil, ErrEmptyResponse
	}

	if !hasAnswerDraft(drafts) {
		// Nothing but ignore drafts: send them as they are.
		out := make([]thread.HumanResponse, 0, len(drafts))
		for _, d := range drafts {
			r, _ := emit(d)
			out = append(out, r)
		}
		return out, nil
	}

	for _, d := range drafts {
		r, ok := emit(d)
		if ok && r.Type == selected {
			return []thread.HumanResponse{r}, nil
		}
	}
	return nil, ErrNoMatchingResponse
}

func hasAnswerDraft(drafts []Draft) bool {
	for _, d := range drafts {
		switch d.Type {
		case thread.ResponseAccept, thread.ResponseEdit, thread.ResponseResponse:
			return true
		}
	}
	return false
}

func copyDrafts(drafts []Draft) []Draft {
	out := make([]Draft, len(drafts))
	for i, d := range drafts {
		d.Args = maps.Clone(d.Args)
		out[i] = d
	}
	return out
}
