// Package interrupt resolves a pause raised by an agent run: it turns the
// interrupt's action requests into editable drafts, validates the operator's
// choice and hands the resulting resume command to the session.
package interrupt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"agentdesk/internal/notify"
	"agentdesk/internal/storage"
	"agentdesk/internal/thread"
	"agentdesk/internal/transport"
	"agentdesk/pkg/logger"
)

// State is the lifecycle state of a resolver.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateSubmitting    State = "submitting"
	StateResolved      State = "resolved"
	StateFailed        State = "failed"
)

// Terminal reports whether no further submission is possible from s.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateFailed
}

// Resumer dispatches commands to the paused run. SubmitResume returns false
// without an error when there is no run to resume.
type Resumer interface {
	SubmitResume(ctx context.Context, responses []thread.HumanResponse) (bool, error)
	ResolveAndEnd(ctx context.Context) error
}

// AuditLog records operator decisions.
type AuditLog interface {
	LogDecision(d *storage.Decision) error
}

// Options configures a resolver.
type Options struct {
	// ThreadID tags audit records.
	ThreadID string
	Sink     notify.Sink
	Audit    AuditLog
	Logger   *zerolog.Logger
}

// Resolver is the state machine for one interrupt instance. A new interrupt
// needs a new resolver; Resolved and Failed are final.
type Resolver struct {
	resumer Resumer
	sink    notify.Sink
	audit   AuditLog
	log     zerolog.Logger

	threadID string

	mu               sync.Mutex
	state            State
	intr             *thread.Interrupt
	drafts           []Draft
	selected         thread.ResponseType
	defaultType      thread.ResponseType
	acceptAllowed    bool
	hasEdited        bool
	hasAddedResponse bool
	lastErr          error
}

// NewResolver creates an uninitialized resolver dispatching through resumer.
func NewResolver(resumer Resumer, opts Options) *Resolver {
	r := &Resolver{
		resumer:  resumer,
		sink:     opts.Sink,
		audit:    opts.Audit,
		threadID: opts.ThreadID,
		state:    StateUninitialized,
	}
	if r.sink == nil {
		r.sink = notify.Discard
	}
	if opts.Logger != nil {
		r.log = *opts.Logger
	} else {
		r.log = logger.Named("interrupt")
	}
	return r
}

// Init loads the interrupt and moves the resolver to Ready.
func (r *Resolver) Init(intr *thread.Interrupt) error {
	if intr == nil {
		return errors.New("interrupt: nil interrupt")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateUninitialized {
		return ErrAlreadyInitialized
	}

	r.intr = intr
	r.drafts = buildDrafts(intr)
	r.defaultType = defaultSubmitType(intr)
	r.selected = r.defaultType
	for _, d := range r.drafts {
		if d.Type == thread.ResponseAccept || d.AcceptAllowed {
			r.acceptAllowed = true
			break
		}
	}
	r.state = StateReady

	r.log.Debug().
		Str("interrupt_id", intr.ID).
		Int("drafts", len(r.drafts)).
		Str("default_type", string(r.defaultType)).
		Msg("Interrupt loaded")
	return nil
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Interrupt returns the interrupt being resolved.
func (r *Resolver) Interrupt() *thread.Interrupt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intr
}

// Drafts returns a copy of the current drafts.
func (r *Resolver) Drafts() []Draft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyDrafts(r.drafts)
}

// DraftIndex returns the index of the first draft of type t, or -1.
func (r *Resolver) DraftIndex(t thread.ResponseType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.drafts {
		if d.Type == t {
			return i
		}
	}
	return -1
}

// DefaultSubmitType is the type preselected when the interrupt was loaded.
func (r *Resolver) DefaultSubmitType() thread.ResponseType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultType
}

// SelectedSubmitType is the type the next Submit will send.
func (r *Resolver) SelectedSubmitType() thread.ResponseType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// AcceptAllowed reports whether any draft allows plain acceptance.
func (r *Resolver) AcceptAllowed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acceptAllowed
}

// HasEdited reports whether the operator changed any argument.
func (r *Resolver) HasEdited() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasEdited
}

// HasAddedResponse reports whether the operator wrote a reply.
func (r *Resolver) HasAddedResponse() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasAddedResponse
}

// SupportsMultipleMethods is a UI hint: more than one draft can answer the
// interrupt, so a type selector should be offered.
func (r *Resolver) SupportsMultipleMethods() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.drafts {
		switch d.Type {
		case thread.ResponseEdit, thread.ResponseAccept, thread.ResponseResponse:
			n++
		}
	}
	return n > 1
}

// Err returns the error of the last failed dispatch, if any.
func (r *Resolver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// SetArg changes one argument of an edit draft.
func (r *Resolver) SetArg(draft int, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady {
		return ErrNotReady
	}
	if draft < 0 || draft >= len(r.drafts) || r.drafts[draft].Type != thread.ResponseEdit {
		return fmt.Errorf("%w: %d is not an edit draft", ErrNoDraft, draft)
	}

	d := &r.drafts[draft]
	old, ok := d.Args[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownArg, key)
	}
	if old == value {
		return nil
	}
	d.Args[key] = value
	d.EditsMade = true
	r.hasEdited = true
	return nil
}

// SetResponse sets the reply text of a response draft.
func (r *Resolver) SetResponse(draft int, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady {
		return ErrNotReady
	}
	if draft < 0 || draft >= len(r.drafts) || r.drafts[draft].Type != thread.ResponseResponse {
		return fmt.Errorf("%w: %d is not a response draft", ErrNoDraft, draft)
	}
	r.drafts[draft].Text = text
	r.hasAddedResponse = text != ""
	return nil
}

// SelectType chooses the response type the next Submit sends.
func (r *Resolver) SelectType(t thread.ResponseType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady {
		return ErrNotReady
	}
	r.selected = t
	return nil
}

// Submit sends the draft matching the selected submit type.
// Validation failures leave the resolver Ready and are reported to the sink.
func (r *Resolver) Submit(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateReady {
		r.mu.Unlock()
		return ErrNotReady
	}
	selected := r.selected
	responses, err := plan(r.drafts, selected)
	if err != nil {
		r.mu.Unlock()
		r.reject(err, selected)
		return err
	}
	r.state = StateSubmitting
	r.mu.Unlock()

	return r.dispatch(ctx, responses, string(selected), storage.OutcomeSubmitted)
}

// Ignore sends the ignore draft alone, whatever type is selected.
func (r *Resolver) Ignore(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateReady {
		r.mu.Unlock()
		return ErrNotReady
	}
	var ignore *Draft
	for i := range r.drafts {
		if r.drafts[i].Type == thread.ResponseIgnore {
			ignore = &r.drafts[i]
			break
		}
	}
	if ignore == nil {
		r.mu.Unlock()
		r.reject(ErrIgnoreUnsupported, thread.ResponseIgnore)
		return ErrIgnoreUnsupported
	}
	resp, _ := emit(*ignore)
	r.state = StateSubmitting
	r.mu.Unlock()

	return r.dispatch(ctx, []thread.HumanResponse{resp}, string(thread.ResponseIgnore), storage.OutcomeIgnored)
}

// Resolve ends the run at its current point. It is allowed in every state and
// always sends the end command. A Ready or Submitting resolver becomes
// Resolved; a terminal one keeps its state, so a Failed interrupt stays Failed.
func (r *Resolver) Resolve(ctx context.Context) error {
	err := r.resumer.ResolveAndEnd(ctx)
	if err != nil {
		r.sink.Notify(notify.New(notify.KindError, notify.CodeResolveFailed,
			"Failed to resolve the run", err.Error()))
		r.record("goto_end", storage.OutcomeFailed, err.Error())
		return err
	}

	r.mu.Lock()
	if !r.state.Terminal() {
		r.state = StateResolved
	}
	r.mu.Unlock()

	r.sink.Notify(notify.New(notify.KindSuccess, notify.CodeResolved, "Run marked as resolved", ""))
	r.record("goto_end", storage.OutcomeResolved, "")
	return nil
}

// dispatch hands responses to the resumer and settles the state. The resolver
// is Submitting for the duration of the call.
func (r *Resolver) dispatch(ctx context.Context, responses []thread.HumanResponse, submitType string, success storage.Outcome) error {
	ok, err := r.resumer.SubmitResume(ctx, responses)

	var (
		next    State
		n       notify.Notification
		outcome storage.Outcome
		detail  string
		result  error
	)
	switch {
	case IsBusy(err):
		// The resumer already told the operator the session is busy.
		next, outcome, detail, result = StateReady, storage.OutcomeRejected, err.Error(), err
	case err != nil && errors.Is(err, transport.ErrInvalidAssistant):
		next, outcome, detail, result = StateFailed, storage.OutcomeInvalidAssistant, err.Error(), err
		n = notify.New(notify.KindError, notify.CodeInvalidAssistant,
			"Assistant not found", "Update the assistant id in the configuration, then retry.")
	case err != nil:
		// Transport failures are retryable.
		next, outcome, detail, result = StateReady, storage.OutcomeFailed, err.Error(), err
		n = notify.New(notify.KindError, notify.CodeSubmitFailed, "Failed to submit response", err.Error())
	case !ok:
		next, outcome, result = StateReady, storage.OutcomeNotSubmitted, ErrNotSubmitted
		n = notify.New(notify.KindWarning, notify.CodeNotSubmitted,
			"Response not submitted", "There is no active run to resume.")
	case success == storage.OutcomeIgnored:
		next, outcome = StateResolved, success
		n = notify.New(notify.KindSuccess, notify.CodeIgnored, "Interrupt ignored", "")
	default:
		next, outcome = StateResolved, success
		n = notify.New(notify.KindSuccess, notify.CodeSubmitted,
			"Response submitted", "The run is processing your response.")
	}

	r.mu.Lock()
	if r.state != StateSubmitting {
		// Resolved while in flight: that decision stands.
		settled := r.state
		r.mu.Unlock()
		r.log.Debug().Str("state", string(settled)).Str("outcome", string(outcome)).
			Msg("Dropping dispatch result for settled interrupt")
		return result
	}
	r.state = next
	r.lastErr = err
	r.mu.Unlock()

	if n.Code != "" {
		r.sink.Notify(n)
	}
	r.record(submitType, outcome, detail)
	return result
}

// reject reports a local validation failure.
func (r *Resolver) reject(err error, selected thread.ResponseType) {
	var n notify.Notification
	switch {
	case errors.Is(err, ErrEmptyResponse):
		n = notify.New(notify.KindError, notify.CodeEmptyResponse,
			"Nothing to submit", "Fill in a response before submitting.")
	case errors.Is(err, ErrIgnoreUnsupported):
		n = notify.New(notify.KindError, notify.CodeIgnoreUnsupported,
			"Cannot ignore", "This interrupt does not allow ignoring; choose another response.")
	default:
		n = notify.New(notify.KindError, notify.CodeNoMatchingResponse,
			"Nothing to submit", fmt.Sprintf("No %s response is ready; fill it in or pick another type.", selected))
	}
	r.sink.Notify(n)
	r.record(string(selected), storage.OutcomeRejected, err.Error())
}

// record writes an audit entry. Audit failures are logged and never block the operator.
func (r *Resolver) record(submitType string, outcome storage.Outcome, detail string) {
	if r.audit == nil {
		return
	}

	r.mu.Lock()
	d := &storage.Decision{
		ThreadID:   r.threadID,
		SubmitType: submitType,
		Outcome:    outcome,
		Detail:     detail,
	}
	if r.intr != nil {
		d.InterruptID = r.intr.ID
		for _, req := range r.intr.Requests {
			d.Actions = append(d.Actions, req.Name)
		}
	}
	r.mu.Unlock()

	if err := r.audit.LogDecision(d); err != nil {
		r.log.Warn().Err(err).Str("outcome", string(outcome)).Msg("Failed to record decision")
	}
}
