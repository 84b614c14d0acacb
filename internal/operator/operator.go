// Package operator binds an interrupt resolver to each interrupt a session
// raises and is the single entry point the CLI and the gateway act through.
package operator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"agentdesk/internal/interrupt"
	"agentdesk/internal/notify"
	"agentdesk/internal/session"
	"agentdesk/internal/thread"
	"agentdesk/pkg/logger"
)

// ErrNoInterrupt indicates there is no interrupt to act on.
var ErrNoInterrupt = errors.New("operator: no pending interrupt")

// Options configures an operator.
type Options struct {
	Sink   notify.Sink
	Audit  interrupt.AuditLog
	Logger *zerolog.Logger
}

// Operator tracks the session's pending interrupt. A new interrupt identity
// always gets a new resolver; the previous one is dropped. A pending interrupt
// whose resolver failed gets a fresh resolver on the next published snapshot.
type Operator struct {
	sess  *session.Session
	sink  notify.Sink
	audit interrupt.AuditLog
	log   zerolog.Logger

	mu       sync.Mutex
	resolver *interrupt.Resolver
	identity string

	unsubscribe func()
}

// New attaches an operator to sess.
func New(sess *session.Session, opts Options) *Operator {
	o := &Operator{
		sess:  sess,
		sink:  opts.Sink,
		audit: opts.Audit,
	}
	if o.sink == nil {
		o.sink = notify.Discard
	}
	if opts.Logger != nil {
		o.log = *opts.Logger
	} else {
		o.log = logger.Named("operator")
	}
	o.unsubscribe = sess.Subscribe(o.observe)
	return o
}

// Close detaches the operator from the session.
func (o *Operator) Close() {
	o.unsubscribe()
}

// Session returns the session the operator drives.
func (o *Operator) Session() *session.Session {
	return o.sess
}

func (o *Operator) observe(snap thread.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if snap.Interrupt == nil {
		// The finished resolver stays around for inspection, but the same
		// interrupt raised again later is a new instance.
		o.identity = ""
		return
	}
	id := snap.Interrupt.Identity()
	if o.resolver != nil && id == o.identity && !o.resolver.State().Terminal() {
		return
	}

	r := interrupt.NewResolver(o.sess, interrupt.Options{
		ThreadID: snap.ThreadID,
		Sink:     o.sink,
		Audit:    o.audit,
	})
	if err := r.Init(snap.Interrupt); err != nil {
		o.log.Error().Err(err).Str("interrupt_id", snap.Interrupt.ID).Msg("Failed to load interrupt")
		return
	}
	o.resolver = r
	o.identity = id
	o.log.Info().Str("interrupt_id", snap.Interrupt.ID).Int("requests", len(snap.Interrupt.Requests)).Msg("Interrupt raised")
}

// Resolver returns the resolver of the latest interrupt, or nil.
func (o *Operator) Resolver() *interrupt.Resolver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resolver
}

func (o *Operator) current() (*interrupt.Resolver, error) {
	r := o.Resolver()
	if r == nil {
		return nil, ErrNoInterrupt
	}
	return r, nil
}

// SetArg changes an argument of the edit draft at index draft.
func (o *Operator) SetArg(draft int, key, value string) error {
	r, err := o.current()
	if err != nil {
		return err
	}
	return r.SetArg(draft, key, value)
}

// SetResponse sets the reply of the response draft at index draft.
func (o *Operator) SetResponse(draft int, text string) error {
	r, err := o.current()
	if err != nil {
		return err
	}
	return r.SetResponse(draft, text)
}

// SelectType picks the type the next Submit sends.
func (o *Operator) SelectType(t thread.ResponseType) error {
	r, err := o.current()
	if err != nil {
		return err
	}
	return r.SelectType(t)
}

// Submit sends the selected response.
func (o *Operator) Submit(ctx context.Context) error {
	r, err := o.current()
	if err != nil {
		return err
	}
	return r.Submit(ctx)
}

// Ignore dismisses the interrupt.
func (o *Operator) Ignore(ctx context.Context) error {
	r, err := o.current()
	if err != nil {
		return err
	}
	return r.Ignore(ctx)
}

// Resolve ends the run. Without a loaded interrupt it still ends an existing
// thread, through a throwaway resolver so the outcome is reported and audited.
func (o *Operator) Resolve(ctx context.Context) error {
	r := o.Resolver()
	if r == nil || r.State().Terminal() {
		if o.sess.Snapshot().ThreadID == "" {
			return ErrNoInterrupt
		}
		r = interrupt.NewResolver(o.sess, interrupt.Options{
			ThreadID: o.sess.Snapshot().ThreadID,
			Sink:     o.sink,
			Audit:    o.audit,
		})
	}
	return r.Resolve(ctx)
}

// View is a render-ready summary of the pending interrupt.
type View struct {
	Pending                 bool                   `json:"pending"`
	InterruptID             string                 `json:"interrupt_id,omitempty"`
	State                   interrupt.State        `json:"state"`
	Generic                 bool                   `json:"generic"`
	Requests                []thread.ActionRequest `json:"requests,omitempty"`
	Raw                     json.RawMessage        `json:"raw,omitempty"`
	Drafts                  []interrupt.Draft      `json:"drafts"`
	DefaultSubmitType       thread.ResponseType    `json:"default_submit_type,omitempty"`
	SelectedSubmitType      thread.ResponseType    `json:"selected_submit_type,omitempty"`
	AcceptAllowed           bool                   `json:"accept_allowed"`
	HasEdited               bool                   `json:"has_edited"`
	HasAddedResponse        bool                   `json:"has_added_response"`
	SupportsMultipleMethods bool                   `json:"supports_multiple_methods"`
	Error                   string                 `json:"error,omitempty"`
}

// View summarizes the latest resolver. Pending is false when no interrupt is
// waiting for a decision.
func (o *Operator) View() View {
	o.mu.Lock()
	r, identity := o.resolver, o.identity
	o.mu.Unlock()

	if r == nil {
		return View{State: interrupt.StateUninitialized, Drafts: []interrupt.Draft{}}
	}
	intr := r.Interrupt()
	v := View{
		Pending:                 identity != "" && !r.State().Terminal(),
		InterruptID:             intr.ID,
		State:                   r.State(),
		Generic:                 intr.Generic(),
		Requests:                intr.Requests,
		Raw:                     intr.Raw,
		Drafts:                  r.Drafts(),
		DefaultSubmitType:       r.DefaultSubmitType(),
		SelectedSubmitType:      r.SelectedSubmitType(),
		AcceptAllowed:           r.AcceptAllowed(),
		HasEdited:               r.HasEdited(),
		HasAddedResponse:        r.HasAddedResponse(),
		SupportsMultipleMethods: r.SupportsMultipleMethods(),
	}
	if err := r.Err(); err != nil {
		v.Error = err.Error()
	}
	return v
}
