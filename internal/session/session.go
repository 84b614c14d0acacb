// Package session owns one agent run from the client's point of view: it starts
// runs, resumes and ends paused ones, stops streams, and folds every streamed
// event into the canonical snapshot.
package session

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentdesk/internal/notify"
	"agentdesk/internal/thread"
	"agentdesk/internal/transport"
	"agentdesk/pkg/logger"
)

// cancelTimeout bounds the best-effort server-side cancel issued by Stop.
const cancelTimeout = 5 * time.Second

// Options configures a session. AssistantID is required; there is no fallback.
type Options struct {
	AssistantID string
	StreamModes []string
	Subgraphs   bool
	Resumable   bool
	Sink        notify.Sink
	Logger      *zerolog.Logger
}

// Session is a single conversation with a remote agent. At most one run streams
// at a time; a request arriving while one is active is rejected.
type Session struct {
	tr    transport.Transport
	opts  Options
	store *thread.Store
	sink  *notify.Dedup
	log   zerolog.Logger

	mu          sync.Mutex
	assistantID string
	active      *run
}

// run is one open stream and its consumer.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stream  transport.Stream
	stopped bool
}

func (r *run) stop() {
	r.mu.Lock()
	r.stopped = true
	stream := r.stream
	r.mu.Unlock()

	r.cancel()
	if stream != nil {
		_ = stream.Close()
	}
}

func (r *run) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// attach records the opened stream. It reports false when the run was stopped
// while the stream was being opened.
func (r *run) attach(s transport.Stream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.stream = s
	return true
}

// New creates a session talking through tr.
func New(tr transport.Transport, opts Options) (*Session, error) {
	if strings.TrimSpace(opts.AssistantID) == "" {
		return nil, ErrNoAssistant
	}
	sink := opts.Sink
	if sink == nil {
		sink = notify.Discard
	}
	s := &Session{
		tr:          tr,
		opts:        opts,
		store:       thread.NewStore(thread.NewSnapshot(opts.AssistantID)),
		sink:        notify.NewDedup(sink),
		assistantID: opts.AssistantID,
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	} else {
		s.log = logger.Named("session")
	}
	return s, nil
}

// Snapshot returns the current state of the run.
func (s *Session) Snapshot() thread.Snapshot {
	return s.store.Snapshot()
}

// Subscribe registers fn for every published snapshot and returns the
// unsubscribe function. fn must not call back into the session synchronously.
func (s *Session) Subscribe(fn thread.Listener) func() {
	return s.store.Subscribe(fn)
}

// AssistantID returns the assistant new runs are routed to.
func (s *Session) AssistantID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assistantID
}

// SetAssistantID routes later runs to another assistant.
func (s *Session) SetAssistantID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNoAssistant
	}
	s.mu.Lock()
	s.assistantID = id
	s.mu.Unlock()

	s.store.Update(func(cur thread.Snapshot) (thread.Snapshot, bool) {
		if cur.AssistantID == id {
			return cur, false
		}
		cur.AssistantID = id
		return cur, true
	})
	return nil
}

// Busy reports whether a run is open.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Start sends a human message and streams the run it starts. The message shows
// up in the snapshot before the server confirms it.
func (s *Session) Start(ctx context.Context, text string, runContext map[string]any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	r, prev, err := s.begin()
	if err != nil {
		return err
	}

	threadID := s.store.Snapshot().ThreadID
	if threadID == "" {
		id, err := s.createThread(ctx, r)
		if err != nil {
			s.abort(r, thread.StatusError, err, true)
			return err
		}
		threadID = id
	}

	human := thread.Message{
		ID:      uuid.NewString(),
		Role:    thread.RoleHuman,
		Content: thread.Content(text),
	}
	var input []thread.Message
	s.store.Update(func(cur thread.Snapshot) (thread.Snapshot, bool) {
		input = append(thread.EnsureToolResponses(cur.Messages), human)
		optimistic := thread.Values{
			Messages:  thread.Some(append(slices.Clone(cur.Messages), input...)),
			Interrupt: thread.Some[*thread.Interrupt](nil),
		}
		if runContext != nil {
			optimistic.Context = thread.Some(runContext)
		}
		cur.ThreadID = threadID
		next, _ := thread.Fold(cur, thread.OptimisticEvent(optimistic))
		return next, true
	})

	req := s.request()
	req.Input = &transport.RunInput{Messages: input, Context: runContext}
	if err := s.open(ctx, r, threadID, req, nil); err != nil {
		s.abort(r, thread.StatusError, err, true)
		return err
	}
	s.log.Debug().Str("thread_id", threadID).Str("prev_status", string(prev)).Msg("Run started")
	return nil
}

// SubmitResume resumes the paused run with responses. It returns false without
// an error when there is no paused run to resume.
func (s *Session) SubmitResume(ctx context.Context, responses []thread.HumanResponse) (bool, error) {
	r, prev, err := s.begin()
	if err != nil {
		return false, err
	}

	snap := s.store.Snapshot()
	if snap.ThreadID == "" || snap.Interrupt == nil {
		s.abort(r, prev, nil, false)
		return false, nil
	}

	req := s.request()
	req.Command = transport.ResumeCommand(responses)
	if err := s.open(ctx, r, snap.ThreadID, req, s.clearInterrupt); err != nil {
		// The resolver reports dispatch failures; the interrupt is still pending.
		s.abort(r, prev, err, false)
		return false, err
	}
	return true, nil
}

// ResolveAndEnd terminates the run at its current point, whatever is pending.
// An open stream is stopped first.
func (s *Session) ResolveAndEnd(ctx context.Context) error {
	threadID := s.store.Snapshot().ThreadID
	if threadID == "" {
		return ErrNoThread
	}
	if err := s.Stop(ctx); err != nil {
		return err
	}

	r, prev, err := s.begin()
	if err != nil {
		return err
	}
	req := s.request()
	req.Command = transport.EndCommand()
	if err := s.open(ctx, r, threadID, req, s.clearInterrupt); err != nil {
		s.abort(r, prev, err, false)
		return err
	}
	return nil
}

// Regenerate reruns the agent without new input from the checkpoint preceding
// messageID. Messages without a parent checkpoint rerun from the thread head.
func (s *Session) Regenerate(ctx context.Context, messageID string) error {
	snap := s.store.Snapshot()
	if snap.ThreadID == "" {
		return ErrNoThread
	}
	idx := slices.IndexFunc(snap.Messages, func(m thread.Message) bool { return m.ID == messageID })
	if idx < 0 {
		return ErrNoMessage
	}
	checkpoint := snap.Messages[idx].ParentCheckpoint

	r, _, err := s.begin()
	if err != nil {
		return err
	}
	req := s.request()
	req.Checkpoint = checkpoint
	if err := s.open(ctx, r, snap.ThreadID, req, nil); err != nil {
		s.abort(r, thread.StatusError, err, true)
		return err
	}
	return nil
}

// Stop cancels the open stream. Content already folded stays in the snapshot.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()
	if r == nil {
		return nil
	}

	r.stop()

	snap := s.store.Snapshot()
	if snap.ThreadID != "" && snap.RunID != "" {
		cctx, cancel := context.WithTimeout(ctx, cancelTimeout)
		if err := s.tr.Cancel(cctx, snap.ThreadID, snap.RunID); err != nil {
			s.log.Warn().Err(err).Str("run_id", snap.RunID).Msg("Failed to cancel run on server")
		}
		cancel()
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset stops any run and starts a new, empty conversation.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	assistantID := s.AssistantID()
	s.store.Update(func(cur thread.Snapshot) (thread.Snapshot, bool) {
		return thread.NewSnapshot(assistantID), true
	})
	s.sink.Reset()
	return nil
}

// Wait blocks until the open run, if any, has finished.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin claims the session for a new run and marks it streaming.
func (s *Session) begin() (*run, thread.Status, error) {
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		s.sink.Notify(notify.New(notify.KindWarning, notify.CodeRunBusy,
			"A run is already in progress", "Wait for it to finish or stop it first."))
		return nil, "", ErrRunBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	s.active = r
	s.mu.Unlock()

	var prev thread.Status
	s.store.Update(func(cur thread.Snapshot) (thread.Snapshot, bool) {
		prev = cur.Status
		cur.Status = thread.StatusStreaming
		cur.RunID = ""
		cur.LastError = ""
		return cur, true
	})
	return r, prev, nil
}

func (s *Session) request() transport.RunRequest {
	return transport.RunRequest{
		AssistantID: s.AssistantID(),
		StreamModes: s.opts.StreamModes,
		Subgraphs:   s.opts.Subgraphs,
		Resumable:   s.opts.Resumable,
	}
}

func (s *Session) createThread(ctx context.Context, r *run) (string, error) {
	stop := context.AfterFunc(ctx, r.cancel)
	defer stop()
	return s.tr.CreateThread(r.ctx)
}

// open starts the stream and hands it to a consumer goroutine. The caller's ctx
// bounds only the open; the stream itself lives until it ends or Stop is called.
// opened, if set, runs once the stream is accepted and before any event is folded.
func (s *Session) open(ctx context.Context, r *run, threadID string, req transport.RunRequest, opened func()) error {
	stop := context.AfterFunc(ctx, r.cancel)
	stream, err := s.tr.Stream(r.ctx, threadID, req)
	stop()
	if err != nil {
		return err
	}
	if !r.attach(stream) {
		_ = stream.Close()
		return context.Canceled
	}
	if opened != nil {
		opened()
	}
	go s.consume(r, stream)
	return nil
}

func (s *Session) clearInterrupt() {
	s.store.Apply(thread.OptimisticEvent(thread.Values{Interrupt: thread.Some[*thread.Interrupt](nil)}))
}

// consume folds events in arrival order, one at a time, until the stream ends.
func (s *Session) consume(r *run, stream transport.Stream) {
	defer stream.Close()

	var runErr error
	for {
		e, err := stream.Next()
		if err != nil {
			if err != io.EOF && !r.isStopped() {
				runErr = err
			}
			break
		}
		if e.Kind == thread.EventError {
			runErr = &thread.RunError{Code: "error"}
			if e.Err != nil {
				runErr = e.Err
			}
			continue
		}
		if e.Kind == thread.EventEnd {
			break
		}
		if !s.store.Apply(e) && e.Kind == thread.EventUnknown {
			s.log.Debug().Str("event", e.Name).Msg("Ignored stream event")
		}
	}
	s.finish(r, runErr)
}

// finish settles the status after a stream ends and releases the session.
func (s *Session) finish(r *run, runErr error) {
	stopped := r.isStopped()
	s.store.Update(func(cur thread.Snapshot) (thread.Snapshot, bool) {
		switch {
		case stopped:
			cur.Status = thread.StatusIdle
		case runErr != nil:
			cur.Status = thread.StatusError
			cur.LastError = runErr.Error()
		case cur.Interrupt != nil:
			cur.Status = thread.StatusAwaitingHumanInput
		default:
			cur.Status = thread.StatusIdle
		}
		return cur, true
	})

	switch {
	case stopped:
		s.log.Debug().Msg("Run stopped")
	case runErr != nil:
		s.log.Warn().Err(runErr).Msg("Run failed")
		s.notifyFailure(runErr)
	default:
		// The error condition has cleared.
		s.sink.Reset()
	}
	s.release(r)
}

// abort releases a run that never streamed and restores status.
func (s *Session) abort(r *run, status thread.Status, err error, report bool) {
	stopped := r.isStopped()
	r.cancel()
	if stopped {
		status = thread.StatusIdle
	}
	s.store.Update(func(cur thread.Snapshot) (thread.Snapshot, bool) {
		cur.Status = status
		if err != nil && status == thread.StatusError {
			cur.LastError = err.Error()
		}
		return cur, true
	})
	if err != nil && report && !stopped {
		s.log.Warn().Err(err).Msg("Failed to start run")
		s.notifyFailure(err)
	}
	s.release(r)
}

func (s *Session) release(r *run) {
	s.mu.Lock()
	if s.active == r {
		s.active = nil
	}
	s.mu.Unlock()
	r.cancel()
	close(r.done)
}

func (s *Session) notifyFailure(err error) {
	var runErr *thread.RunError
	invalid := errors.Is(err, transport.ErrInvalidAssistant) ||
		(errors.As(err, &runErr) && transport.IsInvalidAssistantMessage(runErr.Message))
	if invalid {
		s.sink.Notify(notify.New(notify.KindError, notify.CodeInvalidAssistant,
			"Assistant not found", "Update the assistant id in the configuration, then retry."))
		return
	}
	s.sink.Notify(notify.New(notify.KindError, notify.CodeRunFailed, "Run failed", err.Error()))
}
