package operator

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdesk/internal/interrupt"
	"agentdesk/internal/session"
	"agentdesk/internal/storage"
	"agentdesk/internal/thread"
	"agentdesk/internal/transport"
)

type scriptedStream struct {
	events []thread.Event
	pos    int
}

func (s *scriptedStream) Next() (thread.Event, error) {
	if s.pos >= len(s.events) {
		return thread.Event{}, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func (s *scriptedStream) Close() error { return nil }

// scriptedTransport replays one script per run, in order.
type scriptedTransport struct {
	mu       sync.Mutex
	scripts  [][]thread.Event
	requests []transport.RunRequest
	err      error
}

func (t *scriptedTransport) CreateThread(ctx context.Context) (string, error) {
	return "t-1", nil
}

func (t *scriptedTransport) Stream(ctx context.Context, threadID string, req transport.RunRequest) (transport.Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	if t.err != nil {
		return nil, t.err
	}
	var events []thread.Event
	if len(t.scripts) > 0 {
		events, t.scripts = t.scripts[0], t.scripts[1:]
	}
	return &scriptedStream{events: events}, nil
}

func (t *scriptedTransport) Cancel(ctx context.Context, threadID, runID string) error { return nil }

func (t *scriptedTransport) Info(ctx context.Context) (*transport.ServerInfo, error) {
	return &transport.ServerInfo{}, nil
}

func (t *scriptedTransport) last() transport.RunRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requests[len(t.requests)-1]
}

func (t *scriptedTransport) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

type memoryAudit struct {
	mu        sync.Mutex
	decisions []*storage.Decision
}

func (a *memoryAudit) LogDecision(d *storage.Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decisions = append(a.decisions, d)
	return nil
}

func interruptEvent(id string, allowed ...thread.ResponseType) thread.Event {
	return thread.ValuesEvent(thread.Values{Interrupt: thread.Some(&thread.Interrupt{
		ID: id,
		Requests: []thread.ActionRequest{{
			Name:    "book_flight",
			Args:    map[string]string{"to": "OSL"},
			Allowed: allowed,
		}},
	})})
}

func setup(t *testing.T, scripts ...[]thread.Event) (*Operator, *session.Session, *scriptedTransport, *memoryAudit) {
	t.Helper()
	tr := &scriptedTransport{scripts: scripts}
	sess, err := session.New(tr, session.Options{AssistantID: "agent"})
	require.NoError(t, err)
	audit := &memoryAudit{}
	op := New(sess, Options{Audit: audit})
	t.Cleanup(op.Close)
	return op, sess, tr, audit
}

func settle(t *testing.T, sess *session.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sess.Wait(ctx))
}

func TestNoInterruptYet(t *testing.T) {
	op, _, _, _ := setup(t)

	assert.Nil(t, op.Resolver())
	assert.ErrorIs(t, op.Submit(context.Background()), ErrNoInterrupt)
	assert.ErrorIs(t, op.SetArg(0, "to", "BER"), ErrNoInterrupt)
	assert.ErrorIs(t, op.Resolve(context.Background()), ErrNoInterrupt)

	v := op.View()
	assert.False(t, v.Pending)
	assert.Equal(t, interrupt.StateUninitialized, v.State)
	assert.NotNil(t, v.Drafts)
}

func TestInterruptLoadsResolver(t *testing.T) {
	op, sess, _, _ := setup(t, []thread.Event{
		interruptEvent("i-1", thread.ResponseAccept, thread.ResponseEdit, thread.ResponseIgnore),
	})

	require.NoError(t, sess.Start(context.Background(), "book it", nil))
	settle(t, sess)

	r := op.Resolver()
	require.NotNil(t, r)
	assert.Equal(t, interrupt.StateReady, r.State())

	v := op.View()
	assert.True(t, v.Pending)
	assert.Equal(t, "i-1", v.InterruptID)
	assert.Equal(t, thread.ResponseAccept, v.DefaultSubmitType)
	assert.True(t, v.AcceptAllowed)
	require.Len(t, v.Drafts, 2)
	assert.Equal(t, thread.ResponseEdit, v.Drafts[0].Type)
}

func TestEditAndSubmitResumesRun(t *testing.T) {
	op, sess, tr, audit := setup(t,
		[]thread.Event{interruptEvent("i-1", thread.ResponseAccept, thread.ResponseEdit)},
		nil,
	)
	require.NoError(t, sess.Start(context.Background(), "book it", nil))
	settle(t, sess)

	require.NoError(t, op.SetArg(0, "to", "BER"))
	require.NoError(t, op.SelectType(thread.ResponseEdit))
	require.NoError(t, op.Submit(context.Background()))
	settle(t, sess)

	req := tr.last()
	require.NotNil(t, req.Command)
	require.Len(t, req.Command.Resume, 1)
	assert.Equal(t, thread.ResponseEdit, req.Command.Resume[0].Type)
	assert.Equal(t, "BER", req.Command.Resume[0].Args["to"])

	v := op.View()
	assert.False(t, v.Pending)
	assert.Equal(t, interrupt.StateResolved, v.State)
	assert.Equal(t, thread.StatusIdle, sess.Snapshot().Status)

	require.Len(t, audit.decisions, 1)
	assert.Equal(t, storage.OutcomeSubmitted, audit.decisions[0].Outcome)
	assert.Equal(t, "t-1", audit.decisions[0].ThreadID)
}

func TestNewInterruptGetsFreshResolver(t *testing.T) {
	op, sess, _, _ := setup(t,
		[]thread.Event{interruptEvent("i-1", thread.ResponseEdit)},
		[]thread.Event{interruptEvent("i-2", thread.ResponseEdit)},
	)
	require.NoError(t, sess.Start(context.Background(), "book it", nil))
	settle(t, sess)
	first := op.Resolver()
	require.NoError(t, op.SetArg(0, "to", "BER"))

	require.NoError(t, op.Submit(context.Background()))
	settle(t, sess)

	second := op.Resolver()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, "i-2", second.Interrupt().ID)
	assert.False(t, second.HasEdited())
	assert.Equal(t, "OSL", second.Drafts()[0].Args["to"])
}

func TestFailedResolverIsReplaced(t *testing.T) {
	op, sess, tr, _ := setup(t, []thread.Event{interruptEvent("i-1", thread.ResponseAccept)})
	require.NoError(t, sess.Start(context.Background(), "book it", nil))
	settle(t, sess)
	failed := op.Resolver()

	tr.setErr(&transport.RequestError{StatusCode: 404, Message: "Invalid assistant ID"})
	assert.ErrorIs(t, op.Submit(context.Background()), transport.ErrInvalidAssistant)
	assert.Equal(t, interrupt.StateFailed, failed.State())
	assert.False(t, op.View().Pending)

	// The next publish, here an assistant change, loads the interrupt again.
	tr.setErr(nil)
	require.NoError(t, sess.SetAssistantID("fixed"))
	fresh := op.Resolver()
	assert.NotSame(t, failed, fresh)
	assert.Equal(t, interrupt.StateReady, fresh.State())
}

func TestResolveEndsRun(t *testing.T) {
	op, sess, tr, audit := setup(t, []thread.Event{interruptEvent("i-1", thread.ResponseAccept)}, nil)
	require.NoError(t, sess.Start(context.Background(), "book it", nil))
	settle(t, sess)

	require.NoError(t, op.Resolve(context.Background()))
	settle(t, sess)

	assert.Equal(t, transport.EndNode, tr.last().Command.Goto)
	assert.Equal(t, interrupt.StateResolved, op.Resolver().State())
	require.Len(t, audit.decisions, 1)
	assert.Equal(t, storage.OutcomeResolved, audit.decisions[0].Outcome)
}

func TestResolveWithoutInterruptEndsThread(t *testing.T) {
	op, sess, tr, _ := setup(t, nil, nil)
	require.NoError(t, sess.Start(context.Background(), "hello", nil))
	settle(t, sess)

	require.NoError(t, op.Resolve(context.Background()))
	settle(t, sess)
	assert.Equal(t, transport.EndNode, tr.last().Command.Goto)
}
