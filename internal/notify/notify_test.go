package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu  sync.Mutex
	got []Notification
}

func (m *memorySink) Notify(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, n)
}

func (m *memorySink) all() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.got...)
}

type mockBroadcaster struct {
	types []string
	data  []any
	err   error
}

func (m *mockBroadcaster) BroadcastAll(messageType string, data any) error {
	m.types = append(m.types, messageType)
	m.data = append(m.data, data)
	return m.err
}

func TestDedup_SuppressesRepeatedErrors(t *testing.T) {
	mem := &memorySink{}
	d := NewDedup(mem)

	boom := New(KindError, CodeRunFailed, "Run failed", "boom")
	d.Notify(boom)
	d.Notify(boom)
	d.Notify(New(KindError, CodeRunFailed, "Run failed", "other"))
	d.Notify(New(KindSuccess, CodeSubmitted, "Submitted", ""))
	d.Notify(New(KindSuccess, CodeSubmitted, "Submitted", ""))

	got := mem.all()
	require.Len(t, got, 4)
	assert.Equal(t, "boom", got[0].Detail)
	assert.Equal(t, "other", got[1].Detail)

	d.Reset()
	d.Notify(boom)
	assert.Len(t, mem.all(), 5)
}

func TestMulti(t *testing.T) {
	a, b := &memorySink{}, &memorySink{}
	Multi{a, nil, b}.Notify(New(KindWarning, CodeNotSubmitted, "Not submitted", ""))
	assert.Len(t, a.all(), 1)
	assert.Len(t, b.all(), 1)
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)
	s.Notify(New(KindError, CodeSubmitFailed, "Failed to submit response", "connection refused"))
	s.Notify(New(KindSuccess, CodeSubmitted, "Response submitted", ""))

	assert.Equal(t, "✗ Failed to submit response: connection refused\n✓ Response submitted\n", buf.String())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(zerolog.New(&buf))
	s.Notify(New(KindWarning, CodeIgnoreUnsupported, "Ignore is not allowed", ""))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "ignore_unsupported", line["code"])
	assert.Equal(t, "Ignore is not allowed", line["message"])
}

func TestBroadcastSink(t *testing.T) {
	b := &mockBroadcaster{}
	s := NewBroadcastSink(b)
	n := New(KindSuccess, CodeResolved, "Run resolved", "")
	s.Notify(n)

	require.Len(t, b.types, 1)
	assert.Equal(t, MessageTypeNotification, b.types[0])
	assert.Equal(t, n, b.data[0])

	// broadcast failures are logged, not raised
	b.err = errors.New("closed")
	s.Notify(n)
	NewBroadcastSink(nil).Notify(n)
}

func TestDiscard(t *testing.T) {
	Discard.Notify(New(KindError, CodeRunFailed, "x", ""))
}
