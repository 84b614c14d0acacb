// Package notify carries operator-facing outcomes (submission success, failures,
// validation problems) from the core to whatever presents them.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Kind is the severity of a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
)

// Code identifies the outcome a notification reports.
type Code string

const (
	CodeSubmitted          Code = "submitted"
	CodeNotSubmitted       Code = "not_submitted"
	CodeSubmitFailed       Code = "submit_failed"
	CodeInvalidAssistant   Code = "invalid_assistant"
	CodeEmptyResponse      Code = "empty_response"
	CodeNoMatchingResponse Code = "no_matching_response"
	CodeIgnoreUnsupported  Code = "ignore_unsupported"
	CodeIgnored            Code = "ignored"
	CodeResolved           Code = "resolved"
	CodeResolveFailed      Code = "resolve_failed"
	CodeRunBusy            Code = "run_busy"
	CodeRunFailed          Code = "run_failed"
	CodeServerUnreachable  Code = "server_unreachable"
	CodeServerReachable    Code = "server_reachable"
	CodeServerOutdated     Code = "server_outdated"
)

// Notification is one outcome reported to the operator.
type Notification struct {
	Kind   Kind      `json:"kind"`
	Code   Code      `json:"code"`
	Title  string    `json:"title"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

// Sink receives notifications. Implementations must be safe for concurrent use.
type Sink interface {
	Notify(n Notification)
}

// New builds a notification stamped with the current time.
func New(kind Kind, code Code, title, detail string) Notification {
	return Notification{Kind: kind, Code: code, Title: title, Detail: detail, Time: time.Now()}
}

// Discard drops every notification.
var Discard Sink = discard{}

type discard struct{}

func (discard) Notify(Notification) {}

// LogSink writes notifications to a zerolog logger.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink that logs to l.
func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Notify(n Notification) {
	var e *zerolog.Event
	switch n.Kind {
	case KindError:
		e = s.log.Error()
	case KindWarning:
		e = s.log.Warn()
	default:
		e = s.log.Info()
	}
	e.Str("code", string(n.Code)).Str("detail", n.Detail).Msg(n.Title)
}

// WriterSink prints notifications as single lines, for terminals.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink printing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	icon := "✓"
	switch n.Kind {
	case KindError:
		icon = "✗"
	case KindWarning:
		icon = "!"
	}
	if n.Detail != "" {
		fmt.Fprintf(s.w, "%s %s: %s\n", icon, n.Title, n.Detail)
		return
	}
	fmt.Fprintf(s.w, "%s %s\n", icon, n.Title)
}

// Multi fans a notification out to several sinks in order.
type Multi []Sink

func (m Multi) Notify(n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}

// Dedup suppresses repeated identical error notifications. An error is shown once
// until Reset is called, which happens when the error condition clears.
type Dedup struct {
	next Sink

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedup wraps next.
func NewDedup(next Sink) *Dedup {
	return &Dedup{next: next, seen: make(map[string]struct{})}
}

func (d *Dedup) Notify(n Notification) {
	if n.Kind == KindError {
		key := string(n.Code) + "\x00" + n.Title + "\x00" + n.Detail
		d.mu.Lock()
		_, dup := d.seen[key]
		d.seen[key] = struct{}{}
		d.mu.Unlock()
		if dup {
			return
		}
	}
	d.next.Notify(n)
}

// Reset forgets all previously seen errors.
func (d *Dedup) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.seen)
}
