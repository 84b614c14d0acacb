package session

import "errors"

// ErrRunBusy indicates a run is already streaming; the request is rejected, not queued.
// It reports Busy() so a resolver can tell it from a transport failure.
var ErrRunBusy error = busyError{}

type busyError struct{}

func (busyError) Error() string { return "session: a run is already in progress" }
func (busyError) Busy() bool    { return true }

var (
	// ErrEmptyMessage indicates an attempt to start a run without text.
	ErrEmptyMessage = errors.New("session: message is empty")

	// ErrNoThread indicates there is no conversation to act on yet.
	ErrNoThread = errors.New("session: no active thread")

	// ErrNoMessage indicates Regenerate was given an id that is not in the conversation.
	ErrNoMessage = errors.New("session: no such message")

	// ErrNoAssistant indicates the session was created without an assistant id.
	ErrNoAssistant = errors.New("session: assistant id is required")
)
