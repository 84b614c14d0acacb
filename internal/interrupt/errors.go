package interrupt

import "errors"

var (
	// ErrEmptyResponse indicates there is nothing to submit: the interrupt produced no drafts.
	ErrEmptyResponse = errors.New("interrupt: no response to submit")

	// ErrNoMatchingResponse indicates no emitted response matches the selected submit type.
	ErrNoMatchingResponse = errors.New("interrupt: no response matches the selected type")

	// ErrIgnoreUnsupported indicates the interrupt does not allow ignoring.
	ErrIgnoreUnsupported = errors.New("interrupt: ignore is not allowed")

	// ErrNotReady indicates the resolver is not accepting operator actions.
	ErrNotReady = errors.New("interrupt: resolver is not ready")

	// ErrAlreadyInitialized indicates Init was called twice on one resolver.
	ErrAlreadyInitialized = errors.New("interrupt: resolver already initialized")

	// ErrNoDraft indicates the draft index is out of range or of the wrong type.
	ErrNoDraft = errors.New("interrupt: no such draft")

	// ErrUnknownArg indicates an edit targets an argument the action does not have.
	ErrUnknownArg = errors.New("interrupt: unknown argument")

	// ErrInvalidType indicates an unknown response type.
	ErrInvalidType = errors.New("interrupt: invalid response type")

	// ErrNotSubmitted indicates the session had no active run to resume.
	ErrNotSubmitted = errors.New("interrupt: response not submitted")
)

// IsValidation reports whether err is a local validation failure the operator can fix.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyResponse) ||
		errors.Is(err, ErrNoMatchingResponse) ||
		errors.Is(err, ErrIgnoreUnsupported)
}

// IsBusy reports whether err is a Resumer rejecting a command because another
// run holds the session. Such errors implement Busy() bool.
func IsBusy(err error) bool {
	var b interface{ Busy() bool }
	return errors.As(err, &b) && b.Busy()
}
