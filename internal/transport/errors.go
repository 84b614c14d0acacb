package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrTransport marks failures to reach the agent server or to complete a request.
	// They are retryable by re-submitting.
	ErrTransport = errors.New("transport failure")
	// ErrInvalidAssistant means the server does not know the configured assistant.
	// Retrying does not help until the assistant id is fixed.
	ErrInvalidAssistant = errors.New("invalid assistant")
	// ErrNoThread is returned when a run is addressed without a thread id.
	ErrNoThread = errors.New("thread id is required")
)

// RequestError is a non-2xx response from the agent server.
type RequestError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	statusText := http.StatusText(e.StatusCode)
	if statusText == "" {
		statusText = "unknown status"
	}
	return fmt.Sprintf("request failed: status=%d (%s) message=%s", e.StatusCode, statusText, e.Message)
}

// Unwrap classifies the error as ErrInvalidAssistant or ErrTransport.
func (e *RequestError) Unwrap() error {
	if IsInvalidAssistantMessage(e.Message) {
		return ErrInvalidAssistant
	}
	return ErrTransport
}

// IsInvalidAssistantMessage reports whether a server message complains about the assistant id.
func IsInvalidAssistantMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "invalid assistant") {
		return true
	}
	return strings.Contains(lower, "assistant") && strings.Contains(lower, "not found")
}

// mapRequestError builds a RequestError, preferring the server's detail message.
func mapRequestError(statusCode int, body []byte) error {
	msg := strings.TrimSpace(string(body))

	var parsed struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch d := parsed.Detail.(type) {
		case string:
			msg = d
		case nil:
			if parsed.Message != "" {
				msg = parsed.Message
			} else if parsed.Error != "" {
				msg = parsed.Error
			}
		default:
			if b, err := json.Marshal(d); err == nil {
				msg = string(b)
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	return &RequestError{
		StatusCode: statusCode,
		Message:    msg,
		Body:       append([]byte(nil), body...),
	}
}
