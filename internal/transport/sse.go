package transport

import (
	"bufio"
	"io"
	"strings"
)

const maxFrameBytes = 4 * 1024 * 1024

// Frame is one server-sent event.
type Frame struct {
	Event string
	Data  string
	ID    string
}

// sseReader splits a text/event-stream body into frames.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(source io.Reader) *sseReader {
	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	return &sseReader{scanner: scanner}
}

// Next returns the next frame, or io.EOF when the body is exhausted.
// A frame still pending at EOF is returned before io.EOF.
func (r *sseReader) Next() (Frame, error) {
	var (
		frame   Frame
		data    []string
		pending bool
	)
	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")

		if line == "" {
			if !pending {
				continue
			}
			frame.Data = strings.Join(data, "\n")
			return frame, nil
		}
		// Skip comments (keep-alive pings)
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			frame.Event = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		case "id":
			frame.ID = value
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if pending {
		frame.Data = strings.Join(data, "\n")
		return frame, nil
	}
	return Frame{}, io.EOF
}
