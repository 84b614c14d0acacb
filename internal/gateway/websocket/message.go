// Package websocket pushes session state to connected observers.
package websocket

import "encoding/json"

// WSMessage represents a WebSocket message.
type WSMessage struct {
	Type    string          `json:"type"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Message types.
const (
	TypePing  = "ping"
	TypePong  = "pong"
	TypeError = "error"

	// Pushed to observers.
	TypeSnapshot     = "snapshot"
	TypeInterrupt    = "interrupt"
	TypeNotification = "notification"
)

// Encode builds a typed message carrying payload as data.
func Encode(messageType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Type: messageType, Data: data})
}
