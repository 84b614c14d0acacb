package notify

import "agentdesk/pkg/logger"

// MessageTypeNotification is the websocket message type of pushed notifications.
const MessageTypeNotification = "notification"

// Broadcaster defines the interface for broadcasting messages via WebSocket.
type Broadcaster interface {
	// BroadcastAll sends a message to all connected clients.
	BroadcastAll(messageType string, data any) error
}

// BroadcastSink pushes notifications to every connected observer.
type BroadcastSink struct {
	broadcaster Broadcaster
}

// NewBroadcastSink creates a sink pushing through b.
func NewBroadcastSink(b Broadcaster) *BroadcastSink {
	return &BroadcastSink{broadcaster: b}
}

func (s *BroadcastSink) Notify(n Notification) {
	if s.broadcaster == nil {
		logger.Warn().Msg("notify: broadcaster not configured, skipping notification")
		return
	}
	if err := s.broadcaster.BroadcastAll(MessageTypeNotification, n); err != nil {
		logger.Error().Err(err).Str("code", string(n.Code)).Msg("notify: failed to broadcast notification")
	}
}
