package websocket

import (
	"sync"

	"agentdesk/pkg/logger"
)

// WelcomeFunc returns the messages a newly connected client receives first.
type WelcomeFunc func() [][]byte

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Messages for every client.
	broadcast chan []byte

	done     chan struct{}
	stopOnce sync.Once

	// Mutex for thread-safe access.
	mu sync.RWMutex

	welcome WelcomeFunc
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// SetWelcome sets the messages sent to each client when it connects.
func (h *Hub) SetWelcome(fn WelcomeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.welcome = fn
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			welcome := h.welcome
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("WebSocket client connected")

			if welcome != nil {
				for _, data := range welcome() {
					client.trySend(data)
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("WebSocket client disconnected")

		case data := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				// Slow clients miss messages; the next snapshot supersedes them.
				client.trySend(data)
			}
			h.mu.RUnlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends raw data to all connected clients.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// BroadcastAll sends a typed message to all connected clients.
func (h *Hub) BroadcastAll(messageType string, payload any) error {
	data, err := Encode(messageType, payload)
	if err != nil {
		logger.Error().Err(err).Str("type", messageType).Msg("Failed to marshal broadcast message")
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
