package websocket

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"agentdesk/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// Observers only ever send small control messages.
	maxInbound = 4 * 1024

	// Snapshots are superseded quickly; a short queue is enough.
	queueSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The gateway listens on loopback unless told otherwise; origins are
	// checked by the CORS middleware for the HTTP side only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one observer socket. The server pushes session state to it; the
// observer may only ping. Operator actions go through the HTTP API.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	id          string
	connectedAt time.Time
	dropped     atomic.Int64
	log         zerolog.Logger
}

// NewClient wraps conn for hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, queueSize),
		id:          id,
		connectedAt: time.Now(),
		log:         logger.Named("observer").With().Str("client_id", id).Logger(),
	}
}

// ID returns the client id.
func (c *Client) ID() string {
	return c.id
}

// Dropped returns how many pushes were discarded because the queue was full.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// trySend queues data without blocking. A slow observer loses messages; the
// next snapshot brings it up to date.
func (c *Client) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		if c.dropped.Add(1) == 1 {
			c.log.Warn().Msg("Observer is too slow, dropping pushes")
		}
	}
}

// listen answers pings until the socket closes, then unregisters the client.
func (c *Client) listen() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInbound)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("Observer went away")
			}
			return
		}
		c.answer(data)
	}
}

// answer handles one inbound message. Only ping is understood.
func (c *Client) answer(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(WSMessage{Type: TypeError, Code: "INVALID_MESSAGE", Message: "message is not JSON"})
		return
	}
	if msg.Type == TypePing {
		c.reply(WSMessage{Type: TypePong})
		return
	}
	c.log.Debug().Str("type", msg.Type).Msg("Rejected inbound message")
	c.reply(WSMessage{
		Type:    TypeError,
		Code:    "UNSUPPORTED",
		Message: "observers are read-only; use the HTTP API for " + msg.Type,
	})
}

func (c *Client) reply(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// deliver writes queued pushes and keepalive pings until the hub closes the
// queue or a write fails.
func (c *Client) deliver() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		var (
			kind    = websocket.PingMessage
			payload []byte
		)
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "gateway shutting down"))
				return
			}
			kind, payload = websocket.TextMessage, data
		case <-ticker.C:
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(kind, payload); err != nil {
			c.log.Debug().Err(err).Msg("Observer write failed")
			return
		}
	}
}

// ServeWs upgrades the request and attaches the observer to hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.FromContext(r.Context()).Warn().Err(err).Msg("Observer upgrade failed")
		return
	}

	c := NewClient(hub, conn)
	hub.Register(c)

	go c.deliver()
	go c.listen()
}
