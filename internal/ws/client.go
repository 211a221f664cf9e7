package ws

import (
	"log/slog"
	"sync"
	"time"

	"go-roomchat/internal/chat"
	"go-roomchat/internal/models"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// Client is the websocket side of one chat connection. It implements
// chat.Conn: the hub queues frames with Send and never waits on the socket.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	connection *chat.Connection
	limiter    *rate.Limiter
	log        *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, connection *chat.Connection, opts Options) *Client {
	id := connection.Identity()
	return &Client{
		hub:        hub,
		conn:       conn,
		connection: connection,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		log:        hub.log.With("user", id.UserID),
		send:       make(chan []byte, opts.SendBuffer),
	}
}

// Send queues payload for the write pump. A full buffer drops the frame.
func (c *Client) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.log.Warn("[CLIENT] Send buffer full, dropping frame")
		return false
	}
}

// Close stops the write pump, which closes the socket. Safe to call twice.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump pumps frames from the websocket to the hub.
func (c *Client) ReadPump(maxMessageSize int64) {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	if maxMessageSize > 0 {
		c.conn.SetReadLimit(maxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("[CLIENT] Unexpected close", "error", err)
			}
			break
		}

		c.handleClientMessage(message)
	}
}

// WritePump pumps queued frames from the hub to the websocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Error("[CLIENT] Failed to write frame", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Error("[CLIENT] Failed to send ping", "error", err)
				return
			}
		}
	}
}

func (c *Client) handleClientMessage(message []byte) {
	in, err := models.DecodeInbound(message)
	if err != nil {
		c.log.Warn("[CLIENT] Error unmarshaling frame", "error", err)
		c.hub.refuse(c, "", chat.ErrInvalidPayload)
		return
	}

	if !c.limiter.Allow() {
		c.log.Debug("[CLIENT] Rate limited", "type", in.Type)
		c.hub.refuse(c, in.Type, chat.ErrRateLimited)
		return
	}

	c.hub.dispatch(c, in)
}
