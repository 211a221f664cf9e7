package ws

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go-roomchat/internal/chat"
	"go-roomchat/internal/models"
)

var ErrHubStopped = errors.New("hub is not running")

// inboundEvent is a client frame in arrival order. A frame the client pump
// already refused carries reject and is answered with an error event.
type inboundEvent struct {
	client *Client
	event  models.Inbound
	reject error
}

type announcement struct {
	room string
	text string
}

// Hub owns the chat coordinator. Every mutation of chat state, whether
// from a client, a timer or an external announcement, runs on its loop.
type Hub struct {
	coord *chat.Coordinator
	log   *slog.Logger

	// Clients handed to the loop and not yet unregistered. Loop-owned.
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent
	announce   chan announcement
	done       chan struct{}

	sweepInterval time.Duration
}

func NewHub(coord *chat.Coordinator, sweepInterval time.Duration, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Second
	}
	return &Hub{
		coord:         coord,
		log:           log,
		clients:       make(map[*Client]struct{}),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		inbound:       make(chan inboundEvent, 256),
		announce:      make(chan announcement, 16),
		done:          make(chan struct{}),
		sweepInterval: sweepInterval,
	}
}

// Run processes hub events until ctx is done. Sessions still open at that
// point are closed.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("[HUB] Starting hub event loop")
	ticker := time.NewTicker(h.sweepInterval)
	defer func() {
		ticker.Stop()
		close(h.done)
		h.shutdown()
	}()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("[HUB] Stopping hub event loop")
			return

		case client := <-h.register:
			h.activate(client)

		case client := <-h.unregister:
			delete(h.clients, client)
			if h.coord.Disconnect(client.connection) {
				h.log.Info("[HUB] Client unregistered", "online", h.coord.Registry().Count())
			}
			client.Close()

		case in := <-h.inbound:
			if in.reject != nil {
				h.coord.Reply(in.client.connection, in.event.Type, in.reject)
				continue
			}
			if err := h.coord.Dispatch(in.client.connection, in.event); err != nil {
				in.client.log.Debug("[HUB] Event rejected", "type", in.event.Type, "error", err)
			}

		case a := <-h.announce:
			if _, err := h.coord.Announce(a.room, a.text); err != nil {
				h.log.Warn("[HUB] Announcement dropped", "room", a.room, "error", err)
			}

		case <-ticker.C:
			if n := h.coord.SweepTyping(); n > 0 {
				h.log.Debug("[HUB] Expired typing indicators", "count", n)
			}
		}
	}
}

func (h *Hub) activate(client *Client) {
	h.clients[client] = struct{}{}
	bundle, err := h.coord.Activate(client.connection, client)
	if err != nil {
		client.log.Error("[HUB] Failed to activate client", "error", err)
		client.Close()
		return
	}
	client.log.Info("[HUB] Client registered", "room", bundle.CurrentRoom, "online", len(bundle.Users))
}

func (h *Hub) shutdown() {
	for client := range h.clients {
		h.coord.Disconnect(client.connection)
		client.Close()
	}
	h.log.Info("[HUB] Hub stopped", "closed", len(h.clients))
	clear(h.clients)
}

// Announce queues a system message for room. It fails once the hub stopped.
func (h *Hub) Announce(ctx context.Context, room, text string) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.announce <- announcement{room: room, text: text}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *Hub) dispatch(client *Client, in models.Inbound) {
	h.enqueue(inboundEvent{client: client, event: in})
}

// refuse queues an error reply behind the client's earlier frames.
func (h *Hub) refuse(client *Client, eventType string, err error) {
	h.enqueue(inboundEvent{client: client, event: models.Inbound{Type: eventType}, reject: err})
}

func (h *Hub) enqueue(in inboundEvent) {
	select {
	case h.inbound <- in:
	case <-h.done:
	}
}
