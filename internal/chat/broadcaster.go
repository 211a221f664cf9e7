package chat

import (
	"log/slog"

	"go-roomchat/internal/metrics"
	"go-roomchat/internal/models"
)

// Mirror receives a copy of every room and global event. Implementations must
// not block.
type Mirror interface {
	Mirror(event models.Event)
}

// Broadcaster routes outbound events over the registry. Delivery is
// fire-and-forget: a gone or saturated session simply misses the event.
type Broadcaster struct {
	registry *Registry
	mirror   Mirror
	log      *slog.Logger
}

func NewBroadcaster(registry *Registry, mirror Mirror, log *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, mirror: mirror, log: log}
}

// ToRoom delivers to every session currently in room except the user exclude.
func (b *Broadcaster) ToRoom(room, eventType string, data interface{}, exclude string) int {
	evt := models.NewEvent(eventType, room, data)
	conns := b.registry.conns(func(s Session) bool {
		return s.Room == room && s.UserID != exclude
	})
	b.reflect(evt)
	return b.deliver(conns, evt)
}

// ToAll delivers to every live session except the user exclude.
func (b *Broadcaster) ToAll(eventType string, data interface{}, exclude string) int {
	evt := models.NewEvent(eventType, "", data)
	conns := b.registry.conns(func(s Session) bool { return s.UserID != exclude })
	b.reflect(evt)
	return b.deliver(conns, evt)
}

// ToSession delivers to the current session of userID, if any.
func (b *Broadcaster) ToSession(userID, eventType string, data interface{}) bool {
	conn, ok := b.registry.conn(userID)
	if !ok {
		metrics.DeliveriesDropped.Inc()
		return false
	}
	return b.deliver([]Conn{conn}, models.NewEvent(eventType, "", data)) == 1
}

// ToConn delivers straight to a transport handle, bypassing the registry.
// Used for replies to a connection that may no longer own its user's session.
func (b *Broadcaster) ToConn(conn Conn, eventType string, data interface{}) bool {
	if conn == nil {
		return false
	}
	return b.deliver([]Conn{conn}, models.NewEvent(eventType, "", data)) == 1
}

func (b *Broadcaster) deliver(conns []Conn, evt models.Event) int {
	if len(conns) == 0 {
		return 0
	}

	payload, err := models.Encode(evt)
	if err != nil {
		b.log.Error("[BROADCAST] Failed to marshal event", "type", evt.Type, "error", err)
		return 0
	}

	sent := 0
	for _, conn := range conns {
		if conn.Send(payload) {
			sent++
			continue
		}
		metrics.DeliveriesDropped.Inc()
	}

	if sent < len(conns) {
		b.log.Debug("[BROADCAST] Partial delivery", "type", evt.Type, "room", evt.Room, "sent", sent, "targets", len(conns))
	}
	return sent
}

func (b *Broadcaster) reflect(evt models.Event) {
	if b.mirror != nil {
		b.mirror.Mirror(evt)
	}
}
