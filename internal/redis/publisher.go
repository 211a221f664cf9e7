package redis

import (
	"context"
	"log/slog"

	"go-roomchat/internal/metrics"
	"go-roomchat/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

const (
	roomChannelPrefix = "chat:room:"
	globalChannel     = "chat:global"
)

// Publisher mirrors chat events to Redis pub/sub for external consumers.
// Mirror only enqueues; Run does the network I/O.
type Publisher struct {
	rdb   *redis.Client
	queue chan models.Event
	log   *slog.Logger
}

func NewPublisher(rdb *redis.Client, buffer int, log *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Publisher{
		rdb:   rdb,
		queue: make(chan models.Event, buffer),
		log:   log,
	}
}

// Mirror queues event for publishing. A full queue drops it.
func (p *Publisher) Mirror(event models.Event) {
	select {
	case p.queue <- event:
	default:
		metrics.MirrorDropped.Inc()
		p.log.Warn("[REDIS] Mirror queue full, dropping event", "type", event.Type, "room", event.Room)
	}
}

// Run publishes queued events until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	p.log.Info("[REDIS] Starting event mirror")
	for {
		select {
		case <-ctx.Done():
			p.log.Info("[REDIS] Event mirror stopped", "pending", len(p.queue))
			return
		case event := <-p.queue:
			if err := p.publishEvent(ctx, event); err != nil {
				p.log.Error("[REDIS] Failed to publish event", "type", event.Type, "room", event.Room, "error", err)
			}
		}
	}
}

func (p *Publisher) publishEvent(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, channelFor(event), payload).Err()
}

func channelFor(event models.Event) string {
	if event.Room == "" {
		return globalChannel
	}
	return roomChannelPrefix + event.Room
}
