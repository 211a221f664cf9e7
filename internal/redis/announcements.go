package redis

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

const announcePattern = "announce:*"

// Announcer accepts system notices for a room.
type Announcer interface {
	Announce(ctx context.Context, room, text string) error
}

type announcePayload struct {
	Text string `json:"text"`
}

// SubscribeAnnouncements forwards messages published on announce:<room> to
// the announcer until ctx is done or the subscription closes.
func SubscribeAnnouncements(ctx context.Context, rdb *redis.Client, a Announcer, log *slog.Logger) error {
	pubsub := rdb.PSubscribe(ctx, announcePattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	log.Info("[REDIS] Subscribed to announcements", "pattern", announcePattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				log.Info("[REDIS] Announcement channel closed")
				return nil
			}
			room, text, err := parseAnnouncement(msg.Channel, msg.Payload)
			if err != nil {
				log.Warn("[REDIS] Ignoring announcement", "channel", msg.Channel, "error", err)
				continue
			}
			if err := a.Announce(ctx, room, text); err != nil {
				log.Error("[REDIS] Failed to forward announcement", "room", room, "error", err)
			}
		}
	}
}

// parseAnnouncement accepts either {"text": "..."} or a bare text payload.
func parseAnnouncement(channel, payload string) (string, string, error) {
	room := strings.TrimPrefix(channel, "announce:")
	if room == "" || room == channel {
		return "", "", errors.New("announcement channel names no room")
	}

	text := strings.TrimSpace(payload)
	if strings.HasPrefix(text, "{") {
		var p announcePayload
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return "", "", err
		}
		text = strings.TrimSpace(p.Text)
	}
	if text == "" {
		return "", "", errors.New("empty announcement")
	}
	return room, text, nil
}
