package chat

import (
	"errors"
	"fmt"
	"time"

	"go-roomchat/internal/models"

	"github.com/google/uuid"
)

// PrivateRouter delivers point-to-point messages between live sessions.
// Nothing is stored.
type PrivateRouter struct {
	registry *Registry
	out      *Broadcaster
	now      func() time.Time
}

func NewPrivateRouter(registry *Registry, out *Broadcaster) *PrivateRouter {
	return &PrivateRouter{registry: registry, out: out, now: time.Now}
}

// Send resolves the target by display name and delivers one copy to the
// target and one flagged copy back to the sender.
func (p *PrivateRouter) Send(from Session, toDisplayName, text string) (models.PrivateMessage, error) {
	target, err := p.registry.FindByDisplayName(toDisplayName)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return models.PrivateMessage{}, fmt.Errorf("%w: %s", ErrUserOffline, toDisplayName)
		}
		return models.PrivateMessage{}, err
	}

	pm := models.PrivateMessage{
		ID:        uuid.NewString(),
		From:      from.DisplayName,
		FromID:    from.UserID,
		To:        target.DisplayName,
		ToID:      target.UserID,
		Text:      text,
		Kind:      models.KindPrivate,
		CreatedAt: p.now(),
	}

	if target.UserID != from.UserID {
		p.out.ToSession(target.UserID, models.EventReceivePrivate, pm)
	}

	own := pm
	own.IsOwn = true
	p.out.ToSession(from.UserID, models.EventReceivePrivate, own)

	return pm, nil
}
