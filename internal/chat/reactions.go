package chat

import (
	"go-roomchat/internal/models"

	"github.com/samber/lo"
)

// ReactionEngine keeps at most one active reaction per user per message.
type ReactionEngine struct {
	rooms *Directory
	out   *Broadcaster
}

func NewReactionEngine(rooms *Directory, out *Broadcaster) *ReactionEngine {
	return &ReactionEngine{rooms: rooms, out: out}
}

// React moves userID's reaction on the message to symbol and broadcasts the
// full tally to the room. Reacting twice with the same symbol leaves the
// tally unchanged.
func (e *ReactionEngine) React(room, messageID, userID, symbol string) (map[string][]string, error) {
	msg, err := e.rooms.Update(room, messageID, func(reactions map[string][]string) map[string][]string {
		return applyReaction(reactions, userID, symbol)
	})
	if err != nil {
		return nil, err
	}

	e.out.ToRoom(room, models.EventMessageReacted, models.ReactionData{
		Room:      room,
		MessageID: messageID,
		Reactions: msg.Reactions,
	}, "")
	return msg.Reactions, nil
}

func applyReaction(reactions map[string][]string, userID, symbol string) map[string][]string {
	if reactions == nil {
		reactions = make(map[string][]string)
	}
	for s, users := range reactions {
		users = lo.Without(users, userID)
		if len(users) == 0 {
			delete(reactions, s)
			continue
		}
		reactions[s] = users
	}
	reactions[symbol] = append(reactions[symbol], userID)
	return reactions
}
