package chat

import (
	"fmt"

	"go-roomchat/internal/models"
)

// Reconnector builds the state a session needs to resume. First connections
// and reconnections take the same path.
type Reconnector struct {
	registry *Registry
	rooms    *Directory
	out      *Broadcaster
}

func NewReconnector(registry *Registry, rooms *Directory, out *Broadcaster) *Reconnector {
	return &Reconnector{registry: registry, rooms: rooms, out: out}
}

// OnJoin returns the room list, the online users and the history of the
// session's current room.
func (r *Reconnector) OnJoin(s Session) (models.JoinBundle, error) {
	history, err := r.rooms.History(s.Room)
	if err != nil {
		return models.JoinBundle{}, err
	}
	return models.JoinBundle{
		Rooms:       r.rooms.ListRooms(),
		Users:       r.registry.Users(),
		CurrentRoom: s.Room,
		Messages:    history,
		CurrentUser: s.User(),
	}, nil
}

// OnRoomSwitch moves s into room and returns that room's history. The old
// room learns of the departure and the new room of the arrival.
func (r *Reconnector) OnRoomSwitch(s Session, room string) (models.RoomHistory, error) {
	if !r.rooms.Has(room) {
		return models.RoomHistory{}, fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}
	if err := r.registry.SetRoom(s.UserID, room); err != nil {
		return models.RoomHistory{}, err
	}

	history, err := r.rooms.History(room)
	if err != nil {
		return models.RoomHistory{}, err
	}

	if s.Room != room {
		r.out.ToRoom(s.Room, models.EventUserLeftRoom, models.RoomPresenceData{Username: s.DisplayName, Room: s.Room}, s.UserID)
		r.out.ToRoom(room, models.EventUserJoinedRoom, models.RoomPresenceData{Username: s.DisplayName, Room: room}, s.UserID)
		r.out.ToRoom(room, models.EventReceiveMessage, systemNotice(room, fmt.Sprintf("%s joined the room", s.DisplayName)), s.UserID)
	}

	return models.RoomHistory{Room: room, Messages: history}, nil
}
