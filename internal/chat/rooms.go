package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go-roomchat/internal/models"
)

type roomLog struct {
	messages []*models.Message
	index    map[string]*models.Message
	seq      uint64
}

// Directory owns the fixed, ordered room set and each room's history.
// Ids are assigned inside Append from a per-room counter, so they are unique
// and ordered even when several messages share a timestamp.
type Directory struct {
	mu          sync.RWMutex
	names       []string
	defaultRoom string
	rooms       map[string]*roomLog
	limit       int
	now         func() time.Time
}

// NewDirectory creates the room set. limit bounds each history; 0 keeps everything.
func NewDirectory(names []string, defaultRoom string, limit int) (*Directory, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one room is required")
	}

	d := &Directory{
		names:       append([]string(nil), names...),
		defaultRoom: defaultRoom,
		rooms:       make(map[string]*roomLog, len(names)),
		limit:       limit,
		now:         time.Now,
	}
	for _, name := range names {
		if _, dup := d.rooms[name]; dup {
			return nil, fmt.Errorf("duplicate room %q", name)
		}
		d.rooms[name] = &roomLog{index: make(map[string]*models.Message)}
	}
	if _, ok := d.rooms[defaultRoom]; !ok {
		return nil, fmt.Errorf("%w: default room %q", ErrRoomNotFound, defaultRoom)
	}
	return d, nil
}

func (d *Directory) ListRooms() []string {
	return append([]string(nil), d.names...)
}

func (d *Directory) DefaultRoom() string { return d.defaultRoom }

func (d *Directory) Has(name string) bool {
	_, ok := d.rooms[name]
	return ok
}

// History returns a snapshot of the room's messages in append order.
func (d *Directory) History(name string) ([]models.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log, ok := d.rooms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, name)
	}
	out := make([]models.Message, 0, len(log.messages))
	for _, m := range log.messages {
		out = append(out, m.Clone())
	}
	return out, nil
}

// Append stores msg at the end of the room history and returns the stored copy.
func (d *Directory) Append(name string, msg models.Message) (models.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	log, ok := d.rooms[name]
	if !ok {
		return models.Message{}, fmt.Errorf("%w: %s", ErrRoomNotFound, name)
	}

	log.seq++
	stored := msg.Clone()
	stored.Seq = log.seq
	stored.Room = name
	if stored.ID == "" {
		stored.ID = fmt.Sprintf("%s-%d", name, log.seq)
	}
	if stored.Kind == "" {
		stored.Kind = models.KindText
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = d.now()
	}

	log.messages = append(log.messages, &stored)
	log.index[stored.ID] = &stored

	if d.limit > 0 && len(log.messages) > d.limit {
		drop := len(log.messages) - d.limit
		for _, old := range log.messages[:drop] {
			delete(log.index, old.ID)
		}
		log.messages = append([]*models.Message(nil), log.messages[drop:]...)
	}

	return stored.Clone(), nil
}

func (d *Directory) FindMessage(room, id string) (models.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, err := d.lookup(room, id)
	if err != nil {
		return models.Message{}, err
	}
	return m.Clone(), nil
}

// Update applies fn to a stored message under the directory lock. Only the
// reaction tally may be changed by fn.
func (d *Directory) Update(room, id string, fn func(reactions map[string][]string) map[string][]string) (models.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, err := d.lookup(room, id)
	if err != nil {
		return models.Message{}, err
	}
	m.Reactions = fn(models.CloneReactions(m.Reactions))
	return m.Clone(), nil
}

// lookup must be called with mu held.
func (d *Directory) lookup(room, id string) (*models.Message, error) {
	log, ok := d.rooms[room]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}
	m, ok := log.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return m, nil
}
