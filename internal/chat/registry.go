package chat

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"go-roomchat/internal/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const StatusOnline = "online"

// Conn is the transport handle of a session. Send must not block; it reports
// false when the payload could not be queued.
type Conn interface {
	Send(payload []byte) bool
	Close()
}

// Session is a live, authenticated connection bound to one user id.
// Values handed out by the Registry are snapshots.
type Session struct {
	ID          string
	UserID      string
	DisplayName string
	Room        string
	ConnectedAt time.Time

	conn  Conn
	order uint64
}

func (s Session) User() models.User {
	return models.User{
		ID:          s.UserID,
		Username:    s.DisplayName,
		Status:      StatusOnline,
		CurrentRoom: s.Room,
		ConnectedAt: s.ConnectedAt,
	}
}

// Registry is the authoritative user id -> session map. A new registration
// for a user id supersedes the previous session (last registered wins).
type Registry struct {
	mu       sync.RWMutex
	rooms    *Directory
	sessions map[string]*Session
	lastRoom map[string]string
	order    uint64
	now      func() time.Time
}

func NewRegistry(rooms *Directory) *Registry {
	return &Registry{
		rooms:    rooms,
		sessions: make(map[string]*Session),
		lastRoom: make(map[string]string),
		now:      time.Now,
	}
}

// Register inserts a session in the default room. When a session already
// existed for userID it is returned as prior; its handle is stale from now on.
func (r *Registry) Register(userID, displayName string, conn Conn) (Session, *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prior *Session
	if old, ok := r.sessions[userID]; ok {
		snapshot := *old
		prior = &snapshot
	}

	r.order++
	s := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		Room:        r.rooms.DefaultRoom(),
		ConnectedAt: r.now(),
		conn:        conn,
		order:       r.order,
	}
	r.sessions[userID] = s
	return *s, prior
}

// Unregister removes the session of userID. Absent users are a no-op.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[userID]; ok {
		r.lastRoom[userID] = s.Room
		delete(r.sessions, userID)
	}
}

// Release removes s only if it is still the current session of its user,
// returning the removed session as last seen.
func (r *Registry) Release(s Session) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.UserID]
	if !ok || current.ID != s.ID {
		return Session{}, false
	}
	r.lastRoom[s.UserID] = current.Room
	delete(r.sessions, s.UserID)
	return *current, true
}

// SetRoom moves the user's session to room.
func (r *Registry) SetRoom(userID, room string) error {
	if !r.rooms.Has(room) {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, userID)
	}
	s.Room = room
	return nil
}

// LastRoom is the room userID occupied when its last session ended.
func (r *Registry) LastRoom(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.lastRoom[userID]
	return room, ok
}

// ListOnline returns a snapshot of live sessions in registration order.
func (r *Registry) ListOnline() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshot()
}

func (r *Registry) Users() []models.User {
	return lo.Map(r.ListOnline(), func(s Session, _ int) models.User { return s.User() })
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

func (r *Registry) Find(userID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, userID)
	}
	return *s, nil
}

// FindByDisplayName resolves the earliest registered session with name.
func (r *Registry) FindByDisplayName(name string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := lo.Find(r.snapshot(), func(s Session) bool { return s.DisplayName == name })
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	return s, nil
}

// conns snapshots the handles of every session matching keep.
func (r *Registry) conns(keep func(Session) bool) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.FilterMap(r.snapshot(), func(s Session, _ int) (Conn, bool) {
		return s.conn, s.conn != nil && keep(s)
	})
}

func (r *Registry) conn(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok || s.conn == nil {
		return nil, false
	}
	return s.conn, true
}

// snapshot must be called with mu held.
func (r *Registry) snapshot() []Session {
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b Session) int { return cmp.Compare(a.order, b.order) })
	return out
}
