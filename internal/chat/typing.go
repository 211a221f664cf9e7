package chat

import (
	"sync"
	"time"

	"go-roomchat/internal/models"
)

type typingMark struct {
	room      string
	username  string
	expiresAt time.Time
}

// TypingCoordinator tracks who is typing where. A user is typing in at most
// one room, and every mark carries a server-side expiry so a vanished client
// cannot leave an indicator behind.
type TypingCoordinator struct {
	mu    sync.Mutex
	marks map[string]typingMark
	ttl   time.Duration
	now   func() time.Time
	out   *Broadcaster
}

func NewTypingCoordinator(out *Broadcaster, ttl time.Duration) *TypingCoordinator {
	return &TypingCoordinator{
		marks: make(map[string]typingMark),
		ttl:   ttl,
		now:   time.Now,
		out:   out,
	}
}

// Start upserts the mark of s in room with a fresh expiry and tells the room.
// A mark the user held in another room is stopped first.
func (t *TypingCoordinator) Start(s Session, room string) {
	t.mu.Lock()
	prev, had := t.marks[s.UserID]
	t.marks[s.UserID] = typingMark{room: room, username: s.DisplayName, expiresAt: t.now().Add(t.ttl)}
	t.mu.Unlock()

	if had && prev.room != room {
		t.out.ToRoom(prev.room, models.EventTypingStopped, models.TypingData{Username: prev.username, Room: prev.room}, s.UserID)
	}
	t.out.ToRoom(room, models.EventTypingStarted, models.TypingData{Username: s.DisplayName, Room: room}, s.UserID)
}

// Stop removes the mark of s in room. Without such a mark it does nothing.
func (t *TypingCoordinator) Stop(s Session, room string) bool {
	t.mu.Lock()
	mark, ok := t.marks[s.UserID]
	if !ok || mark.room != room {
		t.mu.Unlock()
		return false
	}
	delete(t.marks, s.UserID)
	t.mu.Unlock()

	t.out.ToRoom(room, models.EventTypingStopped, models.TypingData{Username: mark.username, Room: room}, s.UserID)
	return true
}

// Clear drops whatever mark userID holds, in any room.
func (t *TypingCoordinator) Clear(userID string) bool {
	t.mu.Lock()
	mark, ok := t.marks[userID]
	delete(t.marks, userID)
	t.mu.Unlock()

	if !ok {
		return false
	}
	t.out.ToRoom(mark.room, models.EventTypingStopped, models.TypingData{Username: mark.username, Room: mark.room}, userID)
	return true
}

// Sweep expires every overdue mark and returns how many were removed.
func (t *TypingCoordinator) Sweep() int {
	now := t.now()

	t.mu.Lock()
	expired := make(map[string]typingMark)
	for userID, mark := range t.marks {
		if !now.Before(mark.expiresAt) {
			expired[userID] = mark
			delete(t.marks, userID)
		}
	}
	t.mu.Unlock()

	for userID, mark := range expired {
		t.out.ToRoom(mark.room, models.EventTypingStopped, models.TypingData{Username: mark.username, Room: mark.room}, userID)
	}
	return len(expired)
}

// Typing lists the users with a live mark in room. Overdue marks are ignored
// even if the sweep has not run yet.
func (t *TypingCoordinator) Typing(room string) []string {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var users []string
	for userID, mark := range t.marks {
		if mark.room == room && now.Before(mark.expiresAt) {
			users = append(users, userID)
		}
	}
	return users
}

// Room reports where userID is typing, if anywhere.
func (t *TypingCoordinator) Room(userID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mark, ok := t.marks[userID]
	if !ok || !t.now().Before(mark.expiresAt) {
		return "", false
	}
	return mark.room, true
}
