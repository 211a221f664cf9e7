package models

import "time"

// MessageKind classifies a room message.
type MessageKind string

const (
	KindText    MessageKind = "text"
	KindSystem  MessageKind = "system"
	KindFile    MessageKind = "file"
	KindPrivate MessageKind = "private"
)

// SystemUserID is the author id of server-generated notices.
const SystemUserID = "system"

// Attachment is a reference returned by the external attachment store,
// embedded verbatim into a file message.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size,omitempty"`
}

// Message is a room message. Only Reactions may change after append.
type Message struct {
	ID        string              `json:"id"`
	Seq       uint64              `json:"seq"`
	UserID    string              `json:"userId"`
	Username  string              `json:"username"`
	Room      string              `json:"room"`
	Text      string              `json:"text"`
	Kind      MessageKind         `json:"type"`
	CreatedAt time.Time           `json:"timestamp"`
	Reactions map[string][]string `json:"reactions"`
	File      *Attachment         `json:"file,omitempty"`
}

// Clone returns a copy whose reaction tally does not alias the original.
func (m Message) Clone() Message {
	m.Reactions = CloneReactions(m.Reactions)
	if m.File != nil {
		f := *m.File
		m.File = &f
	}
	return m
}

// CloneReactions deep-copies a reaction tally. A nil tally becomes empty.
func CloneReactions(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for symbol, users := range in {
		out[symbol] = append([]string(nil), users...)
	}
	return out
}

// PrivateMessage travels point-to-point and is never stored in a room.
type PrivateMessage struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	FromID    string      `json:"fromId"`
	To        string      `json:"to"`
	ToID      string      `json:"toId"`
	Text      string      `json:"text"`
	Kind      MessageKind `json:"type"`
	CreatedAt time.Time   `json:"timestamp"`
	IsOwn     bool        `json:"isOwn,omitempty"`
}

// User is the public view of a live session.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Status      string    `json:"status"`
	CurrentRoom string    `json:"currentRoom"`
	ConnectedAt time.Time `json:"connectedAt"`
}
