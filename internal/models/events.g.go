package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Inbound event names sent by clients.
const (
	EventJoinRoom       = "join-room"
	EventSendMessage    = "send-message"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventReact          = "react"
	EventPrivateMessage = "private-message"
	EventMarkRead       = "mark-read"
	EventUploadFile     = "upload-file"
	EventLogout         = "logout"
)

// Outbound event names pushed to clients.
const (
	EventInitialData    = "initial-data"
	EventReceiveMessage = "receive-message"
	EventRoomMessages   = "room-messages"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventUserJoinedRoom = "user-joined-room"
	EventUserLeftRoom   = "user-left-room"
	EventTypingStarted  = "typing-started"
	EventTypingStopped  = "typing-stopped"
	EventNotification   = "notification"
	EventMessageReacted = "message-reacted"
	EventReceivePrivate = "receive-private-message"
	EventMessageRead    = "message-read"
	EventError          = "error"
)

// Event is the outbound envelope written to a session.
type Event struct {
	Type      string      `json:"type"`
	Room      string      `json:"room,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Inbound is the envelope a client sends. Data is decoded lazily per event type.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent stamps an outbound event with the current time in milliseconds.
func NewEvent(eventType, room string, data interface{}) Event {
	return Event{
		Type:      eventType,
		Room:      room,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// Encode serializes an event for the wire.
func Encode(event Event) ([]byte, error) {
	return json.Marshal(event)
}

// DecodeInbound parses a raw client frame.
func DecodeInbound(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, err
	}
	return in, nil
}

// Bind decodes the inbound payload into dst. An absent payload leaves dst untouched.
func (in Inbound) Bind(dst interface{}) error {
	if len(in.Data) == 0 {
		return nil
	}
	return json.Unmarshal(in.Data, dst)
}

// Specific event data structures

type TypingData struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type PresenceData struct {
	Username string `json:"username"`
	Users    []User `json:"users"`
}

type RoomPresenceData struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type RoomHistory struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

type NotificationData struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Room      string `json:"room"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type ReactionData struct {
	Room      string              `json:"room"`
	MessageID string              `json:"messageId"`
	Reactions map[string][]string `json:"reactions"`
}

type ReadData struct {
	MessageID string `json:"messageId"`
	Reader    string `json:"reader"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// JoinBundle is everything a freshly (re)connected session needs to resume.
type JoinBundle struct {
	Rooms       []string  `json:"rooms"`
	Users       []User    `json:"users"`
	CurrentRoom string    `json:"currentRoom"`
	Messages    []Message `json:"messages"`
	CurrentUser User      `json:"currentUser"`
}
