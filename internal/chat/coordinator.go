package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"go-roomchat/internal/auth"
	"go-roomchat/internal/metrics"
	"go-roomchat/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	systemUsername = "System"
	digestLength   = 50
)

type Options struct {
	Rooms         []string
	DefaultRoom   string
	HistoryLimit  int
	TypingTTL     time.Duration
	MaxTextLength int
	Mirror        Mirror
	Logger        *slog.Logger
}

// Coordinator wires the presence registry, room directory and event
// components together and drives every connection's lifecycle. Its mutating
// methods are meant to be called from a single event loop.
type Coordinator struct {
	log       *slog.Logger
	registry  *Registry
	rooms     *Directory
	out       *Broadcaster
	typing    *TypingCoordinator
	reactions *ReactionEngine
	private   *PrivateRouter
	reconnect *Reconnector
	validate  *validator.Validate
	maxText   int
}

func NewCoordinator(opts Options) (*Coordinator, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = 5 * time.Second
	}

	rooms, err := NewDirectory(opts.Rooms, opts.DefaultRoom, opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("room directory: %w", err)
	}
	registry := NewRegistry(rooms)
	out := NewBroadcaster(registry, opts.Mirror, log)

	return &Coordinator{
		log:       log,
		registry:  registry,
		rooms:     rooms,
		out:       out,
		typing:    NewTypingCoordinator(out, opts.TypingTTL),
		reactions: NewReactionEngine(rooms, out),
		private:   NewPrivateRouter(registry, out),
		reconnect: NewReconnector(registry, rooms, out),
		validate:  validator.New(),
		maxText:   opts.MaxTextLength,
	}, nil
}

func (c *Coordinator) Registry() *Registry   { return c.registry }
func (c *Coordinator) Directory() *Directory { return c.rooms }

// Read accessors below are safe outside the event loop.

func (c *Coordinator) ListRooms() []string { return c.rooms.ListRooms() }

func (c *Coordinator) History(room string) ([]models.Message, error) {
	return c.rooms.History(room)
}

func (c *Coordinator) Online() []models.User { return c.registry.Users() }

// Activate registers an authenticated connection, resumes its user's last
// room, pushes the join bundle and announces the arrival.
func (c *Coordinator) Activate(conn *Connection, handle Conn) (models.JoinBundle, error) {
	var prior *Session
	s, err := conn.activate(handle, func(id auth.Identity) Session {
		var s Session
		s, prior = c.registry.Register(id.UserID, id.DisplayName, handle)

		resume := ""
		if prior != nil {
			resume = prior.Room
		} else if room, ok := c.registry.LastRoom(id.UserID); ok {
			resume = room
		}
		if resume != "" && resume != s.Room && c.registry.SetRoom(s.UserID, resume) == nil {
			s.Room = resume
		}
		return s
	})
	if err != nil {
		return models.JoinBundle{}, err
	}

	if prior != nil && prior.conn != nil {
		c.log.Info("[CHAT] Superseding previous session", "user", s.UserID, "session", prior.ID)
		prior.conn.Close()
	}
	metrics.SessionsOnline.Set(float64(c.registry.Count()))

	bundle, err := c.reconnect.OnJoin(s)
	if err != nil {
		return models.JoinBundle{}, err
	}
	c.out.ToSession(s.UserID, models.EventInitialData, bundle)
	c.out.ToSession(s.UserID, models.EventReceiveMessage, systemNotice(s.Room, fmt.Sprintf("Welcome to the chat, %s!", s.DisplayName)))

	if prior == nil {
		c.out.ToAll(models.EventUserJoined, models.PresenceData{Username: s.DisplayName, Users: bundle.Users}, s.UserID)
		c.out.ToRoom(s.Room, models.EventReceiveMessage, systemNotice(s.Room, fmt.Sprintf("%s joined the chat", s.DisplayName)), s.UserID)
	}

	c.log.Info("[CHAT] Session active", "user", s.UserID, "name", s.DisplayName, "room", s.Room, "resumed", prior != nil)
	return bundle, nil
}

// Disconnect ends a connection. Only the current session of a user is torn
// down; a superseded connection leaves quietly. It reports whether a session
// was removed.
func (c *Coordinator) Disconnect(conn *Connection) bool {
	s, wasActive := conn.close()
	if !wasActive {
		return false
	}

	last, ok := c.registry.Release(s)
	if !ok {
		c.log.Debug("[CHAT] Superseded connection closed", "user", s.UserID, "session", s.ID)
		return false
	}

	c.typing.Clear(last.UserID)
	metrics.SessionsOnline.Set(float64(c.registry.Count()))

	c.out.ToAll(models.EventUserLeft, models.PresenceData{Username: last.DisplayName, Users: c.registry.Users()}, "")
	c.out.ToRoom(last.Room, models.EventReceiveMessage, systemNotice(last.Room, fmt.Sprintf("%s left the chat", last.DisplayName)), "")

	c.log.Info("[CHAT] Session ended", "user", last.UserID, "room", last.Room)
	return true
}

// Dispatch routes one inbound client event. Failures are reported to the
// originating connection as an error event and returned for logging.
func (c *Coordinator) Dispatch(conn *Connection, in models.Inbound) error {
	err := c.dispatch(conn, in)
	if err != nil {
		metrics.EventsHandled.WithLabelValues(eventLabel(in.Type), ErrorCode(err)).Inc()
		c.Reply(conn, in.Type, err)
		return err
	}
	metrics.EventsHandled.WithLabelValues(eventLabel(in.Type), "ok").Inc()
	return nil
}

// Reply sends a structured error to the connection alone.
func (c *Coordinator) Reply(conn *Connection, eventType string, err error) {
	_, handle, _ := conn.active()
	c.out.ToConn(handle, models.EventError, models.ErrorData{
		Code:    ErrorCode(err),
		Message: err.Error(),
		Event:   eventType,
	})
}

func (c *Coordinator) dispatch(conn *Connection, in models.Inbound) error {
	bound, _, ok := conn.active()
	if !ok {
		return ErrNotActive
	}
	s, err := c.registry.Find(bound.UserID)
	if err != nil || s.ID != bound.ID {
		return fmt.Errorf("%w: session superseded", ErrNotActive)
	}

	switch in.Type {
	case models.EventJoinRoom:
		var req models.JoinRoomRequest
		if err := c.bind(in, &req); err != nil {
			return err
		}
		return c.joinRoom(s, req.Room)

	case models.EventSendMessage:
		var req models.SendMessageRequest
		if err := c.bind(in, &req); err != nil {
			return err
		}
		return c.sendMessage(s, req)

	case models.EventTypingStart, models.EventTypingStop:
		var req models.TypingRequest
		if err := c.bind(in, &req); err != nil {
			return err
		}
		if !c.rooms.Has(req.Room) {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, req.Room)
		}
		if in.Type == models.EventTypingStart {
			c.typing.Start(s, req.Room)
		} else {
			c.typing.Stop(s, req.Room)
		}
		return nil

	case models.EventReact:
		var req models.ReactRequest
		if err := c.bind(in, &req); err != nil {
			return err
		}
		tally, err := c.reactions.React(req.Room, req.MessageID, s.UserID, req.Reaction)
		if err != nil {
			return err
		}
		if req.Room != s.Room {
			c.out.ToSession(s.UserID, models.EventMessageReacted, models.ReactionData{
				Room:      req.Room,
				MessageID: req.MessageID,
				Reactions: tally,
			})
		}
		return nil

	case models.EventPrivateMessage:
		var req models.PrivateMessageRequest
		if err := c.bind(in, &req); err != nil {
			return err
		}
		if err := c.checkText(req.Text); err != nil {
			return err
		}
		_, err := c.private.Send(s, req.To, req.Text)
		return err

	case models.EventMarkRead:
		var req models.MarkReadRequest
		if err := c.bind(in, &req); err != nil {
			return err
		}
		c.out.ToAll(models.EventMessageRead, models.ReadData{MessageID: req.MessageID, Reader: s.DisplayName}, s.UserID)
		return nil

	case models.EventUploadFile:
		var req models.UploadFileRequest
		if err := c.bind(in, &req); err != nil {
			return err
		}
		return c.uploadFile(s, req)

	case models.EventLogout:
		_, handle, _ := conn.active()
		c.Disconnect(conn)
		if handle != nil {
			handle.Close()
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, in.Type)
	}
}

func (c *Coordinator) joinRoom(s Session, room string) error {
	if typingIn, ok := c.typing.Room(s.UserID); ok && typingIn != room {
		c.typing.Clear(s.UserID)
	}
	history, err := c.reconnect.OnRoomSwitch(s, room)
	if err != nil {
		return err
	}
	c.out.ToSession(s.UserID, models.EventRoomMessages, history)
	return nil
}

func (c *Coordinator) sendMessage(s Session, req models.SendMessageRequest) error {
	if err := c.checkText(req.Text); err != nil {
		return err
	}
	room := req.Room
	if room == "" {
		room = s.Room
	}

	msg, err := c.rooms.Append(room, models.Message{
		UserID:   s.UserID,
		Username: s.DisplayName,
		Text:     req.Text,
		Kind:     models.KindText,
	})
	if err != nil {
		return err
	}
	metrics.MessagesAppended.WithLabelValues(room, string(msg.Kind)).Inc()

	c.out.ToRoom(room, models.EventReceiveMessage, msg, "")
	c.echo(s, room, msg)

	digest := models.NotificationData{
		Type:      "new_message",
		Username:  s.DisplayName,
		Room:      room,
		Message:   truncate(req.Text, digestLength),
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, other := range c.registry.ListOnline() {
		if other.Room != room && other.UserID != s.UserID {
			c.out.ToSession(other.UserID, models.EventNotification, digest)
		}
	}
	return nil
}

func (c *Coordinator) uploadFile(s Session, req models.UploadFileRequest) error {
	room := req.Room
	if room == "" {
		room = s.Room
	}

	msg, err := c.rooms.Append(room, models.Message{
		UserID:   s.UserID,
		Username: s.DisplayName,
		Text:     "Uploaded file: " + req.Filename,
		Kind:     models.KindFile,
		File:     &models.Attachment{URL: req.URL, Filename: req.Filename, Size: req.Size},
	})
	if err != nil {
		return err
	}
	metrics.MessagesAppended.WithLabelValues(room, string(msg.Kind)).Inc()

	c.out.ToRoom(room, models.EventReceiveMessage, msg, "")
	c.echo(s, room, msg)
	return nil
}

// echo hands the author a copy of a message posted to a room they are not in.
func (c *Coordinator) echo(s Session, room string, msg models.Message) {
	if s.Room != room {
		c.out.ToSession(s.UserID, models.EventReceiveMessage, msg)
	}
}

// Announce appends a system message to room and broadcasts it.
func (c *Coordinator) Announce(room, text string) (models.Message, error) {
	if text == "" {
		return models.Message{}, fmt.Errorf("%w: empty announcement", ErrInvalidPayload)
	}
	msg, err := c.rooms.Append(room, models.Message{
		UserID:   models.SystemUserID,
		Username: systemUsername,
		Text:     text,
		Kind:     models.KindSystem,
	})
	if err != nil {
		return models.Message{}, err
	}
	metrics.MessagesAppended.WithLabelValues(room, string(msg.Kind)).Inc()

	c.out.ToRoom(room, models.EventReceiveMessage, msg, "")
	return msg, nil
}

// SweepTyping expires overdue typing marks.
func (c *Coordinator) SweepTyping() int {
	return c.typing.Sweep()
}

func (c *Coordinator) bind(in models.Inbound, dst interface{}) error {
	if err := in.Bind(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := c.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %s", ErrInvalidPayload, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func (c *Coordinator) checkText(text string) error {
	if c.maxText > 0 && utf8.RuneCountInString(text) > c.maxText {
		return fmt.Errorf("%w: text longer than %d characters", ErrInvalidPayload, c.maxText)
	}
	return nil
}

// systemNotice is a transient system line; it is delivered but never stored.
func systemNotice(room, text string) models.Message {
	return models.Message{
		ID:        "sys-" + uuid.NewString(),
		UserID:    models.SystemUserID,
		Username:  systemUsername,
		Room:      room,
		Text:      text,
		Kind:      models.KindSystem,
		CreatedAt: time.Now(),
		Reactions: map[string][]string{},
	}
}

var inboundEvents = map[string]struct{}{
	models.EventJoinRoom:       {},
	models.EventSendMessage:    {},
	models.EventTypingStart:    {},
	models.EventTypingStop:     {},
	models.EventReact:          {},
	models.EventPrivateMessage: {},
	models.EventMarkRead:       {},
	models.EventUploadFile:     {},
	models.EventLogout:         {},
}

// eventLabel bounds the metric label set to the known inbound vocabulary.
func eventLabel(eventType string) string {
	if _, ok := inboundEvents[eventType]; ok {
		return eventType
	}
	return "unknown"
}

func truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}
