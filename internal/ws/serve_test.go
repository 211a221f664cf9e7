package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-roomchat/internal/auth"
	"go-roomchat/internal/chat"
	"go-roomchat/internal/models"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type frame struct {
	Type string          `json:"type"`
	Room string          `json:"room"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	hub *Hub
	srv *httptest.Server
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord, err := chat.NewCoordinator(chat.Options{
		Rooms:       []string{"general", "tech"},
		DefaultRoom: "general",
		TypingTTL:   5 * time.Second,
		Logger:      log,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(coord, 50*time.Millisecond, log)
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub, auth.NewHMACVerifier(testSecret, ""), opts))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testServer{hub: hub, srv: srv}
}

func (s *testServer) url(token string) string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/?token=" + token
}

func token(t *testing.T, user string) string {
	t.Helper()
	tok, err := auth.IssueHMAC(testSecret, "", auth.Identity{UserID: user, DisplayName: user}, time.Minute)
	require.NoError(t, err)
	return tok
}

func dial(t *testing.T, s *testServer, user string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.url(token(t, user)), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// await reads frames until one of eventType arrives.
func await(t *testing.T, conn *websocket.Conn, eventType string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", eventType)
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Type == eventType {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, eventType string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.Inbound{Type: eventType, Data: raw}))
}

func TestServeHTTP_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t, Options{})

	resp, err := http.Get(s.srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeHTTP_RejectsForgedToken(t *testing.T) {
	s := newTestServer(t, Options{})
	forged, err := auth.IssueHMAC([]byte("other-secret"), "", auth.Identity{UserID: "mallory", DisplayName: "mallory"}, time.Minute)
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(s.url(forged), nil)

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, s.hub.coord.Registry().Count())
}

func TestServeHTTP_JoinAndChat(t *testing.T) {
	s := newTestServer(t, Options{})
	alice := dial(t, s, "alice")
	initial := await(t, alice, models.EventInitialData)

	var bundle models.JoinBundle
	require.NoError(t, json.Unmarshal(initial.Data, &bundle))
	require.Equal(t, "general", bundle.CurrentRoom)
	require.Equal(t, []string{"general", "tech"}, bundle.Rooms)

	bob := dial(t, s, "bob")
	await(t, bob, models.EventInitialData)
	await(t, alice, models.EventUserJoined)

	send(t, alice, models.EventSendMessage, models.SendMessageRequest{Text: "hi bob"})

	got := await(t, bob, models.EventReceiveMessage)
	var msg models.Message
	require.NoError(t, json.Unmarshal(got.Data, &msg))
	for msg.Kind == models.KindSystem {
		got = await(t, bob, models.EventReceiveMessage)
		require.NoError(t, json.Unmarshal(got.Data, &msg))
	}
	require.Equal(t, "hi bob", msg.Text)
	require.Equal(t, "alice", msg.Username)
}

func TestServeHTTP_ReportsBadFrames(t *testing.T) {
	s := newTestServer(t, Options{})
	alice := dial(t, s, "alice")
	await(t, alice, models.EventInitialData)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))

	got := await(t, alice, models.EventError)
	var data models.ErrorData
	require.NoError(t, json.Unmarshal(got.Data, &data))
	require.Equal(t, "invalid_payload", data.Code)
}

func TestServeHTTP_RateLimit(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: 0.001, RateBurst: 1})
	alice := dial(t, s, "alice")
	await(t, alice, models.EventInitialData)

	send(t, alice, models.EventMarkRead, models.MarkReadRequest{MessageID: "general-1"})
	send(t, alice, models.EventMarkRead, models.MarkReadRequest{MessageID: "general-2"})

	got := await(t, alice, models.EventError)
	var data models.ErrorData
	require.NoError(t, json.Unmarshal(got.Data, &data))
	require.Equal(t, "rate_limited", data.Code)
	require.Equal(t, models.EventMarkRead, data.Event)
}

func TestServeHTTP_RefusalsKeepSendOrder(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: 0.001, RateBurst: 1})
	alice := dial(t, s, "alice")
	await(t, alice, models.EventInitialData)
	await(t, alice, models.EventReceiveMessage)

	send(t, alice, models.EventSendMessage, models.SendMessageRequest{Text: "first"})
	send(t, alice, models.EventSendMessage, models.SendMessageRequest{Text: "second"})

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	var order []string
	for len(order) < 2 {
		_, raw, err := alice.ReadMessage()
		require.NoError(t, err)
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Type == models.EventReceiveMessage || f.Type == models.EventError {
			order = append(order, f.Type)
		}
	}

	require.Equal(t, []string{models.EventReceiveMessage, models.EventError}, order)
}

func TestServeHTTP_ReplacementClosesPrevious(t *testing.T) {
	s := newTestServer(t, Options{})
	first := dial(t, s, "alice")
	await(t, first, models.EventInitialData)

	second := dial(t, s, "alice")
	await(t, second, models.EventInitialData)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	var err error
	for err == nil {
		_, _, err = first.ReadMessage()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		require.False(t, netErr.Timeout(), "first connection was never closed")
	}

	send(t, second, models.EventSendMessage, models.SendMessageRequest{Text: "still here"})
	got := await(t, second, models.EventReceiveMessage)
	var msg models.Message
	require.NoError(t, json.Unmarshal(got.Data, &msg))
	for msg.Kind == models.KindSystem {
		got = await(t, second, models.EventReceiveMessage)
		require.NoError(t, json.Unmarshal(got.Data, &msg))
	}
	require.Equal(t, "still here", msg.Text)
	require.Equal(t, 1, s.hub.coord.Registry().Count())
}

func TestServeHTTP_DisconnectRemovesPresence(t *testing.T) {
	s := newTestServer(t, Options{})
	alice := dial(t, s, "alice")
	await(t, alice, models.EventInitialData)
	bob := dial(t, s, "bob")
	await(t, bob, models.EventInitialData)

	require.NoError(t, alice.Close())

	await(t, bob, models.EventUserLeft)
	require.Eventually(t, func() bool { return s.hub.coord.Registry().Count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHub_Announce(t *testing.T) {
	s := newTestServer(t, Options{})
	alice := dial(t, s, "alice")
	await(t, alice, models.EventInitialData)
	await(t, alice, models.EventReceiveMessage)

	require.NoError(t, s.hub.Announce(context.Background(), "general", "maintenance at noon"))

	got := await(t, alice, models.EventReceiveMessage)
	var msg models.Message
	require.NoError(t, json.Unmarshal(got.Data, &msg))
	require.Equal(t, "maintenance at noon", msg.Text)
	require.Equal(t, models.KindSystem, msg.Kind)
}

func TestHub_AnnounceAfterStop(t *testing.T) {
	coord, err := chat.NewCoordinator(chat.Options{Rooms: []string{"general"}, DefaultRoom: "general"})
	require.NoError(t, err)
	hub := NewHub(coord, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	require.ErrorIs(t, hub.Announce(context.Background(), "general", "late"), ErrHubStopped)
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		origin   string
		expected bool
	}{
		{name: "no list accepts anything", allowed: nil, origin: "https://evil.example", expected: true},
		{name: "listed host", allowed: []string{"chat.example.com"}, origin: "https://chat.example.com", expected: true},
		{name: "listed full origin", allowed: []string{"https://chat.example.com"}, origin: "https://chat.example.com", expected: true},
		{name: "case insensitive", allowed: []string{"Chat.Example.com"}, origin: "https://chat.example.com", expected: true},
		{name: "unlisted host", allowed: []string{"chat.example.com"}, origin: "https://evil.example", expected: false},
		{name: "no origin header", allowed: []string{"chat.example.com"}, origin: "", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.expected, originChecker(tt.allowed)(r))
		})
	}
}
