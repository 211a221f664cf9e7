package chat

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go-roomchat/internal/auth"
	"go-roomchat/internal/models"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

var testRooms = []string{"general", "random", "tech", "gaming"}

type received struct {
	Type string          `json:"type"`
	Room string          `json:"room"`
	Data json.RawMessage `json:"data"`
}

// fakeConn records every frame delivered to a session.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool
}

func (f *fakeConn) Send(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.full {
		return false
	}
	f.frames = append(f.frames, payload)
	return true
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) events(t *testing.T) []received {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]received, 0, len(f.frames))
	for _, frame := range f.frames {
		var r received
		require.NoError(t, json.Unmarshal(frame, &r))
		out = append(out, r)
	}
	return out
}

func (f *fakeConn) ofType(t *testing.T, eventType string) []received {
	t.Helper()
	var out []received
	for _, r := range f.events(t) {
		if r.Type == eventType {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func decode[T any](t *testing.T, r received) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

// identityVerifier accepts the token as both user id and display name.
type identityVerifier struct{}

func (identityVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, auth.ErrTokenRejected
	}
	return auth.Identity{UserID: token, DisplayName: token}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(Options{
		Rooms:         testRooms,
		DefaultRoom:   "general",
		TypingTTL:     5 * time.Second,
		MaxTextLength: 2000,
		Logger:        discardLogger(),
	})
	require.NoError(t, err)
	return c
}

// connect authenticates and activates user, returning its connection and handle.
func connect(t *testing.T, c *Coordinator, user string) (*Connection, *fakeConn) {
	t.Helper()
	conn := NewConnection()
	require.NoError(t, conn.Authenticate(context.Background(), identityVerifier{}, user))
	handle := &fakeConn{}
	_, err := c.Activate(conn, handle)
	require.NoError(t, err)
	return conn, handle
}

func inbound(t *testing.T, eventType string, data interface{}) models.Inbound {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return models.Inbound{Type: eventType, Data: raw}
}

func newTestDirectory(t *testing.T, limit int) *Directory {
	t.Helper()
	d, err := NewDirectory(testRooms, "general", limit)
	require.NoError(t, err)
	return d
}
