package chat

import (
	"context"
	"fmt"
	"sync"

	"go-roomchat/internal/auth"
	"go-roomchat/internal/metrics"
)

// State is a connection's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateDisconnected
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Connection tracks one transport connection through
// Connecting -> Authenticated -> Active -> Disconnected, or Connecting -> Rejected.
type Connection struct {
	mu       sync.Mutex
	state    State
	identity auth.Identity
	session  Session
	handle   Conn
}

func NewConnection() *Connection {
	return &Connection{state: StateConnecting}
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Identity() auth.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Session is the session bound at activation; zero before that.
func (c *Connection) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Authenticate runs the verifier. It touches no shared state, so callers run
// it before handing the connection to the event loop.
func (c *Connection) Authenticate(ctx context.Context, v auth.Verifier, token string) error {
	c.mu.Lock()
	if c.state != StateConnecting {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("authenticate in state %s", state)
	}
	c.mu.Unlock()

	id, err := v.Verify(ctx, token)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateRejected
		metrics.ConnectionsRejected.Inc()
		return fmt.Errorf("%w: %v", ErrAuthRejected, err)
	}
	c.identity = id
	c.state = StateAuthenticated
	return nil
}

// activate moves an authenticated connection to Active.
func (c *Connection) activate(handle Conn, bind func(auth.Identity) Session) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAuthenticated {
		return Session{}, fmt.Errorf("%w: activate in state %s", ErrNotActive, c.state)
	}
	c.handle = handle
	c.session = bind(c.identity)
	c.state = StateActive
	return c.session, nil
}

// close moves the connection to Disconnected and reports whether it was Active.
func (c *Connection) close() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasActive := c.state == StateActive
	if c.state != StateRejected {
		c.state = StateDisconnected
	}
	return c.session, wasActive
}

func (c *Connection) active() (Session, Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.handle, c.state == StateActive
}
