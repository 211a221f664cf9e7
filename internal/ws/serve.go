package ws

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-roomchat/internal/auth"
	"go-roomchat/internal/chat"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Options tune the websocket endpoint.
type Options struct {
	VerifyTimeout  time.Duration
	MaxMessageSize int64
	SendBuffer     int
	RateLimit      float64
	RateBurst      int
	// AllowedOrigins lists accepted Origin hosts. Empty accepts any origin.
	AllowedOrigins []string
}

// Handler upgrades authenticated requests and hands the connection to the hub.
type Handler struct {
	hub      *Hub
	verifier auth.Verifier
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, verifier auth.Verifier, opts Options) *Handler {
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = 5 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}

	return &Handler{
		hub:      hub,
		verifier: verifier,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	h.hub.log.Debug("[WS] New WebSocket connection request", "from", remoteAddr)

	token := auth.ExtractTokenFromRequest(r)
	if token == "" {
		h.hub.log.Warn("[WS] No token provided", "from", remoteAddr)
		http.Error(w, "Unauthorized: token required", http.StatusUnauthorized)
		return
	}

	// Verification happens before the upgrade and outside the hub loop.
	connection := chat.NewConnection()
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.VerifyTimeout)
	err := connection.Authenticate(ctx, h.verifier, token)
	cancel()
	if err != nil {
		h.hub.log.Warn("[WS] Token validation failed", "from", remoteAddr, "error", err)
		http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
		return
	}

	id := connection.Identity()
	h.hub.log.Info("[WS] Token validated successfully", "user", id.UserID, "name", id.DisplayName, "from", remoteAddr)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Error("[WS] Failed to upgrade connection", "user", id.UserID, "error", err)
		return
	}

	client := newClient(h.hub, conn, connection, h.opts)
	if !h.hub.join(client) {
		client.log.Warn("[WS] Hub stopped, dropping connection")
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(h.opts.MaxMessageSize)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	hosts := lo.Map(allowed, func(origin string, _ int) string {
		return strings.ToLower(strings.TrimSpace(origin))
	})

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return lo.Contains(hosts, strings.ToLower(u.Host)) || lo.Contains(hosts, strings.ToLower(origin))
	}
}
