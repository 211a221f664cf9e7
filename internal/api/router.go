package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"go-roomchat/internal/chat"
	"go-roomchat/internal/models"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reader is the read side of the chat state served over HTTP.
type Reader interface {
	ListRooms() []string
	History(room string) ([]models.Message, error)
	Online() []models.User
}

type handlers struct {
	chat Reader
	log  *slog.Logger
}

// NewRouter mounts the REST API, health and metrics endpoints, and the
// websocket endpoint at /ws.
func NewRouter(reader Reader, wsHandler http.Handler, log *slog.Logger) *mux.Router {
	h := &handlers{chat: reader, log: log}

	r := mux.NewRouter()
	r.Handle("/ws", wsHandler)
	r.HandleFunc("/health", health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", h.listRooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{room}/messages", h.listMessages).Methods(http.MethodGet)
	api.HandleFunc("/users/online", h.listOnline).Methods(http.MethodGet)
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// listRooms handles GET /api/rooms.
func (h *handlers) listRooms(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": h.chat.ListRooms()})
}

// listMessages handles GET /api/rooms/{room}/messages. The optional "limit"
// query parameter keeps only the newest messages.
func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]

	messages, err := h.chat.History(room)
	if errors.Is(err, chat.ErrRoomNotFound) {
		h.writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		h.log.Error("[API] Failed to read history", "room", room, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit < len(messages) {
			messages = messages[len(messages)-limit:]
		}
	}

	h.writeJSON(w, http.StatusOK, models.RoomHistory{Room: room, Messages: messages})
}

// listOnline handles GET /api/users/online.
func (h *handlers) listOnline(w http.ResponseWriter, _ *http.Request) {
	users := h.chat.Online()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"users": users, "count": len(users)})
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("[API] Failed to write response", "error", err)
	}
}

func (h *handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
