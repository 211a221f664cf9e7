package chat

import "errors"

var (
	ErrAuthRejected    = errors.New("authentication rejected")
	ErrRoomNotFound    = errors.New("room does not exist")
	ErrUserOffline     = errors.New("user not found or offline")
	ErrMessageNotFound = errors.New("message not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrUnknownEvent    = errors.New("unknown event")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrNotActive       = errors.New("connection is not active")
)

// ErrorCode maps an error to the code reported to the originating session.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthRejected):
		return "auth_rejected"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrUserOffline):
		return "user_offline"
	case errors.Is(err, ErrMessageNotFound):
		return "message_not_found"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNotActive), errors.Is(err, ErrSessionNotFound):
		return "not_active"
	default:
		return "internal"
	}
}
