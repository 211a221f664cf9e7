package models

// Payloads of inbound client events. Validation tags are checked by the
// coordinator before dispatch.

type JoinRoomRequest struct {
	Room string `json:"room" validate:"required"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"required"`
	Room string `json:"room"`
}

type TypingRequest struct {
	Room string `json:"room" validate:"required"`
}

type ReactRequest struct {
	Room      string `json:"room" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
	Reaction  string `json:"reaction" validate:"required"`
}

type PrivateMessageRequest struct {
	To   string `json:"to" validate:"required"`
	Text string `json:"text" validate:"required"`
}

type MarkReadRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type UploadFileRequest struct {
	Room     string `json:"room"`
	URL      string `json:"url" validate:"required"`
	Filename string `json:"filename" validate:"required"`
	Size     int64  `json:"size" validate:"gte=0"`
}
