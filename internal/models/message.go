package models

import "time"

// Event types pushed to inbox websocket connections.
const (
	EventNewMessage = "new_message"
	EventTyping     = "typing"
)

// TimestampLayout is the wire format of message timestamps.
const TimestampLayout = time.RFC3339

// Message represents a direct message between two users.
type Message struct {
	ID         int64     `db:"id" json:"id"`
	SenderID   int64     `db:"sender_id" json:"sender_id"`
	ReceiverID int64     `db:"receiver_id" json:"receiver_id"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	IsRead     bool      `db:"is_read" json:"is_read"`
}

// Correspondent returns the other party of the message as seen by viewer.
func (m Message) Correspondent(viewer int64) int64 {
	if m.SenderID == viewer {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves reports whether the user sent or received the message.
func (m Message) Involves(userID int64) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Timestamp formats CreatedAt for the wire.
func (m Message) Timestamp() string {
	return m.CreatedAt.UTC().Format(TimestampLayout)
}

// NewMessagePayload is the message body carried by a new_message event.
type NewMessagePayload struct {
	SenderID  int64  `json:"sender_id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// SentMessage is the message body returned to the sender of a message.
type SentMessage struct {
	NewMessagePayload
	SenderAvatar *string `json:"sender_avatar"`
}

// InboxEvent is broadcast through inbox websockets.
type InboxEvent struct {
	Type     string             `json:"type"`
	Message  *NewMessagePayload `json:"message,omitempty"`
	SenderID int64              `json:"sender_id,omitempty"`
}

// InboundEvent is the only frame clients may send over the inbox websocket.
type InboundEvent struct {
	Type       string `json:"type" validate:"required,eq=typing"`
	ReceiverID int64  `json:"receiver_id" validate:"required,gt=0"`
}

// MessageWithParties is a message joined with both usernames.
type MessageWithParties struct {
	Message
	SenderUsername   string `db:"sender_username" json:"sender_username"`
	ReceiverUsername string `db:"receiver_username" json:"receiver_username"`
}

// ContentPreview shortens content to 50 characters followed by "...".
func (m Message) ContentPreview() string {
	const previewLen = 50
	runes := []rune(m.Content)
	if len(runes) <= previewLen {
		return m.Content
	}
	return string(runes[:previewLen]) + "..."
}
