package models

import (
	"time"
)

// Message is one entry in a conversation's append-only log. Seq is assigned
// by the store at append time and is the authoritative order within the
// conversation; SentAt is the server clock reading, clamped so it never moves
// backwards inside one conversation. Only the Read flag ever changes after
// the append.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Body           string    `json:"body"`
	Seq            int64     `json:"seq"`
	SentAt         time.Time `json:"sent_at"`
	Read           bool      `json:"read"`
}
