package models

import (
	"time"
)

// Conversation is the durable record of a two-party chat. Participant display
// names and unread counters are denormalized onto the record so the inbox can
// be rendered without joining against profiles or counting messages.
type Conversation struct {
	ID            string            `json:"id"`
	Participants  []string          `json:"participants"`
	Names         map[string]string `json:"names"`
	LastMessage   string            `json:"last_message,omitempty"`
	LastMessageAt time.Time         `json:"last_message_at"`
	LastSenderID  string            `json:"last_sender_id,omitempty"`
	UnreadCount   map[string]int    `json:"unread_count"`
	LastSeq       int64             `json:"-"`
	Revision      int64             `json:"-"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Peer returns the other participant's id, or "" when userID is not a
// participant.
func (c *Conversation) Peer(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// Clone returns a deep copy. Subscribers receive copies so one consumer can
// never mutate state seen by another.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.Names = make(map[string]string, len(c.Names))
	for k, v := range c.Names {
		cp.Names[k] = v
	}
	cp.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		cp.UnreadCount[k] = v
	}
	return &cp
}

// ConversationPreview is the read-only projection the inbox renders: the
// other side of the conversation plus the caller's own unread counter.
type ConversationPreview struct {
	ConversationID string    `json:"conversation_id"`
	PeerID         string    `json:"peer_id"`
	PeerName       string    `json:"peer_name"`
	LastMessage    string    `json:"last_message,omitempty"`
	LastMessageAt  time.Time `json:"last_message_at"`
	Unread         int       `json:"unread"`
}

// PreviewFor projects a conversation onto the view seen by viewerID.
func PreviewFor(c *Conversation, viewerID string) ConversationPreview {
	peer := c.Peer(viewerID)
	return ConversationPreview{
		ConversationID: c.ID,
		PeerID:         peer,
		PeerName:       c.Names[peer],
		LastMessage:    c.LastMessage,
		LastMessageAt:  c.LastMessageAt,
		Unread:         c.UnreadCount[viewerID],
	}
}
