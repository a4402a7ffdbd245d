package hub

import (
	"sync"

	"github.com/alvenie/skillswap-chat/internal/models"
)

// MessageSubscription is one subscriber's live view of a conversation log:
// the backlog at subscribe time, every later append in sequence order, and
// each message again when its read flag flips. The channel is closed when
// the subscription ends, whether by Close, by hub shutdown, or by falling
// too far behind.
type MessageSubscription struct {
	id      string
	hub     *Hub
	key     string
	ch      chan *models.Message
	lastSeq int64
	// readSeqs holds, per sender, the highest sequence this subscriber has
	// seen with the read flag set. Marking a conversation read flips a
	// prefix of the peer's messages, so one watermark per direction is
	// enough to tell a fresh flip from a re-delivery.
	readSeqs map[string]int64
	once     sync.Once
}

// Events is the stream. It is closed when the subscription ends.
func (s *MessageSubscription) Events() <-chan *models.Message {
	return s.ch
}

// Close releases the subscription. No deliveries happen after it returns;
// already-buffered events remain readable until the channel drains.
func (s *MessageSubscription) Close() {
	s.hub.removeMessageSub(s)
	s.closeChan()
}

func (s *MessageSubscription) closeChan() {
	s.once.Do(func() { close(s.ch) })
}

// InboxSubscription is one subscriber's live view of a participant's
// conversation list: every conversation containing the participant at
// subscribe time, then each record again whenever it changes. Records carry
// LastMessageAt, so the client orders its own list.
type InboxSubscription struct {
	id        string
	hub       *Hub
	key       string
	ch        chan *models.Conversation
	revisions map[string]int64
	once      sync.Once
}

func (s *InboxSubscription) Events() <-chan *models.Conversation {
	return s.ch
}

func (s *InboxSubscription) Close() {
	s.hub.removeInboxSub(s)
	s.closeChan()
}

func (s *InboxSubscription) closeChan() {
	s.once.Do(func() { close(s.ch) })
}
