// Package hub fans out conversation state changes to live subscribers.
//
// Every subscription is snapshot-then-delta: the current state is loaded
// from the store and queued first, then each subsequent change arrives as an
// incremental event. Deltas are filtered against the snapshot position
// (message sequence, conversation revision, read watermark), so a change
// that raced the snapshot read is delivered exactly once, never duplicated,
// never out of order relative to the snapshot.
//
// Subscribers are isolated: each owns a buffered channel and a slow consumer
// is cut off (its subscription is closed) rather than allowed to block
// anyone else. A cut-off or reconnecting client simply subscribes again and
// gets a fresh snapshot-then-delta handshake.
package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alvenie/skillswap-chat/internal/models"
	"github.com/alvenie/skillswap-chat/internal/repository"
)

// DefaultSubscriberBuffer is the delta headroom on top of each
// subscription's snapshot.
const DefaultSubscriberBuffer = 64

var errShutDown = fmt.Errorf("hub is shut down")

type Hub struct {
	store  repository.Store
	logger *logrus.Logger
	buffer int

	mu        sync.Mutex
	closed    bool
	msgSubs   map[string]map[string]*MessageSubscription
	inboxSubs map[string]map[string]*InboxSubscription
}

func New(store repository.Store, logger *logrus.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		store:     store,
		logger:    logger,
		buffer:    buffer,
		msgSubs:   map[string]map[string]*MessageSubscription{},
		inboxSubs: map[string]map[string]*InboxSubscription{},
	}
}

// SubscribeMessages opens a live stream over one conversation's log. The
// snapshot read and the registration happen under the hub lock, so no delta
// can slip between them.
func (h *Hub) SubscribeMessages(ctx context.Context, conversationID string) (*MessageSubscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errShutDown
	}

	snapshot, err := h.store.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}

	sub := &MessageSubscription{
		id:       uuid.NewString(),
		hub:      h,
		key:      conversationID,
		ch:       make(chan *models.Message, len(snapshot)+h.buffer),
		readSeqs: map[string]int64{},
	}
	for _, msg := range snapshot {
		sub.ch <- msg
		sub.lastSeq = msg.Seq
		if msg.Read && msg.Seq > sub.readSeqs[msg.SenderID] {
			sub.readSeqs[msg.SenderID] = msg.Seq
		}
	}

	if h.msgSubs[conversationID] == nil {
		h.msgSubs[conversationID] = map[string]*MessageSubscription{}
	}
	h.msgSubs[conversationID][sub.id] = sub

	h.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"subscription_id": sub.id,
		"snapshot_size":   len(snapshot),
	}).Debug("Message subscription opened")
	return sub, nil
}

// SubscribeInbox opens a live stream over every conversation containing the
// participant, for inbox rendering. Delivered records carry LastMessageAt so
// the client can keep its list ordered.
func (h *Hub) SubscribeInbox(ctx context.Context, participantID string) (*InboxSubscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errShutDown
	}

	snapshot, err := h.store.ListConversationsFor(ctx, participantID)
	if err != nil {
		return nil, err
	}

	sub := &InboxSubscription{
		id:        uuid.NewString(),
		hub:       h,
		key:       participantID,
		ch:        make(chan *models.Conversation, len(snapshot)+h.buffer),
		revisions: map[string]int64{},
	}
	for _, conv := range snapshot {
		sub.ch <- conv
		sub.revisions[conv.ID] = conv.Revision
	}

	if h.inboxSubs[participantID] == nil {
		h.inboxSubs[participantID] = map[string]*InboxSubscription{}
	}
	h.inboxSubs[participantID][sub.id] = sub

	h.logger.WithFields(logrus.Fields{
		"participant_id":  participantID,
		"subscription_id": sub.id,
		"snapshot_size":   len(snapshot),
	}).Debug("Inbox subscription opened")
	return sub, nil
}

// PublishMessage delivers an appended message to every subscriber of its
// conversation. Callers publish in sequence order; a message at or below a
// subscriber's snapshot position is skipped as already delivered.
func (h *Hub) PublishMessage(msg *models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.msgSubs[msg.ConversationID] {
		if msg.Seq <= sub.lastSeq {
			continue
		}
		cp := *msg
		select {
		case sub.ch <- &cp:
			sub.lastSeq = msg.Seq
		default:
			h.dropMessageSub(sub)
		}
	}
}

// PublishMessageRead re-delivers messages whose read flag flipped to every
// subscriber of their conversation. Appends dedupe on sequence position;
// flips instead dedupe against the per-sender read watermark, since a mark
// flips a prefix of one sender's messages. A flip that outruns its own
// append advances lastSeq too, so the subscriber never sees the unread copy
// afterwards.
func (h *Hub) PublishMessageRead(msgs []*models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, msg := range msgs {
		if !msg.Read {
			continue
		}
		for _, sub := range h.msgSubs[msg.ConversationID] {
			if msg.Seq <= sub.readSeqs[msg.SenderID] {
				continue
			}
			cp := *msg
			select {
			case sub.ch <- &cp:
				sub.readSeqs[msg.SenderID] = msg.Seq
				if msg.Seq > sub.lastSeq {
					sub.lastSeq = msg.Seq
				}
			default:
				h.dropMessageSub(sub)
			}
		}
	}
}

// PublishConversation delivers a created or updated conversation record to
// both participants' inbox subscribers. Stale revisions are skipped: an
// update that lost the race to a newer one carries nothing the subscriber
// still needs. Unseen ids sit at revision zero in the subscriber's map and
// the store persists creates at revision 1, so a brand-new conversation is
// always delivered.
func (h *Hub) PublishConversation(conv *models.Conversation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, participant := range conv.Participants {
		for _, sub := range h.inboxSubs[participant] {
			if conv.Revision <= sub.revisions[conv.ID] {
				continue
			}
			select {
			case sub.ch <- conv.Clone():
				sub.revisions[conv.ID] = conv.Revision
			default:
				h.dropInboxSub(sub)
			}
		}
	}
}

// Shutdown closes every open subscription and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for _, subs := range h.msgSubs {
		for _, sub := range subs {
			sub.closeChan()
		}
	}
	for _, subs := range h.inboxSubs {
		for _, sub := range subs {
			sub.closeChan()
		}
	}
	h.msgSubs = map[string]map[string]*MessageSubscription{}
	h.inboxSubs = map[string]map[string]*InboxSubscription{}
}

// dropMessageSub is called with h.mu held when a subscriber's buffer is
// full. Cutting the laggard off keeps its backpressure away from every
// other subscriber; on reconnect it gets a fresh snapshot.
func (h *Hub) dropMessageSub(sub *MessageSubscription) {
	delete(h.msgSubs[sub.key], sub.id)
	if len(h.msgSubs[sub.key]) == 0 {
		delete(h.msgSubs, sub.key)
	}
	sub.closeChan()
	h.logger.WithFields(logrus.Fields{
		"conversation_id": sub.key,
		"subscription_id": sub.id,
	}).Warn("Message subscriber too slow, dropped")
}

func (h *Hub) dropInboxSub(sub *InboxSubscription) {
	delete(h.inboxSubs[sub.key], sub.id)
	if len(h.inboxSubs[sub.key]) == 0 {
		delete(h.inboxSubs, sub.key)
	}
	sub.closeChan()
	h.logger.WithFields(logrus.Fields{
		"participant_id":  sub.key,
		"subscription_id": sub.id,
	}).Warn("Inbox subscriber too slow, dropped")
}

func (h *Hub) removeMessageSub(sub *MessageSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.msgSubs[sub.key], sub.id)
	if len(h.msgSubs[sub.key]) == 0 {
		delete(h.msgSubs, sub.key)
	}
}

func (h *Hub) removeInboxSub(sub *InboxSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inboxSubs[sub.key], sub.id)
	if len(h.inboxSubs[sub.key]) == 0 {
		delete(h.inboxSubs, sub.key)
	}
}
