package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/alvenie/skillswap-chat/internal/models"
	"github.com/alvenie/skillswap-chat/internal/presence"
	"github.com/alvenie/skillswap-chat/internal/profile"
	"github.com/alvenie/skillswap-chat/internal/repository"
)

// DefaultOpTimeout bounds every store round-trip. Past the deadline the
// operation fails with models.ErrTimeout instead of hanging a client.
const DefaultOpTimeout = 5 * time.Second

// Publisher receives state changes after they are committed to the store.
// Satisfied by hub.Hub.
type Publisher interface {
	PublishMessage(msg *models.Message)
	PublishMessageRead(msgs []*models.Message)
	PublishConversation(conv *models.Conversation)
}

type ChatService interface {
	// EnsureConversation derives the canonical id for the pair and
	// creates or repairs the conversation record. Callers must not send
	// until it has returned successfully.
	EnsureConversation(ctx context.Context, userA, userB, nameA, nameB string) (*models.Conversation, error)

	// SendMessage appends to the conversation log, then bumps the
	// recipient's unread counter and the last-message summary. The counter
	// only moves after the append is confirmed; a failed append changes
	// nothing.
	SendMessage(ctx context.Context, conversationID, senderID, body string) (*models.Message, error)

	// MarkConversationRead flips read flags on messages addressed to the
	// reader known at call time and zeroes the reader's unread counter.
	// Safe to retry; a second call is a no-op.
	MarkConversationRead(ctx context.Context, conversationID, readerID string) error

	// Conversation returns the record for a participant.
	Conversation(ctx context.Context, conversationID, requesterID string) (*models.Conversation, error)

	// Messages returns the log after afterSeq (0 for the full backlog),
	// ascending, for a participant.
	Messages(ctx context.Context, conversationID, requesterID string, afterSeq int64) ([]*models.Message, error)

	// Inbox returns the caller's conversation previews, most recent first.
	Inbox(ctx context.Context, participantID string) ([]models.ConversationPreview, error)
}

type chatService struct {
	store     repository.Store
	profiles  profile.Directory
	notifier  presence.Notifier
	publisher Publisher
	logger    *logrus.Logger
	opTimeout time.Duration

	// sendMu serializes send/publish per conversation so events reach the
	// publisher in sequence order. Entries are never reclaimed; the map is
	// bounded by the number of conversations touched by this process.
	mu     sync.Mutex
	sendMu map[string]*sync.Mutex
}

func NewChatService(
	store repository.Store,
	profiles profile.Directory,
	notifier presence.Notifier,
	publisher Publisher,
	logger *logrus.Logger,
	opTimeout time.Duration,
) ChatService {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &chatService{
		store:     store,
		profiles:  profiles,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
		opTimeout: opTimeout,
		sendMu:    map[string]*sync.Mutex{},
	}
}

func (s *chatService) EnsureConversation(ctx context.Context, userA, userB, nameA, nameB string) (*models.Conversation, error) {
	id, err := models.DeriveConversationID(userA, userB)
	if err != nil {
		return nil, err
	}
	// Participants in canonical (id) order, names travelling with them.
	names := map[string]string{userA: nameA, userB: nameB}
	if userA > userB {
		userA, userB = userB, userA
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	conv, err := s.store.GetConversation(opCtx, id)
	if errors.Is(err, models.ErrConversationNotFound) {
		return s.createConversation(ctx, id, userA, userB, names)
	}
	if err != nil {
		return nil, s.initErr(err)
	}

	return s.repairConversation(ctx, conv, userA, userB, names), nil
}

// createConversation writes a fresh record. Under a first-contact race the
// store's create-if-absent makes exactly one writer win; the loser gets the
// winner's record back and both callers return the same conversation.
func (s *chatService) createConversation(ctx context.Context, id, userA, userB string, names map[string]string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:           id,
		Participants: []string{userA, userB},
		Names: map[string]string{
			userA: s.resolveName(ctx, userA, names[userA]),
			userB: s.resolveName(ctx, userB, names[userB]),
		},
		UnreadCount: map[string]int{userA: 0, userB: 0},
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	created, err := s.store.CreateConversation(opCtx, conv)
	if err != nil {
		s.logger.WithError(err).WithField("conversation_id", id).Error("Failed to create conversation")
		return nil, s.initErr(err)
	}

	if created {
		s.logger.WithFields(logrus.Fields{
			"conversation_id": id,
			"participant_a":   userA,
			"participant_b":   userB,
		}).Info("Conversation created")
		// Fan out the fresh record so open inboxes show the conversation
		// before any message lands in it. The race loser skips this; the
		// winner already published the same record.
		s.publisher.PublishConversation(conv)
	}
	return conv, nil
}

// repairConversation patches legacy records missing a participant and
// refreshes stale display names. Best effort: a failed repair logs and
// returns the record as it was, it never blocks opening the chat.
func (s *chatService) repairConversation(ctx context.Context, conv *models.Conversation, userA, userB string, names map[string]string) *models.Conversation {
	// The stored id is the durable source of truth for who belongs here;
	// a legacy record may have lost a participant but never its id.
	participants, err := models.ParticipantsFromID(conv.ID)
	if err != nil {
		participants = []string{userA, userB}
	}

	needsRepair := len(conv.Participants) != 2
	patch := map[string]string{}
	for _, p := range participants {
		if !conv.HasParticipant(p) {
			needsRepair = true
		}
		name := names[p]
		if name == "" && conv.Names[p] == "" {
			name = s.resolveName(ctx, p, "")
		}
		if name != "" && name != conv.Names[p] {
			patch[p] = name
			needsRepair = true
		}
	}
	if !needsRepair {
		return conv
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.store.RepairConversation(opCtx, conv.ID, participants, patch); err != nil {
		s.logger.WithError(err).WithField("conversation_id", conv.ID).Warn("Conversation repair failed")
		return conv
	}
	repaired, err := s.store.GetConversation(opCtx, conv.ID)
	if err != nil {
		return conv
	}
	s.logger.WithField("conversation_id", conv.ID).Info("Conversation repaired")
	return repaired
}

func (s *chatService) SendMessage(ctx context.Context, conversationID, senderID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, models.ErrEmptyMessage
	}

	lock := s.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	conv, err := s.store.GetConversation(opCtx, conversationID)
	if err != nil {
		return nil, s.timeoutErr(err)
	}
	if !conv.HasParticipant(senderID) {
		return nil, models.ErrNotParticipant
	}

	senderName := conv.Names[senderID]
	if senderName == "" {
		senderName = s.resolveName(ctx, senderID, "")
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Body:           body,
	}

	if err := s.store.AppendMessage(opCtx, msg); err != nil {
		// The send failed outright: no counter moved, nothing published,
		// the client shows the message as failed rather than sent.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"sender_id":       senderID,
		}).Error("Failed to append message")
		return nil, s.timeoutErr(err)
	}

	recipient := conv.Peer(senderID)
	updated, err := s.store.IncrementUnread(opCtx, conversationID, recipient, msg)
	if err != nil {
		// The message is durable; the counter catches up on the next
		// MarkConversationRead. Deliver the message regardless.
		s.logger.WithError(err).WithField("conversation_id", conversationID).Warn("Failed to update unread counter")
	}

	s.publisher.PublishMessage(msg)
	if updated != nil {
		s.publisher.PublishConversation(updated)
	}
	go s.notifier.MessageSent(conversationID, senderID, recipient)

	s.logger.WithFields(logrus.Fields{
		"message_id":      msg.ID,
		"conversation_id": conversationID,
		"sender_id":       senderID,
		"seq":             msg.Seq,
	}).Info("Message sent")
	return msg, nil
}

func (s *chatService) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	conv, err := s.store.GetConversation(opCtx, conversationID)
	if err != nil {
		return s.timeoutErr(err)
	}
	if !conv.HasParticipant(readerID) {
		return models.ErrNotParticipant
	}

	// Bound the mark to messages known at call time so a message arriving
	// mid-read is not marked read before the reader ever saw it.
	count, err := s.store.MarkMessagesRead(opCtx, conversationID, readerID, conv.LastSeq)
	if err != nil {
		return s.timeoutErr(err)
	}
	if count > 0 {
		// Re-deliver the flipped messages so the sender's open stream
		// observes the read flag turning over. The hub dedupes against
		// its read watermarks, so re-sending older read messages is
		// harmless.
		msgs, err := s.store.ListMessages(opCtx, conversationID, 0)
		if err != nil {
			s.logger.WithError(err).WithField("conversation_id", conversationID).Warn("Failed to load messages for read fan-out")
		} else {
			flipped := lo.Filter(msgs, func(m *models.Message, _ int) bool {
				return m.Read && m.SenderID != readerID && m.Seq <= conv.LastSeq
			})
			s.publisher.PublishMessageRead(flipped)
		}
	}

	updated, err := s.store.ResetUnread(opCtx, conversationID, readerID)
	if err != nil {
		return s.timeoutErr(err)
	}
	s.publisher.PublishConversation(updated)

	s.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"reader_id":       readerID,
		"marked_count":    count,
	}).Debug("Conversation marked read")
	return nil
}

func (s *chatService) Conversation(ctx context.Context, conversationID, requesterID string) (*models.Conversation, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	conv, err := s.store.GetConversation(opCtx, conversationID)
	if err != nil {
		return nil, s.timeoutErr(err)
	}
	if !conv.HasParticipant(requesterID) {
		return nil, models.ErrNotParticipant
	}
	return conv, nil
}

func (s *chatService) Messages(ctx context.Context, conversationID, requesterID string, afterSeq int64) ([]*models.Message, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	conv, err := s.store.GetConversation(opCtx, conversationID)
	if err != nil {
		return nil, s.timeoutErr(err)
	}
	if !conv.HasParticipant(requesterID) {
		return nil, models.ErrNotParticipant
	}

	msgs, err := s.store.ListMessages(opCtx, conversationID, afterSeq)
	if err != nil {
		return nil, s.timeoutErr(err)
	}
	return msgs, nil
}

func (s *chatService) Inbox(ctx context.Context, participantID string) ([]models.ConversationPreview, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	convs, err := s.store.ListConversationsFor(opCtx, participantID)
	if err != nil {
		return nil, s.timeoutErr(err)
	}
	return lo.Map(convs, func(c *models.Conversation, _ int) models.ConversationPreview {
		return models.PreviewFor(c, participantID)
	}), nil
}

// resolveName falls back from the provided name, to the profile directory,
// to a placeholder. A lookup miss is recovered here and never surfaced.
func (s *chatService) resolveName(ctx context.Context, userID, provided string) string {
	if provided != "" {
		return provided
	}
	name, err := s.profiles.DisplayName(ctx, userID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.WithError(err).WithField("user_id", userID).Debug("Display name lookup failed")
		}
		return profile.PlaceholderName
	}
	return name
}

func (s *chatService) convLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.sendMu[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.sendMu[conversationID] = lock
	}
	return lock
}

func (s *chatService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// initErr keeps Timeout and InitializationFailed distinct: a deadline hit
// surfaces as Timeout, every other store failure during create/repair as
// InitializationFailed for the caller to retry.
func (s *chatService) initErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrInitializationFailed, err)
}

func (s *chatService) timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	return err
}
