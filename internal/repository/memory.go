package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alvenie/skillswap-chat/internal/models"
)

// MemoryStore is the in-process Store used by tests and the `storage: memory`
// development mode. Every operation honors ctx cancellation before touching
// state so deadline behavior matches the SQL store.
type MemoryStore struct {
	mu    sync.Mutex
	convs map[string]*memoryConversation
}

type memoryConversation struct {
	conv     models.Conversation
	messages []*models.Message
	lastSent time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: map[string]*memoryConversation{}}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(conv.Participants) != 2 {
		return false, fmt.Errorf("%w: conversation needs exactly two participants", models.ErrInvalidParticipants)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.convs[conv.ID]; ok {
		*conv = *existing.conv.Clone()
		return false, nil
	}

	now := time.Now().UTC()
	stored := conv.Clone()
	stored.UnreadCount = map[string]int{conv.Participants[0]: 0, conv.Participants[1]: 0}
	// Fresh records start at revision 1; subscribers track unseen ids at
	// zero, so a create always passes their staleness filter.
	stored.Revision = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.convs[conv.ID] = &memoryConversation{conv: *stored}
	*conv = *stored.Clone()
	return true, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[id]
	if !ok {
		return nil, models.ErrConversationNotFound
	}
	return rec.conv.Clone(), nil
}

func (s *MemoryStore) RepairConversation(ctx context.Context, id string, participants []string, names map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(participants) != 2 {
		return fmt.Errorf("%w: conversation needs exactly two participants", models.ErrInvalidParticipants)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[id]
	if !ok {
		return models.ErrConversationNotFound
	}

	rec.conv.Participants = append([]string(nil), participants...)
	for _, p := range participants {
		if name := names[p]; name != "" {
			rec.conv.Names[p] = name
		}
		if _, ok := rec.conv.UnreadCount[p]; !ok {
			rec.conv.UnreadCount[p] = 0
		}
	}
	rec.conv.Revision++
	rec.conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListConversationsFor(ctx context.Context, participantID string) ([]*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var convs []*models.Conversation
	for _, rec := range s.convs {
		if rec.conv.HasParticipant(participantID) {
			convs = append(convs, rec.conv.Clone())
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		ti, tj := convs[i].LastMessageAt, convs[j].LastMessageAt
		if ti.IsZero() {
			ti = convs[i].CreatedAt
		}
		if tj.IsZero() {
			tj = convs[j].CreatedAt
		}
		return ti.After(tj)
	})
	return convs, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[msg.ConversationID]
	if !ok {
		return models.ErrConversationNotFound
	}

	// Clamp the wall clock so SentAt never regresses within a conversation.
	now := time.Now().UTC()
	if !now.After(rec.lastSent) {
		now = rec.lastSent.Add(time.Nanosecond)
	}
	rec.lastSent = now

	rec.conv.LastSeq++
	rec.conv.UpdatedAt = now
	stored := *msg
	stored.Seq = rec.conv.LastSeq
	stored.SentAt = now
	stored.Read = false
	rec.messages = append(rec.messages, &stored)

	*msg = stored
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string, afterSeq int64) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[conversationID]
	if !ok {
		return nil, models.ErrConversationNotFound
	}

	var msgs []*models.Message
	for _, m := range rec.messages {
		if m.Seq > afterSeq {
			cp := *m
			msgs = append(msgs, &cp)
		}
	}
	return msgs, nil
}

func (s *MemoryStore) MarkMessagesRead(ctx context.Context, conversationID, readerID string, upToSeq int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[conversationID]
	if !ok {
		return 0, models.ErrConversationNotFound
	}

	count := 0
	for _, m := range rec.messages {
		if m.Seq <= upToSeq && m.SenderID != readerID && !m.Read {
			m.Read = true
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) IncrementUnread(ctx context.Context, conversationID, recipientID string, last *models.Message) (*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[conversationID]
	if !ok {
		return nil, models.ErrConversationNotFound
	}

	if rec.conv.HasParticipant(recipientID) {
		rec.conv.UnreadCount[recipientID]++
	}
	rec.conv.LastMessage = last.Body
	rec.conv.LastMessageAt = last.SentAt
	rec.conv.LastSenderID = last.SenderID
	rec.conv.Revision++
	rec.conv.UpdatedAt = time.Now().UTC()
	return rec.conv.Clone(), nil
}

func (s *MemoryStore) ResetUnread(ctx context.Context, conversationID, readerID string) (*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[conversationID]
	if !ok {
		return nil, models.ErrConversationNotFound
	}

	if rec.conv.HasParticipant(readerID) {
		rec.conv.UnreadCount[readerID] = 0
	}
	rec.conv.Revision++
	rec.conv.UpdatedAt = time.Now().UTC()
	return rec.conv.Clone(), nil
}

func (s *MemoryStore) UnreadMessageCount(ctx context.Context, conversationID, readerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[conversationID]
	if !ok {
		return 0, models.ErrConversationNotFound
	}

	count := 0
	for _, m := range rec.messages {
		if m.SenderID != readerID && !m.Read {
			count++
		}
	}
	return count, nil
}
