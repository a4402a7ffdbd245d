package repository

import (
	"context"

	"github.com/alvenie/skillswap-chat/internal/models"
)

// Store is the durable state behind the chat engine: conversation records,
// the per-conversation message log, and the denormalized unread counters.
//
// Counter operations are relative updates applied atomically by the store
// (never read-modify-write at this layer), which is what keeps concurrent
// senders and readers from losing increments or driving counters negative.
type Store interface {
	// CreateConversation is create-if-absent. It reports whether this call
	// won the create; a losing concurrent caller gets created=false with no
	// error and reads back the winner's record.
	CreateConversation(ctx context.Context, conv *models.Conversation) (created bool, err error)

	// GetConversation returns models.ErrConversationNotFound for unknown ids.
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)

	// RepairConversation patches participants and display names on an
	// existing record. Empty names leave the stored name untouched.
	RepairConversation(ctx context.Context, id string, participants []string, names map[string]string) error

	// ListConversationsFor returns every conversation containing the
	// participant, most recent activity first.
	ListConversationsFor(ctx context.Context, participantID string) ([]*models.Conversation, error)

	// AppendMessage assigns msg.Seq and msg.SentAt and appends the message
	// to its conversation's log. Seq is strictly increasing and SentAt
	// non-decreasing within a conversation.
	AppendMessage(ctx context.Context, msg *models.Message) error

	// ListMessages returns the log after the given sequence number (0 for
	// the full backlog), ascending.
	ListMessages(ctx context.Context, conversationID string, afterSeq int64) ([]*models.Message, error)

	// MarkMessagesRead flips the read flag on messages not authored by
	// readerID up to and including upToSeq, and returns how many flipped.
	// The bound keeps a concurrent new arrival from being marked read.
	MarkMessagesRead(ctx context.Context, conversationID, readerID string, upToSeq int64) (int, error)

	// IncrementUnread bumps the recipient's unread counter and refreshes
	// the last-message summary in one atomic update, returning the updated
	// record.
	IncrementUnread(ctx context.Context, conversationID, recipientID string, last *models.Message) (*models.Conversation, error)

	// ResetUnread zeroes the reader's unread counter. Idempotent: resetting
	// an already-zero counter is a no-op, never a decrement.
	ResetUnread(ctx context.Context, conversationID, readerID string) (*models.Conversation, error)

	// UnreadMessageCount recounts unread messages addressed to readerID from
	// the read flags, the ground truth a reconciliation pass would use.
	UnreadMessageCount(ctx context.Context, conversationID, readerID string) (int, error)
}
