package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alvenie/skillswap-chat/internal/models"
)

// PostgresStore keeps conversations and messages in PostgreSQL. Conversation
// rows carry both participants in the same lexicographic order the id is
// derived in, so participant_a < participant_b always holds.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InitializeTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		participant_a TEXT NOT NULL,
		participant_b TEXT NOT NULL,
		name_a TEXT NOT NULL DEFAULT '',
		name_b TEXT NOT NULL DEFAULT '',
		last_message TEXT NOT NULL DEFAULT '',
		last_message_at TIMESTAMPTZ,
		last_sender_id TEXT NOT NULL DEFAULT '',
		unread_a INTEGER NOT NULL DEFAULT 0,
		unread_b INTEGER NOT NULL DEFAULT 0,
		last_seq BIGINT NOT NULL DEFAULT 0,
		revision BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		seq BIGINT NOT NULL,
		id UUID NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		body TEXT NOT NULL,
		sent_at TIMESTAMPTZ NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (conversation_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_participant_a ON conversations(participant_a);
	CREATE INDEX IF NOT EXISTS idx_conversations_participant_b ON conversations(participant_b);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, sender_id) WHERE NOT read;
	`

	_, err := s.db.Exec(query)
	return err
}

const conversationColumns = `
	id, participant_a, participant_b, name_a, name_b,
	last_message, last_message_at, last_sender_id,
	unread_a, unread_b, last_seq, revision, created_at, updated_at`

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) (bool, error) {
	if len(conv.Participants) != 2 {
		return false, fmt.Errorf("%w: conversation needs exactly two participants", models.ErrInvalidParticipants)
	}
	a, b := conv.Participants[0], conv.Participants[1]

	query := `
	INSERT INTO conversations (id, participant_a, participant_b, name_a, name_b)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query, conv.ID, a, b, conv.Names[a], conv.Names[b])
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	created := rows > 0

	// Winner or loser, hand back the stored record: under a first-contact
	// race the loser must observe the winner's row.
	stored, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		return created, err
	}
	*conv = *stored
	return created, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT` + conversationColumns + ` FROM conversations WHERE id = $1`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) RepairConversation(ctx context.Context, id string, participants []string, names map[string]string) error {
	if len(participants) != 2 {
		return fmt.Errorf("%w: conversation needs exactly two participants", models.ErrInvalidParticipants)
	}
	a, b := participants[0], participants[1]

	query := `
	UPDATE conversations
	SET participant_a = $2,
	    participant_b = $3,
	    name_a = CASE WHEN $4 <> '' THEN $4 ELSE name_a END,
	    name_b = CASE WHEN $5 <> '' THEN $5 ELSE name_b END,
	    revision = revision + 1,
	    updated_at = NOW()
	WHERE id = $1
	`

	res, err := s.db.ExecContext(ctx, query, id, a, b, names[a], names[b])
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) ListConversationsFor(ctx context.Context, participantID string) ([]*models.Conversation, error) {
	query := `
	SELECT` + conversationColumns + `
	FROM conversations
	WHERE participant_a = $1 OR participant_b = $1
	ORDER BY GREATEST(COALESCE(last_message_at, created_at), created_at) DESC
	`

	rows, err := s.db.QueryContext(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		conv, err := s.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// AppendMessage claims the next sequence number with a single relative update
// on the conversation row, then inserts the message under it. The row update
// serializes concurrent appends to the same conversation, so seq is gapless
// and strictly increasing without any advisory locking.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int64
	var sentAt time.Time
	err = tx.QueryRowContext(ctx, `
	UPDATE conversations
	SET last_seq = last_seq + 1, updated_at = NOW()
	WHERE id = $1
	RETURNING last_seq, GREATEST(NOW(), COALESCE(last_message_at, NOW()))
	`, msg.ConversationID).Scan(&seq, &sentAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ErrConversationNotFound
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO messages (conversation_id, seq, id, sender_id, sender_name, body, sent_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ConversationID, seq, msg.ID, msg.SenderID, msg.SenderName, msg.Body, sentAt)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	msg.Seq = seq
	msg.SentAt = sentAt.UTC()
	msg.Read = false
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string, afterSeq int64) ([]*models.Message, error) {
	query := `
	SELECT conversation_id, seq, id, sender_id, sender_name, body, sent_at, read
	FROM messages
	WHERE conversation_id = $1 AND seq > $2
	ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var msg models.Message
		var sentAt time.Time
		err := rows.Scan(
			&msg.ConversationID, &msg.Seq, &msg.ID, &msg.SenderID,
			&msg.SenderName, &msg.Body, &sentAt, &msg.Read,
		)
		if err != nil {
			return nil, err
		}
		msg.SentAt = sentAt.UTC()
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

func (s *PostgresStore) MarkMessagesRead(ctx context.Context, conversationID, readerID string, upToSeq int64) (int, error) {
	query := `
	UPDATE messages
	SET read = TRUE
	WHERE conversation_id = $1 AND sender_id <> $2 AND NOT read AND seq <= $3
	`

	res, err := s.db.ExecContext(ctx, query, conversationID, readerID, upToSeq)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func (s *PostgresStore) IncrementUnread(ctx context.Context, conversationID, recipientID string, last *models.Message) (*models.Conversation, error) {
	query := `
	UPDATE conversations
	SET unread_a = unread_a + CASE WHEN participant_a = $2 THEN 1 ELSE 0 END,
	    unread_b = unread_b + CASE WHEN participant_b = $2 THEN 1 ELSE 0 END,
	    last_message = $3,
	    last_message_at = $4,
	    last_sender_id = $5,
	    revision = revision + 1,
	    updated_at = NOW()
	WHERE id = $1
	RETURNING` + conversationColumns

	row := s.db.QueryRowContext(ctx, query, conversationID, recipientID, last.Body, last.SentAt, last.SenderID)
	return s.scanConversation(row)
}

func (s *PostgresStore) ResetUnread(ctx context.Context, conversationID, readerID string) (*models.Conversation, error) {
	query := `
	UPDATE conversations
	SET unread_a = CASE WHEN participant_a = $2 THEN 0 ELSE unread_a END,
	    unread_b = CASE WHEN participant_b = $2 THEN 0 ELSE unread_b END,
	    revision = revision + 1,
	    updated_at = NOW()
	WHERE id = $1
	RETURNING` + conversationColumns

	row := s.db.QueryRowContext(ctx, query, conversationID, readerID)
	return s.scanConversation(row)
}

func (s *PostgresStore) UnreadMessageCount(ctx context.Context, conversationID, readerID string) (int, error) {
	query := `
	SELECT COUNT(*)
	FROM messages
	WHERE conversation_id = $1 AND sender_id <> $2 AND NOT read
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, conversationID, readerID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanConversation(row rowScanner) (*models.Conversation, error) {
	var (
		conv          models.Conversation
		a, b          string
		nameA, nameB  string
		lastMessageAt sql.NullTime
		unreadA       int
		unreadB       int
	)

	err := row.Scan(
		&conv.ID, &a, &b, &nameA, &nameB,
		&conv.LastMessage, &lastMessageAt, &conv.LastSenderID,
		&unreadA, &unreadB, &conv.LastSeq, &conv.Revision,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrConversationNotFound
		}
		return nil, err
	}

	conv.Participants = []string{a, b}
	conv.Names = map[string]string{a: nameA, b: nameB}
	conv.UnreadCount = map[string]int{a: unreadA, b: unreadB}
	if lastMessageAt.Valid {
		conv.LastMessageAt = lastMessageAt.Time.UTC()
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	return &conv, nil
}
