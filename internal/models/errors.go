package models

import "fmt"

var (
	// ErrInvalidParticipants rejects self-chats and malformed participant
	// ids before any I/O happens.
	ErrInvalidParticipants = fmt.Errorf("invalid participants")

	// ErrInitializationFailed means the conversation could not be created
	// or read back; callers must not send messages until a retry succeeds.
	ErrInitializationFailed = fmt.Errorf("conversation initialization failed")

	// ErrTimeout is returned when a store operation exceeds its deadline.
	ErrTimeout = fmt.Errorf("store operation timed out")

	// ErrNotFound is a profile lookup miss. It is always recovered with a
	// placeholder name and never surfaced to the user.
	ErrNotFound = fmt.Errorf("not found")

	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrNotParticipant       = fmt.Errorf("user is not a participant in this conversation")
	ErrEmptyMessage         = fmt.Errorf("empty message body")
)
