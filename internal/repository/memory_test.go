package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alvenie/skillswap-chat/internal/models"
)

func newConversation(id string, a, b string) *models.Conversation {
	return &models.Conversation{
		ID:           id,
		Participants: []string{a, b},
		Names:        map[string]string{a: a, b: b},
		UnreadCount:  map[string]int{a: 0, b: 0},
	}
}

func Test_Create_Conversation_Is_Create_If_Absent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.CreateConversation(ctx, newConversation("alice_bob", "alice", "bob"))
	req.NoError(err)
	req.True(created)

	loser := newConversation("alice_bob", "alice", "bob")
	created, err = store.CreateConversation(ctx, loser)
	req.NoError(err)
	req.False(created)
	req.Equal([]string{"alice", "bob"}, loser.Participants)
}

func Test_Concurrent_Creates_Have_Exactly_One_Winner(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	const callers = 16
	wins := make(chan bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := store.CreateConversation(ctx, newConversation("alice_bob", "alice", "bob"))
			require.NoError(t, err)
			wins <- created
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for created := range wins {
		if created {
			winners++
		}
	}
	req.Equal(1, winners)

	conv, err := store.GetConversation(ctx, "alice_bob")
	req.NoError(err)
	req.Len(conv.Participants, 2)
}

func Test_Append_Assigns_Increasing_Seq_And_Time(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreateConversation(ctx, newConversation("alice_bob", "alice", "bob"))
	req.NoError(err)

	var lastSeq int64
	for i := 0; i < 10; i++ {
		msg := &models.Message{ID: "m", ConversationID: "alice_bob", SenderID: "alice", Body: "hi"}
		req.NoError(store.AppendMessage(ctx, msg))
		req.Greater(msg.Seq, lastSeq)
		lastSeq = msg.Seq
	}

	msgs, err := store.ListMessages(ctx, "alice_bob", 0)
	req.NoError(err)
	req.Len(msgs, 10)
	for i := 1; i < len(msgs); i++ {
		req.Greater(msgs[i].Seq, msgs[i-1].Seq)
		req.False(msgs[i].SentAt.Before(msgs[i-1].SentAt))
	}

	tail, err := store.ListMessages(ctx, "alice_bob", msgs[6].Seq)
	req.NoError(err)
	req.Len(tail, 3)
}

func Test_Append_To_Unknown_Conversation_Fails(t *testing.T) {
	req := require.New(t)
	store := NewMemoryStore()

	err := store.AppendMessage(context.Background(), &models.Message{ConversationID: "nope"})
	req.ErrorIs(err, models.ErrConversationNotFound)
}

func Test_Mark_Read_Is_Bounded_By_Seq(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreateConversation(ctx, newConversation("alice_bob", "alice", "bob"))
	req.NoError(err)

	var boundary int64
	for i := 0; i < 3; i++ {
		msg := &models.Message{ConversationID: "alice_bob", SenderID: "alice", Body: "hi"}
		req.NoError(store.AppendMessage(ctx, msg))
		boundary = msg.Seq
	}
	// Arrives while bob is marking read; must stay unread.
	late := &models.Message{ConversationID: "alice_bob", SenderID: "alice", Body: "one more"}
	req.NoError(store.AppendMessage(ctx, late))

	count, err := store.MarkMessagesRead(ctx, "alice_bob", "bob", boundary)
	req.NoError(err)
	req.Equal(3, count)

	unread, err := store.UnreadMessageCount(ctx, "alice_bob", "bob")
	req.NoError(err)
	req.Equal(1, unread)
}

func Test_Mark_Read_Skips_Own_Messages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreateConversation(ctx, newConversation("alice_bob", "alice", "bob"))
	req.NoError(err)

	mine := &models.Message{ConversationID: "alice_bob", SenderID: "bob", Body: "mine"}
	req.NoError(store.AppendMessage(ctx, mine))
	theirs := &models.Message{ConversationID: "alice_bob", SenderID: "alice", Body: "theirs"}
	req.NoError(store.AppendMessage(ctx, theirs))

	count, err := store.MarkMessagesRead(ctx, "alice_bob", "bob", theirs.Seq)
	req.NoError(err)
	req.Equal(1, count)
}

func Test_Unread_Counter_Is_Relative_And_Clamped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreateConversation(ctx, newConversation("alice_bob", "alice", "bob"))
	req.NoError(err)

	msg := &models.Message{ConversationID: "alice_bob", SenderID: "alice", Body: "hi"}
	req.NoError(store.AppendMessage(ctx, msg))

	conv, err := store.IncrementUnread(ctx, "alice_bob", "bob", msg)
	req.NoError(err)
	req.Equal(1, conv.UnreadCount["bob"])
	req.Equal(0, conv.UnreadCount["alice"])
	req.Equal("hi", conv.LastMessage)
	req.Equal(msg.SentAt, conv.LastMessageAt)
	req.Equal("alice", conv.LastSenderID)

	conv, err = store.ResetUnread(ctx, "alice_bob", "bob")
	req.NoError(err)
	req.Equal(0, conv.UnreadCount["bob"])

	// Retrying the reset is a no-op, never a decrement below zero.
	conv, err = store.ResetUnread(ctx, "alice_bob", "bob")
	req.NoError(err)
	req.Equal(0, conv.UnreadCount["bob"])
}

func Test_Concurrent_Increments_Lose_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreateConversation(ctx, newConversation("alice_bob", "alice", "bob"))
	req.NoError(err)

	const sends = 50
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := &models.Message{ConversationID: "alice_bob", SenderID: "alice", Body: "hi"}
			require.NoError(t, store.AppendMessage(ctx, msg))
			_, err := store.IncrementUnread(ctx, "alice_bob", "bob", msg)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	conv, err := store.GetConversation(ctx, "alice_bob")
	req.NoError(err)
	req.Equal(sends, conv.UnreadCount["bob"])
	req.Equal(int64(sends), conv.LastSeq)
}

func Test_Repair_Patches_Names_Without_Erasing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	conv := newConversation("alice_bob", "alice", "bob")
	conv.Names = map[string]string{"alice": "Alice", "bob": ""}
	_, err := store.CreateConversation(ctx, conv)
	req.NoError(err)

	err = store.RepairConversation(ctx, "alice_bob", []string{"alice", "bob"}, map[string]string{"bob": "Bob"})
	req.NoError(err)

	repaired, err := store.GetConversation(ctx, "alice_bob")
	req.NoError(err)
	req.Equal("Alice", repaired.Names["alice"])
	req.Equal("Bob", repaired.Names["bob"])
}

func Test_List_Conversations_Most_Recent_First(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	for _, peer := range []string{"bob", "carol", "dave"} {
		_, err := store.CreateConversation(ctx, newConversation("alice_"+peer, "alice", peer))
		req.NoError(err)
	}

	// Activity order: carol, then dave. Bob stays message-less.
	for _, peer := range []string{"carol", "dave"} {
		msg := &models.Message{ConversationID: "alice_" + peer, SenderID: peer, Body: "hi"}
		req.NoError(store.AppendMessage(ctx, msg))
		_, err := store.IncrementUnread(ctx, "alice_"+peer, "alice", msg)
		req.NoError(err)
	}

	convs, err := store.ListConversationsFor(ctx, "alice")
	req.NoError(err)
	req.Len(convs, 3)
	req.Equal("alice_dave", convs[0].ID)
	req.Equal("alice_carol", convs[1].ID)
	req.Equal("alice_bob", convs[2].ID)

	convs, err = store.ListConversationsFor(ctx, "nobody")
	req.NoError(err)
	req.Empty(convs)
}
