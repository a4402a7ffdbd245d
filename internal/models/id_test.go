package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Derive_Conversation_Id_Is_Commutative(t *testing.T) {
	req := require.New(t)

	ab, err := DeriveConversationID("alice", "bob")
	req.NoError(err)
	ba, err := DeriveConversationID("bob", "alice")
	req.NoError(err)

	req.Equal(ab, ba)
	req.Equal("alice_bob", ab)
}

func Test_Derive_Conversation_Id_Rejects_Self_Chat(t *testing.T) {
	req := require.New(t)

	_, err := DeriveConversationID("alice", "alice")
	req.ErrorIs(err, ErrInvalidParticipants)
}

func Test_Derive_Conversation_Id_Rejects_Malformed_Ids(t *testing.T) {
	req := require.New(t)

	for _, bad := range []string{"", "has space", "tab\tid", "with_separator"} {
		_, err := DeriveConversationID(bad, "bob")
		req.ErrorIs(err, ErrInvalidParticipants, "id %q", bad)
		_, err = DeriveConversationID("alice", bad)
		req.ErrorIs(err, ErrInvalidParticipants, "id %q", bad)
	}
}

func Test_Participants_From_Id_Round_Trips(t *testing.T) {
	req := require.New(t)

	id, err := DeriveConversationID("carol", "bob")
	req.NoError(err)

	participants, err := ParticipantsFromID(id)
	req.NoError(err)
	req.Equal([]string{"bob", "carol"}, participants)

	_, err = ParticipantsFromID("not-a-pair")
	req.ErrorIs(err, ErrInvalidParticipants)
}

func Test_Preview_Projects_The_Other_Side(t *testing.T) {
	req := require.New(t)

	conv := &Conversation{
		ID:           "alice_bob",
		Participants: []string{"alice", "bob"},
		Names:        map[string]string{"alice": "Alice", "bob": "Bob"},
		LastMessage:  "hi",
		UnreadCount:  map[string]int{"alice": 0, "bob": 3},
	}

	preview := PreviewFor(conv, "bob")
	req.Equal("alice", preview.PeerID)
	req.Equal("Alice", preview.PeerName)
	req.Equal("hi", preview.LastMessage)
	req.Equal(3, preview.Unread)
}
