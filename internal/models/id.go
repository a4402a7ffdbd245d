package models

import (
	"fmt"
	"strings"
	"unicode"
)

// idSeparator joins the two participant ids into the conversation id. Ids
// containing the separator are rejected so the derived id stays unambiguous.
const idSeparator = "_"

// DeriveConversationID maps an unordered pair of participant ids to the
// canonical conversation id: the ids sorted lexicographically and joined
// with "_". It is pure and commutative, so either party can compute the id
// offline and both arrive at the same record. Self-chat is rejected.
func DeriveConversationID(a, b string) (string, error) {
	if err := validateParticipantID(a); err != nil {
		return "", err
	}
	if err := validateParticipantID(b); err != nil {
		return "", err
	}
	if a == b {
		return "", fmt.Errorf("%w: cannot open a conversation with yourself", ErrInvalidParticipants)
	}
	if a > b {
		a, b = b, a
	}
	return a + idSeparator + b, nil
}

// ParticipantsFromID is the inverse of DeriveConversationID, used to repair
// legacy records whose participant list is missing or partial.
func ParticipantsFromID(id string) ([]string, error) {
	parts := strings.Split(id, idSeparator)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: malformed conversation id %q", ErrInvalidParticipants, id)
	}
	if _, err := DeriveConversationID(parts[0], parts[1]); err != nil {
		return nil, err
	}
	return parts, nil
}

func validateParticipantID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty participant id", ErrInvalidParticipants)
	}
	if strings.Contains(id, idSeparator) {
		return fmt.Errorf("%w: participant id %q contains %q", ErrInvalidParticipants, id, idSeparator)
	}
	for _, r := range id {
		if unicode.IsSpace(r) {
			return fmt.Errorf("%w: participant id %q contains whitespace", ErrInvalidParticipants, id)
		}
	}
	return nil
}
