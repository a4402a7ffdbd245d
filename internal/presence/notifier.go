// Package presence is the seam to the external push-notification service.
package presence

import (
	"github.com/sirupsen/logrus"
)

// Notifier receives a fire-and-forget event after a message is delivered to
// the store. The engine never waits on it and never fails a send over it.
type Notifier interface {
	MessageSent(conversationID, senderID, recipientID string)
}

// LogNotifier records the event in the log. Production swaps in the
// marketplace push gateway behind the same interface.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) MessageSent(conversationID, senderID, recipientID string) {
	n.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"sender_id":       senderID,
		"recipient_id":    recipientID,
	}).Debug("Message sent notification")
}
