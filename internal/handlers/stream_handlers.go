package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"

	"github.com/alvenie/skillswap-chat/internal/models"
)

// StreamMessagesHandler GET /api/ws/conversations/:id?user=
//
// Streams the conversation backlog followed by live appends, in order. The
// subscription is released on every exit path; a dropped or slow client
// reconnects and replays from a fresh snapshot.
func (h *ChatHandlers) StreamMessagesHandler(c *websocket.Conn) {
	conversationID := c.Params("id")
	user := c.Query("user")

	if _, err := h.service.Conversation(context.Background(), conversationID, user); err != nil {
		h.closeWith(c, websocket.ClosePolicyViolation, err.Error())
		return
	}

	sub, err := h.hub.SubscribeMessages(context.Background(), conversationID)
	if err != nil {
		h.closeWith(c, websocket.ClosePolicyViolation, err.Error())
		return
	}
	defer sub.Close()

	done := watchClose(c)
	for {
		select {
		case msg, ok := <-sub.Events():
			if !ok {
				h.closeWith(c, websocket.CloseNormalClosure, "subscription ended")
				return
			}
			if !h.writeJSON(c, msg, conversationID) {
				return
			}
		case <-done:
			return
		}
	}
}

// StreamInboxHandler GET /api/ws/inbox/:user
//
// Streams the user's conversation previews: the full list first, then each
// conversation again whenever it changes. Entries carry last_message_at so
// the client orders its own list.
func (h *ChatHandlers) StreamInboxHandler(c *websocket.Conn) {
	user := c.Params("user")

	sub, err := h.hub.SubscribeInbox(context.Background(), user)
	if err != nil {
		h.closeWith(c, websocket.ClosePolicyViolation, err.Error())
		return
	}
	defer sub.Close()

	done := watchClose(c)
	for {
		select {
		case conv, ok := <-sub.Events():
			if !ok {
				h.closeWith(c, websocket.CloseNormalClosure, "subscription ended")
				return
			}
			if !h.writeJSON(c, models.PreviewFor(conv, user), user) {
				return
			}
		case <-done:
			return
		}
	}
}

// watchClose drains the client side of the socket so a disconnect is
// noticed even though the server never expects inbound frames.
func watchClose(c *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

func (h *ChatHandlers) writeJSON(c *websocket.Conn, v interface{}, key string) bool {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode stream event")
		return false
	}
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.WithFields(logrus.Fields{"key": key}).WithError(err).Debug("Stream write failed")
		return false
	}
	return true
}

func (h *ChatHandlers) closeWith(c *websocket.Conn, code int, reason string) {
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = c.Close()
}
