package handlers

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/alvenie/skillswap-chat/internal/hub"
	"github.com/alvenie/skillswap-chat/internal/models"
	"github.com/alvenie/skillswap-chat/internal/service"
)

type ChatHandlers struct {
	service service.ChatService
	hub     *hub.Hub
	logger  *logrus.Logger
}

func New(svc service.ChatService, h *hub.Hub, logger *logrus.Logger) *ChatHandlers {
	return &ChatHandlers{service: svc, hub: h, logger: logger}
}

func (h *ChatHandlers) Register(app *fiber.App) {
	app.Get("/api/conversations/derive", h.DeriveHandler)
	app.Post("/api/conversations/ensure", h.EnsureHandler)
	app.Get("/api/conversations/:id/messages", h.MessagesHandler)
	app.Post("/api/conversations/:id/messages", h.SendMessageHandler)
	app.Post("/api/conversations/:id/read", h.MarkReadHandler)
	app.Get("/api/inbox/:user", h.InboxHandler)
	app.Get("/api/ws/conversations/:id", websocket.New(h.StreamMessagesHandler))
	app.Get("/api/ws/inbox/:user", websocket.New(h.StreamInboxHandler))
}

// DeriveHandler GET /api/conversations/derive?a=&b=
func (h *ChatHandlers) DeriveHandler(c *fiber.Ctx) error {
	id, err := models.DeriveConversationID(c.Query("a"), c.Query("b"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"conversation_id": id})
}

type ensureRequest struct {
	UserA string `json:"user_a"`
	UserB string `json:"user_b"`
	NameA string `json:"name_a"`
	NameB string `json:"name_b"`
}

// EnsureHandler POST /api/conversations/ensure
func (h *ChatHandlers) EnsureHandler(c *fiber.Ctx) error {
	var req ensureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}

	conv, err := h.service.EnsureConversation(c.Context(), req.UserA, req.UserB, req.NameA, req.NameB)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(conv)
}

// MessagesHandler GET /api/conversations/:id/messages?user=&after=
func (h *ChatHandlers) MessagesHandler(c *fiber.Ctx) error {
	user := c.Query("user")
	if user == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing user"})
	}

	msgs, err := h.service.Messages(c.Context(), c.Params("id"), user, int64(c.QueryInt("after")))
	if err != nil {
		return h.fail(c, err)
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return c.JSON(msgs)
}

type sendRequest struct {
	SenderID string `json:"sender_id"`
	Body     string `json:"body"`
}

// SendMessageHandler POST /api/conversations/:id/messages
func (h *ChatHandlers) SendMessageHandler(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}

	msg, err := h.service.SendMessage(c.Context(), c.Params("id"), req.SenderID, req.Body)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// MarkReadHandler POST /api/conversations/:id/read?reader=
func (h *ChatHandlers) MarkReadHandler(c *fiber.Ctx) error {
	reader := c.Query("reader")
	if reader == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing reader"})
	}

	if err := h.service.MarkConversationRead(c.Context(), c.Params("id"), reader); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// InboxHandler GET /api/inbox/:user
func (h *ChatHandlers) InboxHandler(c *fiber.Ctx) error {
	previews, err := h.service.Inbox(c.Context(), c.Params("user"))
	if err != nil {
		return h.fail(c, err)
	}
	if previews == nil {
		previews = []models.ConversationPreview{}
	}
	return c.JSON(previews)
}

func (h *ChatHandlers) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "internal"
	switch {
	case errors.Is(err, models.ErrInvalidParticipants):
		status, code = fiber.StatusBadRequest, "invalid_participants"
	case errors.Is(err, models.ErrEmptyMessage):
		status, code = fiber.StatusBadRequest, "empty_message"
	case errors.Is(err, models.ErrNotParticipant):
		status, code = fiber.StatusForbidden, "not_participant"
	case errors.Is(err, models.ErrConversationNotFound):
		status, code = fiber.StatusNotFound, "conversation_not_found"
	case errors.Is(err, models.ErrTimeout):
		status, code = fiber.StatusGatewayTimeout, "timeout"
	case errors.Is(err, models.ErrInitializationFailed):
		status, code = fiber.StatusServiceUnavailable, "initialization_failed"
	}

	if status == fiber.StatusInternalServerError {
		h.logger.WithError(err).Error("Request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}
