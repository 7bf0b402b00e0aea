package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/orderline-backend/internal/middleware"
	"github.com/Ananth-NQI/orderline-backend/internal/services"
)

// SessionHandler serves conversations to the dashboard and lets staff take over
type SessionHandler struct {
	sessions     *services.SessionManager
	conversation *services.ConversationService
	logger       *slog.Logger
}

func NewSessionHandler(sessions *services.SessionManager, conversation *services.ConversationService, log *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:     sessions,
		conversation: conversation,
		logger:       log.With(slog.String("component", "sessions_api")),
	}
}

// List returns the merchant's sessions with their latest messages
func (h *SessionHandler) List(c *fiber.Ctx) error {
	sessions, err := h.sessions.List(c.UserContext(), c.Params("merchantId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Get returns one session with its full history
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	detail, err := h.sessions.Detail(c.UserContext(), c.Params("sessionId"), middleware.MerchantScope(c))
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

type manualModeRequest struct {
	IsManualMode *bool `json:"isManualMode" validate:"required"`
}

// SetManualMode hands the conversation to staff or back to the bot
func (h *SessionHandler) SetManualMode(c *fiber.Ctx) error {
	var req manualModeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	session, err := h.sessions.SetManualMode(c.UserContext(), c.Params("sessionId"), middleware.MerchantScope(c), *req.IsManualMode)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"session": session,
	})
}

type manualReplyRequest struct {
	Content string `json:"content" validate:"required"`
}

// SendMessage sends a message written by staff to the customer
func (h *SessionHandler) SendMessage(c *fiber.Ctx) error {
	var req manualReplyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	msg, err := h.conversation.SendManualReply(c.UserContext(), c.Params("sessionId"), middleware.MerchantScope(c), req.Content)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": msg,
	})
}
