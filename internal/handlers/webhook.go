package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/orderline-backend/internal/services"
	"github.com/Ananth-NQI/orderline-backend/internal/utils"
)

// WebhookHandler receives WhatsApp Cloud API webhooks
type WebhookHandler struct {
	conversation *services.ConversationService
	verifyToken  string
	logger       *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(conversation *services.ConversationService, verifyToken string, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		conversation: conversation,
		verifyToken:  verifyToken,
		logger:       log.With(slog.String("component", "webhook")),
	}
}

// Verify answers Meta's subscription handshake
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		h.logger.Info("webhook verified")
		return c.Status(fiber.StatusOK).SendString(challenge)
	}
	h.logger.Warn("webhook verification failed", slog.String("mode", mode))
	return c.SendStatus(fiber.StatusForbidden)
}

// Receive processes an inbound webhook delivery
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var payload WebhookPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		h.logger.Warn("invalid webhook payload", slog.Any("error", err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	msg, ok := payload.Inbound()
	if !ok {
		// status callbacks and other non-message changes
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	outcome, err := h.conversation.HandleInbound(c.UserContext(), msg)
	switch {
	case errors.Is(err, services.ErrUnknownLine):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Phone number not registered",
		})
	case err != nil:
		h.logger.Error("error processing message",
			slog.String("message_id", msg.MessageID), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Error processing message",
		})
	}

	return c.JSON(fiber.Map{"status": string(outcome)})
}

// TestMessagePayload feeds a message through the flow without Meta (development only)
type TestMessagePayload struct {
	PhoneNumberID string `json:"phone_number_id" validate:"required"`
	From          string `json:"from" validate:"required"`
	Message       string `json:"message" validate:"required"`
}

// HandleTestMessage processes a development test message
func (h *WebhookHandler) HandleTestMessage(c *fiber.Ctx) error {
	var payload TestMessagePayload
	if err := bind(c, &payload); err != nil {
		return err
	}

	h.logger.Info("test message received", slog.String("from", payload.From))
	outcome, err := h.conversation.HandleInbound(c.UserContext(), services.InboundMessage{
		PhoneNumberID: payload.PhoneNumberID,
		From:          utils.NormalizePhone(payload.From),
		Type:          "text",
		Text:          payload.Message,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"outcome": outcome,
	})
}
