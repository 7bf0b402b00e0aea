package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/orderline-backend/internal/middleware"
	"github.com/Ananth-NQI/orderline-backend/internal/services"
	"github.com/Ananth-NQI/orderline-backend/internal/storage"
)

// AdminHandler handles merchant configuration: business hours and bot switches
type AdminHandler struct {
	store  storage.Store
	hours  *services.BusinessHoursService
	logger *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store storage.Store, hours *services.BusinessHoursService, log *slog.Logger) *AdminHandler {
	return &AdminHandler{
		store:  store,
		hours:  hours,
		logger: log.With(slog.String("component", "admin")),
	}
}

// GetBusinessHours returns the merchant's week, Monday first
func (h *AdminHandler) GetBusinessHours(c *fiber.Ctx) error {
	hours, err := h.hours.List(c.UserContext(), c.Params("merchantId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"hours":   hours,
	})
}

// ReplaceBusinessHours swaps the whole schedule
func (h *AdminHandler) ReplaceBusinessHours(c *fiber.Ctx) error {
	var req struct {
		Hours []services.BusinessHoursInput `json:"hours" validate:"required"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}

	hours, err := h.hours.Replace(c.UserContext(), c.Params("merchantId"), req.Hours)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"hours":   hours,
	})
}

// BusinessHoursStatus reports whether the bot would answer right now
func (h *AdminHandler) BusinessHoursStatus(c *fiber.Ctx) error {
	status, err := h.hours.Status(c.UserContext(), c.Params("merchantId"))
	if err != nil {
		return err
	}
	return c.JSON(status)
}

// SetBotEnabled turns the automated replies of a line on or off
func (h *AdminHandler) SetBotEnabled(c *fiber.Ctx) error {
	var req struct {
		Enabled *bool `json:"enabled" validate:"required"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}

	lineID := c.Params("lineId")
	line, err := h.store.GetLine(c.UserContext(), lineID)
	if errors.Is(err, storage.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "WhatsApp line not found")
	}
	if err != nil {
		return err
	}
	if scope := middleware.MerchantScope(c); scope != "" && line.MerchantID != scope {
		return services.ErrForbidden
	}

	line, err = h.store.SetLineBotEnabled(c.UserContext(), lineID, *req.Enabled)
	if err != nil {
		return err
	}
	h.logger.Info("bot toggled", slog.String("line_id", lineID), slog.Bool("enabled", line.BotEnabled))
	return c.JSON(fiber.Map{
		"success": true,
		"line":    line,
	})
}
