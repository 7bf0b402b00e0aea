package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/orderline-backend/internal/middleware"
	"github.com/Ananth-NQI/orderline-backend/internal/models"
	"github.com/Ananth-NQI/orderline-backend/internal/services"
	"github.com/Ananth-NQI/orderline-backend/internal/utils"
)

// OrderHandler serves orders and payment verification to the dashboard
type OrderHandler struct {
	orders *services.OrderService
}

func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// List returns the merchant's orders, newest first
func (h *OrderHandler) List(c *fiber.Ctx) error {
	filter := models.OrderFilter{
		Status: models.OrderStatus(strings.ToUpper(c.Query("status"))),
		Phone:  utils.NormalizePhone(c.Query("phone")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "Unknown order status")
	}
	var err error
	if filter.From, err = parseDateParam(c.Query("from"), false); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid 'from' date")
	}
	if filter.To, err = parseDateParam(c.Query("to"), true); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid 'to' date")
	}

	orders, err := h.orders.List(c.UserContext(), c.Params("merchantId"), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"orders":  orders,
		"count":   len(orders),
	})
}

// parseDateParam accepts RFC 3339 or a bare date. A bare "to" date covers the whole day.
func parseDateParam(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// Get returns one order
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	order, err := h.orders.Get(c.UserContext(), c.Params("orderId"), middleware.MerchantScope(c))
	if err != nil {
		return err
	}
	return c.JSON(order)
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus moves an order through the kitchen/delivery lifecycle
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	var req orderStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	order, err := h.orders.UpdateStatus(c.UserContext(), c.Params("orderId"), middleware.MerchantScope(c),
		models.OrderStatus(strings.ToUpper(req.Status)))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"order":   order,
	})
}

type verifyPaymentRequest struct {
	Verified *bool `json:"verified" validate:"required"`
}

// VerifyPayment records the merchant's decision on a transfer receipt
func (h *OrderHandler) VerifyPayment(c *fiber.Ctx) error {
	var req verifyPaymentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	order, err := h.orders.VerifyPayment(c.UserContext(), c.Params("merchantId"), c.Params("orderId"), *req.Verified)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"order":   order,
	})
}
