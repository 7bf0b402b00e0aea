package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/Ananth-NQI/orderline-backend/internal/events"
	"github.com/Ananth-NQI/orderline-backend/internal/models"
	"github.com/Ananth-NQI/orderline-backend/internal/storage"
)

// OrderSummary is the order the responder asks to create.
type OrderSummary struct {
	Items          []OrderSummaryItem `json:"items"`
	DeliveryType   *string            `json:"delivery_type"`
	Address        *string            `json:"address"`
	PaymentMethod  *string            `json:"payment_method"`
	Notes          *string            `json:"notes"`
	EstimatedTotal float64            `json:"estimated_total"`
}

type OrderSummaryItem struct {
	ItemID    string                 `json:"item_id"`
	Name      string                 `json:"name"`
	Quantity  float64                `json:"quantity"`
	UnitPrice float64                `json:"unit_price"`
	Subtotal  float64                `json:"subtotal"`
	Modifiers *OrderSummaryModifiers `json:"modifiers"`
}

type OrderSummaryModifiers struct {
	Options []OrderSummaryOption `json:"options"`
}

type OrderSummaryOption struct {
	OptionID   string  `json:"option_id"`
	Name       string  `json:"name"`
	ExtraPrice float64 `json:"extra_price"`
}

// OrderService creates orders from conversations and tracks their lifecycle.
type OrderService struct {
	store     storage.Store
	publisher events.Publisher
	logger    *slog.Logger
}

func NewOrderService(store storage.Store, publisher events.Publisher, log *slog.Logger) *OrderService {
	return &OrderService{
		store:     store,
		publisher: publisher,
		logger:    log.With(slog.String("component", "orders")),
	}
}

// CreateFromSummary creates the session's order unless it already has one.
// The bool result reports whether a new order was created by this call.
// Callers serialize per session; the unique index on session_id catches
// anything that slips past.
func (s *OrderService) CreateFromSummary(ctx context.Context, merchantID, sessionID string, summary OrderSummary) (*models.Order, bool, error) {
	existing, err := s.store.FindOrderBySession(ctx, sessionID)
	if err == nil {
		s.logger.Warn("order already exists for this session, skipping creation",
			slog.String("session_id", sessionID), slog.String("order_id", existing.ID))
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("check existing order: %w", err)
	}

	order := buildOrder(merchantID, sessionID, summary)
	if err := s.store.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			s.logger.Warn("concurrent order creation for session absorbed", slog.String("session_id", sessionID))
			existing, findErr := s.store.FindOrderBySession(ctx, sessionID)
			if findErr != nil {
				return nil, false, fmt.Errorf("load existing order: %w", findErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order created",
		slog.String("order_id", order.ID), slog.String("session_id", sessionID),
		slog.Float64("estimated_total", order.EstimatedTotal), slog.Bool("awaiting_payment_proof", order.AwaitingPaymentProof))
	s.publisher.Publish(merchantID, events.OrderCreated, order)
	return order, true, nil
}

func buildOrder(merchantID, sessionID string, summary OrderSummary) *models.Order {
	deliveryType := models.DeliveryTypeDelivery
	if summary.DeliveryType != nil && strings.EqualFold(*summary.DeliveryType, models.DeliveryTypePickup) {
		deliveryType = models.DeliveryTypePickup
	}
	paymentMethod := deref(summary.PaymentMethod)
	transfer := models.IsTransferPayment(paymentMethod)

	order := &models.Order{
		MerchantID:           merchantID,
		SessionID:            sessionID,
		Status:               models.OrderPending,
		DeliveryType:         deliveryType,
		Address:              deref(summary.Address),
		PaymentMethod:        paymentMethod,
		Notes:                deref(summary.Notes),
		EstimatedTotal:       summary.EstimatedTotal,
		AwaitingPaymentProof: transfer,
		PaymentVerified:      !transfer,
	}
	for _, it := range summary.Items {
		item := models.OrderItem{
			MenuItemID: it.ItemID,
			Name:       it.Name,
			Quantity:   int(math.Round(it.Quantity)),
			UnitPrice:  it.UnitPrice,
			Subtotal:   it.Subtotal,
		}
		if it.Modifiers != nil {
			for _, opt := range it.Modifiers.Options {
				item.Options = append(item.Options, models.OrderItemOption{
					MenuItemOptionID: opt.OptionID,
					Name:             opt.Name,
					ExtraPrice:       opt.ExtraPrice,
				})
			}
		}
		order.Items = append(order.Items, item)
	}
	return order
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// Get loads an order, checking it belongs to merchantScope when set.
func (s *OrderService) Get(ctx context.Context, orderID, merchantScope string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if merchantScope != "" && order.MerchantID != merchantScope {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context, merchantID string, filter models.OrderFilter) ([]*models.Order, error) {
	return s.store.ListOrders(ctx, merchantID, filter)
}

// UpdateStatus moves an order through the kitchen/delivery lifecycle.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, merchantScope string, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, status)
	}
	order, err := s.Get(ctx, orderID, merchantScope)
	if err != nil {
		return nil, err
	}
	order.Status = status
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	s.logger.Info("order status updated", slog.String("order_id", order.ID), slog.String("status", string(status)))
	s.publisher.Publish(order.MerchantID, events.OrderUpdated, order)
	return order, nil
}
