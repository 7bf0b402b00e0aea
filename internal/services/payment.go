package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Ananth-NQI/orderline-backend/internal/events"
	"github.com/Ananth-NQI/orderline-backend/internal/models"
	"github.com/Ananth-NQI/orderline-backend/internal/storage"
)

// PaymentProofUploaded is the dashboard payload for a new transfer receipt.
type PaymentProofUploaded struct {
	OrderID         string `json:"orderId"`
	PaymentProofURL string `json:"paymentProofUrl"`
}

// AwaitingProof returns the newest order on the session still waiting for a
// transfer receipt, or nil.
func (s *OrderService) AwaitingProof(ctx context.Context, sessionID string) (*models.Order, error) {
	order, err := s.store.FindAwaitingProofOrder(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order awaiting proof: %w", err)
	}
	return order, nil
}

// AttachPaymentProof records the stored receipt and stops asking the customer
// for it. Verification stays with the merchant.
func (s *OrderService) AttachPaymentProof(ctx context.Context, order *models.Order, proofURL string) error {
	order.PaymentProofURL = proofURL
	order.AwaitingPaymentProof = false
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	s.logger.Info("payment proof saved", slog.String("order_id", order.ID), slog.String("path", proofURL))
	s.publisher.Publish(order.MerchantID, events.PaymentProofUploaded, PaymentProofUploaded{
		OrderID:         order.ID,
		PaymentProofURL: proofURL,
	})
	return nil
}

// VerifyPayment records the merchant's decision on a transfer receipt.
// A verified payment sends the order to the kitchen.
func (s *OrderService) VerifyPayment(ctx context.Context, merchantID, orderID string, verified bool) (*models.Order, error) {
	order, err := s.Get(ctx, orderID, merchantID)
	if err != nil {
		return nil, err
	}
	order.PaymentVerified = verified
	order.AwaitingPaymentProof = false
	if verified {
		order.Status = models.OrderInPreparation
	}
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	s.logger.Info("payment verification recorded", slog.String("order_id", order.ID), slog.Bool("verified", verified))
	s.publisher.Publish(order.MerchantID, events.PaymentVerified, order)
	return order, nil
}
