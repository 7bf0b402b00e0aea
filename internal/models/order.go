package models

import (
	"strings"
	"time"
)

// OrderStatus is the kitchen/delivery lifecycle of an order
type OrderStatus string

const (
	OrderPending       OrderStatus = "PENDING"
	OrderInPreparation OrderStatus = "IN_PREPARATION"
	OrderReady         OrderStatus = "READY"
	OrderDelivering    OrderStatus = "DELIVERING"
	OrderDelivered     OrderStatus = "DELIVERED"
	OrderCancelled     OrderStatus = "CANCELLED"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderInPreparation, OrderReady, OrderDelivering, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

const (
	DeliveryTypeDelivery = "delivery"
	DeliveryTypePickup   = "pickup"
)

// Order is created once per session from the responder's order summary.
// SessionID is unique: a session never owns more than one order.
type Order struct {
	ID                   string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MerchantID           string      `json:"merchant_id" gorm:"index;not null"`
	SessionID            string      `json:"session_id" gorm:"uniqueIndex;not null"`
	Status               OrderStatus `json:"status" gorm:"type:varchar(32);default:'PENDING';index"`
	DeliveryType         string      `json:"delivery_type" gorm:"type:varchar(16);default:'delivery'"`
	Address              string      `json:"address,omitempty"`
	PaymentMethod        string      `json:"payment_method,omitempty"`
	Notes                string      `json:"notes,omitempty"`
	EstimatedTotal       float64     `json:"estimated_total"`
	PaymentProofURL      string      `json:"payment_proof_url,omitempty"`
	PaymentVerified      bool        `json:"payment_verified"`
	AwaitingPaymentProof bool        `json:"awaiting_payment_proof" gorm:"index"`
	Items                []OrderItem `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ID         string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID    string            `json:"order_id" gorm:"index;not null"`
	MenuItemID string            `json:"menu_item_id,omitempty"`
	Name       string            `json:"name"`
	Quantity   int               `json:"quantity"`
	UnitPrice  float64           `json:"unit_price"`
	Subtotal   float64           `json:"subtotal"`
	Options    []OrderItemOption `json:"options" gorm:"foreignKey:OrderItemID;constraint:OnDelete:CASCADE"`
}

type OrderItemOption struct {
	ID               string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderItemID      string  `json:"order_item_id" gorm:"index;not null"`
	MenuItemOptionID string  `json:"menu_item_option_id,omitempty"`
	Name             string  `json:"name"`
	ExtraPrice       float64 `json:"extra_price"`
}

// IsTransferPayment reports whether a payment method needs a transfer receipt.
func IsTransferPayment(method string) bool {
	m := strings.ToLower(method)
	return strings.Contains(m, "transfer") || strings.Contains(m, "transferencia")
}

// OrderFilter narrows order listings
type OrderFilter struct {
	Status OrderStatus
	From   *time.Time
	To     *time.Time
	Phone  string
}
