package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Ananth-NQI/orderline-backend/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate")
	// ErrExpired is returned when a write targets a session that has already expired.
	ErrExpired = errors.New("session expired")
)

// Store defines the interface for storage operations
type Store interface {
	// Merchant and catalog reads
	GetMerchant(ctx context.Context, id string) (*models.Merchant, error)
	GetActiveMenu(ctx context.Context, merchantID string) (*models.Menu, error)
	ListActivePaymentAccounts(ctx context.Context, merchantID string) ([]*models.PaymentAccount, error)

	// WhatsApp lines
	GetLine(ctx context.Context, id string) (*models.WhatsAppLine, error)
	GetLineByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.WhatsAppLine, error)
	SetLineBotEnabled(ctx context.Context, id string, enabled bool) (*models.WhatsAppLine, error)

	// Business hours
	GetBusinessHours(ctx context.Context, merchantID string) ([]*models.BusinessHours, error)
	ReplaceBusinessHours(ctx context.Context, merchantID string, hours []*models.BusinessHours) error

	// Sessions
	FindOpenSession(ctx context.Context, merchantID, customerPhone string) (*models.Session, error)
	CreateSession(ctx context.Context, session *models.Session) error
	// UpdateSession writes status, state and activity time. Manual mode is
	// left alone, and an expired row is never rewritten (ErrExpired).
	UpdateSession(ctx context.Context, session *models.Session) error
	SetSessionManualMode(ctx context.Context, id string, manual bool) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, merchantID string) ([]*models.Session, error)
	ExpireIdleSessions(ctx context.Context, idleBefore time.Time) ([]*models.Session, error)

	// Session messages. AppendMessage is idempotent on ExternalID.
	AppendMessage(ctx context.Context, msg *models.SessionMessage) (*models.SessionMessage, error)
	FindMessageByExternalID(ctx context.Context, externalID string) (*models.SessionMessage, error)
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]*models.SessionMessage, error)

	// Orders. CreateOrder returns ErrDuplicate when the session already has one.
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error)
	FindAwaitingProofOrder(ctx context.Context, sessionID string) (*models.Order, error)
	ListOrders(ctx context.Context, merchantID string, filter models.OrderFilter) ([]*models.Order, error)
	ListOrdersBySession(ctx context.Context, sessionID string) ([]*models.Order, error)
}
