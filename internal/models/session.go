package models

import (
	"time"

	"gorm.io/datatypes"
)

// SessionStatus is the lifecycle state of an ordering conversation
type SessionStatus string

const (
	SessionNew             SessionStatus = "NEW"
	SessionCollectingItems SessionStatus = "COLLECTING_ITEMS"
	SessionReviewing       SessionStatus = "REVIEWING"
	SessionConfirmed       SessionStatus = "CONFIRMED"
	SessionCancelled       SessionStatus = "CANCELLED"
	SessionExpired         SessionStatus = "EXPIRED"
	SessionSupport         SessionStatus = "SUPPORT"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionNew, SessionCollectingItems, SessionReviewing, SessionConfirmed,
		SessionCancelled, SessionExpired, SessionSupport:
		return true
	}
	return false
}

// MessageRole identifies who authored a session message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Session is one conversation between a customer phone and a merchant line.
// At most one non-expired session exists per (MerchantID, CustomerPhone).
type Session struct {
	ID                string                            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MerchantID        string                            `json:"merchant_id" gorm:"index:idx_sessions_merchant_customer;not null"`
	LineID            string                            `json:"line_id" gorm:"index;not null"`
	CustomerPhone     string                            `json:"customer_phone" gorm:"index:idx_sessions_merchant_customer;not null"`
	Status            SessionStatus                     `json:"status" gorm:"type:varchar(32);default:'NEW';index"`
	IsManualMode      bool                              `json:"is_manual_mode" gorm:"default:false"`
	State             datatypes.JSONType[OrderingState] `json:"state"`
	LastInteractionAt time.Time                         `json:"last_interaction_at" gorm:"index"`
	Messages          []SessionMessage                  `json:"messages,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time                         `json:"created_at"`
	UpdatedAt         time.Time                         `json:"updated_at"`
}

// OrderingState returns a copy of the session's structured state.
func (s *Session) OrderingState() OrderingState {
	return s.State.Data().Clone()
}

// SetOrderingState replaces the session's structured state.
func (s *Session) SetOrderingState(st OrderingState) {
	s.State = datatypes.NewJSONType(st)
}

// IdleFor reports how long the session has been idle at now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastInteractionAt)
}

// SessionMessage is an append-only conversation turn.
// ExternalID carries the WhatsApp message id and is unique when present.
type SessionMessage struct {
	ID         string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SessionID  string      `json:"session_id" gorm:"index;not null"`
	Role       MessageRole `json:"role" gorm:"type:varchar(16);not null"`
	Content    string      `json:"content" gorm:"type:text"`
	ExternalID *string     `json:"external_id,omitempty" gorm:"uniqueIndex"`
	CreatedAt  time.Time   `json:"created_at" gorm:"index"`
}

// SessionDetail is a session with its full history and orders
type SessionDetail struct {
	Session  *Session          `json:"session"`
	Messages []*SessionMessage `json:"messages"`
	Orders   []*Order          `json:"orders"`
}
