package models

import "time"

// WhatsAppLine status values
const (
	LineStatusPendingConfig = "PENDING_CONFIG"
	LineStatusActive        = "ACTIVE"
	LineStatusDisabled      = "DISABLED"
)

// WhatsAppLine stores a merchant's WhatsApp Cloud API credentials.
// Inbound webhooks are routed to a merchant through PhoneNumberID.
type WhatsAppLine struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MerchantID    string    `json:"merchant_id" gorm:"index;not null"`
	PhoneNumberID string    `json:"phone_number_id" gorm:"uniqueIndex"`
	PhoneNumber   string    `json:"phone_number"`
	DisplayName   string    `json:"display_name"`
	WabaID        string    `json:"waba_id"`
	AccessToken   string    `json:"-"`
	APIVersion    string    `json:"api_version,omitempty"` // overrides the configured Graph API version
	Status        string    `json:"status" gorm:"default:'PENDING_CONFIG'"`
	BotEnabled    bool      `json:"bot_enabled" gorm:"default:true"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsConfigured reports whether the line can send messages.
func (l *WhatsAppLine) IsConfigured() bool {
	return l != nil && l.AccessToken != "" && l.PhoneNumberID != ""
}
