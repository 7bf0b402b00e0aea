package models

import "time"

// Merchant is a restaurant selling through one or more WhatsApp lines
type Merchant struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string    `json:"name" gorm:"not null"`
	Slug      string    `json:"slug" gorm:"uniqueIndex;not null"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Timezone  string    `json:"timezone"` // IANA name, e.g. "America/Bogota"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentAccount is a bank/wallet account shown to customers paying by transfer
type PaymentAccount struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MerchantID    string    `json:"merchant_id" gorm:"index;not null"`
	Type          string    `json:"type"` // BANK_ACCOUNT, NEQUI, DAVIPLATA, ...
	AccountNumber string    `json:"account_number"`
	AccountHolder string    `json:"account_holder"`
	BankName      string    `json:"bank_name,omitempty"`
	Description   string    `json:"description,omitempty"`
	IsActive      bool      `json:"is_active" gorm:"default:true"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
