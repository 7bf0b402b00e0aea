package models

import "time"

// Menu is a merchant's catalog; only one is active at a time
type Menu struct {
	ID         string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MerchantID string         `json:"merchant_id" gorm:"index;not null"`
	Name       string         `json:"name"`
	IsActive   bool           `json:"is_active" gorm:"default:false;index"`
	Categories []MenuCategory `json:"categories,omitempty" gorm:"foreignKey:MenuID;constraint:OnDelete:CASCADE"`
	Images     []MenuImage    `json:"images,omitempty" gorm:"foreignKey:MenuID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type MenuCategory struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MenuID      string     `json:"menu_id" gorm:"index;not null"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Position    int        `json:"position"`
	Items       []MenuItem `json:"items,omitempty" gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE"`
}

type MenuItem struct {
	ID           string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CategoryID   string            `json:"category_id" gorm:"index;not null"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	BasePrice    float64           `json:"base_price"`
	ImageURL     string            `json:"image_url,omitempty"`
	IsAvailable  bool              `json:"is_available" gorm:"default:true"`
	Position     int               `json:"position"`
	OptionGroups []MenuOptionGroup `json:"option_groups,omitempty" gorm:"foreignKey:MenuItemID;constraint:OnDelete:CASCADE"`
}

type MenuOptionGroup struct {
	ID         string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MenuItemID string       `json:"menu_item_id" gorm:"index;not null"`
	Name       string       `json:"name"`
	Type       string       `json:"type"` // SINGLE or MULTIPLE
	IsRequired bool         `json:"is_required"`
	Min        int          `json:"min"`
	Max        int          `json:"max"`
	Position   int          `json:"position"`
	Options    []MenuOption `json:"options,omitempty" gorm:"foreignKey:OptionGroupID;constraint:OnDelete:CASCADE"`
}

type MenuOption struct {
	ID            string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OptionGroupID string  `json:"option_group_id" gorm:"index;not null"`
	Name          string  `json:"name"`
	ExtraPrice    float64 `json:"extra_price"`
	Position      int     `json:"position"`
}

// MenuImage is a photo of the printed menu, sent once per session on greeting
type MenuImage struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MenuID    string    `json:"menu_id" gorm:"index;not null"`
	FilePath  string    `json:"file_path"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}
