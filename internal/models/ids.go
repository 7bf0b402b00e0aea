package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewID returns a fresh primary key for any model in this package.
func NewID() string {
	return uuid.NewString()
}

func ensureID(id *string) {
	if *id == "" {
		*id = NewID()
	}
}

// AllModels lists every table for AutoMigrate, parents first.
func AllModels() []interface{} {
	return []interface{}{
		&Merchant{},
		&WhatsAppLine{},
		&BusinessHours{},
		&PaymentAccount{},
		&Menu{},
		&MenuCategory{},
		&MenuItem{},
		&MenuOptionGroup{},
		&MenuOption{},
		&MenuImage{},
		&Session{},
		&SessionMessage{},
		&Order{},
		&OrderItem{},
		&OrderItemOption{},
	}
}

func (m *Merchant) BeforeCreate(tx *gorm.DB) error        { ensureID(&m.ID); return nil }
func (l *WhatsAppLine) BeforeCreate(tx *gorm.DB) error    { ensureID(&l.ID); return nil }
func (b *BusinessHours) BeforeCreate(tx *gorm.DB) error   { ensureID(&b.ID); return nil }
func (p *PaymentAccount) BeforeCreate(tx *gorm.DB) error  { ensureID(&p.ID); return nil }
func (m *Menu) BeforeCreate(tx *gorm.DB) error            { ensureID(&m.ID); return nil }
func (c *MenuCategory) BeforeCreate(tx *gorm.DB) error    { ensureID(&c.ID); return nil }
func (i *MenuItem) BeforeCreate(tx *gorm.DB) error        { ensureID(&i.ID); return nil }
func (g *MenuOptionGroup) BeforeCreate(tx *gorm.DB) error { ensureID(&g.ID); return nil }
func (o *MenuOption) BeforeCreate(tx *gorm.DB) error      { ensureID(&o.ID); return nil }
func (i *MenuImage) BeforeCreate(tx *gorm.DB) error       { ensureID(&i.ID); return nil }
func (s *Session) BeforeCreate(tx *gorm.DB) error         { ensureID(&s.ID); return nil }
func (m *SessionMessage) BeforeCreate(tx *gorm.DB) error  { ensureID(&m.ID); return nil }
func (o *Order) BeforeCreate(tx *gorm.DB) error           { ensureID(&o.ID); return nil }
func (i *OrderItem) BeforeCreate(tx *gorm.DB) error       { ensureID(&i.ID); return nil }
func (o *OrderItemOption) BeforeCreate(tx *gorm.DB) error { ensureID(&o.ID); return nil }
