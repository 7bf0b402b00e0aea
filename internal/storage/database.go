package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Ananth-NQI/orderline-backend/internal/models"
)

// DatabaseStore implements Store on PostgreSQL through gorm.
// The gorm handle must be opened with TranslateError so unique violations
// surface as gorm.ErrDuplicatedKey.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a new database-backed store
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

func byPosition(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }

// Merchant and catalog reads

func (s *DatabaseStore) GetMerchant(ctx context.Context, id string) (*models.Merchant, error) {
	var m models.Merchant
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *DatabaseStore) GetActiveMenu(ctx context.Context, merchantID string) (*models.Menu, error) {
	var menu models.Menu
	err := s.db.WithContext(ctx).
		Preload("Categories", byPosition).
		Preload("Categories.Items", byPosition).
		Preload("Categories.Items.OptionGroups", byPosition).
		Preload("Categories.Items.OptionGroups.Options", byPosition).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("merchant_id = ? AND is_active = ?", merchantID, true).
		Order("updated_at DESC").
		First(&menu).Error
	if err != nil {
		return nil, translate(err)
	}
	return &menu, nil
}

func (s *DatabaseStore) ListActivePaymentAccounts(ctx context.Context, merchantID string) ([]*models.PaymentAccount, error) {
	var accounts []*models.PaymentAccount
	err := s.db.WithContext(ctx).
		Where("merchant_id = ? AND is_active = ?", merchantID, true).
		Order("created_at DESC").
		Find(&accounts).Error
	return accounts, translate(err)
}

// WhatsApp lines

func (s *DatabaseStore) GetLine(ctx context.Context, id string) (*models.WhatsAppLine, error) {
	var l models.WhatsAppLine
	if err := s.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

func (s *DatabaseStore) GetLineByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.WhatsAppLine, error) {
	var l models.WhatsAppLine
	if err := s.db.WithContext(ctx).First(&l, "phone_number_id = ?", phoneNumberID).Error; err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

func (s *DatabaseStore) SetLineBotEnabled(ctx context.Context, id string, enabled bool) (*models.WhatsAppLine, error) {
	res := s.db.WithContext(ctx).Model(&models.WhatsAppLine{}).Where("id = ?", id).Update("bot_enabled", enabled)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetLine(ctx, id)
}

// Business hours

func (s *DatabaseStore) GetBusinessHours(ctx context.Context, merchantID string) ([]*models.BusinessHours, error) {
	var hours []*models.BusinessHours
	err := s.db.WithContext(ctx).Where("merchant_id = ?", merchantID).Find(&hours).Error
	return hours, translate(err)
}

func (s *DatabaseStore) ReplaceBusinessHours(ctx context.Context, merchantID string, hours []*models.BusinessHours) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("merchant_id = ?", merchantID).Delete(&models.BusinessHours{}).Error; err != nil {
			return err
		}
		if len(hours) == 0 {
			return nil
		}
		for _, h := range hours {
			h.MerchantID = merchantID
		}
		return tx.Create(&hours).Error
	}))
}

// Sessions

func (s *DatabaseStore) FindOpenSession(ctx context.Context, merchantID, customerPhone string) (*models.Session, error) {
	var sess models.Session
	err := s.db.WithContext(ctx).
		Where("merchant_id = ? AND customer_phone = ? AND status <> ?", merchantID, customerPhone, models.SessionExpired).
		Order("created_at DESC").
		First(&sess).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func (s *DatabaseStore) CreateSession(ctx context.Context, session *models.Session) error {
	return translate(s.db.WithContext(ctx).Omit("Messages").Create(session).Error)
}

func (s *DatabaseStore) UpdateSession(ctx context.Context, session *models.Session) error {
	res := s.db.WithContext(ctx).Model(session).
		Where("status <> ?", models.SessionExpired).
		Select("status", "state", "last_interaction_at", "updated_at").
		Updates(session)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		// either the row is gone or it expired underneath us
		if _, err := s.GetSession(ctx, session.ID); err != nil {
			return err
		}
		return ErrExpired
	}
	return nil
}

func (s *DatabaseStore) SetSessionManualMode(ctx context.Context, id string, manual bool) (*models.Session, error) {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_manual_mode": manual, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetSession(ctx, id)
}

func (s *DatabaseStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func (s *DatabaseStore) ListSessions(ctx context.Context, merchantID string) ([]*models.Session, error) {
	var sessions []*models.Session
	err := s.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("updated_at DESC").
		Find(&sessions).Error
	return sessions, translate(err)
}

func (s *DatabaseStore) ExpireIdleSessions(ctx context.Context, idleBefore time.Time) ([]*models.Session, error) {
	var expired []*models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status <> ? AND last_interaction_at < ?", models.SessionExpired, idleBefore).
			Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]string, len(expired))
		for i, sess := range expired {
			ids[i] = sess.ID
			sess.Status = models.SessionExpired
		}
		return tx.Model(&models.Session{}).Where("id IN ?", ids).Update("status", models.SessionExpired).Error
	})
	if err != nil {
		return nil, fmt.Errorf("expire idle sessions: %w", translate(err))
	}
	return expired, nil
}

// Session messages

func (s *DatabaseStore) AppendMessage(ctx context.Context, msg *models.SessionMessage) (*models.SessionMessage, error) {
	normalizeExternalID(msg)
	if msg.ExternalID != nil {
		existing, err := s.FindMessageByExternalID(ctx, *msg.ExternalID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	err := translate(s.db.WithContext(ctx).Create(msg).Error)
	if errors.Is(err, ErrDuplicate) && msg.ExternalID != nil {
		// lost the race to a concurrent delivery of the same message
		return s.FindMessageByExternalID(ctx, *msg.ExternalID)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *DatabaseStore) FindMessageByExternalID(ctx context.Context, externalID string) (*models.SessionMessage, error) {
	var m models.SessionMessage
	if err := s.db.WithContext(ctx).First(&m, "external_id = ?", externalID).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *DatabaseStore) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]*models.SessionMessage, error) {
	var msgs []*models.SessionMessage
	q := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, translate(err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Orders

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items").Preload("Items.Options")
}

func (s *DatabaseStore) CreateOrder(ctx context.Context, order *models.Order) error {
	return translate(s.db.WithContext(ctx).Create(order).Error)
}

func (s *DatabaseStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := preloadItems(s.db.WithContext(ctx)).First(&o, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *DatabaseStore) UpdateOrder(ctx context.Context, order *models.Order) error {
	res := s.db.WithContext(ctx).Model(order).
		Select("status", "payment_proof_url", "payment_verified", "awaiting_payment_proof", "updated_at").
		Updates(order)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DatabaseStore) FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error) {
	var o models.Order
	if err := s.db.WithContext(ctx).First(&o, "session_id = ?", sessionID).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *DatabaseStore) FindAwaitingProofOrder(ctx context.Context, sessionID string) (*models.Order, error) {
	var o models.Order
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND awaiting_payment_proof = ?", sessionID, true).
		Order("created_at DESC").
		First(&o).Error
	if err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *DatabaseStore) ListOrders(ctx context.Context, merchantID string, filter models.OrderFilter) ([]*models.Order, error) {
	q := preloadItems(s.db.WithContext(ctx)).Where("orders.merchant_id = ?", merchantID)
	if filter.Status != "" {
		q = q.Where("orders.status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("orders.created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("orders.created_at <= ?", *filter.To)
	}
	if filter.Phone != "" {
		q = q.Joins("JOIN sessions ON sessions.id = orders.session_id").
			Where("sessions.customer_phone LIKE ?", "%"+filter.Phone+"%")
	}
	var orders []*models.Order
	err := q.Order("orders.created_at DESC").Find(&orders).Error
	return orders, translate(err)
}

func (s *DatabaseStore) ListOrdersBySession(ctx context.Context, sessionID string) ([]*models.Order, error) {
	var orders []*models.Order
	err := preloadItems(s.db.WithContext(ctx)).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, translate(err)
}

func normalizeExternalID(msg *models.SessionMessage) {
	if msg.ExternalID != nil && *msg.ExternalID == "" {
		msg.ExternalID = nil
	}
}
