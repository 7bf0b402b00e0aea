package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ananth-NQI/orderline-backend/internal/models"
)

// MemoryStore holds all data in memory for local runs and tests.
// It enforces the same uniqueness rules as the database schema.
type MemoryStore struct {
	merchants map[string]*models.Merchant
	lines     map[string]*models.WhatsAppLine
	hours     map[string][]*models.BusinessHours
	menus     map[string]*models.Menu
	accounts  map[string][]*models.PaymentAccount

	sessions map[string]*models.Session
	messages map[string][]*models.SessionMessage
	external map[string]*models.SessionMessage

	orders map[string]*models.Order

	// Mutexes for thread safety
	catalogMu sync.RWMutex
	sessionMu sync.RWMutex
	orderMu   sync.RWMutex

	now func() time.Time
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		merchants: make(map[string]*models.Merchant),
		lines:     make(map[string]*models.WhatsAppLine),
		hours:     make(map[string][]*models.BusinessHours),
		menus:     make(map[string]*models.Menu),
		accounts:  make(map[string][]*models.PaymentAccount),
		sessions:  make(map[string]*models.Session),
		messages:  make(map[string][]*models.SessionMessage),
		external:  make(map[string]*models.SessionMessage),
		orders:    make(map[string]*models.Order),
		now:       time.Now,
	}
}

// Seeding helpers, used by tests and the dev server

func (m *MemoryStore) AddMerchant(merchant *models.Merchant) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	if merchant.ID == "" {
		merchant.ID = models.NewID()
	}
	cp := *merchant
	m.merchants[cp.ID] = &cp
}

func (m *MemoryStore) AddLine(line *models.WhatsAppLine) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	if line.ID == "" {
		line.ID = models.NewID()
	}
	cp := *line
	m.lines[cp.ID] = &cp
}

func (m *MemoryStore) SetActiveMenu(merchantID string, menu *models.Menu) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	if menu.ID == "" {
		menu.ID = models.NewID()
	}
	menu.MerchantID = merchantID
	menu.IsActive = true
	m.menus[merchantID] = menu
}

func (m *MemoryStore) AddPaymentAccount(account *models.PaymentAccount) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	if account.ID == "" {
		account.ID = models.NewID()
	}
	cp := *account
	m.accounts[cp.MerchantID] = append(m.accounts[cp.MerchantID], &cp)
}

// Merchant and catalog reads

func (m *MemoryStore) GetMerchant(ctx context.Context, id string) (*models.Merchant, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	merchant, exists := m.merchants[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *merchant
	return &cp, nil
}

func (m *MemoryStore) GetActiveMenu(ctx context.Context, merchantID string) (*models.Menu, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	menu, exists := m.menus[merchantID]
	if !exists {
		return nil, ErrNotFound
	}
	return menu, nil
}

func (m *MemoryStore) ListActivePaymentAccounts(ctx context.Context, merchantID string) ([]*models.PaymentAccount, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	var out []*models.PaymentAccount
	for _, acc := range m.accounts[merchantID] {
		if acc.IsActive {
			cp := *acc
			out = append(out, &cp)
		}
	}
	return out, nil
}

// WhatsApp lines

func (m *MemoryStore) GetLine(ctx context.Context, id string) (*models.WhatsAppLine, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	line, exists := m.lines[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *line
	return &cp, nil
}

func (m *MemoryStore) GetLineByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.WhatsAppLine, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	for _, line := range m.lines {
		if line.PhoneNumberID == phoneNumberID {
			cp := *line
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SetLineBotEnabled(ctx context.Context, id string, enabled bool) (*models.WhatsAppLine, error) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	line, exists := m.lines[id]
	if !exists {
		return nil, ErrNotFound
	}
	line.BotEnabled = enabled
	line.UpdatedAt = m.now()
	cp := *line
	return &cp, nil
}

// Business hours

func (m *MemoryStore) GetBusinessHours(ctx context.Context, merchantID string) ([]*models.BusinessHours, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	out := make([]*models.BusinessHours, 0, len(m.hours[merchantID]))
	for _, h := range m.hours[merchantID] {
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) ReplaceBusinessHours(ctx context.Context, merchantID string, hours []*models.BusinessHours) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	seen := make(map[string]bool, len(hours))
	rows := make([]*models.BusinessHours, 0, len(hours))
	for _, h := range hours {
		if seen[h.DayOfWeek] {
			return ErrDuplicate
		}
		seen[h.DayOfWeek] = true
		cp := *h
		cp.MerchantID = merchantID
		if cp.ID == "" {
			cp.ID = models.NewID()
		}
		rows = append(rows, &cp)
	}
	m.hours[merchantID] = rows
	return nil
}

// Sessions

func cloneSession(s *models.Session) *models.Session {
	cp := *s
	cp.Messages = nil
	cp.SetOrderingState(s.OrderingState())
	return &cp
}

func (m *MemoryStore) FindOpenSession(ctx context.Context, merchantID, customerPhone string) (*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	var latest *models.Session
	for _, s := range m.sessions {
		if s.MerchantID != merchantID || s.CustomerPhone != customerPhone || s.Status == models.SessionExpired {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneSession(latest), nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if session.ID == "" {
		session.ID = models.NewID()
	}
	if _, exists := m.sessions[session.ID]; exists {
		return ErrDuplicate
	}
	now := m.now()
	session.CreatedAt = now
	session.UpdatedAt = now
	m.sessions[session.ID] = cloneSession(session)
	return nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, session *models.Session) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	stored, exists := m.sessions[session.ID]
	if !exists {
		return ErrNotFound
	}
	if stored.Status == models.SessionExpired {
		return ErrExpired
	}
	stored.Status = session.Status
	stored.SetOrderingState(session.OrderingState())
	stored.LastInteractionAt = session.LastInteractionAt
	stored.UpdatedAt = m.now()
	session.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryStore) SetSessionManualMode(ctx context.Context, id string, manual bool) (*models.Session, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	stored, exists := m.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}
	stored.IsManualMode = manual
	stored.UpdatedAt = m.now()
	return cloneSession(stored), nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	s, exists := m.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, merchantID string) ([]*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	var out []*models.Session
	for _, s := range m.sessions {
		if s.MerchantID == merchantID {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryStore) ExpireIdleSessions(ctx context.Context, idleBefore time.Time) ([]*models.Session, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	var expired []*models.Session
	for _, s := range m.sessions {
		if s.Status != models.SessionExpired && s.LastInteractionAt.Before(idleBefore) {
			s.Status = models.SessionExpired
			s.UpdatedAt = m.now()
			expired = append(expired, cloneSession(s))
		}
	}
	return expired, nil
}

// Session messages

func (m *MemoryStore) AppendMessage(ctx context.Context, msg *models.SessionMessage) (*models.SessionMessage, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	normalizeExternalID(msg)
	if msg.ExternalID != nil {
		if existing, ok := m.external[*msg.ExternalID]; ok {
			cp := *existing
			return &cp, nil
		}
	}
	if msg.ID == "" {
		msg.ID = models.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	stored := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &stored)
	if stored.ExternalID != nil {
		m.external[*stored.ExternalID] = &stored
	}
	return msg, nil
}

func (m *MemoryStore) FindMessageByExternalID(ctx context.Context, externalID string) (*models.SessionMessage, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	msg, ok := m.external[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *MemoryStore) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]*models.SessionMessage, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	all := m.messages[sessionID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]*models.SessionMessage, 0, len(all)-start)
	for _, msg := range all[start:] {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

// Orders

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = make([]models.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.Options = append([]models.OrderItemOption(nil), it.Options...)
		cp.Items[i] = it
	}
	return &cp
}

func (m *MemoryStore) CreateOrder(ctx context.Context, order *models.Order) error {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	for _, existing := range m.orders {
		if existing.SessionID == order.SessionID {
			return ErrDuplicate
		}
	}
	if order.ID == "" {
		order.ID = models.NewID()
	}
	if order.Status == "" {
		order.Status = models.OrderPending
	}
	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == "" {
			item.ID = models.NewID()
		}
		item.OrderID = order.ID
		for j := range item.Options {
			if item.Options[j].ID == "" {
				item.Options[j].ID = models.NewID()
			}
			item.Options[j].OrderItemID = item.ID
		}
	}
	now := m.now()
	order.CreatedAt = now
	order.UpdatedAt = now
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	o, exists := m.orders[id]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *MemoryStore) UpdateOrder(ctx context.Context, order *models.Order) error {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	stored, exists := m.orders[order.ID]
	if !exists {
		return ErrNotFound
	}
	stored.Status = order.Status
	stored.PaymentProofURL = order.PaymentProofURL
	stored.PaymentVerified = order.PaymentVerified
	stored.AwaitingPaymentProof = order.AwaitingPaymentProof
	stored.UpdatedAt = m.now()
	order.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryStore) FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	for _, o := range m.orders {
		if o.SessionID == sessionID {
			return cloneOrder(o), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindAwaitingProofOrder(ctx context.Context, sessionID string) (*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	var latest *models.Order
	for _, o := range m.orders {
		if o.SessionID == sessionID && o.AwaitingPaymentProof {
			if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
				latest = o
			}
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneOrder(latest), nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, merchantID string, filter models.OrderFilter) ([]*models.Order, error) {
	var phones map[string]string
	if filter.Phone != "" {
		m.sessionMu.RLock()
		phones = make(map[string]string, len(m.sessions))
		for id, s := range m.sessions {
			phones[id] = s.CustomerPhone
		}
		m.sessionMu.RUnlock()
	}

	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	var out []*models.Order
	for _, o := range m.orders {
		if o.MerchantID != merchantID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.From != nil && o.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && o.CreatedAt.After(*filter.To) {
			continue
		}
		if filter.Phone != "" && !strings.Contains(phones[o.SessionID], filter.Phone) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListOrdersBySession(ctx context.Context, sessionID string) ([]*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	var out []*models.Order
	for _, o := range m.orders {
		if o.SessionID == sessionID {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*DatabaseStore)(nil)
