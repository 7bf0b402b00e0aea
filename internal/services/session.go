package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ananth-NQI/orderline-backend/internal/events"
	"github.com/Ananth-NQI/orderline-backend/internal/models"
	"github.com/Ananth-NQI/orderline-backend/internal/storage"
)

const recentMessagesPerSession = 5

// SessionManager owns session lookup, expiry and dashboard-facing session updates.
// Work on one merchant+customer conversation is serialized through Lock.
type SessionManager struct {
	store      storage.Store
	publisher  events.Publisher
	locks      *KeyedMutex
	sessionTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewSessionManager creates a new session manager
func NewSessionManager(store storage.Store, publisher events.Publisher, sessionTTL time.Duration, log *slog.Logger) *SessionManager {
	return &SessionManager{
		store:      store,
		publisher:  publisher,
		locks:      NewKeyedMutex(),
		sessionTTL: sessionTTL,
		logger:     log.With(slog.String("component", "sessions")),
		now:        time.Now,
	}
}

func sessionKey(merchantID, customerPhone string) string {
	return merchantID + "|" + customerPhone
}

// Lock blocks until no other turn or operator action holds the conversation
// and returns the unlock func.
func (sm *SessionManager) Lock(merchantID, customerPhone string) func() {
	return sm.locks.Lock(sessionKey(merchantID, customerPhone))
}

// FindOrCreate returns the customer's open session on this merchant. A
// session idle for longer than the TTL is expired and replaced.
func (sm *SessionManager) FindOrCreate(ctx context.Context, line *models.WhatsAppLine, customerPhone string) (*models.Session, bool, error) {
	now := sm.now()

	existing, err := sm.store.FindOpenSession(ctx, line.MerchantID, customerPhone)
	switch {
	case err == nil:
		if existing.IdleFor(now) <= sm.sessionTTL {
			return existing, false, nil
		}
		existing.Status = models.SessionExpired
		err := sm.store.UpdateSession(ctx, existing)
		switch {
		case errors.Is(err, storage.ErrExpired):
			// the sweeper got there first
		case err != nil:
			return nil, false, fmt.Errorf("expire session: %w", err)
		default:
			sm.logger.Info("session expired on lookup",
				slog.String("session_id", existing.ID), slog.Duration("idle", existing.IdleFor(now)))
			sm.publisher.Publish(existing.MerchantID, events.SessionUpdated, existing)
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, false, fmt.Errorf("find session: %w", err)
	}

	session := &models.Session{
		MerchantID:        line.MerchantID,
		LineID:            line.ID,
		CustomerPhone:     customerPhone,
		Status:            models.SessionNew,
		LastInteractionAt: now,
	}
	session.SetOrderingState(models.OrderingState{})
	if err := sm.store.CreateSession(ctx, session); err != nil {
		return nil, false, fmt.Errorf("create session: %w", err)
	}

	sm.logger.Info("session created", slog.String("session_id", session.ID), slog.String("merchant_id", session.MerchantID))
	sm.publisher.Publish(session.MerchantID, events.SessionCreated, session)
	return session, true, nil
}

// Save persists status and state changes and stamps the interaction time.
// Expired sessions are left as they are.
func (sm *SessionManager) Save(ctx context.Context, session *models.Session) error {
	if session.Status == models.SessionExpired {
		sm.logger.Warn("refusing to update expired session", slog.String("session_id", session.ID))
		return nil
	}
	session.LastInteractionAt = sm.now()
	err := sm.store.UpdateSession(ctx, session)
	if errors.Is(err, storage.ErrExpired) {
		sm.logger.Warn("session expired during turn, changes dropped", slog.String("session_id", session.ID))
		session.Status = models.SessionExpired
		return nil
	}
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	sm.publisher.Publish(session.MerchantID, events.SessionUpdated, session)
	return nil
}

// Touch records customer activity without changing status or state.
func (sm *SessionManager) Touch(ctx context.Context, session *models.Session) error {
	session.LastInteractionAt = sm.now()
	err := sm.store.UpdateSession(ctx, session)
	if errors.Is(err, storage.ErrExpired) {
		session.Status = models.SessionExpired
		return nil
	}
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Get loads a session, checking it belongs to merchantScope when set.
func (sm *SessionManager) Get(ctx context.Context, sessionID, merchantScope string) (*models.Session, error) {
	session, err := sm.store.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if merchantScope != "" && session.MerchantID != merchantScope {
		return nil, ErrForbidden
	}
	return session, nil
}

// SetManualMode hands the conversation to (or back from) a human operator.
// It waits for a turn in flight, so no automated reply follows the switch.
func (sm *SessionManager) SetManualMode(ctx context.Context, sessionID, merchantScope string, manual bool) (*models.Session, error) {
	session, err := sm.Get(ctx, sessionID, merchantScope)
	if err != nil {
		return nil, err
	}

	unlock := sm.Lock(session.MerchantID, session.CustomerPhone)
	defer unlock()

	session, err = sm.store.SetSessionManualMode(ctx, session.ID, manual)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set manual mode: %w", err)
	}

	sm.logger.Info("manual mode changed", slog.String("session_id", session.ID), slog.Bool("manual", manual))
	sm.publisher.Publish(session.MerchantID, events.SessionManualModeChanged, map[string]any{
		"session_id":     session.ID,
		"is_manual_mode": manual,
		"session":        session,
	})
	return session, nil
}

// List returns the merchant's sessions, newest activity first, each with its
// latest messages and orders.
func (sm *SessionManager) List(ctx context.Context, merchantID string) ([]*models.SessionDetail, error) {
	sessions, err := sm.store.ListSessions(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.SessionDetail, 0, len(sessions))
	for _, s := range sessions {
		msgs, err := sm.store.ListRecentMessages(ctx, s.ID, recentMessagesPerSession)
		if err != nil {
			return nil, err
		}
		orders, err := sm.store.ListOrdersBySession(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &models.SessionDetail{Session: s, Messages: msgs, Orders: orders})
	}
	return out, nil
}

// Detail returns one session with its full history.
func (sm *SessionManager) Detail(ctx context.Context, sessionID, merchantScope string) (*models.SessionDetail, error) {
	session, err := sm.Get(ctx, sessionID, merchantScope)
	if err != nil {
		return nil, err
	}
	msgs, err := sm.store.ListRecentMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	orders, err := sm.store.ListOrdersBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &models.SessionDetail{Session: session, Messages: msgs, Orders: orders}, nil
}

// ExpireIdle marks every session idle past the TTL as expired.
func (sm *SessionManager) ExpireIdle(ctx context.Context) (int, error) {
	expired, err := sm.store.ExpireIdleSessions(ctx, sm.now().Add(-sm.sessionTTL))
	if err != nil {
		return 0, err
	}
	for _, s := range expired {
		sm.publisher.Publish(s.MerchantID, events.SessionUpdated, s)
	}
	return len(expired), nil
}
