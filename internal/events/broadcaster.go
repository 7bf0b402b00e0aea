package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// EventType names a dashboard update.
type EventType string

const (
	OrderCreated             EventType = "order_created"
	OrderUpdated             EventType = "order_updated"
	PaymentVerified          EventType = "payment_verified"
	PaymentProofUploaded     EventType = "payment_proof_uploaded"
	SessionCreated           EventType = "session_created"
	SessionUpdated           EventType = "session_updated"
	SessionManualModeChanged EventType = "session_manual_mode_changed"
	MessageReceived          EventType = "message_received"
)

// Event is one update pushed to a merchant's live dashboards. Data is
// encoded when the event is published, so later changes to the source
// value never reach subscribers.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
	At   time.Time       `json:"at"`
}

// Publisher is the write side used by services.
type Publisher interface {
	Publish(merchantID string, eventType EventType, data any)
}

const DefaultBuffer = 64

type subscriber struct {
	ch chan Event
}

// Broadcaster fans events out to per-merchant subscribers in process.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	logger *slog.Logger
	now    func() time.Time
}

func NewBroadcaster(log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: log.With(slog.String("component", "events")),
		now:    time.Now,
	}
}

// Subscribe registers a listener for merchantID. The returned cancel func
// deregisters it and closes the stream; it is safe to call more than once.
func (b *Broadcaster) Subscribe(merchantID string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	set, ok := b.subs[merchantID]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.subs[merchantID] = set
	}
	set[sub] = struct{}{}
	count := len(set)
	b.mu.Unlock()

	b.logger.Info("subscriber connected", slog.String("merchant_id", merchantID), slog.Int("subscribers", count))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[merchantID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(b.subs, merchantID)
				}
			}
			remaining := len(b.subs[merchantID])
			close(sub.ch)
			b.mu.Unlock()
			b.logger.Info("subscriber disconnected", slog.String("merchant_id", merchantID), slog.Int("subscribers", remaining))
		})
	}
	return sub.ch, cancel
}

// Publish delivers an event to every current subscriber of merchantID.
func (b *Broadcaster) Publish(merchantID string, eventType EventType, data any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	set := b.subs[merchantID]
	if len(set) == 0 {
		b.logger.Debug("no subscribers for event", slog.String("merchant_id", merchantID), slog.String("type", string(eventType)))
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		b.logger.Error("failed to encode event", slog.String("type", string(eventType)), slog.Any("error", err))
		return
	}
	evt := Event{Type: eventType, Data: payload, At: b.now()}
	for sub := range set {
		select {
		case sub.ch <- evt:
		default:
			b.logger.Warn("subscriber buffer full, dropping event",
				slog.String("merchant_id", merchantID), slog.String("type", string(eventType)))
		}
	}
}

// Count returns the number of live subscribers for merchantID.
func (b *Broadcaster) Count(merchantID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[merchantID])
}
