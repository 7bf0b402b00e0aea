package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Ananth-NQI/orderline-backend/internal/events"
	"github.com/Ananth-NQI/orderline-backend/internal/models"
	"github.com/Ananth-NQI/orderline-backend/internal/storage"
)

// Fixed customer-facing texts for the payment-proof flow
const (
	PaymentProofReminder = "Por favor, envía una foto del comprobante de pago para que podamos verificar tu transferencia. 📸"
	PaymentProofReceived = "Gracias por enviar el comprobante. El comercio lo verificará y tu pedido será procesado."
	PaymentProofContent  = "[Imagen: Comprobante de pago]"
)

// InboundMessage is one customer message taken from a webhook delivery.
type InboundMessage struct {
	PhoneNumberID string
	From          string
	MessageID     string
	Type          string
	Text          string
	MediaID       string
}

func (m InboundMessage) IsImage() bool {
	return m.Type == "image"
}

// Outcome says how an inbound message was handled.
type Outcome string

const (
	OutcomeProcessed     Outcome = "processed"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeBotDisabled   Outcome = "bot_disabled"
	OutcomeClosed        Outcome = "closed"
	OutcomeManual        Outcome = "manual"
	OutcomeProofReminder Outcome = "proof_reminder"
	OutcomeProofCaptured Outcome = "proof_captured"
)

// MessageReceived is the dashboard payload for a new customer message.
type MessageReceived struct {
	SessionID     string                 `json:"session_id"`
	CustomerPhone string                 `json:"customer_phone"`
	Message       *models.SessionMessage `json:"message"`
	IsImage       bool                   `json:"is_image"`
	Status        models.SessionStatus   `json:"status"`
}

// ConversationOptions tunes the conversation flow.
type ConversationOptions struct {
	HistoryLimit     int
	ResponderTimeout time.Duration
}

// ConversationService drives one inbound message through the ordering flow.
// Messages for the same merchant and customer are handled one at a time.
type ConversationService struct {
	store      storage.Store
	hours      *BusinessHoursService
	sessions   *SessionManager
	orders     *OrderService
	responder  Responder
	dispatcher *Dispatcher
	proofs     ProofStorage
	publisher  events.Publisher
	opts       ConversationOptions
	logger     *slog.Logger
}

func NewConversationService(
	store storage.Store,
	hours *BusinessHoursService,
	sessions *SessionManager,
	orders *OrderService,
	responder Responder,
	dispatcher *Dispatcher,
	proofs ProofStorage,
	publisher events.Publisher,
	opts ConversationOptions,
	log *slog.Logger,
) *ConversationService {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 12
	}
	if opts.ResponderTimeout <= 0 {
		opts.ResponderTimeout = 30 * time.Second
	}
	return &ConversationService{
		store:      store,
		hours:      hours,
		sessions:   sessions,
		orders:     orders,
		responder:  responder,
		dispatcher: dispatcher,
		proofs:     proofs,
		publisher:  publisher,
		opts:       opts,
		logger:     log.With(slog.String("component", "conversation")),
	}
}

// HandleInbound processes one customer message end to end.
func (c *ConversationService) HandleInbound(ctx context.Context, msg InboundMessage) (Outcome, error) {
	log := c.logger.With(slog.String("message_id", msg.MessageID), slog.String("from", msg.From))

	if dup, err := c.isDuplicate(ctx, msg.MessageID); err != nil {
		return "", err
	} else if dup {
		log.Info("duplicate message detected, skipping")
		return OutcomeDuplicate, nil
	}

	line, err := c.store.GetLineByPhoneNumberID(ctx, msg.PhoneNumberID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("webhook for unknown phone number", slog.String("phone_number_id", msg.PhoneNumberID))
		return "", ErrUnknownLine
	}
	if err != nil {
		return "", fmt.Errorf("load line: %w", err)
	}
	log = log.With(slog.String("merchant_id", line.MerchantID))

	if !line.BotEnabled {
		log.Info("bot is manually disabled for this line", slog.String("line_id", line.ID))
		return OutcomeBotDisabled, nil
	}

	hours, err := c.hours.Status(ctx, line.MerchantID)
	if err != nil {
		return "", err
	}
	if !hours.ShouldRespond {
		if hours.Message != "" {
			if _, err := c.dispatcher.SendText(ctx, line, msg.From, hours.Message); err != nil {
				return "", fmt.Errorf("send closed notice: %w", err)
			}
		}
		log.Info("merchant closed, message not processed")
		return OutcomeClosed, nil
	}

	unlock := c.sessions.Lock(line.MerchantID, msg.From)
	defer unlock()

	// a concurrent delivery may have finished while we waited
	if dup, err := c.isDuplicate(ctx, msg.MessageID); err != nil {
		return "", err
	} else if dup {
		log.Info("duplicate message detected after lock, skipping")
		return OutcomeDuplicate, nil
	}

	session, _, err := c.sessions.FindOrCreate(ctx, line, msg.From)
	if err != nil {
		return "", err
	}
	log = log.With(slog.String("session_id", session.ID))

	if session.IsManualMode || session.Status == models.SessionSupport {
		return c.handleManual(ctx, session, msg)
	}

	pending, err := c.orders.AwaitingProof(ctx, session.ID)
	if err != nil {
		return "", err
	}
	if pending != nil {
		if !msg.IsImage() {
			return c.remindPaymentProof(ctx, line, session, msg)
		}
		if err := c.storePaymentProof(ctx, line, pending, msg); err != nil {
			log.Error("failed to capture payment proof, continuing with normal flow",
				slog.String("order_id", pending.ID), slog.Any("error", err))
		} else {
			// the proof is on the order now; failures from here on belong to this turn
			return c.acknowledgePaymentProof(ctx, line, session, pending, msg)
		}
	}

	return c.respond(ctx, line, session, msg, log)
}

func (c *ConversationService) isDuplicate(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	_, err := c.store.FindMessageByExternalID(ctx, messageID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("check duplicate: %w", err)
}

func (c *ConversationService) appendUser(ctx context.Context, session *models.Session, content, externalID string) (*models.SessionMessage, error) {
	m := &models.SessionMessage{SessionID: session.ID, Role: models.RoleUser, Content: content}
	if externalID != "" {
		m.ExternalID = &externalID
	}
	stored, err := c.store.AppendMessage(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}
	return stored, nil
}

func (c *ConversationService) appendAssistant(ctx context.Context, session *models.Session, content string) error {
	_, err := c.store.AppendMessage(ctx, &models.SessionMessage{SessionID: session.ID, Role: models.RoleAssistant, Content: content})
	if err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	return nil
}

func (c *ConversationService) publishReceived(session *models.Session, stored *models.SessionMessage, msg InboundMessage) {
	c.publisher.Publish(session.MerchantID, events.MessageReceived, MessageReceived{
		SessionID:     session.ID,
		CustomerPhone: session.CustomerPhone,
		Message:       stored,
		IsImage:       msg.IsImage(),
		Status:        session.Status,
	})
}

// handleManual stores the message for a human operator; nothing is sent.
func (c *ConversationService) handleManual(ctx context.Context, session *models.Session, msg InboundMessage) (Outcome, error) {
	stored, err := c.appendUser(ctx, session, msg.Text, msg.MessageID)
	if err != nil {
		return "", err
	}
	if err := c.sessions.Touch(ctx, session); err != nil {
		return "", err
	}
	c.publishReceived(session, stored, msg)
	return OutcomeManual, nil
}

func (c *ConversationService) remindPaymentProof(ctx context.Context, line *models.WhatsAppLine, session *models.Session, msg InboundMessage) (Outcome, error) {
	stored, err := c.appendUser(ctx, session, msg.Text, msg.MessageID)
	if err != nil {
		return "", err
	}
	c.publishReceived(session, stored, msg)

	if _, err := c.dispatcher.SendText(ctx, line, msg.From, PaymentProofReminder); err != nil {
		return "", fmt.Errorf("send payment proof reminder: %w", err)
	}
	if err := c.appendAssistant(ctx, session, PaymentProofReminder); err != nil {
		return "", err
	}
	if err := c.sessions.Touch(ctx, session); err != nil {
		return "", err
	}
	return OutcomeProofReminder, nil
}

// storePaymentProof downloads the receipt and attaches it to the order. An
// error leaves the order untouched, so the caller can fall back to the
// normal flow.
func (c *ConversationService) storePaymentProof(ctx context.Context, line *models.WhatsAppLine, order *models.Order, msg InboundMessage) error {
	if msg.MediaID == "" {
		return errors.New("image message without media id")
	}
	c.logger.Info("downloading payment proof", slog.String("order_id", order.ID), slog.String("media_id", msg.MediaID))

	data, err := c.dispatcher.DownloadMedia(ctx, line, msg.MediaID)
	if err != nil {
		return fmt.Errorf("download media: %w", err)
	}
	path, err := c.proofs.SavePaymentProof(ctx, order.ID, data)
	if err != nil {
		return err
	}
	return c.orders.AttachPaymentProof(ctx, order, path)
}

func (c *ConversationService) acknowledgePaymentProof(ctx context.Context, line *models.WhatsAppLine, session *models.Session, order *models.Order, msg InboundMessage) (Outcome, error) {
	stored, err := c.appendUser(ctx, session, PaymentProofContent, msg.MessageID)
	if err != nil {
		return "", err
	}
	c.publishReceived(session, stored, msg)

	if _, err := c.dispatcher.SendText(ctx, line, msg.From, PaymentProofReceived); err != nil {
		c.logger.Error("failed to acknowledge payment proof", slog.String("order_id", order.ID), slog.Any("error", err))
	} else if err := c.appendAssistant(ctx, session, PaymentProofReceived); err != nil {
		return "", err
	}
	if err := c.sessions.Touch(ctx, session); err != nil {
		return "", err
	}
	return OutcomeProofCaptured, nil
}

// respond runs the responder and applies its decision.
func (c *ConversationService) respond(ctx context.Context, line *models.WhatsAppLine, session *models.Session, msg InboundMessage, log *slog.Logger) (Outcome, error) {
	rc, err := LoadResponderContext(ctx, c.store, session, msg.Text, c.opts.HistoryLimit)
	if err != nil {
		return "", err
	}

	rctx, cancel := context.WithTimeout(ctx, c.opts.ResponderTimeout)
	out, err := c.responder.Respond(rctx, rc.Input)
	cancel()
	fallback := false
	if err != nil || out == nil {
		log.Error("responder failed, using fallback reply", slog.Any("error", err))
		out = FallbackOutput()
		fallback = true
	}

	stored, err := c.appendUser(ctx, session, msg.Text, msg.MessageID)
	if err != nil {
		return "", err
	}
	c.publishReceived(session, stored, msg)

	if fallback {
		if err := c.sessions.Touch(ctx, session); err != nil {
			return "", err
		}
		return c.sendReply(ctx, line, session, msg.From, Reply{Text: out.Reply})
	}

	merchantName := ""
	if rc.Merchant != nil {
		merchantName = rc.Merchant.Name
	}

	state := session.OrderingState()
	var images []models.MenuImage
	wantsImages := (out.SendMenuImages || out.Intent == IntentGreeting) && !state.MenuImagesSent
	if wantsImages && rc.Menu != nil {
		images = rc.Menu.Images
	}
	if wantsImages && len(images) == 0 {
		log.Warn("menu images requested but none found")
	}

	newState, declared := state.MergePatch(out.SessionUpdates)
	if len(images) > 0 {
		newState.MenuImagesSent = true
	}
	session.SetOrderingState(newState)
	switch {
	case declared != nil && *declared != models.SessionExpired:
		session.Status = *declared
	case declared == nil && out.Intent == IntentSupport:
		session.Status = models.SessionSupport
	}

	reply := out.Reply
	if len(images) > 0 {
		reply = greetingWithMenu(merchantName)
	}
	if out.Intent == IntentSupport && strings.TrimSpace(reply) == "" {
		reply = supportNotice(merchantName)
	}

	orderCreated := false
	if out.WantsOrder() {
		_, created, err := c.orders.CreateFromSummary(ctx, session.MerchantID, session.ID, *out.OrderSummary.Order)
		if err != nil {
			return "", err
		}
		orderCreated = created
	}

	if err := c.sessions.Save(ctx, session); err != nil {
		return "", err
	}

	outcome, err := c.sendReply(ctx, line, session, msg.From, Reply{
		Text:              reply,
		ShowConfirmButton: out.ShowConfirmButton,
		OrderCreated:      orderCreated,
		Interactive:       out.Interactive,
	})
	if err != nil {
		return "", err
	}

	if len(images) > 0 {
		sent := c.dispatcher.SendMenuImages(ctx, line, msg.From, images)
		log.Info("menu images sent", slog.Int("sent", sent), slog.Int("total", len(images)))
	}
	return outcome, nil
}

func (c *ConversationService) sendReply(ctx context.Context, line *models.WhatsAppLine, session *models.Session, to string, r Reply) (Outcome, error) {
	sent, err := c.dispatcher.Dispatch(ctx, line, to, r)
	if err != nil {
		return "", fmt.Errorf("send reply: %w", err)
	}
	if sent {
		if err := c.appendAssistant(ctx, session, r.Text); err != nil {
			return "", err
		}
	}
	return OutcomeProcessed, nil
}

func greetingWithMenu(merchantName string) string {
	if merchantName == "" {
		merchantName = "nuestro restaurante"
	}
	return fmt.Sprintf("Hola 👋, gracias por escribir a %s. Te comparto nuestra carta en imágenes. ¿Qué se te antoja hoy?", merchantName)
}

func supportNotice(merchantName string) string {
	if merchantName == "" {
		return "Tu mensaje ha sido marcado como soporte. El comercio te responderá pronto."
	}
	return fmt.Sprintf("Tu mensaje ha sido marcado como soporte. Alguien de %s te responderá pronto.", merchantName)
}

// SendManualReply lets an operator answer the customer from the dashboard.
func (c *ConversationService) SendManualReply(ctx context.Context, sessionID, merchantScope, content string) (*models.SessionMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	session, err := c.sessions.Get(ctx, sessionID, merchantScope)
	if err != nil {
		return nil, err
	}
	line, err := c.store.GetLine(ctx, session.LineID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrLineNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("load line: %w", err)
	}

	unlock := c.sessions.Lock(session.MerchantID, session.CustomerPhone)
	defer unlock()

	if _, err := c.dispatcher.SendText(ctx, line, session.CustomerPhone, content); err != nil {
		return nil, err
	}
	stored, err := c.store.AppendMessage(ctx, &models.SessionMessage{SessionID: session.ID, Role: models.RoleAssistant, Content: content})
	if err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}
	if session.Status != models.SessionExpired {
		if err := c.sessions.Save(ctx, session); err != nil {
			return nil, err
		}
	}
	c.logger.Info("manual reply sent", slog.String("session_id", session.ID))
	return stored, nil
}
