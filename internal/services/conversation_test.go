package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/orderline-backend/internal/events"
	"github.com/Ananth-NQI/orderline-backend/internal/models"
	"github.com/Ananth-NQI/orderline-backend/internal/storage"
)

const (
	testPhoneNumberID = "pnid-1"
	testCustomer      = "573001112233"
)

type conversationFixture struct {
	store     *storage.MemoryStore
	sender    *fakeSender
	responder *scriptedResponder
	publisher *recordingPublisher
	hours     *BusinessHoursService
	sessions  *SessionManager
	orders    *OrderService
	svc       *ConversationService
	merchant  *models.Merchant
	line      *models.WhatsAppLine
	uploadDir string
}

func newConversationFixture(t *testing.T) *conversationFixture {
	t.Helper()
	log := testLogger()

	store := storage.NewMemoryStore()
	merchant := &models.Merchant{Name: "La Esquina", Slug: "la-esquina"}
	store.AddMerchant(merchant)
	line := &models.WhatsAppLine{
		MerchantID:    merchant.ID,
		PhoneNumberID: testPhoneNumberID,
		AccessToken:   "token",
		Status:        models.LineStatusActive,
		BotEnabled:    true,
	}
	store.AddLine(line)

	f := &conversationFixture{
		store:     store,
		sender:    newFakeSender(),
		responder: &scriptedResponder{fn: replyWith("¡Hola! ¿Qué deseas ordenar?")},
		publisher: &recordingPublisher{},
		merchant:  merchant,
		line:      line,
		uploadDir: t.TempDir(),
	}
	f.hours = NewBusinessHoursService(store, bogota, log)
	f.sessions = NewSessionManager(store, f.publisher, time.Hour, log)
	f.orders = NewOrderService(store, f.publisher, log)
	f.svc = NewConversationService(
		store, f.hours, f.sessions, f.orders, f.responder,
		NewDispatcher(f.sender, log), NewLocalProofStorage(f.uploadDir),
		f.publisher, ConversationOptions{HistoryLimit: 12, ResponderTimeout: time.Second}, log,
	)
	return f
}

func (f *conversationFixture) text(id, body string) InboundMessage {
	return InboundMessage{PhoneNumberID: testPhoneNumberID, From: testCustomer, MessageID: id, Type: "text", Text: body}
}

func (f *conversationFixture) session(t *testing.T) *models.Session {
	t.Helper()
	s, err := f.store.FindOpenSession(context.Background(), f.merchant.ID, testCustomer)
	require.NoError(t, err)
	return s
}

func (f *conversationFixture) history(t *testing.T) []*models.SessionMessage {
	t.Helper()
	msgs, err := f.store.ListRecentMessages(context.Background(), f.session(t).ID, 0)
	require.NoError(t, err)
	return msgs
}

func transferOrder() func(*ResponderInput) (*ResponderOutput, error) {
	method := "transferencia"
	return func(*ResponderInput) (*ResponderOutput, error) {
		return &ResponderOutput{
			Reply: "Listo, tu pedido fue creado. Envía el comprobante por favor.",
			OrderSummary: &OrderEnvelope{
				ShouldCreateOrder: true,
				Order: &OrderSummary{
					Items:          []OrderSummaryItem{{ItemID: "burger", Name: "Hamburguesa", Quantity: 2, UnitPrice: 15000, Subtotal: 30000}},
					PaymentMethod:  &method,
					EstimatedTotal: 30000,
				},
			},
			ShowConfirmButton: true,
			SessionUpdates:    map[string]any{"status": "CONFIRMED"},
		}, nil
	}
}

func TestHandleInbound_RepliesAndRecordsTurn(t *testing.T) {
	f := newConversationFixture(t)

	outcome, err := f.svc.HandleInbound(context.Background(), f.text("wamid.1", "hola"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "text", sent[0].Kind)
	assert.Equal(t, testCustomer, sent[0].To)

	msgs := f.history(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "hola", msgs[0].Content)
	require.NotNil(t, msgs[0].ExternalID)
	assert.Equal(t, "wamid.1", *msgs[0].ExternalID)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)

	assert.Len(t, f.publisher.ofType(events.SessionCreated), 1)
	assert.Len(t, f.publisher.ofType(events.MessageReceived), 1)
}

func TestHandleInbound_DuplicateDeliveryIsIgnored(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "hola"))
	require.NoError(t, err)
	outcome, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "hola"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 1, f.responder.callCount())
	assert.Len(t, f.sender.messages(), 1)
	assert.Len(t, f.history(t), 2)
}

func TestHandleInbound_ConcurrentDuplicatesProcessOnce(t *testing.T) {
	f := newConversationFixture(t)

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := f.svc.HandleInbound(context.Background(), f.text("wamid.same", "hola"))
			assert.NoError(t, err)
			outcomes[i] = o
		}(i)
	}
	wg.Wait()

	processed := 0
	for _, o := range outcomes {
		if o == OutcomeProcessed {
			processed++
		} else {
			assert.Equal(t, OutcomeDuplicate, o)
		}
	}
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, f.responder.callCount())
}

func TestHandleInbound_UnknownLine(t *testing.T) {
	f := newConversationFixture(t)
	msg := f.text("wamid.1", "hola")
	msg.PhoneNumberID = "other"

	_, err := f.svc.HandleInbound(context.Background(), msg)
	assert.ErrorIs(t, err, ErrUnknownLine)
}

func TestHandleInbound_BotDisabled(t *testing.T) {
	f := newConversationFixture(t)
	_, err := f.store.SetLineBotEnabled(context.Background(), f.line.ID, false)
	require.NoError(t, err)

	outcome, err := f.svc.HandleInbound(context.Background(), f.text("wamid.1", "hola"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBotDisabled, outcome)
	assert.Empty(t, f.sender.messages())
	assert.Zero(t, f.responder.callCount())
}

func TestHandleInbound_ClosedSendsNoticeOnly(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.ReplaceBusinessHours(ctx, f.merchant.ID, []*models.BusinessHours{
		row(models.Monday, "09:00", "18:00", false),
	}))
	f.hours.now = func() time.Time { return at(1, "20:00") }

	outcome, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "hola"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeClosed, outcome)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "cerrado")
	assert.Zero(t, f.responder.callCount())

	_, err = f.store.FindOpenSession(ctx, f.merchant.ID, testCustomer)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleInbound_CreatesSingleOrderPerSession(t *testing.T) {
	f := newConversationFixture(t)
	f.responder.fn = transferOrder()
	ctx := context.Background()

	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "confirmo"))
	require.NoError(t, err)

	// an image-less follow up only gets the proof reminder, so flip the
	// awaiting flag to reach the responder again
	order, err := f.store.FindOrderBySession(ctx, f.session(t).ID)
	require.NoError(t, err)
	order.AwaitingPaymentProof = false
	require.NoError(t, f.store.UpdateOrder(ctx, order))

	_, err = f.svc.HandleInbound(ctx, f.text("wamid.2", "confirmo otra vez"))
	require.NoError(t, err)

	orders, err := f.store.ListOrdersBySession(ctx, f.session(t).ID)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Len(t, f.publisher.ofType(events.OrderCreated), 1)

	sent := f.sender.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "text", sent[0].Kind, "no confirm button on the turn the order was created")
	assert.Equal(t, "buttons", sent[1].Kind)
	assert.Equal(t, ConfirmOrderButtonID, sent[1].Buttons[0].ID)
}

func TestHandleInbound_ConcurrentOrderRequestsCreateOne(t *testing.T) {
	f := newConversationFixture(t)
	method := "efectivo"
	f.responder.fn = func(*ResponderInput) (*ResponderOutput, error) {
		return &ResponderOutput{
			Reply: "Pedido creado",
			OrderSummary: &OrderEnvelope{ShouldCreateOrder: true, Order: &OrderSummary{
				Items:         []OrderSummaryItem{{Name: "Arepa", Quantity: 1, UnitPrice: 5000, Subtotal: 5000}},
				PaymentMethod: &method,
			}},
		}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.HandleInbound(context.Background(), f.text(fmt.Sprintf("wamid.%d", i), "confirmo"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	orders, err := f.store.ListOrdersBySession(context.Background(), f.session(t).ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].PaymentVerified)
	assert.False(t, orders[0].AwaitingPaymentProof)
}

func TestHandleInbound_ManualModeStoresWithoutReplying(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "hola"))
	require.NoError(t, err)
	_, err = f.sessions.SetManualMode(ctx, f.session(t).ID, f.merchant.ID, true)
	require.NoError(t, err)

	outcome, err := f.svc.HandleInbound(ctx, f.text("wamid.2", "¿me atiende una persona?"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeManual, outcome)
	assert.Equal(t, 1, f.responder.callCount())
	assert.Len(t, f.sender.messages(), 1)

	msgs := f.history(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, "¿me atiende una persona?", msgs[2].Content)
	assert.Len(t, f.publisher.ofType(events.MessageReceived), 2)
}

func TestHandleInbound_ManualTakeoverDuringTurnSticks(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "hola"))
	require.NoError(t, err)
	sessionID := f.session(t).ID

	entered := make(chan struct{})
	release := make(chan struct{})
	f.responder.fn = func(*ResponderInput) (*ResponderOutput, error) {
		close(entered)
		<-release
		return &ResponderOutput{Reply: "Anotado", SessionUpdates: map[string]any{"status": "COLLECTING_ITEMS"}}, nil
	}

	turnErr := make(chan error, 1)
	go func() {
		_, err := f.svc.HandleInbound(ctx, f.text("wamid.2", "dos hamburguesas"))
		turnErr <- err
	}()
	<-entered

	toggled := make(chan error, 1)
	go func() {
		_, err := f.sessions.SetManualMode(ctx, sessionID, f.merchant.ID, true)
		toggled <- err
	}()

	select {
	case <-toggled:
		t.Fatal("manual mode changed while a turn held the session")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-turnErr)
	require.NoError(t, <-toggled)

	stored, err := f.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, stored.IsManualMode)
	assert.Equal(t, models.SessionCollectingItems, stored.Status)

	sentBefore := len(f.sender.messages())
	outcome, err := f.svc.HandleInbound(ctx, f.text("wamid.3", "¿sigue ahí?"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeManual, outcome)
	assert.Len(t, f.sender.messages(), sentBefore)
	assert.Equal(t, 2, f.responder.callCount())
}

func TestHandleInbound_LiveBroadcasterGetsSnapshots(t *testing.T) {
	f := newConversationFixture(t)
	log := testLogger()
	b := events.NewBroadcaster(log)
	sessions := NewSessionManager(f.store, b, time.Hour, log)
	orders := NewOrderService(f.store, b, log)
	f.responder.fn = transferOrder()
	svc := NewConversationService(
		f.store, f.hours, sessions, orders, f.responder,
		NewDispatcher(f.sender, log), NewLocalProofStorage(f.uploadDir),
		b, ConversationOptions{HistoryLimit: 12, ResponderTimeout: time.Second}, log,
	)

	stream, cancel := b.Subscribe(f.merchant.ID, 0)
	seen := make(map[events.EventType][]events.Event)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range stream {
			// re-encoding mirrors what the SSE writer does with each event
			_, err := json.Marshal(ev)
			assert.NoError(t, err)
			seen[ev.Type] = append(seen[ev.Type], ev)
		}
	}()

	_, err := svc.HandleInbound(context.Background(), f.text("wamid.1", "confirmo"))
	require.NoError(t, err)
	cancel()
	<-done

	require.Len(t, seen[events.SessionCreated], 1)
	require.Len(t, seen[events.OrderCreated], 1)
	require.NotEmpty(t, seen[events.SessionUpdated])

	var created models.Session
	require.NoError(t, json.Unmarshal(seen[events.SessionCreated][0].Data, &created))
	assert.Equal(t, models.SessionNew, created.Status)

	var updated models.Session
	last := seen[events.SessionUpdated][len(seen[events.SessionUpdated])-1]
	require.NoError(t, json.Unmarshal(last.Data, &updated))
	assert.Equal(t, models.SessionConfirmed, updated.Status)
}

// appendFailingStore refuses to store messages with the given content.
type appendFailingStore struct {
	*storage.MemoryStore
	content string
}

func (s *appendFailingStore) AppendMessage(ctx context.Context, msg *models.SessionMessage) (*models.SessionMessage, error) {
	if msg.Content == s.content {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.AppendMessage(ctx, msg)
}

func TestHandleInbound_ProofKeptWhenRecordingTurnFails(t *testing.T) {
	f := newConversationFixture(t)
	f.responder.fn = transferOrder()
	f.sender.media["media-1"] = []byte("jpeg-bytes")
	ctx := context.Background()

	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "confirmo"))
	require.NoError(t, err)

	log := testLogger()
	svc := NewConversationService(
		&appendFailingStore{MemoryStore: f.store, content: PaymentProofContent},
		f.hours, f.sessions, f.orders, f.responder,
		NewDispatcher(f.sender, log), NewLocalProofStorage(f.uploadDir),
		f.publisher, ConversationOptions{HistoryLimit: 12, ResponderTimeout: time.Second}, log,
	)
	sentBefore := len(f.sender.messages())

	_, err = svc.HandleInbound(ctx, InboundMessage{
		PhoneNumberID: testPhoneNumberID, From: testCustomer, MessageID: "wamid.2", Type: "image", MediaID: "media-1",
	})
	require.Error(t, err)
	assert.Equal(t, 1, f.responder.callCount(), "a stored proof must not fall through to the responder")
	assert.Len(t, f.sender.messages(), sentBefore)

	order, err := f.store.FindOrderBySession(ctx, f.session(t).ID)
	require.NoError(t, err)
	assert.False(t, order.AwaitingPaymentProof)
	assert.NotEmpty(t, order.PaymentProofURL)
}

func TestHandleInbound_PaymentProofReminder(t *testing.T) {
	f := newConversationFixture(t)
	f.responder.fn = transferOrder()
	ctx := context.Background()

	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "confirmo"))
	require.NoError(t, err)

	outcome, err := f.svc.HandleInbound(ctx, f.text("wamid.2", "ya pagué"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProofReminder, outcome)
	assert.Equal(t, 1, f.responder.callCount())

	sent := f.sender.messages()
	assert.Equal(t, PaymentProofReminder, sent[len(sent)-1].Body)

	msgs := f.history(t)
	assert.Equal(t, PaymentProofReminder, msgs[len(msgs)-1].Content)
	assert.Equal(t, "ya pagué", msgs[len(msgs)-2].Content)
}

func TestHandleInbound_PaymentProofCapture(t *testing.T) {
	f := newConversationFixture(t)
	f.responder.fn = transferOrder()
	f.sender.media["media-1"] = []byte("jpeg-bytes")
	ctx := context.Background()

	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "confirmo"))
	require.NoError(t, err)

	outcome, err := f.svc.HandleInbound(ctx, InboundMessage{
		PhoneNumberID: testPhoneNumberID, From: testCustomer, MessageID: "wamid.2", Type: "image", MediaID: "media-1",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProofCaptured, outcome)

	order, err := f.store.FindOrderBySession(ctx, f.session(t).ID)
	require.NoError(t, err)
	assert.False(t, order.AwaitingPaymentProof)
	assert.False(t, order.PaymentVerified)
	require.NotEmpty(t, order.PaymentProofURL)
	data, err := os.ReadFile(order.PaymentProofURL)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	sent := f.sender.messages()
	assert.Equal(t, PaymentProofReceived, sent[len(sent)-1].Body)

	msgs := f.history(t)
	assert.Equal(t, PaymentProofContent, msgs[len(msgs)-2].Content)
	assert.Equal(t, PaymentProofReceived, msgs[len(msgs)-1].Content)

	uploaded := f.publisher.ofType(events.PaymentProofUploaded)
	require.Len(t, uploaded, 1)
	assert.Equal(t, order.ID, uploaded[0].Data.(PaymentProofUploaded).OrderID)

	// the next text goes back to the responder
	f.responder.fn = replyWith("¿Algo más?")
	outcome, err = f.svc.HandleInbound(ctx, f.text("wamid.3", "gracias"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
}

func TestHandleInbound_FailedProofDownloadFallsThrough(t *testing.T) {
	f := newConversationFixture(t)
	f.responder.fn = transferOrder()
	ctx := context.Background()

	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "confirmo"))
	require.NoError(t, err)

	f.responder.fn = replyWith("No pude ver la imagen")
	outcome, err := f.svc.HandleInbound(ctx, InboundMessage{
		PhoneNumberID: testPhoneNumberID, From: testCustomer, MessageID: "wamid.2", Type: "image", MediaID: "missing",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, 2, f.responder.callCount())

	order, err := f.store.FindOrderBySession(ctx, f.session(t).ID)
	require.NoError(t, err)
	assert.True(t, order.AwaitingPaymentProof)
}

func TestHandleInbound_ResponderFailureUsesFallback(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	f.responder.fn = func(*ResponderInput) (*ResponderOutput, error) {
		return &ResponderOutput{Reply: "ok", SessionUpdates: map[string]any{"address": "Calle 1", "status": "COLLECTING_ITEMS"}}, nil
	}
	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "mi dirección es Calle 1"))
	require.NoError(t, err)

	f.responder.fn = func(*ResponderInput) (*ResponderOutput, error) {
		return nil, errors.New("upstream timeout")
	}
	outcome, err := f.svc.HandleInbound(ctx, f.text("wamid.2", "hola?"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	sent := f.sender.messages()
	assert.Equal(t, FallbackReply, sent[len(sent)-1].Body)

	s := f.session(t)
	assert.Equal(t, models.SessionCollectingItems, s.Status)
	assert.Equal(t, "Calle 1", s.OrderingState().Address)
	assert.Len(t, f.history(t), 4)
}

func TestHandleInbound_ResponderSeesHistoryAndState(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	f.responder.fn = func(*ResponderInput) (*ResponderOutput, error) {
		return &ResponderOutput{Reply: "anotado", SessionUpdates: map[string]any{"customer_name": "Ana"}}, nil
	}
	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "soy Ana"))
	require.NoError(t, err)
	_, err = f.svc.HandleInbound(ctx, f.text("wamid.2", "quiero una arepa"))
	require.NoError(t, err)

	in := f.responder.last
	require.NotNil(t, in)
	assert.Equal(t, "quiero una arepa", in.LastUserMessage)
	assert.Equal(t, "La Esquina", in.RestaurantInfo.Name)
	assert.Equal(t, "Ana", in.SessionState["customer_name"])
	require.Len(t, in.History, 2)
	assert.Equal(t, "soy Ana", in.History[0].Content)
	assert.Equal(t, "anotado", in.History[1].Content)
}

func TestHandleInbound_DeclaredExpiredIsIgnored(t *testing.T) {
	f := newConversationFixture(t)
	f.responder.fn = func(*ResponderInput) (*ResponderOutput, error) {
		return &ResponderOutput{Reply: "chao", SessionUpdates: map[string]any{"status": "EXPIRED"}}, nil
	}

	_, err := f.svc.HandleInbound(context.Background(), f.text("wamid.1", "adiós"))
	require.NoError(t, err)
	assert.Equal(t, models.SessionNew, f.session(t).Status)
}

func TestHandleInbound_MenuImagesSentOnce(t *testing.T) {
	f := newConversationFixture(t)
	f.store.SetActiveMenu(f.merchant.ID, &models.Menu{
		Name: "Carta",
		Images: []models.MenuImage{
			{ID: "img-1", FilePath: "/uploads/menu/1.jpg", MimeType: "image/jpeg"},
			{ID: "img-2", FilePath: "/uploads/menu/2.jpg", MimeType: "image/jpeg"},
		},
	})
	f.responder.fn = func(*ResponderInput) (*ResponderOutput, error) {
		return &ResponderOutput{Reply: "hola", Intent: IntentGreeting}, nil
	}
	ctx := context.Background()

	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "hola"))
	require.NoError(t, err)

	sent := f.sender.messages()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[0].Body, "La Esquina")
	assert.Contains(t, sent[0].Body, "carta en imágenes")
	assert.Equal(t, "image", sent[1].Kind)
	assert.Equal(t, menuImagesCaption, sent[1].Body)
	assert.Empty(t, sent[2].Body)
	assert.True(t, f.session(t).OrderingState().MenuImagesSent)

	_, err = f.svc.HandleInbound(ctx, f.text("wamid.2", "hola de nuevo"))
	require.NoError(t, err)
	sent = f.sender.messages()
	require.Len(t, sent, 4)
	assert.Equal(t, "hola", sent[3].Body)
}

func TestHandleInbound_SupportIntentHandsOff(t *testing.T) {
	f := newConversationFixture(t)
	f.responder.fn = func(*ResponderInput) (*ResponderOutput, error) {
		return &ResponderOutput{Intent: IntentSupport}, nil
	}
	ctx := context.Background()

	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "tengo un problema con mi pedido"))
	require.NoError(t, err)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Tu mensaje ha sido marcado como soporte. Alguien de La Esquina te responderá pronto.", sent[0].Body)
	assert.Equal(t, models.SessionSupport, f.session(t).Status)

	outcome, err := f.svc.HandleInbound(ctx, f.text("wamid.2", "¿hola?"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeManual, outcome)
	assert.Equal(t, 1, f.responder.callCount())
}

func TestHandleInbound_BlankReplySendsNothing(t *testing.T) {
	f := newConversationFixture(t)
	f.responder.fn = replyWith("   ")

	outcome, err := f.svc.HandleInbound(context.Background(), f.text("wamid.1", "ok"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Empty(t, f.sender.messages())
	assert.Len(t, f.history(t), 1)
}

func TestHandleInbound_UnconfiguredLineKeepsTurn(t *testing.T) {
	f := newConversationFixture(t)
	f.store.AddLine(&models.WhatsAppLine{
		ID: f.line.ID, MerchantID: f.merchant.ID, PhoneNumberID: testPhoneNumberID, BotEnabled: true,
	})

	_, err := f.svc.HandleInbound(context.Background(), f.text("wamid.1", "hola"))
	assert.ErrorIs(t, err, ErrLineNotConfigured)
	assert.Len(t, f.history(t), 1)
}

func TestSendManualReply(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	_, err := f.svc.HandleInbound(ctx, f.text("wamid.1", "hola"))
	require.NoError(t, err)
	sessionID := f.session(t).ID

	msg, err := f.svc.SendManualReply(ctx, sessionID, f.merchant.ID, "Hola, te atiende Laura")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, msg.Role)

	sent := f.sender.messages()
	assert.Equal(t, "Hola, te atiende Laura", sent[len(sent)-1].Body)

	_, err = f.svc.SendManualReply(ctx, sessionID, "other-merchant", "hola")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.SendManualReply(ctx, sessionID, f.merchant.ID, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
