package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/orderline-backend/internal/models"
)

func strPtr(s string) *string { return &s }

func TestMemoryStore_AppendMessageIsIdempotentOnExternalID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.AppendMessage(ctx, &models.SessionMessage{
		SessionID: "s1", Role: models.RoleUser, Content: "hola", ExternalID: strPtr("wamid.1"),
	})
	require.NoError(t, err)

	second, err := store.AppendMessage(ctx, &models.SessionMessage{
		SessionID: "s1", Role: models.RoleUser, Content: "hola otra vez", ExternalID: strPtr("wamid.1"),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "hola", second.Content)

	msgs, err := store.ListRecentMessages(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMemoryStore_EmptyExternalIDIsNotUnique(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 2; i++ {
		_, err := store.AppendMessage(ctx, &models.SessionMessage{
			SessionID: "s1", Role: models.RoleUser, Content: "x", ExternalID: strPtr(""),
		})
		require.NoError(t, err)
	}
	msgs, err := store.ListRecentMessages(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	_, err = store.FindMessageByExternalID(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListRecentMessagesKeepsChronologicalTail(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now()

	for i, content := range []string{"a", "b", "c", "d"} {
		_, err := store.AppendMessage(ctx, &models.SessionMessage{
			SessionID: "s1", Role: models.RoleUser, Content: content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	msgs, err := store.ListRecentMessages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "c", msgs[0].Content)
	assert.Equal(t, "d", msgs[1].Content)
}

func TestMemoryStore_CreateOrderRejectsSecondOrderForSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	order := &models.Order{MerchantID: "m1", SessionID: "s1", Items: []models.OrderItem{
		{Name: "Pizza", Quantity: 1, UnitPrice: 20000, Subtotal: 20000, Options: []models.OrderItemOption{{Name: "Extra queso"}}},
	}}
	require.NoError(t, store.CreateOrder(ctx, order))
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, order.ID, order.Items[0].OrderID)
	assert.Equal(t, order.Items[0].ID, order.Items[0].Options[0].OrderItemID)

	err := store.CreateOrder(ctx, &models.Order{MerchantID: "m1", SessionID: "s1"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	sess := &models.Session{MerchantID: "m1", LineID: "l1", CustomerPhone: "573001112233",
		Status: models.SessionNew, LastInteractionAt: now.Add(-2 * time.Hour)}
	sess.SetOrderingState(models.OrderingState{Address: "Calle 1"})
	require.NoError(t, store.CreateSession(ctx, sess))

	found, err := store.FindOpenSession(ctx, "m1", "573001112233")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, found.ID)
	assert.Equal(t, "Calle 1", found.OrderingState().Address)

	// mutating the returned copy does not leak into the store
	st := found.OrderingState()
	st.Address = "otra"
	found.SetOrderingState(st)
	again, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Calle 1", again.OrderingState().Address)

	expired, err := store.ExpireIdleSessions(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, models.SessionExpired, expired[0].Status)

	_, err = store.FindOpenSession(ctx, "m1", "573001112233")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UpdateSessionLeavesManualModeAndExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess := &models.Session{MerchantID: "m1", LineID: "l1", CustomerPhone: "57300", Status: models.SessionNew, LastInteractionAt: time.Now()}
	require.NoError(t, store.CreateSession(ctx, sess))

	updated, err := store.SetSessionManualMode(ctx, sess.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsManualMode)

	sess.Status = models.SessionReviewing
	require.NoError(t, store.UpdateSession(ctx, sess))
	stored, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsManualMode)
	assert.Equal(t, models.SessionReviewing, stored.Status)

	_, err = store.ExpireIdleSessions(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	sess.Status = models.SessionConfirmed
	assert.ErrorIs(t, store.UpdateSession(ctx, sess), ErrExpired)
	stored, err = store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, stored.Status)

	_, err = store.SetSessionManualMode(ctx, "missing", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListOrdersFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s1 := &models.Session{MerchantID: "m1", CustomerPhone: "573001112233", LastInteractionAt: time.Now()}
	s2 := &models.Session{MerchantID: "m1", CustomerPhone: "573009998877", LastInteractionAt: time.Now()}
	require.NoError(t, store.CreateSession(ctx, s1))
	require.NoError(t, store.CreateSession(ctx, s2))

	o1 := &models.Order{MerchantID: "m1", SessionID: s1.ID}
	o2 := &models.Order{MerchantID: "m1", SessionID: s2.ID, Status: models.OrderDelivered}
	require.NoError(t, store.CreateOrder(ctx, o1))
	require.NoError(t, store.CreateOrder(ctx, o2))

	all, err := store.ListOrders(ctx, "m1", models.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	delivered, err := store.ListOrders(ctx, "m1", models.OrderFilter{Status: models.OrderDelivered})
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, o2.ID, delivered[0].ID)

	byPhone, err := store.ListOrders(ctx, "m1", models.OrderFilter{Phone: "1112233"})
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	assert.Equal(t, o1.ID, byPhone[0].ID)
}

func TestMemoryStore_ReplaceBusinessHoursRejectsRepeatedDay(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.ReplaceBusinessHours(ctx, "m1", []*models.BusinessHours{
		{DayOfWeek: models.Monday, IsEnabled: true, OpenTime: "09:00", CloseTime: "18:00"},
		{DayOfWeek: models.Monday, IsEnabled: true, OpenTime: "10:00", CloseTime: "12:00"},
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, store.ReplaceBusinessHours(ctx, "m1", []*models.BusinessHours{
		{DayOfWeek: models.Monday, IsEnabled: true, OpenTime: "09:00", CloseTime: "18:00"},
	}))
	rows, err := store.GetBusinessHours(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m1", rows[0].MerchantID)
}
