package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tableorder/internal/models"
	"tableorder/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, adapter *storage.Adapter) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), adapter)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func biryaniLine(qty int) models.CartLine {
	return models.CartLine{Product: models.Product{ID: "PROD-001", Name: "Chicken Biryani", Price: 220, Available: true}, Qty: qty}
}

func TestAddThenServe(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewAdapter(storage.NewMemoryBackend(), nil))

	require.NoError(t, s.AddOrder(ctx, models.Order{
		ID:     "ORD-1",
		Table:  "4",
		Items:  []models.CartLine{biryaniLine(1)},
		Status: models.OrderStatusPreparing,
	}))
	require.NoError(t, s.UpdateOrderStatus(ctx, "ORD-1", models.OrderStatusServed))

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, models.OrderStatusServed, list[0].Status)
	assert.Equal(t, []models.CartLine{biryaniLine(1)}, list[0].Items)
}

func TestAddOrderValidation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewAdapter(storage.NewMemoryBackend(), nil))
	items := []models.CartLine{biryaniLine(1)}

	assert.ErrorIs(t, s.AddOrder(ctx, models.Order{Table: "4", Items: items}), ErrMissingID)
	assert.ErrorIs(t, s.AddOrder(ctx, models.Order{ID: "ORD-1", Table: "4"}), ErrEmptyOrder)
	assert.ErrorIs(t, s.AddOrder(ctx, models.Order{ID: "ORD-1", Table: "  ", Items: items}), ErrMissingTable)
	assert.ErrorIs(t, s.AddOrder(ctx, models.Order{ID: "ORD-1", Table: "4", Items: items, Status: "Lost"}), ErrInvalidStatus)
	assert.Empty(t, s.List())

	require.NoError(t, s.AddOrder(ctx, models.Order{ID: "ORD-1", Table: "4", Items: items}))
	assert.ErrorIs(t, s.AddOrder(ctx, models.Order{ID: "ORD-1", Table: "5", Items: items}), ErrDuplicateID)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, models.OrderStatusPending, list[0].Status)
	assert.False(t, list[0].CreatedAt.IsZero())
}

func TestItemsAreSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewAdapter(storage.NewMemoryBackend(), nil))

	items := []models.CartLine{biryaniLine(2)}
	require.NoError(t, s.AddOrder(ctx, models.Order{ID: "ORD-1", Table: "4", Items: items}))

	items[0].Price = 999
	items[0].Qty = 9

	o, ok := s.Get("ORD-1")
	require.True(t, ok)
	assert.Equal(t, float64(220), o.Items[0].Price)
	assert.Equal(t, 2, o.Items[0].Qty)
	assert.Equal(t, 440.0, o.Total())
}

func TestStatusOverwriteIsUnconstrained(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewAdapter(storage.NewMemoryBackend(), nil))
	require.NoError(t, s.AddOrder(ctx, models.Order{ID: "ORD-1", Table: "4", Items: []models.CartLine{biryaniLine(1)}}))

	for _, st := range []models.OrderStatus{
		models.OrderStatusServed,
		models.OrderStatusPending,
		models.OrderStatusReady,
		models.OrderStatusCooking,
		models.OrderStatusPreparing,
	} {
		require.NoError(t, s.UpdateOrderStatus(ctx, "ORD-1", st))
		o, _ := s.Get("ORD-1")
		assert.Equal(t, st, o.Status)
	}

	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, "ORD-1", "Delivered"), ErrInvalidStatus)
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, "ORD-404", models.OrderStatusServed), ErrNotFound)
}

func TestCreatedAtIsISO8601(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	s := newStore(t, storage.NewAdapter(backend, nil))

	at := time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC)
	require.NoError(t, s.AddOrder(ctx, models.Order{ID: "ORD-1", Table: "4", Items: []models.CartLine{biryaniLine(1)}, CreatedAt: at}))

	raw, err := backend.Get(ctx, models.KeyOrders)
	require.NoError(t, err)

	var stored []map[string]any
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, "2024-03-09T18:30:00Z", stored[0]["createdAt"])
}

func TestReadsBrowserWrittenOrders(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	raw := `[{"id":"ORD-ABC","table":"7","items":[{"id":"PROD-002","name":"Paneer Butter Masala","price":180,"description":"Creamy & delicious","category":"Curry","image":"x","available":true,"qty":2}],"status":"Preparing","createdAt":"2024-03-09T18:30:00.000Z","notes":"less spicy"}]`
	require.NoError(t, backend.Set(ctx, models.KeyOrders, []byte(raw)))

	s := newStore(t, storage.NewAdapter(backend, nil))

	o, ok := s.Get("ORD-ABC")
	require.True(t, ok)
	assert.Equal(t, "7", o.Table)
	assert.Equal(t, 2, o.Items[0].Qty)
	assert.Equal(t, 360.0, o.Total())
	assert.Equal(t, "less spicy", o.Notes)
	assert.Equal(t, 2024, o.CreatedAt.Year())
}

func TestLastOrderID(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewAdapter(storage.NewMemoryBackend(), nil))

	id, err := s.LastOrderID(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "", id)

	require.NoError(t, s.SetLastOrderID(ctx, "", "ORD-9"))
	id, err = s.LastOrderID(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "ORD-9", id)
}

func TestLastOrderIDIsPerSession(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	s := newStore(t, storage.NewAdapter(backend, nil))

	require.NoError(t, s.SetLastOrderID(ctx, "alice", "ORD-A"))
	require.NoError(t, s.SetLastOrderID(ctx, "bob", "ORD-B"))

	id, err := s.LastOrderID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "ORD-A", id)

	id, err = s.LastOrderID(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "", id)

	raw, err := backend.Get(ctx, "lastOrderId:bob")
	require.NoError(t, err)
	assert.JSONEq(t, `"ORD-B"`, string(raw))
}

func TestAdminStatusReachesCustomerView(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	hub := storage.NewLocalHub()
	adminTab := storage.NewAdapter(backend, hub)
	customerTab := storage.NewAdapter(backend, hub)
	defer hub.Connect(adminTab.HandleRemote)()
	defer hub.Connect(customerTab.HandleRemote)()

	customer := newStore(t, customerTab)
	require.NoError(t, customer.AddOrder(ctx, models.Order{ID: "ORD-1", Table: "4", Items: []models.CartLine{biryaniLine(1)}, Status: models.OrderStatusPreparing}))

	admin := newStore(t, adminTab)
	require.Len(t, admin.List(), 1)

	var renders int
	customer.Subscribe(func() { renders++ })
	require.NoError(t, admin.UpdateOrderStatus(ctx, "ORD-1", models.OrderStatusReady))

	assert.Equal(t, 1, renders)
	o, _ := customer.Get("ORD-1")
	assert.Equal(t, models.OrderStatusReady, o.Status)
}

func TestFeedListsOnlyPending(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewAdapter(storage.NewMemoryBackend(), nil))
	feed := NewFeed(s)

	assert.Empty(t, feed.Pending())

	require.NoError(t, s.AddOrder(ctx, models.Order{ID: "ORD-1", Table: "4", Items: []models.CartLine{biryaniLine(2)}, Status: models.OrderStatusPending}))
	require.NoError(t, s.AddOrder(ctx, models.Order{ID: "ORD-2", Table: "5", Items: []models.CartLine{biryaniLine(1)}, Status: models.OrderStatusServed}))

	pending := feed.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "ORD-1", pending[0].ID)
	assert.Equal(t, 1, feed.Count())

	entries := feed.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 440.0, entries[0].Total)

	var wakeups int
	feed.Subscribe(func() { wakeups++ })
	require.NoError(t, s.UpdateOrderStatus(ctx, "ORD-1", models.OrderStatusPreparing))
	assert.Equal(t, 1, wakeups)
	assert.Zero(t, feed.Count())
}
