package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"tableorder/internal/cart"
	"tableorder/internal/catalog"
	"tableorder/internal/models"
	"tableorder/internal/orders"
	"tableorder/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc     *OrderService
	catalog *catalog.Store
	orders  *orders.Store
	cart    *cart.Store
}

func newFixture(t *testing.T, initial models.OrderStatus) *fixture {
	t.Helper()
	ctx := context.Background()
	adapter := storage.NewAdapter(storage.NewMemoryBackend(), nil)

	seed, err := catalog.DefaultSeed()
	require.NoError(t, err)
	cat, err := catalog.NewStore(ctx, adapter, seed)
	require.NoError(t, err)
	ord, err := orders.NewStore(ctx, adapter)
	require.NoError(t, err)
	c, err := cart.NewSessionStore(ctx)
	require.NoError(t, err)

	svc, err := NewOrderService(cat, ord, initial)
	require.NoError(t, err)

	return &fixture{svc: svc, catalog: cat, orders: ord, cart: c}
}

func TestNewOrderServiceRejectsUnknownStatus(t *testing.T) {
	_, err := NewOrderService(nil, nil, "Queued")
	assert.ErrorIs(t, err, orders.ErrInvalidStatus)
}

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.OrderStatusPreparing)

	f.cart.SetTable("4")
	require.NoError(t, f.svc.AddProductToCart(ctx, f.cart, "PROD-002"))
	require.NoError(t, f.svc.AddProductToCart(ctx, f.cart, "PROD-002"))

	resp, err := f.svc.PlaceOrder(ctx, "t1", f.cart, "  less spicy  ")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.OrderID, "ORD-"))
	assert.Equal(t, "4", resp.Table)
	assert.Equal(t, 360.0, resp.Total)
	assert.Equal(t, "less spicy", resp.Notes)
	assert.Equal(t, models.OrderStatusPreparing, resp.Status)

	assert.True(t, f.cart.Empty())
	assert.Equal(t, "4", f.cart.Table())

	o, ok := f.orders.Get(resp.OrderID)
	require.True(t, ok)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Qty)

	tracked, err := f.svc.LatestOrder(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, resp.OrderID, tracked.Order.ID)
	assert.Equal(t, 360.0, tracked.Total)
	assert.Equal(t, 1, tracked.Step)
}

func TestPlaceOrderBlocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.OrderStatusPreparing)

	_, err := f.svc.PlaceOrder(ctx, "t1", f.cart, "")
	assert.ErrorIs(t, err, ErrTableRequired)

	f.cart.SetTable("4")
	_, err = f.svc.PlaceOrder(ctx, "t1", f.cart, "")
	assert.ErrorIs(t, err, ErrCartEmpty)

	require.NoError(t, f.svc.AddProductToCart(ctx, f.cart, "PROD-001"))
	f.cart.SetTable("")
	_, err = f.svc.PlaceOrder(ctx, "t1", f.cart, "")
	assert.ErrorIs(t, err, ErrTableRequired)
	assert.False(t, f.cart.Empty())

	assert.Empty(t, f.orders.List())
}

func TestOrderSurvivesLaterProductEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.OrderStatusPreparing)

	f.cart.SetTable("2")
	require.NoError(t, f.svc.AddProductToCart(ctx, f.cart, "PROD-001"))
	resp, err := f.svc.PlaceOrder(ctx, "t1", f.cart, "")
	require.NoError(t, err)

	price := 500.0
	require.NoError(t, f.catalog.Update(ctx, "PROD-001", models.ProductPatch{Price: &price}))

	o, _ := f.orders.Get(resp.OrderID)
	assert.Equal(t, float64(220), o.Items[0].Price)
}

func TestAddProductToCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.OrderStatusPreparing)

	assert.ErrorIs(t, f.svc.AddProductToCart(ctx, f.cart, "PROD-404"), catalog.ErrNotFound)

	require.NoError(t, f.catalog.ToggleAvailability(ctx, "PROD-003"))
	assert.ErrorIs(t, f.svc.AddProductToCart(ctx, f.cart, "PROD-003"), cart.ErrUnavailable)
	assert.True(t, f.cart.Empty())
}

func TestAddProductGeneratesID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.OrderStatusPreparing)

	p, err := f.svc.AddProduct(ctx, models.Product{Name: "Masala Chai", Price: 40, Available: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.ID, "PROD-"))

	got, ok := f.catalog.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, "Masala Chai", got.Name)
}

func TestLatestOrderIsPerSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.OrderStatusPreparing)

	f.cart.SetTable("4")
	require.NoError(t, f.svc.AddProductToCart(ctx, f.cart, "PROD-001"))
	resp, err := f.svc.PlaceOrder(ctx, "t1", f.cart, "")
	require.NoError(t, err)

	tracked, err := f.svc.LatestOrder(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, resp.OrderID, tracked.Order.ID)

	_, err = f.svc.LatestOrder(ctx, "t2")
	assert.ErrorIs(t, err, ErrNoOrder)
}

func TestLatestOrderWithoutOrders(t *testing.T) {
	f := newFixture(t, models.OrderStatusPreparing)

	_, err := f.svc.LatestOrder(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrNoOrder)
}

// Orders placed with the default initial status never show up in the
// pending feed; configuring Pending makes them visible.
func TestInitialStatusAndFeed(t *testing.T) {
	ctx := context.Background()

	preparing := newFixture(t, models.OrderStatusPreparing)
	preparing.cart.SetTable("1")
	require.NoError(t, preparing.svc.AddProductToCart(ctx, preparing.cart, "PROD-001"))
	_, err := preparing.svc.PlaceOrder(ctx, "t1", preparing.cart, "")
	require.NoError(t, err)
	assert.Zero(t, preparing.svc.Feed().Count())

	pending := newFixture(t, models.OrderStatusPending)
	pending.cart.SetTable("1")
	require.NoError(t, pending.svc.AddProductToCart(ctx, pending.cart, "PROD-001"))
	_, err = pending.svc.PlaceOrder(ctx, "t1", pending.cart, "")
	require.NoError(t, err)
	assert.Equal(t, 1, pending.svc.Feed().Count())
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.OrderStatusPending)

	f.cart.SetTable("3")
	for i := 0; i < 2; i++ {
		require.NoError(t, f.svc.AddProductToCart(ctx, f.cart, "PROD-001"))
		_, err := f.svc.PlaceOrder(ctx, "t1", f.cart, "")
		require.NoError(t, err)
	}
	first := f.orders.List()[0]
	require.NoError(t, f.orders.UpdateOrderStatus(ctx, first.ID, models.OrderStatusServed))

	stats := f.svc.Dashboard()
	assert.Equal(t, DashboardStats{Products: 10, Orders: 2, ActiveOrders: 1, PendingOrders: 1}, stats)
}

func TestCartSessions(t *testing.T) {
	ctx := context.Background()
	sessions := NewCartSessions()
	defer sessions.Close()

	a, err := sessions.Get(ctx, "a")
	require.NoError(t, err)
	again, err := sessions.Get(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, a, again)

	b, err := sessions.Get(ctx, "b")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	a.SetTable("9")
	sessions.Drop("a")
	fresh, err := sessions.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "", fresh.Table())
}

func TestCartSessionsEvictIdle(t *testing.T) {
	ctx := context.Background()
	sessions := NewCartSessions()
	defer sessions.Close()

	clock := time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return clock }

	idle, err := sessions.Get(ctx, "idle")
	require.NoError(t, err)
	idle.SetTable("3")
	_, err = sessions.Get(ctx, "busy")
	require.NoError(t, err)

	clock = clock.Add(90 * time.Minute)
	_, err = sessions.Get(ctx, "busy")
	require.NoError(t, err)

	clock = clock.Add(40 * time.Minute)
	assert.Equal(t, 1, sessions.EvictIdle(2*time.Hour))
	assert.Equal(t, 1, sessions.Len())

	fresh, err := sessions.Get(ctx, "idle")
	require.NoError(t, err)
	assert.NotSame(t, idle, fresh)
	assert.Equal(t, "", fresh.Table())

	assert.Zero(t, sessions.EvictIdle(2*time.Hour))
}

func TestCartSessionsRunStopsWithContext(t *testing.T) {
	sessions := NewCartSessions()
	defer sessions.Close()

	_, err := sessions.Get(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sessions.Run(ctx, time.Nanosecond, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sessions.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session janitor did not stop")
	}
}
