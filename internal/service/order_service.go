package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tableorder/internal/cart"
	"tableorder/internal/catalog"
	"tableorder/internal/models"
	"tableorder/internal/orders"
	"tableorder/internal/util"

	"go.uber.org/zap"
)

var (
	ErrTableRequired = errors.New("table number is required")
	ErrCartEmpty     = errors.New("cart is empty")
	ErrNoOrder       = errors.New("no order placed yet")
)

// OrderService handles the flows that span several stores
type OrderService struct {
	catalog       *catalog.Store
	orders        *orders.Store
	feed          *orders.Feed
	initialStatus models.OrderStatus
	logger        *zap.Logger
}

// NewOrderService creates a new order service. initialStatus is the status
// given to freshly placed orders.
func NewOrderService(catalog *catalog.Store, orderStore *orders.Store, initialStatus models.OrderStatus) (*OrderService, error) {
	if !initialStatus.Valid() {
		return nil, fmt.Errorf("%w: %s", orders.ErrInvalidStatus, initialStatus)
	}
	return &OrderService{
		catalog:       catalog,
		orders:        orderStore,
		feed:          orders.NewFeed(orderStore),
		initialStatus: initialStatus,
		logger:        util.GetLogger(),
	}, nil
}

// PlaceOrderResponse represents the response after placing an order
type PlaceOrderResponse struct {
	OrderID string             `json:"order_id"`
	Table   string             `json:"table"`
	Status  models.OrderStatus `json:"status"`
	Total   float64            `json:"total"`
	Notes   string             `json:"notes"`
}

// PlaceOrder turns the cart into an order, remembers it as the latest order
// of session and empties the cart. The table stays set for follow-up orders.
func (s *OrderService) PlaceOrder(ctx context.Context, session string, c *cart.Store, notes string) (*PlaceOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	table := c.Table()
	if strings.TrimSpace(table) == "" {
		return nil, ErrTableRequired
	}
	lines := c.Lines()
	if len(lines) == 0 {
		return nil, ErrCartEmpty
	}

	order := models.Order{
		ID:        util.GenerateID(models.OrderIDPrefix),
		Table:     table,
		Items:     lines,
		Status:    s.initialStatus,
		CreatedAt: time.Now().UTC(),
		Notes:     strings.TrimSpace(notes),
	}

	if err := s.orders.AddOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to add order: %w", err)
	}
	util.OrdersPlacedTotal.Inc()

	if err := s.orders.SetLastOrderID(ctx, session, order.ID); err != nil {
		s.logger.Error("Failed to record last order id",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	if err := c.ClearCart(ctx); err != nil {
		s.logger.Error("Failed to clear cart after checkout",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("table", table),
		zap.Float64("total", order.Total()))

	return &PlaceOrderResponse{
		OrderID: order.ID,
		Table:   table,
		Status:  order.Status,
		Total:   order.Total(),
		Notes:   order.Notes,
	}, nil
}

// AddProductToCart adds the catalog's current version of a product.
func (s *OrderService) AddProductToCart(ctx context.Context, c *cart.Store, productID string) error {
	p, ok := s.catalog.Get(productID)
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, productID)
	}
	return c.AddToCart(ctx, p)
}

// AddProduct adds an admin-created product, generating its id when missing.
func (s *OrderService) AddProduct(ctx context.Context, p models.Product) (models.Product, error) {
	if p.ID == "" {
		p.ID = util.GenerateID(models.ProductIDPrefix)
	}
	if err := s.catalog.Add(ctx, p); err != nil {
		return models.Product{}, err
	}
	return p, nil
}

// TrackedOrder is the customer's view of their latest order.
type TrackedOrder struct {
	Order models.Order `json:"order"`
	Total float64      `json:"total"`
	Step  int          `json:"step"`
}

// LatestOrder resolves the last order placed by session.
func (s *OrderService) LatestOrder(ctx context.Context, session string) (*TrackedOrder, error) {
	id, err := s.orders.LastOrderID(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to read last order id: %w", err)
	}
	if id == "" {
		return nil, ErrNoOrder
	}

	o, ok := s.orders.Get(id)
	if !ok || len(o.Items) == 0 {
		return nil, ErrNoOrder
	}

	return &TrackedOrder{
		Order: o,
		Total: o.Total(),
		Step:  o.Status.Step(),
	}, nil
}

// Feed returns the pending-orders notification feed.
func (s *OrderService) Feed() *orders.Feed {
	return s.feed
}

// DashboardStats summarises the admin overview.
type DashboardStats struct {
	Products      int `json:"products"`
	Orders        int `json:"orders"`
	ActiveOrders  int `json:"active_orders"`
	PendingOrders int `json:"pending_orders"`
}

func (s *OrderService) Dashboard() DashboardStats {
	all := s.orders.List()
	active := 0
	for _, o := range all {
		if !o.Status.Terminal() {
			active++
		}
	}
	return DashboardStats{
		Products:      len(s.catalog.List()),
		Orders:        len(all),
		ActiveOrders:  active,
		PendingOrders: s.feed.Count(),
	}
}
