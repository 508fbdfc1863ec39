// Package orders owns submitted orders and their status.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tableorder/internal/collection"
	"tableorder/internal/models"
	"tableorder/internal/storage"
	"tableorder/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrDuplicateID   = errors.New("order id already exists")
	ErrMissingID     = errors.New("order id is required")
	ErrEmptyOrder    = errors.New("order has no items")
	ErrMissingTable  = errors.New("order table is required")
	ErrInvalidStatus = errors.New("unknown order status")
)

// Store is the order history of one node.
type Store struct {
	orders  *collection.Collection[models.Order]
	adapter *storage.Adapter
	logger  *zap.Logger
}

func NewStore(ctx context.Context, adapter *storage.Adapter) (*Store, error) {
	orders, err := collection.New[models.Order](ctx, adapter, models.KeyOrders)
	if err != nil {
		return nil, err
	}
	return &Store{
		orders:  orders,
		adapter: adapter,
		logger:  util.GetLogger(),
	}, nil
}

// AddOrder appends a snapshot of o. An empty status means Pending and a
// zero CreatedAt means now.
func (s *Store) AddOrder(ctx context.Context, o models.Order) error {
	ctx, span := util.StartSpan(ctx, "Orders.AddOrder")
	defer span.End()

	if o.ID == "" {
		return ErrMissingID
	}
	if len(o.Items) == 0 {
		return ErrEmptyOrder
	}
	if strings.TrimSpace(o.Table) == "" {
		return ErrMissingTable
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, o.Status)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	snapshot := o.Clone()
	dup := false
	err := s.orders.Mutate(ctx, func(orders []models.Order) ([]models.Order, bool) {
		for _, existing := range orders {
			if existing.ID == snapshot.ID {
				dup = true
				return orders, false
			}
		}
		return append(orders, snapshot), true
	})
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("%w: %s", ErrDuplicateID, o.ID)
	}

	s.logger.Info("Order added",
		zap.String("order_id", o.ID),
		zap.String("table", o.Table),
		zap.String("status", string(o.Status)),
		zap.Int("items", len(o.Items)))
	return nil
}

// UpdateOrderStatus overwrites the status of the order with id. Any known
// status may follow any other; no sequence is enforced.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	ctx, span := util.StartSpan(ctx, "Orders.UpdateOrderStatus",
		attribute.String("order.id", id),
		attribute.String("order.status", string(status)))
	defer span.End()

	if !status.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	found := false
	var previous models.OrderStatus
	err := s.orders.Mutate(ctx, func(orders []models.Order) ([]models.Order, bool) {
		for i := range orders {
			if orders[i].ID == id {
				found = true
				previous = orders[i].Status
				orders[i].Status = status
				return orders, true
			}
		}
		return orders, false
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	util.OrderStatusChangesTotal.WithLabelValues(string(status)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", id),
		zap.String("from", string(previous)),
		zap.String("to", string(status)))
	return nil
}

// List returns every order in insertion order.
func (s *Store) List() []models.Order {
	return s.orders.Items()
}

func (s *Store) Get(id string) (models.Order, bool) {
	return s.orders.Find(func(o models.Order) bool { return o.ID == id })
}

// SetLastOrderID records the order the tracking view of session follows.
func (s *Store) SetLastOrderID(ctx context.Context, session, id string) error {
	return s.adapter.Save(ctx, models.LastOrderIDKey(session), id)
}

// LastOrderID returns the order id recorded for session, or "" when none is.
func (s *Store) LastOrderID(ctx context.Context, session string) (string, error) {
	var id string
	if _, err := s.adapter.Load(ctx, models.LastOrderIDKey(session), &id); err != nil {
		return "", err
	}
	return id, nil
}

// Subscribe registers fn to run after every change to the order list.
func (s *Store) Subscribe(fn func()) func() {
	return s.orders.Subscribe(fn)
}

func (s *Store) Close() {
	s.orders.Close()
}
