// Package cart holds a table's in-progress selection. A cart belongs to one
// session and is never shared with other nodes.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tableorder/internal/collection"
	"tableorder/internal/models"
	"tableorder/internal/storage"
	"tableorder/internal/util"
)

var (
	ErrUnavailable = errors.New("product is unavailable")
	ErrNotInCart   = errors.New("product not in cart")
)

type Store struct {
	lines *collection.Collection[models.CartLine]

	mu        sync.RWMutex
	table     string
	nextID    uint64
	listeners map[uint64]func()

	unsubscribe func()
}

// NewStore builds a cart over adapter. Use NewSessionStore for a cart that
// lives only in this process.
func NewStore(ctx context.Context, adapter *storage.Adapter) (*Store, error) {
	lines, err := collection.New[models.CartLine](ctx, adapter, models.KeyCart)
	if err != nil {
		return nil, err
	}
	s := &Store{
		lines:     lines,
		listeners: make(map[uint64]func()),
	}
	s.unsubscribe = lines.Subscribe(s.notify)
	return s, nil
}

// NewSessionStore builds a cart backed by private in-memory storage.
func NewSessionStore(ctx context.Context) (*Store, error) {
	return NewStore(ctx, storage.NewAdapter(storage.NewMemoryBackend(), nil))
}

// SetTable replaces the table number. The value is taken as given.
func (s *Store) SetTable(value string) {
	s.mu.Lock()
	if s.table == value {
		s.mu.Unlock()
		return
	}
	s.table = value
	s.mu.Unlock()

	util.CartOperationsTotal.WithLabelValues("set_table").Inc()
	s.notify()
}

func (s *Store) Table() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// AddToCart adds one unit of p. A product already in the cart has its
// quantity incremented; otherwise a copy of p is appended with qty 1.
func (s *Store) AddToCart(ctx context.Context, p models.Product) error {
	if !p.Available {
		return fmt.Errorf("%w: %s", ErrUnavailable, p.ID)
	}

	err := s.lines.Mutate(ctx, func(lines []models.CartLine) ([]models.CartLine, bool) {
		for i := range lines {
			if lines[i].ID == p.ID {
				lines[i].Qty++
				return lines, true
			}
		}
		return append(lines, models.CartLine{Product: p.Clone(), Qty: 1}), true
	})
	if err != nil {
		return err
	}

	util.CartOperationsTotal.WithLabelValues("add").Inc()
	return nil
}

// UpdateQuantity sets the quantity of the line for id. A quantity below 1
// removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, id string, qty int) error {
	found := false
	err := s.lines.Mutate(ctx, func(lines []models.CartLine) ([]models.CartLine, bool) {
		for i := range lines {
			if lines[i].ID != id {
				continue
			}
			found = true
			if qty < 1 {
				return append(lines[:i], lines[i+1:]...), true
			}
			if lines[i].Qty == qty {
				return lines, false
			}
			lines[i].Qty = qty
			return lines, true
		}
		return lines, false
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotInCart, id)
	}

	util.CartOperationsTotal.WithLabelValues("update_quantity").Inc()
	return nil
}

// RemoveFromCart drops the line for id if there is one.
func (s *Store) RemoveFromCart(ctx context.Context, id string) error {
	err := s.lines.Mutate(ctx, func(lines []models.CartLine) ([]models.CartLine, bool) {
		for i := range lines {
			if lines[i].ID == id {
				return append(lines[:i], lines[i+1:]...), true
			}
		}
		return lines, false
	})
	if err != nil {
		return err
	}

	util.CartOperationsTotal.WithLabelValues("remove").Inc()
	return nil
}

// ClearCart empties the lines. The table is kept.
func (s *Store) ClearCart(ctx context.Context) error {
	err := s.lines.Mutate(ctx, func(lines []models.CartLine) ([]models.CartLine, bool) {
		return []models.CartLine{}, len(lines) > 0
	})
	if err != nil {
		return err
	}

	util.CartOperationsTotal.WithLabelValues("clear").Inc()
	return nil
}

// Lines returns a copy of the cart lines in insertion order.
func (s *Store) Lines() []models.CartLine {
	return s.lines.Items()
}

func (s *Store) Empty() bool {
	return s.lines.Len() == 0
}

// TotalAmount is the sum of price*qty over all lines.
func (s *Store) TotalAmount() float64 {
	return models.LinesTotal(s.lines.Items()).InexactFloat64()
}

// ItemCount is the number of units in the cart.
func (s *Store) ItemCount() int {
	return models.LinesQty(s.lines.Items())
}

// Subscribe registers fn to run after every change of lines or table.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) Close() {
	s.unsubscribe()
	s.lines.Close()
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
