// Package collection implements the store shape shared by products, carts
// and orders: an in-memory slice mirrored to one storage key, rewritten
// whole on every change and re-read whenever the key changes.
package collection

import (
	"context"
	"fmt"
	"sync"

	"tableorder/internal/storage"
	"tableorder/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Cloner is implemented by values that can hand out independent copies.
type Cloner[T any] interface {
	Clone() T
}

// MutateFunc receives a private copy of the current items and returns the
// new items and whether anything changed. Returning false skips the write.
type MutateFunc[T any] func(items []T) ([]T, bool)

type listener struct {
	id uint64
	fn func()
}

// Collection mirrors the slice stored under one key.
type Collection[T Cloner[T]] struct {
	adapter *storage.Adapter
	key     string
	logger  *zap.Logger

	writeMu sync.Mutex

	mu        sync.RWMutex
	items     []T
	nextID    uint64
	listeners []listener

	unsubscribe func()
}

// New loads key from the adapter and starts following its changes.
// Backend errors on the first load are returned; malformed data is not.
func New[T Cloner[T]](ctx context.Context, adapter *storage.Adapter, key string) (*Collection[T], error) {
	items, err := storage.LoadSlice[T](ctx, adapter, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}

	c := &Collection[T]{
		adapter: adapter,
		key:     key,
		logger:  util.GetLogger(),
		items:   items,
	}
	c.unsubscribe = adapter.Subscribe(key, c.onChange)
	return c, nil
}

// Items returns a deep copy of the current items in stored order.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.items)
}

// Len returns the number of items.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Find returns a copy of the first item matching match.
func (c *Collection[T]) Find(match func(T) bool) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if match(it) {
			return it.Clone(), true
		}
	}
	var zero T
	return zero, false
}

// Mutate applies fn to a copy of the current items and, if fn reports a
// change, persists the whole collection. Subscribers are notified only after
// the write. Concurrent writers from other nodes are not merged: the last
// whole-collection write wins.
func (c *Collection[T]) Mutate(ctx context.Context, fn MutateFunc[T]) error {
	ctx, span := util.StartSpan(ctx, "Collection.Mutate", attribute.String("storage.key", c.key))
	defer span.End()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	next, changed := fn(c.Items())
	if !changed {
		return nil
	}
	if next == nil {
		next = []T{}
	}

	c.mu.Lock()
	prev := c.items
	c.items = cloneAll(next)
	c.mu.Unlock()

	// Save dispatches to onChange, which re-reads and notifies listeners.
	if err := c.adapter.Save(ctx, c.key, next); err != nil {
		c.mu.Lock()
		c.items = prev
		c.mu.Unlock()
		return err
	}
	return nil
}

// Refresh re-reads the collection from storage. On a backend failure the
// in-memory items are kept.
func (c *Collection[T]) Refresh(ctx context.Context) error {
	items, err := storage.LoadSlice[T](ctx, c.adapter, c.key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// Subscribe registers fn to run after every change of the collection and
// returns the function that removes it. fn runs on the writer's goroutine
// and must not call Mutate on the same collection.
func (c *Collection[T]) Subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// Close stops following storage changes.
func (c *Collection[T]) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

func (c *Collection[T]) onChange(key string) {
	if err := c.Refresh(context.Background()); err != nil {
		c.logger.Error("Failed to refresh collection",
			zap.String("key", key),
			zap.Error(err))
	}

	c.mu.RLock()
	ls := make([]listener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.RUnlock()

	for _, l := range ls {
		l.fn()
	}
}

func cloneAll[T Cloner[T]](items []T) []T {
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
