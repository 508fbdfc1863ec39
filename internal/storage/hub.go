package storage

import (
	"context"
	"slices"
	"sync"

	"tableorder/internal/models"
)

// LocalHub is an in-process Notifier. Every event published is delivered
// synchronously to every connected listener, including the publisher's own
// adapter, which drops it by origin.
type LocalHub struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]func(*models.StorageChangedEvent)
}

func NewLocalHub() *LocalHub {
	return &LocalHub{listeners: make(map[uint64]func(*models.StorageChangedEvent))}
}

func (h *LocalHub) Publish(_ context.Context, event *models.StorageChangedEvent) error {
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	fns := make([]func(*models.StorageChangedEvent), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, h.listeners[id])
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		e := *event
		fn(&e)
	}
	return nil
}

// Connect registers fn without blocking and returns its detach function.
func (h *LocalHub) Connect(fn func(*models.StorageChangedEvent)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

func (h *LocalHub) Listen(ctx context.Context, fn func(*models.StorageChangedEvent)) error {
	detach := h.Connect(fn)
	defer detach()
	<-ctx.Done()
	return ctx.Err()
}

func (h *LocalHub) Close() error {
	h.mu.Lock()
	h.listeners = make(map[uint64]func(*models.StorageChangedEvent))
	h.mu.Unlock()
	return nil
}

