// Package storage is the single choke point between the stores and the
// shared key/value storage. It reads and writes JSON collections by key and
// tells every interested subscriber when a key was rewritten, whether the
// write happened on this node or, through a Notifier, on another one.
package storage

import (
	"context"
	"errors"

	"tableorder/internal/models"
)

// ErrKeyNotFound is returned by a Backend when nothing is stored under a key.
var ErrKeyNotFound = errors.New("storage: key not found")

// Backend is the per-origin key/value storage shared by all nodes.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Notifier carries change events between nodes sharing a Backend.
type Notifier interface {
	Publish(ctx context.Context, event *models.StorageChangedEvent) error
	// Listen blocks, calling fn for every event, until ctx is done or the
	// notifier is closed.
	Listen(ctx context.Context, fn func(*models.StorageChangedEvent)) error
	Close() error
}

// Handler is called with the key that changed.
type Handler func(key string)
