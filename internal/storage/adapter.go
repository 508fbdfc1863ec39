package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"tableorder/internal/models"
	"tableorder/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type subscription struct {
	id      uint64
	handler Handler
}

// Adapter reads and writes collections and fans out change notifications
// per key. One Adapter stands for one node (one open view of the storage).
type Adapter struct {
	backend  Backend
	notifier Notifier
	origin   string
	logger   *zap.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

// NewAdapter creates an adapter. notifier may be nil, in which case writes
// are only announced to subscribers of this adapter.
func NewAdapter(backend Backend, notifier Notifier) *Adapter {
	return &Adapter{
		backend:  backend,
		notifier: notifier,
		origin:   util.GenerateID("node"),
		logger:   util.GetLogger(),
		subs:     make(map[string][]subscription),
	}
}

// Origin identifies this adapter in the change events it publishes.
func (a *Adapter) Origin() string {
	return a.origin
}

// Load decodes the value stored under key into dst. It reports false when
// the key is absent or holds data that does not decode; dst must then be
// treated as empty. Only backend failures are returned as errors.
func (a *Adapter) Load(ctx context.Context, key string, dst any) (bool, error) {
	data, err := a.backend.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		util.StorageLoadFailuresTotal.WithLabelValues(key, "backend").Inc()
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, nil
	}

	if err := json.Unmarshal(trimmed, dst); err != nil {
		util.StorageLoadFailuresTotal.WithLabelValues(key, "malformed").Inc()
		a.logger.Warn("Malformed stored value, treating as empty",
			zap.String("key", key),
			zap.Error(err))
		return false, nil
	}
	return true, nil
}

// LoadSlice loads a collection, returning an empty slice when the key is
// absent or malformed.
func LoadSlice[T any](ctx context.Context, a *Adapter, key string) ([]T, error) {
	var items []T
	ok, err := a.Load(ctx, key, &items)
	if err != nil {
		return []T{}, err
	}
	if !ok || items == nil {
		return []T{}, nil
	}
	return items, nil
}

// Save writes v under key, then notifies local subscribers of key and
// publishes the change to other nodes. A failed publish is logged; the
// write itself stands.
func (a *Adapter) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	if err := a.backend.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	util.StorageWritesTotal.WithLabelValues(key).Inc()

	a.dispatch(key, "local")

	if a.notifier != nil {
		event := &models.StorageChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStorageChanged,
				Timestamp: time.Now().UTC(),
			},
			Key:    key,
			Origin: a.origin,
		}
		if err := a.notifier.Publish(ctx, event); err != nil {
			a.logger.Warn("Failed to publish storage change",
				zap.String("key", key),
				zap.Error(err))
		}
	}

	return nil
}

// Subscribe registers h for changes of key and returns the function that
// removes it. Calling the returned function more than once is harmless.
func (a *Adapter) Subscribe(key string, h Handler) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[key] = append(a.subs[key], subscription{id: id, handler: h})
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			subs := a.subs[key]
			for i, s := range subs {
				if s.id == id {
					a.subs[key] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(a.subs[key]) == 0 {
				delete(a.subs, key)
			}
		})
	}
}

// HandleRemote dispatches a change announced by another node. Events this
// adapter published itself are ignored; its subscribers already saw them.
func (a *Adapter) HandleRemote(event *models.StorageChangedEvent) {
	if event == nil {
		return
	}
	if event.EventType == models.EventTypeStorageResync {
		a.RefreshAll()
		return
	}
	if event.Key == "" || event.Origin == a.origin {
		return
	}
	a.dispatch(event.Key, "remote")
}

// RefreshAll dispatches every subscribed key as changed. It is used after a
// notifier gap, when remote changes may have been lost.
func (a *Adapter) RefreshAll() {
	a.mu.RLock()
	keys := make([]string, 0, len(a.subs))
	for key := range a.subs {
		keys = append(keys, key)
	}
	a.mu.RUnlock()

	slices.Sort(keys)
	for _, key := range keys {
		a.dispatch(key, "resync")
	}
}

// ResyncEvent builds the event a Notifier hands to Listen callbacks after
// reconnecting.
func ResyncEvent() *models.StorageChangedEvent {
	return &models.StorageChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeStorageResync,
			Timestamp: time.Now().UTC(),
		},
	}
}

// Listen pumps change events from the notifier until ctx is done.
func (a *Adapter) Listen(ctx context.Context) error {
	if a.notifier == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return a.notifier.Listen(ctx, a.HandleRemote)
}

func (a *Adapter) dispatch(key, source string) {
	a.mu.RLock()
	subs := make([]subscription, len(a.subs[key]))
	copy(subs, a.subs[key])
	a.mu.RUnlock()

	util.ChangeNotificationsTotal.WithLabelValues(key, source).Inc()

	for _, s := range subs {
		s.handler(key)
	}
}
