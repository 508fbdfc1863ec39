package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tableorder/internal/models"
	"tableorder/internal/storage"
	"tableorder/internal/util"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const changesChannel = "storage_changes"

// Listener carries change events over Postgres LISTEN/NOTIFY. Publishing
// goes through the Store's connection pool; listening uses a dedicated
// pq.Listener connection.
type Listener struct {
	store    *Store
	listener *pq.Listener
	logger   *zap.Logger
}

// NewListener opens the LISTEN connection for databaseURL
func NewListener(store *Store, databaseURL string) (*Listener, error) {
	logger := util.GetLogger()
	l := pq.NewListener(databaseURL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Postgres listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := l.Listen(changesChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", changesChannel, err)
	}
	return &Listener{store: store, listener: l, logger: logger}, nil
}

// Publish sends the event with pg_notify
func (l *Listener) Publish(ctx context.Context, event *models.StorageChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = l.store.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", changesChannel, string(payload))
	return err
}

// Listen delivers notifications until ctx is done
func (l *Listener) Listen(ctx context.Context, fn func(*models.StorageChangedEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-l.listener.Notify:
			if !ok {
				return nil
			}
			// nil after a reconnect
			if n == nil {
				l.logger.Info("Postgres listener reconnected, resyncing")
				fn(storage.ResyncEvent())
				continue
			}
			var event models.StorageChangedEvent
			if err := json.Unmarshal([]byte(n.Extra), &event); err != nil {
				l.logger.Warn("Dropping malformed change event", zap.Error(err))
				continue
			}
			fn(&event)
		case <-time.After(90 * time.Second):
			go func() { _ = l.listener.Ping() }()
		}
	}
}

func (l *Listener) Close() error {
	return l.listener.Close()
}
