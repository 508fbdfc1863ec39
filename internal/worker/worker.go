package worker

import (
	"context"
	"errors"
	"time"

	"tableorder/internal/storage"
	"tableorder/internal/util"

	"go.uber.org/zap"
)

const defaultRetryDelay = 2 * time.Second

// ChangeWorker pumps change events from other nodes into a storage adapter
// so that its subscribers refresh when another node writes a key.
type ChangeWorker struct {
	adapter    *storage.Adapter
	notifier   storage.Notifier
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewChangeWorker creates a new change worker
func NewChangeWorker(adapter *storage.Adapter, notifier storage.Notifier) *ChangeWorker {
	return &ChangeWorker{
		adapter:    adapter,
		notifier:   notifier,
		retryDelay: defaultRetryDelay,
		logger:     util.GetLogger(),
	}
}

// Start listens until ctx is done. A listener that fails is restarted after
// a short delay, and every followed key is re-read so that changes published
// in between are not lost.
func (w *ChangeWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting change worker", zap.String("origin", w.adapter.Origin()))

	for {
		err := w.adapter.Listen(ctx)
		if ctx.Err() != nil {
			w.logger.Info("Change worker stopped")
			return ctx.Err()
		}
		if err == nil {
			err = errors.New("listener returned")
		}
		w.logger.Warn("Change listener failed, retrying",
			zap.Error(err),
			zap.Duration("delay", w.retryDelay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.retryDelay):
		}
		w.adapter.RefreshAll()
	}
}

// Stop closes the notifier
func (w *ChangeWorker) Stop() error {
	w.logger.Info("Stopping change worker...")
	if w.notifier == nil {
		return nil
	}
	return w.notifier.Close()
}
