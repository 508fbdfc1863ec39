package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tableorder/internal/models"
	"tableorder/internal/storage"
	"tableorder/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const changesChannel = "storage:changes"

// Client stores collections as Redis strings and carries change events over
// Redis Pub/Sub. It is both a storage.Backend and a storage.Notifier.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, logger: util.GetLogger()}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection. It is safe to call more than once
// since the same client may serve as backend and notifier.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rdb.Close()
	})
	return c.closeErr
}

func storageKey(key string) string {
	return fmt.Sprintf("storage:%s", key)
}

// Get returns the JSON text stored under key
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, storageKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set overwrites the JSON text stored under key
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	if err := c.rdb.Set(ctx, storageKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Publish announces a change on the changes channel
func (c *Client) Publish(ctx context.Context, event *models.StorageChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.rdb.Publish(ctx, changesChannel, payload).Err()
}

// Listen subscribes to the changes channel until ctx is done. Every
// (re)subscription is followed by a resync, since messages published while
// the connection was down are not redelivered.
func (c *Client) Listen(ctx context.Context, fn func(*models.StorageChangedEvent)) error {
	sub := c.rdb.Subscribe(ctx, changesChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe failed: %w", err)
	}
	fn(storage.ResyncEvent())

	ch := sub.ChannelWithSubscriptions(ctx, 100)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			switch m := msg.(type) {
			case *redis.Subscription:
				if m.Kind == "subscribe" {
					c.logger.Info("Redis subscription restored, resyncing")
					fn(storage.ResyncEvent())
				}
			case *redis.Message:
				var event models.StorageChangedEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					c.logger.Warn("Dropping malformed change event", zap.Error(err))
					continue
				}
				fn(&event)
			}
		}
	}
}
