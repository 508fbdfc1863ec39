package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"tableorder/internal/models"

	"github.com/segmentio/kafka-go"
)

// Notifier carries storage change events over a Kafka topic. Each node must
// consume with its own group id so that every node sees every event.
type Notifier struct {
	producer *Producer
	consumer *Consumer
}

// NewNotifier creates a notifier on topic for the node identified by groupID
func NewNotifier(brokers []string, topic, groupID string) *Notifier {
	return &Notifier{
		producer: NewProducer(brokers, topic),
		consumer: NewConsumer(brokers, topic, groupID),
	}
}

// Publish publishes a StorageChanged event keyed by the collection key
func (n *Notifier) Publish(ctx context.Context, event *models.StorageChangedEvent) error {
	return n.producer.PublishEvent(ctx, event.Key, event)
}

// Listen consumes change events until ctx is done
func (n *Notifier) Listen(ctx context.Context, fn func(*models.StorageChangedEvent)) error {
	return n.consumer.StartConsuming(ctx, HandleMessage(fn))
}

// Close closes producer and consumer
func (n *Notifier) Close() error {
	perr := n.producer.Close()
	cerr := n.consumer.Close()
	if perr != nil {
		return perr
	}
	return cerr
}

// HandleMessage decodes StorageChanged events and passes them to fn. Other
// event types on the topic are ignored.
func HandleMessage(fn func(*models.StorageChangedEvent)) MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var base models.BaseEvent
		if err := json.Unmarshal(msg.Value, &base); err != nil {
			return fmt.Errorf("failed to unmarshal base event: %w", err)
		}
		if base.EventType != models.EventTypeStorageChanged {
			return nil
		}

		var event models.StorageChangedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal StorageChanged event: %w", err)
		}
		fn(&event)
		return nil
	}
}
