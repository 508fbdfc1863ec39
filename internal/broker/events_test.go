package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tableorder/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageDecodesChanges(t *testing.T) {
	event := models.StorageChangedEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeStorageChanged, Timestamp: time.Now().UTC()},
		Key:       models.KeyOrders,
		Origin:    "node-a",
	}
	value, err := json.Marshal(event)
	require.NoError(t, err)

	var got *models.StorageChangedEvent
	handler := HandleMessage(func(e *models.StorageChangedEvent) { got = e })

	require.NoError(t, handler(context.Background(), kafka.Message{Key: []byte(event.Key), Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, models.KeyOrders, got.Key)
	assert.Equal(t, "node-a", got.Origin)
}

func TestHandleMessageSkipsOtherEvents(t *testing.T) {
	called := false
	handler := HandleMessage(func(*models.StorageChangedEvent) { called = true })

	err := handler(context.Background(), kafka.Message{Value: []byte(`{"event_type":"ORDER_CREATED"}`)})
	assert.NoError(t, err)
	assert.False(t, called)

	err = handler(context.Background(), kafka.Message{Value: []byte(`not json`)})
	assert.Error(t, err)
	assert.False(t, called)
}
