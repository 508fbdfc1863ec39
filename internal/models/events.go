package models

import "time"

// Event types
const (
	EventTypeStorageChanged = "STORAGE_CHANGED"
	// EventTypeStorageResync tells a node that changes may have been missed
	// and every followed key must be re-read.
	EventTypeStorageResync = "STORAGE_RESYNC"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StorageChangedEvent announces that a collection key was rewritten.
// It carries no data; receivers re-read the key.
type StorageChangedEvent struct {
	BaseEvent
	Key    string `json:"key"`
	Origin string `json:"origin"`
}
