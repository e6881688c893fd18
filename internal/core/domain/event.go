package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicInventoryEvents     = "inventory-events"
	TopicInventoryAlerts     = "inventory-alerts"
	TopicStoreEvents         = "store-events"
	TopicInventoryDeadLetter = "inventory-events.dlq"
)

type EventType string

const (
	EventTypeUpdate        EventType = "UPDATE"
	EventTypeLowStockAlert EventType = "LOW_STOCK_ALERT"
)

// ChangeEvent carries a signed delta for one (store, product) key.
// Quantity is the resulting on-hand quantity at the time the event was produced.
type ChangeEvent struct {
	EventID    string     `json:"eventId"`
	StoreID    string     `json:"storeId"`
	ProductID  string     `json:"productId"`
	Delta      int        `json:"delta"`
	Quantity   int        `json:"quantity"`
	EventType  EventType  `json:"eventType"`
	CreatedAt  time.Time  `json:"createdAt"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
}

func NewChangeEvent(eventType EventType, storeID, productID string, delta, quantity int, now time.Time) ChangeEvent {
	return ChangeEvent{
		EventID:   uuid.NewString(),
		StoreID:   storeID,
		ProductID: productID,
		Delta:     delta,
		Quantity:  quantity,
		EventType: eventType,
		CreatedAt: now,
	}
}

func (e ChangeEvent) Key() Key {
	return Key{StoreID: e.StoreID, ProductID: e.ProductID}
}

type StoreEventType string

const (
	StoreCreated StoreEventType = "STORE_CREATED"
	StoreUpdated StoreEventType = "STORE_UPDATED"
	StoreDeleted StoreEventType = "STORE_DELETED"
)

type StoreEvent struct {
	EventID    string         `json:"eventId"`
	EventType  StoreEventType `json:"eventType"`
	StoreID    string         `json:"storeId"`
	OccurredAt time.Time      `json:"occurredAt"`
}
