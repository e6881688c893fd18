package port

import "context"

// Message is one entry of a topic log.
type Message struct {
	ID      string
	Key     string
	Payload []byte

	// Attempt is 1 on first delivery and grows on every redelivery
	Attempt int
}

// BatchHandler must return nil only once every message of the batch is handled;
// any error leaves the whole batch unacknowledged for redelivery.
type BatchHandler func(ctx context.Context, batch []Message) error

type EventPublisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

type EventSubscriber interface {
	// Subscribe blocks until ctx is done. At most one handler per group runs at a time.
	Subscribe(ctx context.Context, topic, group string, handler BatchHandler) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
}
