package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/inventory-sync/internal/port"
)

const (
	defaultBatchSize  = 32
	defaultRetryDelay = 500 * time.Millisecond
)

// MemoryBus is an in-process ordered log per topic with consumer-group cursors.
// The log is kept for the lifetime of the bus.
type MemoryBus struct {
	mu         sync.Mutex
	topics     map[string]*topicLog
	batchSize  int
	retryDelay time.Duration
}

type topicLog struct {
	messages []port.Message
	signal   chan struct{}
	groups   map[string]*groupCursor
}

type groupCursor struct {
	mu       sync.Mutex
	offset   int
	attempts map[string]int
}

type MemoryBusOption func(*MemoryBus)

func WithBatchSize(n int) MemoryBusOption {
	return func(b *MemoryBus) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

func WithRetryDelay(d time.Duration) MemoryBusOption {
	return func(b *MemoryBus) { b.retryDelay = d }
}

func NewMemoryBus(opts ...MemoryBusOption) *MemoryBus {
	b := &MemoryBus{
		topics:     make(map[string]*topicLog),
		batchSize:  defaultBatchSize,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBus) topic(name string) *topicLog {
	t, ok := b.topics[name]
	if !ok {
		t = &topicLog{signal: make(chan struct{}), groups: make(map[string]*groupCursor)}
		b.topics[name] = t
	}
	return t
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg port.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Attempt = 0

	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(topic)
	t.messages = append(t.messages, msg)
	close(t.signal)
	t.signal = make(chan struct{})
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic, group string, handler port.BatchHandler) error {
	b.mu.Lock()
	t := b.topic(topic)
	g, ok := t.groups[group]
	if !ok {
		g = &groupCursor{attempts: make(map[string]int)}
		t.groups[group] = g
	}
	b.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return nil
		}

		g.mu.Lock()
		batch, wait := b.next(t, g.offset)
		if len(batch) == 0 {
			g.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil
			case <-wait:
			}
			continue
		}

		for i := range batch {
			batch[i].Attempt = g.attempts[batch[i].ID] + 1
		}

		if err := handler(ctx, batch); err != nil {
			for _, m := range batch {
				g.attempts[m.ID]++
			}
			g.mu.Unlock()

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.retryDelay):
			}
			continue
		}

		for _, m := range batch {
			delete(g.attempts, m.ID)
		}
		g.offset += len(batch)
		g.mu.Unlock()
	}
}

func (b *MemoryBus) next(t *topicLog, offset int) ([]port.Message, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if offset >= len(t.messages) {
		return nil, t.signal
	}
	end := min(offset+b.batchSize, len(t.messages))
	batch := make([]port.Message, end-offset)
	copy(batch, t.messages[offset:end])
	return batch, nil
}

// Len returns the number of messages ever published to topic.
func (b *MemoryBus) Len(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[topic]; ok {
		return len(t.messages)
	}
	return 0
}

// Messages returns a copy of the log of topic.
func (b *MemoryBus) Messages(topic string) []port.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[topic]
	if !ok {
		return nil
	}
	out := make([]port.Message, len(t.messages))
	copy(out, t.messages)
	return out
}
