package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-sync/internal/port"
)

type collector struct {
	mu       sync.Mutex
	ids      []string
	attempts []int
	failN    int
}

func (c *collector) handle(ctx context.Context, batch []port.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range batch {
		c.attempts = append(c.attempts, m.Attempt)
	}
	if c.failN > 0 {
		c.failN--
		return errors.New("handler failed")
	}
	for _, m := range batch {
		c.ids = append(c.ids, m.ID)
	}
	return nil
}

func (c *collector) delivered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func subscribe(t *testing.T, bus port.EventSubscriber, topic, group string, c *collector) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, bus.Subscribe(ctx, topic, group, c.handle))
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestMemoryBus_DeliversInOrder(t *testing.T) {
	bus := NewMemoryBus(WithBatchSize(2))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(ctx, "topic", port.Message{ID: id}))
	}

	c := &collector{}
	stop := subscribe(t, bus, "topic", "g1", c)
	defer stop()

	require.NoError(t, bus.Publish(ctx, "topic", port.Message{ID: "d"}))

	require.Eventually(t, func() bool { return len(c.delivered()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c", "d"}, c.delivered())
}

func TestMemoryBus_GroupsAreIndependent(t *testing.T) {
	bus := NewMemoryBus()
	require.NoError(t, bus.Publish(context.Background(), "topic", port.Message{ID: "a"}))

	c1, c2 := &collector{}, &collector{}
	stop1 := subscribe(t, bus, "topic", "g1", c1)
	defer stop1()
	stop2 := subscribe(t, bus, "topic", "g2", c2)
	defer stop2()

	require.Eventually(t, func() bool {
		return len(c1.delivered()) == 1 && len(c2.delivered()) == 1
	}, time.Second, time.Millisecond)
}

func TestMemoryBus_RedeliversWithAttempt(t *testing.T) {
	bus := NewMemoryBus(WithRetryDelay(time.Millisecond))
	require.NoError(t, bus.Publish(context.Background(), "topic", port.Message{ID: "a"}))

	c := &collector{failN: 2}
	stop := subscribe(t, bus, "topic", "g1", c)
	defer stop()

	require.Eventually(t, func() bool { return len(c.delivered()) == 1 }, time.Second, time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, c.attempts)
}

func TestMemoryBus_AssignsIDs(t *testing.T) {
	bus := NewMemoryBus()
	require.NoError(t, bus.Publish(context.Background(), "topic", port.Message{Payload: []byte("x")}))

	msgs := bus.Messages("topic")
	require.Len(t, msgs, 1)
	assert.NotEmpty(t, msgs[0].ID)
	assert.Equal(t, 1, bus.Len("topic"))
	assert.Zero(t, bus.Len("other"))
}

func TestMemoryBus_PublishCanceled(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, bus.Publish(ctx, "topic", port.Message{}), context.Canceled)
}
