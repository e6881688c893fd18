package messaging

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-sync/internal/port"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisStreamBus_PublishSubscribe(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	topic := "test-stream-" + uuid.NewString()
	defer client.Del(context.Background(), topic)

	bus := NewRedisStreamBus(client, RedisStreamConfig{Block: 50 * time.Millisecond, RetryDelay: 10 * time.Millisecond}, nil)
	require.NoError(t, bus.Publish(context.Background(), topic, port.Message{ID: "a", Key: "S1:sku-1", Payload: []byte(`{"delta":1}`)}))

	c := &collector{failN: 1}
	stop := subscribe(t, bus, topic, "g1", c)
	defer stop()

	require.Eventually(t, func() bool { return len(c.delivered()) == 1 }, 5*time.Second, 10*time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, "a", c.ids[0])
	assert.Equal(t, []int{1, 2}, c.attempts)
}
