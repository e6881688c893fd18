package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-sync/internal/core/domain"
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

func TestRedisCache_PutGet(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)

	// Setup
	client.Del(ctx, inventoryKey("test-store", "test-item"))

	rec := domain.InventoryRecord{StoreID: "test-store", ProductID: "test-item", Quantity: 7, LastUpdated: time.Now().UTC()}
	if err := adapter.Put(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify
	got, err := adapter.Get(ctx, "test-store", "test-item")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Quantity != 7 {
		t.Errorf("expected quantity 7, got %+v", got)
	}

	ttl := client.PTTL(ctx, inventoryKey("test-store", "test-item")).Val()
	if ttl <= 0 {
		t.Errorf("expected ttl to be set, got %v", ttl)
	}
}

func TestRedisCache_StaleWriteIgnored(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)
	client.Del(ctx, inventoryKey("test-store", "stale-item"))

	now := time.Now().UTC()
	newer := domain.InventoryRecord{StoreID: "test-store", ProductID: "stale-item", Quantity: 3, LastUpdated: now}
	older := domain.InventoryRecord{StoreID: "test-store", ProductID: "stale-item", Quantity: 9, LastUpdated: now.Add(-time.Second)}

	if err := adapter.Put(ctx, newer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := adapter.Put(ctx, older); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := adapter.Get(ctx, "test-store", "stale-item")
	if got == nil || got.Quantity != 3 {
		t.Errorf("expected newer quantity 3 to survive, got %+v", got)
	}
}

func TestRedisCache_MissAndInvalidate(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)

	rec := domain.InventoryRecord{StoreID: "test-store", ProductID: "gone-item", Quantity: 1, LastUpdated: time.Now()}
	adapter.Put(ctx, rec)

	if err := adapter.Invalidate(ctx, "test-store", "gone-item"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := adapter.Get(ctx, "test-store", "gone-item")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected miss, got %+v", got)
	}
}

func TestSetIdempotency_Success(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)

	key := "idempotency:test-event-1"
	client.Del(ctx, key)

	// First call should succeed
	ok, err := adapter.SetIdempotency(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first call to succeed")
	}

	// Second call should fail (duplicate)
	ok, err = adapter.SetIdempotency(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second call to fail")
	}

	// Clearing allows a retry to claim it again
	if err := adapter.ClearIdempotency(ctx, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, _ = adapter.SetIdempotency(ctx, key)
	if !ok {
		t.Error("expected claim after clear to succeed")
	}

	client.Del(ctx, key)
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)

	key := "idempotency:concurrent-event"
	client.Del(ctx, key)

	var wg sync.WaitGroup
	var successCount int32

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := adapter.SetIdempotency(ctx, key)
			if ok {
				atomic.AddInt32(&successCount, 1)
			}
		}()
	}

	wg.Wait()

	if successCount != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount)
	}

	client.Del(ctx, key)
}

func TestWatermark(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)
	client.Del(ctx, watermarkKeyPrefix+"test-store")

	mark, err := adapter.GetWatermark(ctx, "test-store", "sku-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mark != 0 {
		t.Errorf("expected zero watermark, got %d", mark)
	}

	adapter.SetWatermark(ctx, "test-store", "sku-1", 12)
	mark, _ = adapter.GetWatermark(ctx, "test-store", "sku-1")
	if mark != 12 {
		t.Errorf("expected watermark 12, got %d", mark)
	}

	client.Del(ctx, watermarkKeyPrefix+"test-store")
}

func TestClaimIdempotency_Expires(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)

	key := "idempotency:claim-event"
	client.Del(ctx, key)

	ok, err := adapter.ClaimIdempotency(ctx, key, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first claim to succeed")
	}

	held, _ := adapter.HasIdempotency(ctx, key)
	if !held {
		t.Error("expected claim to be visible")
	}
	ok, _ = adapter.ClaimIdempotency(ctx, key, 100*time.Millisecond)
	if ok {
		t.Error("expected second claim to fail while held")
	}

	time.Sleep(200 * time.Millisecond)

	held, _ = adapter.HasIdempotency(ctx, key)
	if held {
		t.Error("expected claim to expire")
	}
	ok, _ = adapter.ClaimIdempotency(ctx, key, time.Second)
	if !ok {
		t.Error("expected claim after expiry to succeed")
	}

	client.Del(ctx, key)
}
