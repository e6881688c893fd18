package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/adapter/messaging"
	"github.com/rl1809/inventory-sync/internal/adapter/storage"
	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/core/service"
)

const (
	redisAddr      = "localhost:6379"
	storeID        = "STORE-001"
	productID      = "stress-item"
	initialStock   = 100
	totalRequests  = 150
	consumerGroup  = "stress-sync"
	propagationMax = 10 * time.Second
)

func main() {
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, PoolSize: 100})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	rdb.Del(ctx,
		domain.TopicInventoryEvents,
		domain.TopicInventoryAlerts,
		domain.TopicInventoryDeadLetter,
	)
	cache := storage.NewRedisAdapter(rdb, time.Minute)
	cache.Invalidate(ctx, storeID, productID)
	cache.Invalidate(ctx, domain.CentralStoreID, productID)

	bus := messaging.NewRedisStreamBus(rdb, messaging.RedisStreamConfig{
		Consumer:   "stress",
		RetryDelay: 50 * time.Millisecond,
		Block:      200 * time.Millisecond,
	}, zap.NewNop())
	store := storage.NewMemoryInventoryStore()
	mutations := service.NewMutationService(store, cache, bus)

	for _, id := range []string{storeID, domain.CentralStoreID} {
		if _, err := mutations.SetQuantity(ctx, id, productID, initialStock, false); err != nil {
			log.Fatalf("failed to seed %s: %v", id, err)
		}
	}

	// Counters
	var successCount atomic.Int32
	var rejectCount atomic.Int32
	var errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := mutations.Decrement(ctx, storeID, productID, 1, true)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientInventory):
				rejectCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Mirror the store's sales into the central ledger
	consumer := service.NewEventConsumer(service.EventConsumerConfig{Group: consumerGroup}, mutations, cache, bus, zap.NewNop())
	runCtx, stop := context.WithCancel(ctx)
	go consumer.Run(runCtx)

	propagated := waitForQuantity(ctx, store, 0)
	stop()

	success := successCount.Load()
	reject := rejectCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", reject)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Events Applied:   %d\n", consumer.Stats().Applied)
	fmt.Println("==========================================")

	if success == initialStock && reject == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d decrements succeeded, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d rejected, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, reject)
	}

	final, _ := store.Get(ctx, storeID, productID)
	if final != nil && final.Quantity == 0 {
		fmt.Println("PASS: Store stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected store stock 0, got %+v\n", final)
	}

	cached, _ := cache.Get(ctx, storeID, productID)
	if cached != nil && cached.Quantity == 0 {
		fmt.Println("PASS: Cache holds the final version")
	} else {
		fmt.Printf("FAIL: Expected cached stock 0, got %+v\n", cached)
	}

	if propagated {
		fmt.Println("PASS: Central ledger reached 0")
	} else {
		central, _ := store.Get(ctx, domain.CentralStoreID, productID)
		fmt.Printf("FAIL: Central ledger did not converge within %v, got %+v\n", propagationMax, central)
	}
}

type inventoryReader interface {
	Get(ctx context.Context, storeID, productID string) (*domain.InventoryRecord, error)
}

func waitForQuantity(ctx context.Context, store inventoryReader, want int) bool {
	deadline := time.Now().Add(propagationMax)
	for time.Now().Before(deadline) {
		rec, err := store.Get(ctx, domain.CentralStoreID, productID)
		if err == nil && rec != nil && rec.Quantity == want {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}
