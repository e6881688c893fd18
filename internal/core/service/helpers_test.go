package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rl1809/inventory-sync/internal/adapter/messaging"
	"github.com/rl1809/inventory-sync/internal/adapter/storage"
	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

var errBroker = errors.New("broker unavailable")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engine struct {
	store     *storage.MemoryInventoryStore
	cache     *storage.MemoryCache
	directory *storage.MemoryDirectory
	bus       *messaging.MemoryBus
	clock     *testClock
	mutations *MutationService
}

func newEngine() *engine {
	e := &engine{
		store:     storage.NewMemoryInventoryStore(),
		cache:     storage.NewMemoryCache(),
		directory: storage.NewMemoryDirectory(),
		bus:       messaging.NewMemoryBus(messaging.WithRetryDelay(time.Millisecond)),
		clock:     newTestClock(),
	}
	e.mutations = NewMutationService(e.store, e.cache, e.bus, WithClock(e.clock.Now))
	return e
}

// seed sets a quantity without publishing.
func (e *engine) seed(storeID, productID string, quantity int) {
	if _, err := e.mutations.SetQuantity(context.Background(), storeID, productID, quantity, false); err != nil {
		panic(err)
	}
}

func (e *engine) quantity(storeID, productID string) int {
	rec, err := e.store.Get(context.Background(), storeID, productID)
	if err != nil {
		panic(err)
	}
	if rec == nil {
		return -1
	}
	return rec.Quantity
}

func (e *engine) changeEvents() []domain.ChangeEvent {
	var events []domain.ChangeEvent
	for _, msg := range e.bus.Messages(domain.TopicInventoryEvents) {
		event, err := DecodeChangeEvent(msg)
		if err != nil {
			panic(err)
		}
		events = append(events, event)
	}
	return events
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, topic string, msg port.Message) error {
	return errBroker
}

type flakyCache struct {
	*storage.MemoryCache
	putErr      error
	invalidated []domain.Key
}

func (c *flakyCache) Put(ctx context.Context, rec domain.InventoryRecord) error {
	if c.putErr != nil {
		return c.putErr
	}
	return c.MemoryCache.Put(ctx, rec)
}

func (c *flakyCache) Invalidate(ctx context.Context, storeID, productID string) error {
	c.invalidated = append(c.invalidated, domain.Key{StoreID: storeID, ProductID: productID})
	return c.MemoryCache.Invalidate(ctx, storeID, productID)
}
