package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

// MemoryCache is an in-process stand-in for RedisAdapter. It keeps the same
// newest-version-wins rule for Put.
type MemoryCache struct {
	mu         sync.Mutex
	records    map[domain.Key]domain.InventoryRecord
	keys       map[string]time.Time
	watermarks map[domain.Key]int
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		records:    make(map[domain.Key]domain.InventoryRecord),
		keys:       make(map[string]time.Time),
		watermarks: make(map[domain.Key]int),
	}
}

func (c *MemoryCache) Get(ctx context.Context, storeID, productID string) (*domain.InventoryRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[domain.Key{StoreID: storeID, ProductID: productID}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (c *MemoryCache) Put(ctx context.Context, rec domain.InventoryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.records[rec.Key()]; ok && cur.LastUpdated.After(rec.LastUpdated) {
		return nil
	}
	c.records[rec.Key()] = rec
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, storeID, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.records, domain.Key{StoreID: storeID, ProductID: productID})
	return nil
}

func (c *MemoryCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	return c.ClaimIdempotency(ctx, key, 0)
}

// ClaimIdempotency with ttl 0 sets a key that never expires.
func (c *MemoryCache) ClaimIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(key) {
		return false, nil
	}
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	c.keys[key] = expires
	return true, nil
}

func (c *MemoryCache) HasIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key), nil
}

func (c *MemoryCache) liveLocked(key string) bool {
	expires, ok := c.keys[key]
	if !ok {
		return false
	}
	if !expires.IsZero() && !time.Now().Before(expires) {
		delete(c.keys, key)
		return false
	}
	return true
}

func (c *MemoryCache) ClearIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.keys, key)
	return nil
}

func (c *MemoryCache) GetWatermark(ctx context.Context, storeID, productID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watermarks[domain.Key{StoreID: storeID, ProductID: productID}], nil
}

func (c *MemoryCache) SetWatermark(ctx context.Context, storeID, productID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watermarks[domain.Key{StoreID: storeID, ProductID: productID}] = quantity
	return nil
}
