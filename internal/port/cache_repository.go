package port

import (
	"context"
	"time"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

// CacheRepository is a derived view of the inventory store; it may be stale or empty.
type CacheRepository interface {
	// Get returns nil on a cache miss
	Get(ctx context.Context, storeID, productID string) (*domain.InventoryRecord, error)

	Put(ctx context.Context, record domain.InventoryRecord) error

	Invalidate(ctx context.Context, storeID, productID string) error
}

type IdempotencyRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClaimIdempotency sets a key that expires after ttl, returns false if already exists
	ClaimIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error)

	HasIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency removes a key so that a failed attempt can be retried
	ClearIdempotency(ctx context.Context, key string) error
}
