package port

import (
	"context"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

// InventoryLock is an exclusive hold on one (store, product) key.
// Exactly one of Save or Release must end the hold; Release after Save is a no-op.
type InventoryLock interface {
	// Record returns the current record, or a zero-quantity placeholder when absent
	Record() domain.InventoryRecord

	// Exists reports whether the record was present when the lock was taken
	Exists() bool

	// Save persists the record and releases the lock
	Save(ctx context.Context, record domain.InventoryRecord) error

	// Release drops the lock without writing
	Release()
}

type InventoryRepository interface {
	// Get retrieves a record, returns nil if absent
	Get(ctx context.Context, storeID, productID string) (*domain.InventoryRecord, error)

	// GetLocked blocks until the per-key lock is acquired
	GetLocked(ctx context.Context, storeID, productID string) (InventoryLock, error)

	FindByStore(ctx context.Context, storeID string) ([]domain.InventoryRecord, error)
	FindByProduct(ctx context.Context, productID string) ([]domain.InventoryRecord, error)

	// FindLowStock returns records of a store with quantity <= threshold
	FindLowStock(ctx context.Context, storeID string, threshold int) ([]domain.InventoryRecord, error)
}
