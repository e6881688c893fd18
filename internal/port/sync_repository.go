package port

import (
	"context"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

type SyncRunRepository interface {
	SaveRun(ctx context.Context, run domain.SyncRun) error

	// GetRun returns nil if absent
	GetRun(ctx context.Context, id string) (*domain.SyncRun, error)
}

type ConflictRepository interface {
	SaveConflict(ctx context.Context, conflict domain.InventoryConflict) error

	// GetConflict returns nil if absent
	GetConflict(ctx context.Context, id string) (*domain.InventoryConflict, error)

	ListConflicts(ctx context.Context, openOnly bool) ([]domain.InventoryConflict, error)

	// FindOpenConflicts returns unresolved conflicts of one key, oldest first
	FindOpenConflicts(ctx context.Context, storeID, productID string) ([]domain.InventoryConflict, error)
}

// ReconciliationStateRepository keeps, per store key, the store quantity already
// netted against the central ledger.
type ReconciliationStateRepository interface {
	GetWatermark(ctx context.Context, storeID, productID string) (int, error)
	SetWatermark(ctx context.Context, storeID, productID string, quantity int) error
}
