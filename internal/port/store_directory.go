package port

import (
	"context"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

type StoreDirectory interface {
	ListActiveStoreIDs(ctx context.Context) ([]string, error)
	ListStores(ctx context.Context) ([]domain.Store, error)

	// GetStore returns nil if absent
	GetStore(ctx context.Context, id string) (*domain.Store, error)

	CreateStore(ctx context.Context, store domain.Store) error
	DeleteStore(ctx context.Context, id string) error
}
