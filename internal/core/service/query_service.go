package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/logger"
	"github.com/rl1809/inventory-sync/internal/port"
)

// QueryService serves reads. Single-key reads go through the cache; listings
// always hit the store.
type QueryService struct {
	store     port.InventoryRepository
	cache     port.CacheRepository
	directory port.StoreDirectory
	log       *zap.Logger
	now       func() time.Time
}

func NewQueryService(store port.InventoryRepository, cache port.CacheRepository, directory port.StoreDirectory, log *zap.Logger) *QueryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &QueryService{
		store:     store,
		cache:     cache,
		directory: directory,
		log:       log,
		now:       time.Now,
	}
}

func (s *QueryService) Get(ctx context.Context, storeID, productID string) (*domain.InventoryRecord, error) {
	log := logger.Inventory(s.log, storeID, productID)

	cached, err := s.cache.Get(ctx, storeID, productID)
	if err != nil {
		log.Warn("cache read failed, falling back to store", zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	rec, err := s.store.Get(ctx, storeID, productID)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: store %s product %s", domain.ErrInventoryNotFound, storeID, productID)
	}

	if err := s.cache.Put(ctx, *rec); err != nil {
		log.Warn("cache populate failed", zap.Error(err))
	}
	return rec, nil
}

func (s *QueryService) GetAcrossStores(ctx context.Context, productID string) ([]domain.InventoryRecord, error) {
	records, err := s.store.FindByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("find inventory by product: %w", err)
	}
	return records, nil
}

// GetLowStock uses the default threshold when threshold is negative.
func (s *QueryService) GetLowStock(ctx context.Context, storeID string, threshold int) ([]domain.InventoryRecord, error) {
	if threshold < 0 {
		threshold = domain.DefaultLowStockThreshold
	}
	records, err := s.store.FindLowStock(ctx, storeID, threshold)
	if err != nil {
		return nil, fmt.Errorf("find low stock: %w", err)
	}
	return records, nil
}

func (s *QueryService) ListByStore(ctx context.Context, storeID string) ([]domain.InventoryRecord, error) {
	records, err := s.store.FindByStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("find inventory by store: %w", err)
	}
	return records, nil
}

func (s *QueryService) GetSummary(ctx context.Context, storeID string) (*domain.InventorySummary, error) {
	store, err := s.directory.GetStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("get store: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreNotFound, storeID)
	}

	records, err := s.ListByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	summary := &domain.InventorySummary{
		StoreID:       storeID,
		TotalProducts: len(records),
		GeneratedAt:   s.now(),
	}
	for _, rec := range records {
		summary.TotalQuantity += rec.Quantity
		if rec.Quantity <= domain.DefaultLowStockThreshold {
			summary.LowStockCount++
		}
		if rec.Quantity == 0 {
			summary.OutOfStockCount++
		}
	}
	return summary, nil
}
