package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

var ErrNegativeQuantity = errors.New("quantity must not be negative")

type MemoryInventoryStore struct {
	locks   *KeyedMutex
	mu      sync.RWMutex
	records map[domain.Key]domain.InventoryRecord
}

func NewMemoryInventoryStore() *MemoryInventoryStore {
	return &MemoryInventoryStore{
		locks:   NewKeyedMutex(),
		records: make(map[domain.Key]domain.InventoryRecord),
	}
}

func (s *MemoryInventoryStore) Get(ctx context.Context, storeID, productID string) (*domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[domain.Key{StoreID: storeID, ProductID: productID}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryInventoryStore) GetLocked(ctx context.Context, storeID, productID string) (port.InventoryLock, error) {
	key := domain.Key{StoreID: storeID, ProductID: productID}
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		rec = domain.InventoryRecord{StoreID: storeID, ProductID: productID}
	}

	return &memoryLock{store: s, key: key, record: rec, exists: ok, unlock: unlock}, nil
}

func (s *MemoryInventoryStore) FindByStore(ctx context.Context, storeID string) ([]domain.InventoryRecord, error) {
	return s.filter(func(r domain.InventoryRecord) bool { return r.StoreID == storeID }), nil
}

func (s *MemoryInventoryStore) FindByProduct(ctx context.Context, productID string) ([]domain.InventoryRecord, error) {
	return s.filter(func(r domain.InventoryRecord) bool { return r.ProductID == productID }), nil
}

func (s *MemoryInventoryStore) FindLowStock(ctx context.Context, storeID string, threshold int) ([]domain.InventoryRecord, error) {
	return s.filter(func(r domain.InventoryRecord) bool {
		return r.StoreID == storeID && r.Quantity <= threshold
	}), nil
}

func (s *MemoryInventoryStore) filter(match func(domain.InventoryRecord) bool) []domain.InventoryRecord {
	s.mu.RLock()
	out := make([]domain.InventoryRecord, 0)
	for _, rec := range s.records {
		if match(rec) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StoreID != out[j].StoreID {
			return out[i].StoreID < out[j].StoreID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

type memoryLock struct {
	store  *MemoryInventoryStore
	key    domain.Key
	record domain.InventoryRecord
	exists bool
	unlock func()
}

func (l *memoryLock) Record() domain.InventoryRecord { return l.record }

func (l *memoryLock) Exists() bool { return l.exists }

func (l *memoryLock) Save(ctx context.Context, record domain.InventoryRecord) error {
	defer l.unlock()

	if record.Key() != l.key {
		return errors.New("record key does not match locked key")
	}
	if record.Quantity < 0 {
		return ErrNegativeQuantity
	}

	l.store.mu.Lock()
	l.store.records[l.key] = record
	l.store.mu.Unlock()
	return nil
}

func (l *memoryLock) Release() { l.unlock() }
