package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

// MemoryDirectory is the in-process counterpart of GormAdapter.
type MemoryDirectory struct {
	mu        sync.RWMutex
	stores    map[string]domain.Store
	runs      map[string]domain.SyncRun
	conflicts map[string]domain.InventoryConflict
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		stores:    make(map[string]domain.Store),
		runs:      make(map[string]domain.SyncRun),
		conflicts: make(map[string]domain.InventoryConflict),
	}
}

func (d *MemoryDirectory) ListActiveStoreIDs(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.stores))
	for id, s := range d.stores {
		if s.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *MemoryDirectory) ListStores(ctx context.Context) ([]domain.Store, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.Store, 0, len(d.stores))
	for _, s := range d.stores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *MemoryDirectory) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.stores[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (d *MemoryDirectory) CreateStore(ctx context.Context, s domain.Store) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.stores[s.ID]; ok {
		return domain.ErrStoreAlreadyExists
	}
	d.stores[s.ID] = s
	return nil
}

func (d *MemoryDirectory) DeleteStore(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.stores[id]; !ok {
		return domain.ErrStoreNotFound
	}
	delete(d.stores, id)
	return nil
}

func (d *MemoryDirectory) SaveRun(ctx context.Context, run domain.SyncRun) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs[run.ID] = run
	return nil
}

func (d *MemoryDirectory) GetRun(ctx context.Context, id string) (*domain.SyncRun, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	run, ok := d.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (d *MemoryDirectory) SaveConflict(ctx context.Context, c domain.InventoryConflict) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conflicts[c.ID] = c
	return nil
}

func (d *MemoryDirectory) GetConflict(ctx context.Context, id string) (*domain.InventoryConflict, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.conflicts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (d *MemoryDirectory) ListConflicts(ctx context.Context, openOnly bool) ([]domain.InventoryConflict, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.InventoryConflict, 0, len(d.conflicts))
	for _, c := range d.conflicts {
		if openOnly && c.Resolved {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

func (d *MemoryDirectory) FindOpenConflicts(ctx context.Context, storeID, productID string) ([]domain.InventoryConflict, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []domain.InventoryConflict
	for _, c := range d.conflicts {
		if c.Resolved || c.StoreID != storeID || c.ProductID != productID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}
