package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-sync/internal/adapter/storage"
	"github.com/rl1809/inventory-sync/internal/core/domain"
)

func newReconciler(e *engine, cfg ReconciliationConfig) *ReconciliationService {
	return NewReconciliationService(cfg, ReconciliationDeps{
		Store:     e.store,
		Directory: e.directory,
		Runs:      e.directory,
		Conflicts: e.directory,
		State:     e.cache,
		Mutator:   e.mutations,
		Clock:     e.clock.Now,
	})
}

type brokenStoreRepo struct {
	*storage.MemoryInventoryStore
	brokenStore string
}

func (r *brokenStoreRepo) FindByStore(ctx context.Context, storeID string) ([]domain.InventoryRecord, error) {
	if storeID == r.brokenStore {
		return nil, errors.New("connection reset")
	}
	return r.MemoryInventoryStore.FindByStore(ctx, storeID)
}

type brokenDirectory struct {
	*storage.MemoryDirectory
}

func (brokenDirectory) ListActiveStoreIDs(ctx context.Context) ([]string, error) {
	return nil, errors.New("directory unavailable")
}

func TestSyncStore_NetsStoreQuantity(t *testing.T) {
	e := newEngine()
	e.seed("S1", "sku-1", 3)
	e.seed(domain.CentralStoreID, "sku-1", 50)
	r := newReconciler(e, ReconciliationConfig{})

	run := r.SyncStore(context.Background(), "S1")

	assert.Equal(t, domain.SyncStatusCompleted, run.Status)
	assert.Equal(t, domain.SyncKindStore, run.Kind)
	assert.Equal(t, 1, run.SuccessCount)
	assert.Zero(t, run.FailureCount)
	assert.Equal(t, 47, e.quantity(domain.CentralStoreID, "sku-1"))
}

func TestSyncStore_Idempotent(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	e.seed("S1", "sku-1", 3)
	e.seed(domain.CentralStoreID, "sku-1", 50)
	r := newReconciler(e, ReconciliationConfig{})

	r.SyncStore(ctx, "S1")
	second := r.SyncStore(ctx, "S1")

	assert.Equal(t, domain.SyncStatusCompleted, second.Status)
	assert.Zero(t, second.ConflictCount)
	assert.Equal(t, 47, e.quantity(domain.CentralStoreID, "sku-1"))
}

func TestSyncStore_NetsOnlyChanges(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	e.seed("S1", "sku-1", 3)
	e.seed(domain.CentralStoreID, "sku-1", 50)
	r := newReconciler(e, ReconciliationConfig{})
	r.SyncStore(ctx, "S1")

	e.seed("S1", "sku-1", 5)
	r.SyncStore(ctx, "S1")
	assert.Equal(t, 45, e.quantity(domain.CentralStoreID, "sku-1"))

	// a sale lowers the watermark without touching central
	e.seed("S1", "sku-1", 1)
	r.SyncStore(ctx, "S1")
	assert.Equal(t, 45, e.quantity(domain.CentralStoreID, "sku-1"))

	e.seed("S1", "sku-1", 4)
	r.SyncStore(ctx, "S1")
	assert.Equal(t, 42, e.quantity(domain.CentralStoreID, "sku-1"))
}

func TestSyncStore_SkipsProductsMissingFromCentral(t *testing.T) {
	e := newEngine()
	e.seed("S1", "sku-new", 3)
	e.seed(domain.CentralStoreID, "sku-1", 50)
	r := newReconciler(e, ReconciliationConfig{})

	run := r.SyncStore(context.Background(), "S1")

	assert.Equal(t, domain.SyncStatusCompleted, run.Status)
	assert.Zero(t, run.ItemsProcessed)
	assert.Equal(t, -1, e.quantity(domain.CentralStoreID, "sku-new"))
}

func TestSyncStore_ShortfallWithinTolerance(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	e.seed("S1", "sku-1", 5)
	e.seed(domain.CentralStoreID, "sku-1", 2)
	r := newReconciler(e, ReconciliationConfig{Tolerance: 3})

	run := r.SyncStore(ctx, "S1")

	assert.Equal(t, 1, run.ConflictCount)
	assert.Equal(t, 0, e.quantity(domain.CentralStoreID, "sku-1"))

	conflicts, err := r.ListConflicts(ctx, false)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.True(t, conflicts[0].Resolved)
	assert.Equal(t, domain.OutcomeStoreDataUsed, conflicts[0].Outcome)
	assert.Equal(t, 5, conflicts[0].StoreQuantity)
	assert.Equal(t, 2, conflicts[0].CentralQuantity)

	again := r.SyncStore(ctx, "S1")
	assert.Zero(t, again.ConflictCount)
}

func TestSyncStore_ConflictStrategies(t *testing.T) {
	tests := []struct {
		strategy    domain.ConflictResolutionStrategy
		wantCentral int
		wantOutcome domain.OutcomeKind
	}{
		{domain.StorePriority, 30, domain.OutcomeStoreDataUsed},
		{domain.CentralPriority, 10, domain.OutcomeCentralDataUsed},
		{domain.MergeQuantities, 40, domain.OutcomeMerge},
		{domain.HigherQuantityWins, 30, domain.OutcomeStoreDataUsed},
		{domain.LowerQuantityWins, 10, domain.OutcomeCentralDataUsed},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			e := newEngine()
			ctx := context.Background()
			e.seed("S1", "sku-1", 30)
			e.seed(domain.CentralStoreID, "sku-1", 10)
			r := newReconciler(e, ReconciliationConfig{Strategy: tt.strategy})

			run := r.SyncStore(ctx, "S1")
			assert.Equal(t, 1, run.ConflictCount)
			assert.Equal(t, tt.wantCentral, e.quantity(domain.CentralStoreID, "sku-1"))

			conflicts, err := r.ListConflicts(ctx, false)
			require.NoError(t, err)
			require.Len(t, conflicts, 1)
			assert.True(t, conflicts[0].Resolved)
			assert.Equal(t, tt.wantOutcome, conflicts[0].Outcome)

			// the resolved quantity is netted; nothing happens on the next run
			again := r.SyncStore(ctx, "S1")
			assert.Zero(t, again.ConflictCount)
			assert.Equal(t, tt.wantCentral, e.quantity(domain.CentralStoreID, "sku-1"))
		})
	}
}

func TestSyncStore_ManualReview(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	e.seed("S1", "sku-1", 30)
	e.seed(domain.CentralStoreID, "sku-1", 10)
	r := newReconciler(e, ReconciliationConfig{Strategy: domain.ManualReview})

	first := r.SyncStore(ctx, "S1")
	assert.Equal(t, 1, first.ConflictCount)
	for i := 0; i < 3; i++ {
		again := r.SyncStore(ctx, "S1")
		assert.Zero(t, again.ConflictCount)
	}
	assert.Equal(t, 10, e.quantity(domain.CentralStoreID, "sku-1"))

	open, err := r.ListConflicts(ctx, true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].RequiresManualReview)

	resolved, err := r.ResolveConflict(ctx, open[0].ID, 7, "counted by hand")
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, domain.OutcomeManual, resolved.Outcome)
	assert.Equal(t, 7, e.quantity(domain.CentralStoreID, "sku-1"))

	open, err = r.ListConflicts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, open)

	again := r.SyncStore(ctx, "S1")
	assert.Zero(t, again.ConflictCount)
	assert.Equal(t, 7, e.quantity(domain.CentralStoreID, "sku-1"))

	_, err = r.ResolveConflict(ctx, resolved.ID, 1, "")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = r.ResolveConflict(ctx, "missing", 1, "")
	assert.ErrorIs(t, err, domain.ErrConflictNotFound)
}

func TestSyncStore_ManualReviewRefreshedOnStoreChange(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	e.seed("S1", "sku-1", 30)
	e.seed(domain.CentralStoreID, "sku-1", 10)
	r := newReconciler(e, ReconciliationConfig{Strategy: domain.ManualReview})

	r.SyncStore(ctx, "S1")
	open, err := r.ListConflicts(ctx, true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	id := open[0].ID

	e.seed("S1", "sku-1", 40)
	run := r.SyncStore(ctx, "S1")
	assert.Equal(t, 1, run.ConflictCount)

	open, err = r.ListConflicts(ctx, true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].ID)
	assert.Equal(t, 40, open[0].StoreQuantity)
}

func TestSyncStore_ManualReviewClosedWhenCentralCovers(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	e.seed("S1", "sku-1", 30)
	e.seed(domain.CentralStoreID, "sku-1", 10)
	r := newReconciler(e, ReconciliationConfig{Strategy: domain.ManualReview})

	r.SyncStore(ctx, "S1")
	e.seed(domain.CentralStoreID, "sku-1", 100)
	r.SyncStore(ctx, "S1")

	assert.Equal(t, 70, e.quantity(domain.CentralStoreID, "sku-1"))
	open, err := r.ListConflicts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestResolveConflict_ClosesDuplicates(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	e.seed("S1", "sku-1", 30)
	e.seed(domain.CentralStoreID, "sku-1", 10)
	r := newReconciler(e, ReconciliationConfig{Strategy: domain.ManualReview})

	store := domain.InventoryRecord{StoreID: "S1", ProductID: "sku-1", Quantity: 30}
	central := domain.InventoryRecord{StoreID: domain.CentralStoreID, ProductID: "sku-1", Quantity: 10}
	first := domain.NewInventoryConflict(store, central, domain.ManualReview, e.clock.Now())
	stale := domain.NewInventoryConflict(store, central, domain.ManualReview, e.clock.Now().Add(time.Second))
	require.NoError(t, e.directory.SaveConflict(ctx, *first))
	require.NoError(t, e.directory.SaveConflict(ctx, *stale))

	_, err := r.ResolveConflict(ctx, first.ID, 7, "counted by hand")
	require.NoError(t, err)
	assert.Equal(t, 7, e.quantity(domain.CentralStoreID, "sku-1"))

	_, err = r.ResolveConflict(ctx, stale.ID, 2, "")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 7, e.quantity(domain.CentralStoreID, "sku-1"))

	open, err := r.ListConflicts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSyncStore_CentralRejected(t *testing.T) {
	e := newEngine()
	r := newReconciler(e, ReconciliationConfig{})

	run := r.SyncStore(context.Background(), domain.CentralStoreID)
	assert.Equal(t, domain.SyncStatusFailed, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)
}

func TestSyncAllStores_PartialFailure(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	for _, id := range []string{domain.CentralStoreID, "S1", "S2", "S3"} {
		require.NoError(t, e.directory.CreateStore(ctx, domain.Store{ID: id, Name: id, Active: true}))
	}
	e.seed(domain.CentralStoreID, "sku-1", 100)
	e.seed("S1", "sku-1", 10)
	e.seed("S2", "sku-1", 20)
	e.seed("S3", "sku-1", 30)

	r := NewReconciliationService(ReconciliationConfig{Workers: 2}, ReconciliationDeps{
		Store:     &brokenStoreRepo{MemoryInventoryStore: e.store, brokenStore: "S2"},
		Directory: e.directory,
		Runs:      e.directory,
		Conflicts: e.directory,
		State:     e.cache,
		Mutator:   e.mutations,
		Clock:     e.clock.Now,
	})

	run, err := r.SyncAllStores(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.SyncStatusCompleted, run.Status)
	assert.Equal(t, domain.SyncKindFull, run.Kind)
	assert.Equal(t, domain.SyncScopeAll, run.Scope)
	assert.Equal(t, 3, run.ItemsProcessed)
	assert.Equal(t, 2, run.SuccessCount)
	assert.Equal(t, 1, run.FailureCount)
	assert.Equal(t, 60, e.quantity(domain.CentralStoreID, "sku-1"))

	stored, err := r.GetSyncRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.SuccessCount, stored.SuccessCount)

	stats := r.Stats()
	assert.Equal(t, int64(4), stats.RunsStarted)
	assert.Equal(t, int64(1), stats.RunsFailed)
}

func TestSyncAllStores_ListingFailure(t *testing.T) {
	e := newEngine()
	r := NewReconciliationService(ReconciliationConfig{}, ReconciliationDeps{
		Store:     e.store,
		Directory: brokenDirectory{e.directory},
		Runs:      e.directory,
		Conflicts: e.directory,
		State:     e.cache,
		Mutator:   e.mutations,
	})

	run, err := r.SyncAllStores(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.SyncStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "directory unavailable")
}

func TestGetSyncRun_NotFound(t *testing.T) {
	e := newEngine()
	r := newReconciler(e, ReconciliationConfig{})

	_, err := r.GetSyncRun(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrSyncRunNotFound)
}

func TestTriggerStoreSync(t *testing.T) {
	e := newEngine()
	e.seed("S1", "sku-1", 3)
	e.seed(domain.CentralStoreID, "sku-1", 50)
	r := newReconciler(e, ReconciliationConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	r.TriggerStoreSync(ctx, "S1")
	cancel()
	r.Wait()

	assert.Equal(t, 47, e.quantity(domain.CentralStoreID, "sku-1"))
}
