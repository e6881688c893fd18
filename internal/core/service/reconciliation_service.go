package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/logger"
	"github.com/rl1809/inventory-sync/internal/port"
)

const DefaultSyncWorkers = 8

type ReconciliationConfig struct {
	CentralStoreID string
	Workers        int
	Strategy       domain.ConflictResolutionStrategy

	// Tolerance is the largest shortfall absorbed by clamping central to zero
	Tolerance int
}

type ReconciliationStats struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
}

// ReconciliationService nets store on-hand quantities against the central
// ledger. Each store key keeps a watermark of the quantity already netted,
// so repeating a sync with unchanged data changes nothing.
type ReconciliationService struct {
	cfg       ReconciliationConfig
	store     port.InventoryRepository
	directory port.StoreDirectory
	runs      port.SyncRunRepository
	conflicts port.ConflictRepository
	state     port.ReconciliationStateRepository
	mutator   InventoryMutator
	resolver  ConflictResolver
	log       *zap.Logger
	now       func() time.Time

	async      errgroup.Group
	storeLocks sync.Map

	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

type ReconciliationDeps struct {
	Store     port.InventoryRepository
	Directory port.StoreDirectory
	Runs      port.SyncRunRepository
	Conflicts port.ConflictRepository
	State     port.ReconciliationStateRepository
	Mutator   InventoryMutator
	Logger    *zap.Logger
	Clock     func() time.Time
}

func NewReconciliationService(cfg ReconciliationConfig, deps ReconciliationDeps) *ReconciliationService {
	if cfg.CentralStoreID == "" {
		cfg.CentralStoreID = domain.CentralStoreID
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultSyncWorkers
	}
	if cfg.Strategy == "" {
		cfg.Strategy = domain.LastWriteWins
	}

	s := &ReconciliationService{
		cfg:       cfg,
		store:     deps.Store,
		directory: deps.Directory,
		runs:      deps.Runs,
		conflicts: deps.Conflicts,
		state:     deps.State,
		mutator:   deps.Mutator,
		log:       deps.Logger,
		now:       deps.Clock,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.async.SetLimit(cfg.Workers)
	return s
}

// SyncAllStores reconciles every active store. A failing store is recorded
// on the run and never aborts the others.
func (s *ReconciliationService) SyncAllStores(ctx context.Context) (*domain.SyncRun, error) {
	run := s.startRun(ctx, domain.SyncKindFull, domain.SyncScopeAll)

	ids, err := s.directory.ListActiveStoreIDs(ctx)
	if err != nil {
		err = fmt.Errorf("list active stores: %w", err)
		s.finishRun(ctx, run, err)
		return run, err
	}
	if len(ids) == 0 {
		s.log.Warn("no active stores to reconcile")
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(s.cfg.Workers)

	for _, id := range ids {
		if id == s.cfg.CentralStoreID {
			continue
		}
		g.Go(func() error {
			storeRun := s.SyncStore(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if storeRun.Status == domain.SyncStatusFailed || storeRun.FailureCount > 0 {
				run.RecordFailure()
			} else {
				run.RecordSuccess()
			}
			run.ConflictCount += storeRun.ConflictCount
			return nil
		})
	}
	_ = g.Wait()

	s.finishRun(ctx, run, nil)
	s.log.Info("full sync finished",
		zap.String("sync_id", run.ID),
		zap.Int("stores_ok", run.SuccessCount),
		zap.Int("stores_failed", run.FailureCount),
		zap.Int("conflicts", run.ConflictCount),
		zap.Duration("duration", run.Duration()),
	)
	return run, nil
}

// SyncStore reconciles one store. The returned run is terminal.
func (s *ReconciliationService) SyncStore(ctx context.Context, storeID string) (run *domain.SyncRun) {
	run = s.startRun(ctx, domain.SyncKindStore, storeID)
	log := s.log.With(zap.String("store_id", storeID), zap.String("sync_id", run.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("store sync panicked", zap.Any("panic", r))
			s.finishRun(ctx, run, fmt.Errorf("panic: %v", r))
		}
	}()

	if storeID == s.cfg.CentralStoreID {
		s.finishRun(ctx, run, &domain.ValidationError{Field: "storeId", Reason: "central ledger cannot be reconciled against itself"})
		return run
	}

	// Watermarks of one store are read and written by a single sync at a time.
	mu := s.storeLock(storeID)
	mu.Lock()
	defer mu.Unlock()

	storeItems, err := s.store.FindByStore(ctx, storeID)
	if err != nil {
		s.finishRun(ctx, run, fmt.Errorf("load store inventory: %w", err))
		return run
	}
	centralItems, err := s.store.FindByStore(ctx, s.cfg.CentralStoreID)
	if err != nil {
		s.finishRun(ctx, run, fmt.Errorf("load central inventory: %w", err))
		return run
	}

	central := make(map[string]domain.InventoryRecord, len(centralItems))
	for _, rec := range centralItems {
		central[rec.ProductID] = rec
	}

	for _, item := range storeItems {
		centralItem, ok := central[item.ProductID]
		if !ok {
			continue
		}

		conflicted, err := s.reconcileItem(ctx, item, centralItem)
		if err != nil {
			logger.Inventory(log, storeID, item.ProductID).Warn("item reconciliation failed", zap.Error(err))
			run.RecordFailure()
			continue
		}
		run.RecordSuccess()
		if conflicted {
			run.ConflictCount++
		}
	}

	s.finishRun(ctx, run, nil)
	log.Debug("store sync finished",
		zap.Int("items", run.ItemsProcessed),
		zap.Int("failures", run.FailureCount),
		zap.Int("conflicts", run.ConflictCount),
	)
	return run
}

func (s *ReconciliationService) reconcileItem(ctx context.Context, item, central domain.InventoryRecord) (bool, error) {
	watermark, err := s.state.GetWatermark(ctx, item.StoreID, item.ProductID)
	if err != nil {
		return false, fmt.Errorf("get watermark: %w", err)
	}

	overlap := item.Quantity - watermark
	switch {
	case overlap == 0:
		return false, nil
	case overlap < 0:
		return false, s.netted(ctx, item)
	}

	_, err = s.mutator.Decrement(ctx, s.cfg.CentralStoreID, item.ProductID, overlap, false)
	if err == nil {
		return false, s.netted(ctx, item)
	}

	var insufficient *domain.InsufficientInventoryError
	if !errors.As(err, &insufficient) {
		return false, err
	}

	central.Quantity = insufficient.Available
	return s.handleConflict(ctx, item, central, overlap-insufficient.Available)
}

// netted advances the watermark once the store quantity no longer conflicts
// with central, closing any review left open for the key.
func (s *ReconciliationService) netted(ctx context.Context, item domain.InventoryRecord) error {
	if err := s.closeOpenConflicts(ctx, item.StoreID, item.ProductID, "", domain.OutcomeCentralDataUsed,
		"central covered the store quantity on a later sync"); err != nil {
		return err
	}
	return s.advance(ctx, item)
}

// handleConflict records or refreshes the single open conflict of a key and
// applies the configured resolution. It reports whether the run should count
// a conflict; an unchanged pending review is not counted again.
func (s *ReconciliationService) handleConflict(ctx context.Context, item, central domain.InventoryRecord, shortfall int) (bool, error) {
	open, err := s.conflicts.FindOpenConflicts(ctx, item.StoreID, item.ProductID)
	if err != nil {
		return false, fmt.Errorf("find open conflicts: %w", err)
	}

	conflict := domain.NewInventoryConflict(item, central, s.cfg.Strategy, s.now())
	var prev *domain.InventoryConflict
	if len(open) > 0 {
		prev = &open[0]
		conflict.ID = prev.ID
		conflict.DetectedAt = prev.DetectedAt
	}
	log := logger.Inventory(s.log, item.StoreID, item.ProductID).With(zap.String("conflict_id", conflict.ID))

	if shortfall <= s.cfg.Tolerance {
		if _, err := s.mutator.SetQuantity(ctx, s.cfg.CentralStoreID, item.ProductID, 0, false); err != nil {
			return true, fmt.Errorf("clamp central: %w", err)
		}
		conflict.MarkResolved(domain.OutcomeStoreDataUsed, fmt.Sprintf("shortfall of %d within tolerance %d", shortfall, s.cfg.Tolerance), s.now())
		return true, s.settle(ctx, item, conflict)
	}

	outcome, err := s.resolver.Resolve(item.Quantity, item.LastUpdated, central.Quantity, central.LastUpdated, s.cfg.Strategy)
	if err != nil {
		return true, err
	}

	switch outcome.Kind {
	case domain.OutcomeManual:
		if prev != nil && prev.StoreQuantity == item.Quantity && prev.CentralQuantity == central.Quantity {
			return false, nil
		}
		conflict.RequiresManualReview = true
		log.Warn("conflict requires manual review", zap.Int("shortfall", shortfall))
		return true, s.conflicts.SaveConflict(ctx, *conflict)
	case domain.OutcomeStoreDataUsed, domain.OutcomeMerge:
		if _, err := s.mutator.SetQuantity(ctx, s.cfg.CentralStoreID, item.ProductID, outcome.Quantity, false); err != nil {
			return true, fmt.Errorf("apply %s: %w", outcome.Kind, err)
		}
	}

	conflict.MarkResolved(outcome.Kind, fmt.Sprintf("resolved by %s", s.cfg.Strategy.Description()), s.now())
	log.Info("conflict resolved", zap.String("outcome", string(outcome.Kind)), zap.Int("quantity", outcome.Quantity))
	return true, s.settle(ctx, item, conflict)
}

func (s *ReconciliationService) settle(ctx context.Context, item domain.InventoryRecord, conflict *domain.InventoryConflict) error {
	if err := s.conflicts.SaveConflict(ctx, *conflict); err != nil {
		return fmt.Errorf("save conflict: %w", err)
	}
	notes := fmt.Sprintf("superseded by conflict %s", conflict.ID)
	if err := s.closeOpenConflicts(ctx, item.StoreID, item.ProductID, conflict.ID, conflict.Outcome, notes); err != nil {
		return err
	}
	return s.advance(ctx, item)
}

// closeOpenConflicts resolves every open conflict of the key except keepID.
func (s *ReconciliationService) closeOpenConflicts(ctx context.Context, storeID, productID, keepID string, outcome domain.OutcomeKind, notes string) error {
	open, err := s.conflicts.FindOpenConflicts(ctx, storeID, productID)
	if err != nil {
		return fmt.Errorf("find open conflicts: %w", err)
	}
	for _, c := range open {
		if c.ID == keepID {
			continue
		}
		c.MarkResolved(outcome, notes, s.now())
		if err := s.conflicts.SaveConflict(ctx, c); err != nil {
			return fmt.Errorf("close conflict %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *ReconciliationService) advance(ctx context.Context, item domain.InventoryRecord) error {
	if err := s.state.SetWatermark(ctx, item.StoreID, item.ProductID, item.Quantity); err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

// ResolveConflict completes a manual review by setting the central quantity.
func (s *ReconciliationService) ResolveConflict(ctx context.Context, id string, quantity int, notes string) (*domain.InventoryConflict, error) {
	conflict, err := s.conflicts.GetConflict(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get conflict: %w", err)
	}
	if conflict == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConflictNotFound, id)
	}
	if conflict.Resolved {
		return nil, fmt.Errorf("%w: conflict %s already resolved", domain.ErrConflict, id)
	}

	if _, err := s.mutator.SetQuantity(ctx, s.cfg.CentralStoreID, conflict.ProductID, quantity, false); err != nil {
		return nil, err
	}

	conflict.MarkResolved(domain.OutcomeManual, notes, s.now())
	item := domain.InventoryRecord{StoreID: conflict.StoreID, ProductID: conflict.ProductID, Quantity: conflict.StoreQuantity}
	if err := s.settle(ctx, item, conflict); err != nil {
		return nil, err
	}
	return conflict, nil
}

// TriggerStoreSync schedules a store sync on the worker pool. It blocks
// while the pool is saturated.
func (s *ReconciliationService) TriggerStoreSync(ctx context.Context, storeID string) {
	ctx = context.WithoutCancel(ctx)
	s.async.Go(func() error {
		s.SyncStore(ctx, storeID)
		return nil
	})
}

// Wait blocks until every triggered sync has finished.
func (s *ReconciliationService) Wait() {
	_ = s.async.Wait()
}

// Run performs a full sync every interval until ctx is done.
func (s *ReconciliationService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("reconciliation scheduler started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("reconciliation scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.SyncAllStores(ctx); err != nil {
				s.log.Error("scheduled sync failed", zap.Error(err))
			}
		}
	}
}

func (s *ReconciliationService) GetSyncRun(ctx context.Context, id string) (*domain.SyncRun, error) {
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get sync run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSyncRunNotFound, id)
	}
	return run, nil
}

func (s *ReconciliationService) ListConflicts(ctx context.Context, openOnly bool) ([]domain.InventoryConflict, error) {
	conflicts, err := s.conflicts.ListConflicts(ctx, openOnly)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return conflicts, nil
}

func (s *ReconciliationService) Stats() ReconciliationStats {
	return ReconciliationStats{
		RunsStarted:   s.started.Load(),
		RunsCompleted: s.completed.Load(),
		RunsFailed:    s.failed.Load(),
	}
}

func (s *ReconciliationService) storeLock(storeID string) *sync.Mutex {
	mu, _ := s.storeLocks.LoadOrStore(storeID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *ReconciliationService) startRun(ctx context.Context, kind domain.SyncKind, scope string) *domain.SyncRun {
	run := domain.NewSyncRun(kind, scope, s.now())
	run.Status = domain.SyncStatusRunning
	s.started.Add(1)
	s.saveRun(ctx, run)
	return run
}

func (s *ReconciliationService) finishRun(ctx context.Context, run *domain.SyncRun, err error) {
	if err != nil {
		run.Fail(s.now(), err)
		s.failed.Add(1)
		s.log.Error("sync run failed", zap.String("sync_id", run.ID), zap.String("scope", run.Scope), zap.Error(err))
	} else {
		run.Complete(s.now())
		s.completed.Add(1)
	}
	s.saveRun(ctx, run)
}

// saveRun never fails the sync; run history is best effort.
func (s *ReconciliationService) saveRun(ctx context.Context, run *domain.SyncRun) {
	if err := s.runs.SaveRun(ctx, *run); err != nil {
		s.log.Warn("failed to persist sync run", zap.String("sync_id", run.ID), zap.Error(err))
	}
}
