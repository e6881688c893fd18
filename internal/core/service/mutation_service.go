package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/logger"
	"github.com/rl1809/inventory-sync/internal/port"
)

// InventoryMutator is the write side of the engine.
type InventoryMutator interface {
	Increment(ctx context.Context, storeID, productID string, quantity int, publish bool) (*domain.InventoryRecord, error)
	Decrement(ctx context.Context, storeID, productID string, quantity int, publish bool) (*domain.InventoryRecord, error)
	SetQuantity(ctx context.Context, storeID, productID string, quantity int, publish bool) (*domain.InventoryRecord, error)
}

// MutationService applies locked read-modify-write mutations to the
// inventory store, keeps the cache in step and emits change events.
// The publish flag is false for mutations replayed from events so that the
// central ledger never echoes changes back onto the bus.
type MutationService struct {
	store             port.InventoryRepository
	cache             port.CacheRepository
	publisher         port.EventPublisher
	log               *zap.Logger
	now               func() time.Time
	lowStockThreshold int
}

type MutationOption func(*MutationService)

func WithMutationLogger(l *zap.Logger) MutationOption {
	return func(s *MutationService) { s.log = l }
}

func WithClock(now func() time.Time) MutationOption {
	return func(s *MutationService) { s.now = now }
}

func WithLowStockThreshold(threshold int) MutationOption {
	return func(s *MutationService) { s.lowStockThreshold = threshold }
}

func NewMutationService(store port.InventoryRepository, cache port.CacheRepository, publisher port.EventPublisher, opts ...MutationOption) *MutationService {
	s := &MutationService{
		store:             store,
		cache:             cache,
		publisher:         publisher,
		log:               zap.NewNop(),
		now:               time.Now,
		lowStockThreshold: domain.DefaultLowStockThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MutationService) Increment(ctx context.Context, storeID, productID string, quantity int, publish bool) (*domain.InventoryRecord, error) {
	if err := validateMutation(storeID, productID, quantity, false); err != nil {
		return nil, err
	}

	return s.mutate(ctx, storeID, productID, publish, false, func(lock port.InventoryLock) (domain.InventoryRecord, int, error) {
		rec := lock.Record()
		if rec.Quantity > math.MaxInt-quantity {
			return domain.InventoryRecord{}, 0, &domain.ValidationError{Field: "quantity", Reason: "increment exceeds the largest storable quantity"}
		}
		rec.Quantity += quantity
		return rec, quantity, nil
	})
}

func (s *MutationService) Decrement(ctx context.Context, storeID, productID string, quantity int, publish bool) (*domain.InventoryRecord, error) {
	if err := validateMutation(storeID, productID, quantity, false); err != nil {
		return nil, err
	}

	return s.mutate(ctx, storeID, productID, publish, true, func(lock port.InventoryLock) (domain.InventoryRecord, int, error) {
		if !lock.Exists() {
			return domain.InventoryRecord{}, 0, fmt.Errorf("%w: store %s product %s", domain.ErrInventoryNotFound, storeID, productID)
		}

		rec := lock.Record()
		if rec.Quantity < quantity {
			return domain.InventoryRecord{}, 0, &domain.InsufficientInventoryError{
				StoreID:   storeID,
				ProductID: productID,
				Requested: quantity,
				Available: rec.Quantity,
			}
		}
		rec.Quantity -= quantity
		return rec, -quantity, nil
	})
}

func (s *MutationService) SetQuantity(ctx context.Context, storeID, productID string, quantity int, publish bool) (*domain.InventoryRecord, error) {
	if err := validateMutation(storeID, productID, quantity, true); err != nil {
		return nil, err
	}

	return s.mutate(ctx, storeID, productID, publish, true, func(lock port.InventoryLock) (domain.InventoryRecord, int, error) {
		rec := lock.Record()
		diff := quantity - rec.Quantity
		rec.Quantity = quantity
		return rec, diff, nil
	})
}

type mutation func(lock port.InventoryLock) (rec domain.InventoryRecord, delta int, err error)

// checkLowStock is set for decrements and absolute sets.
func (s *MutationService) mutate(ctx context.Context, storeID, productID string, publish, checkLowStock bool, apply mutation) (*domain.InventoryRecord, error) {
	lock, err := s.store.GetLocked(ctx, storeID, productID)
	if err != nil {
		return nil, fmt.Errorf("lock inventory: %w", err)
	}

	previous := lock.Record().LastUpdated
	rec, delta, err := apply(lock)
	if err != nil {
		lock.Release()
		return nil, err
	}

	// LastUpdated is strictly increasing per key; the cache relies on it to
	// discard out-of-order writes.
	now := s.now()
	if !now.After(previous) {
		now = previous.Add(time.Nanosecond)
	}
	rec.LastUpdated = now

	if err := lock.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save inventory: %w", err)
	}

	log := logger.Inventory(s.log, storeID, productID)
	s.refreshCache(ctx, log, rec)

	log.Debug("inventory mutated", zap.Int("delta", delta), zap.Int("quantity", rec.Quantity))

	if !publish || delta == 0 {
		return &rec, nil
	}

	if err := s.publish(ctx, domain.TopicInventoryEvents, domain.EventTypeUpdate, rec, delta); err != nil {
		log.Error("mutation committed but change event was not published", zap.Int("delta", delta), zap.Error(err))
		return &rec, err
	}

	if checkLowStock && rec.Quantity <= s.lowStockThreshold {
		if err := s.publish(ctx, domain.TopicInventoryAlerts, domain.EventTypeLowStockAlert, rec, delta); err != nil {
			log.Warn("low stock alert not published", zap.Error(err))
		}
	}

	return &rec, nil
}

// refreshCache repopulates the cache entry, falling back to eviction so a
// stale value is never left behind on failure.
func (s *MutationService) refreshCache(ctx context.Context, log *zap.Logger, rec domain.InventoryRecord) {
	err := s.cache.Put(ctx, rec)
	if err == nil {
		return
	}

	log.Warn("cache update failed, evicting", zap.Error(err))
	if err := s.cache.Invalidate(ctx, rec.StoreID, rec.ProductID); err != nil {
		log.Error("cache eviction failed, entry may be stale", zap.Error(err))
	}
}

func (s *MutationService) publish(ctx context.Context, topic string, eventType domain.EventType, rec domain.InventoryRecord, delta int) error {
	event := domain.NewChangeEvent(eventType, rec.StoreID, rec.ProductID, delta, rec.Quantity, rec.LastUpdated)
	msg, err := EncodeChangeEvent(event)
	if err != nil {
		return errors.Join(domain.ErrEventPublish, err)
	}

	if err := s.publisher.Publish(ctx, topic, msg); err != nil {
		return fmt.Errorf("%w: event %s: %w", domain.ErrEventPublish, event.EventID, err)
	}
	return nil
}

func validateMutation(storeID, productID string, quantity int, allowZero bool) error {
	if strings.TrimSpace(storeID) == "" {
		return &domain.ValidationError{Field: "storeId", Reason: "must not be empty"}
	}
	if strings.TrimSpace(productID) == "" {
		return &domain.ValidationError{Field: "productId", Reason: "must not be empty"}
	}
	if domain.IsReservedProductID(productID) {
		return &domain.ValidationError{Field: "productId", Reason: fmt.Sprintf("%q is reserved", productID)}
	}
	if allowZero && quantity < 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if !allowZero && quantity <= 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	return nil
}
