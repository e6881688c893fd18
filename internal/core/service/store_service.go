package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

// StoreService manages the store directory and announces changes on the
// store-events topic.
type StoreService struct {
	directory port.StoreDirectory
	publisher port.EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

func NewStoreService(directory port.StoreDirectory, publisher port.EventPublisher, log *zap.Logger) *StoreService {
	if log == nil {
		log = zap.NewNop()
	}
	return &StoreService{directory: directory, publisher: publisher, log: log, now: time.Now}
}

func (s *StoreService) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.directory.ListStores(ctx)
}

func (s *StoreService) ListActiveStoreIDs(ctx context.Context) ([]string, error) {
	return s.directory.ListActiveStoreIDs(ctx)
}

func (s *StoreService) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	store, err := s.directory.GetStore(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get store: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreNotFound, id)
	}
	return store, nil
}

func (s *StoreService) CreateStore(ctx context.Context, store domain.Store) (*domain.Store, error) {
	store.ID = strings.TrimSpace(store.ID)
	if store.ID == "" {
		return nil, &domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(store.Name) == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if store.Type == "" {
		store.Type = domain.StoreTypeStore
		if store.ID == domain.CentralStoreID {
			store.Type = domain.StoreTypeCentralWarehouse
		}
	}

	existing, err := s.directory.GetStore(ctx, store.ID)
	if err != nil {
		return nil, fmt.Errorf("get store: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreAlreadyExists, store.ID)
	}

	if err := s.directory.CreateStore(ctx, store); err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	s.announce(ctx, domain.StoreCreated, store.ID)
	return &store, nil
}

func (s *StoreService) DeleteStore(ctx context.Context, id string) error {
	if _, err := s.GetStore(ctx, id); err != nil {
		return err
	}
	if err := s.directory.DeleteStore(ctx, id); err != nil {
		return fmt.Errorf("delete store: %w", err)
	}

	s.announce(ctx, domain.StoreDeleted, id)
	return nil
}

// announce is best effort; the directory change has already committed.
func (s *StoreService) announce(ctx context.Context, eventType domain.StoreEventType, storeID string) {
	msg, err := EncodeStoreEvent(domain.StoreEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		StoreID:    storeID,
		OccurredAt: s.now(),
	})
	if err == nil {
		err = s.publisher.Publish(ctx, domain.TopicStoreEvents, msg)
	}
	if err != nil {
		s.log.Error("store event not published",
			zap.String("store_id", storeID),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}
