package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

// StoreSyncTrigger schedules an asynchronous reconciliation of one store.
type StoreSyncTrigger interface {
	TriggerStoreSync(ctx context.Context, storeID string)
}

// StoreEventListener reacts to store directory changes. Only deletions
// trigger a reconciliation so the departing store's stock is netted.
type StoreEventListener struct {
	trigger StoreSyncTrigger
	log     *zap.Logger
}

func NewStoreEventListener(trigger StoreSyncTrigger, log *zap.Logger) *StoreEventListener {
	if log == nil {
		log = zap.NewNop()
	}
	return &StoreEventListener{trigger: trigger, log: log}
}

func (l *StoreEventListener) Run(ctx context.Context, sub port.EventSubscriber, group string) error {
	return sub.Subscribe(ctx, domain.TopicStoreEvents, group, l.HandleBatch)
}

func (l *StoreEventListener) HandleBatch(ctx context.Context, batch []port.Message) error {
	for _, msg := range batch {
		event, err := DecodeStoreEvent(msg)
		if err != nil {
			l.log.Warn("dropping malformed store event", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}

		log := l.log.With(zap.String("store_id", event.StoreID), zap.String("event_type", string(event.EventType)))
		switch event.EventType {
		case domain.StoreCreated, domain.StoreUpdated:
			log.Info("store event received")
		case domain.StoreDeleted:
			log.Info("store deleted, scheduling reconciliation")
			l.trigger.TriggerStoreSync(ctx, event.StoreID)
		default:
			log.Warn("unknown store event type")
		}
	}
	return nil
}
