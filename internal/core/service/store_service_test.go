package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

func storeEvents(t *testing.T, e *engine) []domain.StoreEvent {
	t.Helper()
	var events []domain.StoreEvent
	for _, msg := range e.bus.Messages(domain.TopicStoreEvents) {
		event, err := DecodeStoreEvent(msg)
		require.NoError(t, err)
		events = append(events, event)
	}
	return events
}

func TestCreateStore(t *testing.T) {
	e := newEngine()
	svc := NewStoreService(e.directory, e.bus, nil)
	ctx := context.Background()

	store, err := svc.CreateStore(ctx, domain.Store{ID: " S1 ", Name: "Downtown", Location: "Main St", Active: true})
	require.NoError(t, err)
	assert.Equal(t, "S1", store.ID)
	assert.Equal(t, domain.StoreTypeStore, store.Type)

	central, err := svc.CreateStore(ctx, domain.Store{ID: domain.CentralStoreID, Name: "Warehouse", Active: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StoreTypeCentralWarehouse, central.Type)

	_, err = svc.CreateStore(ctx, domain.Store{ID: "S1", Name: "Again"})
	assert.ErrorIs(t, err, domain.ErrStoreAlreadyExists)

	_, err = svc.CreateStore(ctx, domain.Store{ID: "S2"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	events := storeEvents(t, e)
	require.Len(t, events, 2)
	assert.Equal(t, domain.StoreCreated, events[0].EventType)
	assert.Equal(t, "S1", events[0].StoreID)
}

func TestDeleteStore(t *testing.T) {
	e := newEngine()
	svc := NewStoreService(e.directory, e.bus, nil)
	ctx := context.Background()

	_, err := svc.CreateStore(ctx, domain.Store{ID: "S1", Name: "Downtown", Active: true})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteStore(ctx, "S1"))
	_, err = svc.GetStore(ctx, "S1")
	assert.ErrorIs(t, err, domain.ErrStoreNotFound)

	assert.ErrorIs(t, svc.DeleteStore(ctx, "S1"), domain.ErrStoreNotFound)

	events := storeEvents(t, e)
	require.Len(t, events, 2)
	assert.Equal(t, domain.StoreDeleted, events[1].EventType)
}

type recordingTrigger struct {
	mu     sync.Mutex
	stores []string
}

func (r *recordingTrigger) TriggerStoreSync(ctx context.Context, storeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = append(r.stores, storeID)
}

func TestStoreEventListener(t *testing.T) {
	trigger := &recordingTrigger{}
	l := NewStoreEventListener(trigger, nil)

	var batch []port.Message
	for _, event := range []domain.StoreEvent{
		{EventID: "1", EventType: domain.StoreCreated, StoreID: "S1"},
		{EventID: "2", EventType: domain.StoreUpdated, StoreID: "S1"},
		{EventID: "3", EventType: domain.StoreDeleted, StoreID: "S2"},
		{EventID: "4", EventType: "STORE_RENAMED", StoreID: "S3"},
	} {
		msg, err := EncodeStoreEvent(event)
		require.NoError(t, err)
		batch = append(batch, msg)
	}
	batch = append(batch, port.Message{ID: "5", Payload: []byte("garbage")})

	require.NoError(t, l.HandleBatch(context.Background(), batch))
	assert.Equal(t, []string{"S2"}, trigger.stores)
}

func TestStoreDeletion_TriggersReconciliation(t *testing.T) {
	e := newEngine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.seed("S1", "sku-1", 4)
	e.seed(domain.CentralStoreID, "sku-1", 20)

	r := newReconciler(e, ReconciliationConfig{})
	stores := NewStoreService(e.directory, e.bus, nil)
	listener := NewStoreEventListener(r, nil)

	_, err := stores.CreateStore(ctx, domain.Store{ID: "S1", Name: "Downtown", Active: true})
	require.NoError(t, err)
	require.NoError(t, stores.DeleteStore(ctx, "S1"))

	batch := e.bus.Messages(domain.TopicStoreEvents)
	require.NoError(t, listener.HandleBatch(ctx, batch))
	r.Wait()

	assert.Equal(t, 16, e.quantity(domain.CentralStoreID, "sku-1"))
}
