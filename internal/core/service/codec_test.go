package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

func TestEncodeChangeEvent_KeysByInventory(t *testing.T) {
	event := domain.NewChangeEvent(domain.EventTypeUpdate, "S1", "sku-1", -3, 7, time.Now())

	msg, err := EncodeChangeEvent(event)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, msg.ID)
	assert.Equal(t, "S1:sku-1", msg.Key)
	assert.Contains(t, string(msg.Payload), `"delta":-3`)
}

func TestDecodeChangeEvent_RejectsIncomplete(t *testing.T) {
	_, err := DecodeChangeEvent(port.Message{ID: "m", Payload: []byte(`{"storeId":"S1","delta":1}`)})
	assert.Error(t, err)
}
